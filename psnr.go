package pyrowave

import (
	"math"

	"github.com/ajroetker/go-highway/hwy/contrib/image"
)

// PlanePSNR computes the peak signal-to-noise ratio between two planes of
// [0, 1] samples over their top-left w x h region. Identical planes
// return +Inf.
func PlanePSNR(a, b *image.Image[float32], w, h int) float64 {
	var sum float64
	for y := range h {
		ra := a.Row(y)
		rb := b.Row(y)
		for x := range w {
			d := float64(ra[x]) - float64(rb[x])
			sum += d * d
		}
	}
	if sum == 0 {
		return math.Inf(1)
	}
	mse := sum / float64(w*h)
	return 10 * math.Log10(1/mse)
}

// FramePSNR computes the 6/1/1-weighted YCbCr PSNR of two frames.
func FramePSNR(a, b *Frame) float64 {
	weights := [NumComponents]float64{6, 1, 1}
	var acc, total float64
	for c := range NumComponents {
		w, h := a.PlaneDims(c)
		acc += weights[c] * PlanePSNR(a.Planes[c], b.Planes[c], w, h)
		total += weights[c]
	}
	return acc / total
}
