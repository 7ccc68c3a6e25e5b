package pyrowave

import (
	"fmt"

	"github.com/ajroetker/go-highway/hwy/contrib/image"
)

// Frame holds planar YCbCr samples in [0, 1]. The luma plane is full
// resolution; chroma planes are half resolution in both axes at 4:2:0 and
// full resolution at 4:4:4.
type Frame struct {
	Width  int
	Height int
	Chroma ChromaSubsampling

	Planes [NumComponents]*image.Image[float32]
}

// NewFrame allocates a frame with zeroed planes.
func NewFrame(width, height int, chroma ChromaSubsampling) *Frame {
	f := &Frame{
		Width:  width,
		Height: height,
		Chroma: chroma,
	}
	for c := range NumComponents {
		w, h := f.PlaneDims(c)
		f.Planes[c] = image.NewImage[float32](w, h)
	}
	return f
}

// PlaneDims returns the dimensions of a component plane.
func (f *Frame) PlaneDims(component int) (int, int) {
	if component != 0 && f.Chroma == Chroma420 {
		return f.Width / 2, f.Height / 2
	}
	return f.Width, f.Height
}

func (f *Frame) validateAgainst(layout *FrameLayout) error {
	if f.Width != layout.Width || f.Height != layout.Height {
		return fmt.Errorf("%w: frame %dx%d, configured %dx%d",
			ErrDimensionMismatch, f.Width, f.Height, layout.Width, layout.Height)
	}
	if f.Chroma != layout.Chroma {
		return ErrChromaMismatch
	}
	for c := range NumComponents {
		w, h := f.PlaneDims(c)
		p := f.Planes[c]
		if p == nil || p.Width() < w || p.Height() < h {
			return fmt.Errorf("%w: component %d plane too small", ErrParam, c)
		}
	}
	return nil
}
