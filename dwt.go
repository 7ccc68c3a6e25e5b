package pyrowave

import (
	"github.com/ajroetker/go-highway/hwy/contrib/image"
	"github.com/ajroetker/go-highway/hwy/contrib/wavelet"
)

// Lifting coefficients for the CDF 9/7 biorthogonal wavelet.
const (
	lift97Alpha float64 = -1.586134342059924
	lift97Beta  float64 = -0.052980118572961
	lift97Gamma float64 = 0.882911075530934
	lift97Delta float64 = 0.443506852043971
	lift97K     float64 = 1.230174104914001
)

// Coefficient planes are stored saturated to this range, matching the FP16
// wavelet buffers of GPU realisations.
const coeffClamp = 4.0

// dwtBufs holds reusable split-domain buffers for 1D transforms.
// One set is allocated per worker chunk and reused across lines.
type dwtBufs struct {
	low, high, line []float32
}

func (b *dwtBufs) ensure(n int) {
	half := n / 2
	if cap(b.low) < half {
		b.low = make([]float32, half)
	}
	if cap(b.high) < half {
		b.high = make([]float32, half)
	}
	if cap(b.line) < n {
		b.line = make([]float32, n)
	}
}

// analyze1D97 performs the forward 1D 9/7 transform in place.
// Input: interleaved signal of even length. Output: [low | high].
//
// The four lifting passes are odd += alpha*(even neighbours),
// even += beta*(odd neighbours), odd += gamma*(...), even += delta*(...),
// then evens scale by 1/K and odds by K. LiftStep97 subtracts
// coeff*(neighbours), so the forward direction negates the constants.
// Neighbour clamping at the ends of the split arrays realises the
// symmetric edge extension.
func analyze1D97(data []float32, bufs *dwtBufs) {
	n := len(data)
	if n <= 1 {
		return
	}
	sn := n / 2
	low := bufs.low[:sn]
	high := bufs.high[:sn]

	wavelet.Deinterleave(data, low, sn, high, sn, 0)

	wavelet.LiftStep97(high, sn, low, sn, float32(-lift97Alpha), 0)
	wavelet.LiftStep97(low, sn, high, sn, float32(-lift97Beta), 1)
	wavelet.LiftStep97(high, sn, low, sn, float32(-lift97Gamma), 0)
	wavelet.LiftStep97(low, sn, high, sn, float32(-lift97Delta), 1)

	wavelet.ScaleSlice(low, sn, float32(1.0/lift97K))
	wavelet.ScaleSlice(high, sn, float32(lift97K))

	copy(data[:sn], low)
	copy(data[sn:n], high)
}

// synthesize1D97 performs the inverse 1D 9/7 transform in place.
// Input: [low | high]. Output: interleaved signal.
func synthesize1D97(data []float32, bufs *dwtBufs) {
	n := len(data)
	if n <= 1 {
		return
	}
	sn := n / 2
	low := bufs.low[:sn]
	high := bufs.high[:sn]

	copy(low, data[:sn])
	copy(high, data[sn:n])

	wavelet.ScaleSlice(low, sn, float32(lift97K))
	wavelet.ScaleSlice(high, sn, float32(1.0/lift97K))

	wavelet.LiftStep97(low, sn, high, sn, float32(lift97Delta), 1)
	wavelet.LiftStep97(high, sn, low, sn, float32(lift97Gamma), 0)
	wavelet.LiftStep97(low, sn, high, sn, float32(lift97Beta), 1)
	wavelet.LiftStep97(high, sn, low, sn, float32(lift97Alpha), 0)

	wavelet.Interleave(data, low, sn, high, sn, 0)
}

// subbandPyramid owns the coefficient planes of all coded subbands plus
// the LL scratch planes threading levels together. Planes are allocated
// once per layout and reused across frames.
type subbandPyramid struct {
	layout *FrameLayout
	bands  [NumComponents][DecompositionLevels][4]*image.Image[float32]
}

func newSubbandPyramid(layout *FrameLayout) *subbandPyramid {
	p := &subbandPyramid{layout: layout}
	for c := range NumComponents {
		for level := range DecompositionLevels {
			if !layout.componentHasLevel(c, level) {
				continue
			}
			w, h := layout.bandDims(level)
			for band := range 4 {
				p.bands[c][level][band] = image.NewImage[float32](w, h)
			}
		}
	}
	return p
}

func (p *subbandPyramid) band(component, level int, band Band) *image.Image[float32] {
	return p.bands[component][level][band]
}

// clearCoded zeroes every coded band so that missing blocks decode to
// zero coefficients.
func (p *subbandPyramid) clearCoded() {
	for c := range NumComponents {
		for level := range DecompositionLevels {
			if !p.layout.componentHasLevel(c, level) {
				continue
			}
			for _, band := range bandsForLevel(level) {
				p.bands[c][level][band].Clear()
			}
		}
	}
}

func clampCoeff(v float32) float32 {
	if v > coeffClamp {
		return coeffClamp
	}
	if v < -coeffClamp {
		return -coeffClamp
	}
	return v
}

// analyze2D runs one separable decomposition level in place on the top-left
// w x h region of src (horizontal pass then vertical pass), then splits the
// four quadrants into the band planes, saturating to the coefficient range.
func analyze2D(src *image.Image[float32], w, h int, ll, hl, lh, hh *image.Image[float32], pool parallelRunner) {
	// Horizontal pass over rows.
	pool.run(h, func(start, end int) {
		var bufs dwtBufs
		bufs.ensure(w)
		for y := start; y < end; y++ {
			analyze1D97(src.Row(y)[:w], &bufs)
		}
	})

	// Vertical pass over columns.
	pool.run(w, func(start, end int) {
		var bufs dwtBufs
		bufs.ensure(h)
		col := bufs.line[:h]
		for x := start; x < end; x++ {
			for y := range h {
				col[y] = src.Row(y)[x]
			}
			analyze1D97(col, &bufs)
			for y := range h {
				src.Row(y)[x] = col[y]
			}
		}
	})

	// Quadrant split: [LL HL; LH HH].
	sw, sh := w/2, h/2
	pool.run(sh, func(start, end int) {
		for y := start; y < end; y++ {
			srcTop := src.Row(y)
			srcBot := src.Row(y + sh)
			llRow := ll.Row(y)
			hlRow := hl.Row(y)
			lhRow := lh.Row(y)
			hhRow := hh.Row(y)
			for x := range sw {
				llRow[x] = clampCoeff(srcTop[x])
				hlRow[x] = clampCoeff(srcTop[x+sw])
				lhRow[x] = clampCoeff(srcBot[x])
				hhRow[x] = clampCoeff(srcBot[x+sw])
			}
		}
	})
}

// synthesize2D assembles the four band planes into the top-left w x h
// region of dst and runs one inverse level in place (vertical pass then
// horizontal pass, undoing analyze2D).
func synthesize2D(dst *image.Image[float32], w, h int, ll, hl, lh, hh *image.Image[float32], pool parallelRunner) {
	sw, sh := w/2, h/2
	pool.run(sh, func(start, end int) {
		for y := start; y < end; y++ {
			dstTop := dst.Row(y)
			dstBot := dst.Row(y + sh)
			llRow := ll.Row(y)
			hlRow := hl.Row(y)
			lhRow := lh.Row(y)
			hhRow := hh.Row(y)
			for x := range sw {
				dstTop[x] = llRow[x]
				dstTop[x+sw] = hlRow[x]
				dstBot[x] = lhRow[x]
				dstBot[x+sw] = hhRow[x]
			}
		}
	})

	// Vertical pass over columns.
	pool.run(w, func(start, end int) {
		var bufs dwtBufs
		bufs.ensure(h)
		col := bufs.line[:h]
		for x := start; x < end; x++ {
			for y := range h {
				col[y] = dst.Row(y)[x]
			}
			synthesize1D97(col, &bufs)
			for y := range h {
				dst.Row(y)[x] = col[y]
			}
		}
	})

	// Horizontal pass over rows.
	pool.run(h, func(start, end int) {
		var bufs dwtBufs
		bufs.ensure(w)
		for y := start; y < end; y++ {
			synthesize1D97(dst.Row(y)[:w], &bufs)
		}
	})
}

// componentStartLevel returns the level at which a component enters the
// decomposition.
func componentStartLevel(component int, chroma ChromaSubsampling) int {
	if component != 0 && chroma == Chroma420 {
		return 1
	}
	return 0
}

// padPlane copies a source plane into the aligned working plane with
// symmetric mirroring past the edges, applying the -0.5 DC shift.
func padPlane(dst *image.Image[float32], dw, dh int, src *image.Image[float32], sw, sh int, pool parallelRunner) {
	pool.run(dh, func(start, end int) {
		for y := start; y < end; y++ {
			srcRow := src.Row(image.Mirror(y, sh))
			dstRow := dst.Row(y)
			for x := range dw {
				dstRow[x] = srcRow[image.Mirror(x, sw)] - 0.5
			}
		}
	})
}

// cropPlane copies the top-left region of the aligned working plane into
// the output plane, undoing the DC shift and clamping to [0, 1].
func cropPlane(dst *image.Image[float32], dw, dh int, src *image.Image[float32], pool parallelRunner) {
	pool.run(dh, func(start, end int) {
		for y := start; y < end; y++ {
			srcRow := src.Row(y)
			dstRow := dst.Row(y)
			for x := range dw {
				v := srcRow[x] + 0.5
				if v < 0 {
					v = 0
				} else if v > 1 {
					v = 1
				}
				dstRow[x] = v
			}
		}
	})
}

// forwardDWT decomposes one frame into the pyramid. The scratch planes
// must be sized for each component's entry level.
func forwardDWT(pyr *subbandPyramid, frame *Frame, scratch [NumComponents]*image.Image[float32], pool parallelRunner) {
	layout := pyr.layout
	for c := range NumComponents {
		start := componentStartLevel(c, layout.Chroma)
		pw, ph := frame.PlaneDims(c)
		aw := layout.AlignedWidth >> start
		ah := layout.AlignedHeight >> start

		cur := scratch[c]
		padPlane(cur, aw, ah, frame.Planes[c], pw, ph, pool)

		for level := start; level < DecompositionLevels; level++ {
			w := layout.AlignedWidth >> level
			h := layout.AlignedHeight >> level
			analyze2D(cur, w, h,
				pyr.band(c, level, BandLL),
				pyr.band(c, level, BandHL),
				pyr.band(c, level, BandLH),
				pyr.band(c, level, BandHH),
				pool)
			cur = pyr.band(c, level, BandLL)
		}
	}
}

// inverseDWT reconstructs one frame from the pyramid into frame planes.
func inverseDWT(pyr *subbandPyramid, frame *Frame, scratch [NumComponents]*image.Image[float32], pool parallelRunner) {
	layout := pyr.layout
	for c := range NumComponents {
		start := componentStartLevel(c, layout.Chroma)
		for level := DecompositionLevels - 1; level >= start; level-- {
			w := layout.AlignedWidth >> level
			h := layout.AlignedHeight >> level

			var dst *image.Image[float32]
			if level == start {
				dst = scratch[c]
			} else {
				dst = pyr.band(c, level-1, BandLL)
			}
			synthesize2D(dst, w, h,
				pyr.band(c, level, BandLL),
				pyr.band(c, level, BandHL),
				pyr.band(c, level, BandLH),
				pyr.band(c, level, BandHH),
				pool)
		}

		pw, ph := frame.PlaneDims(c)
		cropPlane(frame.Planes[c], pw, ph, scratch[c], pool)
	}
}
