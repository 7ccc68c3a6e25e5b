package pyrowave

import (
	"math"
	"math/bits"
)

// Bitstream analysis helpers: per-band bit cost and magnitude-plane
// entropy of a packed frame. Useful for tuning band resolutions and for
// judging how much a true entropy coder would buy; not part of the wire
// format.

// BandStats summarises the cost of one subband within a packed frame.
type BandStats struct {
	Component int
	Level     int
	Band      Band

	// Bytes of packed records attributed to the band.
	Bytes int

	// BitsPerPixel relative to the subband's own sample count.
	BitsPerPixel float64
}

// FrameStats is the per-frame analysis of an EncodedFrame.
type FrameStats struct {
	Bands      []BandStats
	TotalBytes int

	// PlaneBytes counts emitted magnitude-plane bytes by significance
	// index, most significant first. PlaneEntropy is the zeroth-order
	// byte entropy of each plane as a fraction of 8 bits; planes near
	// 1.0 would gain nothing from entropy coding.
	PlaneBytes   []int
	PlaneEntropy []float64
}

// Stats analyses the packed frame.
func (f *EncodedFrame) Stats() FrameStats {
	layout := f.layout

	bandBytes := make(map[[3]int]int)
	const maxPlanes = maxQuantDepths + 3
	var histogram [maxPlanes][256]int
	var planeTotals [maxPlanes]int

	for index, m := range f.meta {
		if m.NumWords == 0 {
			continue
		}
		rec := f.Bitstream[m.OffsetWords*4 : (m.OffsetWords+m.NumWords)*4]
		pos := layout.Position(index)
		bandBytes[[3]int{pos.Component, pos.Level, int(pos.Band)}] += len(rec)

		var h blockHeader
		h.unmarshal(rec)
		bm := layout.band(pos.Component, pos.Level, pos.Band)

		n := bits.OnesCount16(h.ballot)
		cwOff := HeaderSize
		off := HeaderSize + 4*n
		for bit := 0; bit < 16; bit++ {
			if h.ballot>>bit&1 == 0 {
				continue
			}
			cw := uint32(rec[cwOff]) | uint32(rec[cwOff+1])<<8 |
				uint32(rec[cwOff+2])<<16 | uint32(rec[cwOff+3])<<24
			cwOff += 4

			mask, _ := subBlockMask(bm.width, bm.height, pos.X32*4+bit&3, pos.Y32*4+bit>>2)
			qb := codeWordQBits(cw)
			for sub := range subBlocksPer8x8 {
				if mask>>sub&1 == 0 {
					continue
				}
				planes := qb + codeWordPlaneCode(cw, sub)
				for j := range planes {
					if j < maxPlanes {
						histogram[j][rec[off]]++
						planeTotals[j]++
					}
					off++
				}
			}
		}
	}

	stats := FrameStats{TotalBytes: f.PayloadSize()}
	for c := range NumComponents {
		for level := DecompositionLevels - 1; level >= 0; level-- {
			if !layout.componentHasLevel(c, level) {
				continue
			}
			for _, band := range bandsForLevel(level) {
				bm := layout.band(c, level, band)
				b := bandBytes[[3]int{c, level, int(band)}]
				stats.Bands = append(stats.Bands, BandStats{
					Component:    c,
					Level:        level,
					Band:         band,
					Bytes:        b,
					BitsPerPixel: float64(b*8) / float64(bm.width*bm.height),
				})
			}
		}
	}

	for j := range maxPlanes {
		if planeTotals[j] == 0 {
			break
		}
		entropy := 0.0
		for v := range 256 {
			if histogram[j][v] == 0 {
				continue
			}
			p := float64(histogram[j][v]) / float64(planeTotals[j])
			entropy -= p * math.Log2(p)
		}
		stats.PlaneBytes = append(stats.PlaneBytes, planeTotals[j])
		stats.PlaneEntropy = append(stats.PlaneEntropy, entropy/8)
	}
	return stats
}
