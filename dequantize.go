package pyrowave

import (
	"fmt"
	"math/bits"
)

// Dequantiser: reconstructs floating-point subband coefficients from one
// packed 32x32 record.

// dequantScratch holds the per-record decode state so workers do not
// allocate per block.
type dequantScratch struct {
	mags  [16][64]uint16
	fine  [16]float32
	dz    [16]float32
	order [16]int // 8x8 index within the 32x32, in ballot order
}

// dequantBlock32 decodes one record into the band plane it addresses.
// The record was structurally validated at ingest; the exact sign-area
// accounting is verified here, and a mismatch abandons the block with its
// coefficients zeroed.
func dequantBlock32(layout *FrameLayout, pyr *subbandPyramid, rec []byte, s *dequantScratch) error {
	var h blockHeader
	h.unmarshal(rec)
	rec = rec[:h.payloadWords*4]

	pos := layout.Position(int(h.blockIndex))
	bm := layout.band(pos.Component, pos.Level, pos.Band)
	plane := pyr.band(pos.Component, pos.Level, pos.Band)

	invQuant := DecodeQuantScale(h.quantCode)
	n := bits.OnesCount16(h.ballot)

	// Pass one: magnitudes. The per-8x8 byte offset of each sub-block's
	// planes is the running prefix sum over the ballot order.
	off := HeaderSize + 4*n
	cwOff := HeaderSize
	signCount := 0
	coded := 0
	for bit := 0; bit < 16; bit++ {
		if h.ballot>>bit&1 == 0 {
			continue
		}
		cw := uint32(rec[cwOff]) | uint32(rec[cwOff+1])<<8 |
			uint32(rec[cwOff+2])<<16 | uint32(rec[cwOff+3])<<24
		cwOff += 4

		x := bit & 3
		y := bit >> 2
		mask, _ := subBlockMask(bm.width, bm.height, pos.X32*4+x, pos.Y32*4+y)

		qb := codeWordQBits(cw)
		s.fine[coded] = DecodeQuantFine(codeWordScale(cw))
		s.dz[coded] = float32(codeWordDeadZone(cw)) / 128
		s.order[coded] = y*4 + x

		mags := &s.mags[coded]
		*mags = [64]uint16{}
		for sub := range subBlocksPer8x8 {
			if mask>>sub&1 == 0 {
				continue
			}
			planes := qb + codeWordPlaneCode(cw, sub)
			for p := planes - 1; p >= 0; p-- {
				b := rec[off]
				off++
				for j := range coeffsPerSub {
					mags[sub*coeffsPerSub+j] |= uint16(b>>j&1) << p
				}
			}
		}
		for _, v := range mags {
			if v != 0 {
				signCount++
			}
		}
		coded++
	}

	// The sign area runs to the end of the record modulo padding.
	expected := alignUp(off+(signCount+7)/8, 4)
	if expected != len(rec) {
		return fmt.Errorf("%w: record is %d bytes, accounting says %d",
			ErrTruncatedPacket, len(rec), expected)
	}

	var signs bitReader
	signs.Reset(rec[off:])

	// Pass two: signs, dead zone, composed scale, plane writes.
	for c := range coded {
		bit := s.order[c]
		x8 := pos.X32*4 + bit&3
		y8 := pos.Y32*4 + bit>>2
		scale := invQuant / s.fine[c]
		dz := s.dz[c] * scale
		mags := &s.mags[c]

		for sub := range subBlocksPer8x8 {
			sx, sy := subBlockOrigin(sub)
			baseX := x8*8 + sx
			baseY := y8*8 + sy
			if baseX >= bm.width || baseY >= bm.height {
				continue
			}
			for j := range coeffsPerSub {
				cx, cy := coeffOffset(j)
				gx := baseX + cx
				gy := baseY + cy

				mag := mags[sub*coeffsPerSub+j]
				var v float32
				if mag != 0 {
					v = (float32(mag) + 0.5) * scale
					if signs.ReadBit() != 0 {
						v = -v
					}
				} else {
					// No sign travels for zeros; the dead zone
					// reconstructs on the positive side.
					v = dz
				}

				if gx < bm.width && gy < bm.height {
					plane.Row(gy)[gx] = clampCoeff(v)
				}
			}
		}
	}

	return nil
}
