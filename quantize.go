package pyrowave

import (
	"math"
	"math/bits"

	"github.com/ajroetker/go-highway/hwy/contrib/image"
)

// maxQuantDepths bounds the additional right-shift the rate controller may
// apply to a block's magnitudes. Depth msb+1 empties the block.
const maxQuantDepths = 16

// quantBlock8 is the quantiser output for one 8x8 block: integer
// magnitudes in swizzle order, sign bits, per-sub-block peaks and the
// chosen fine-scale refinement. Magnitudes are scaled by the band
// resolution times the decoded fine scale and truncated toward zero, so
// the dead zone is twice as wide as the other bins.
type quantBlock8 struct {
	mask     uint8 // in-range sub-blocks
	fineCode uint8
	msb      int8 // floor(log2 maxMag), -1 when empty
	maxMag   uint16
	valid    uint64 // in-range pixels, by swizzle index
	negs     uint64 // sign bits, by swizzle index
	subPeak  [subBlocksPer8x8]uint16
	dz       [maxQuantDepths + 1]uint8 // dead-zone code per depth
	mags     [64]uint16
}

// quantBlock32 aggregates the per-depth statistics of one 32x32 block for
// rate control: the exact packed byte size and the weighted squared
// distortion at every admissible quantisation depth.
type quantBlock32 struct {
	maxDepth    int8 // depth at which the block is empty
	ballots     [maxQuantDepths + 1]int16
	planesBytes [maxQuantDepths + 1]int32
	signBits    [maxQuantDepths + 1]int32
	dist        [maxQuantDepths + 1]float64
}

// packedSize returns the exact wire size in bytes of the block at the
// given depth, zero when nothing survives.
func (st *quantBlock32) packedSize(depth int) int {
	if depth > int(st.maxDepth) {
		depth = int(st.maxDepth)
	}
	n := int(st.ballots[depth])
	if n == 0 {
		return 0
	}
	size := HeaderSize + 4*n + int(st.planesBytes[depth]) + (int(st.signBits[depth])+7)/8
	return alignUp(size, 4)
}

// fineCodeForPeak selects the 6-bit refinement for a peak, aiming at
// targetMax one quarter below a power of two. EncodeQuantFine rounds the
// ratio targetMax/maxAbs up, so the scaled peak lands at targetMax or above
// it by less than maxAbs/32 (one fine-code step); for peaks above 8 that
// overshoot can reach the next power of two. Peaks below 1.0 skip scaling.
func fineCodeForPeak(maxAbs float32) uint8 {
	if maxAbs < 1.0 {
		return QuantFineIdentity
	}
	t := math.Ceil(math.Log2(float64(maxAbs) - 0.25))
	target := math.Exp2(t) - 0.25
	return EncodeQuantFine(float32(target / float64(maxAbs)))
}

// planeCodeFor returns the 2-bit plane code for a sub-block peak already
// shifted past q_bits.
func planeCodeFor(shifted uint16) int {
	return bits.Len16(shifted)
}

func qBitsFor(msb int) int {
	return max(0, msb-2)
}

// deadZoneCode computes the 6-bit dead-zone strength: the average
// magnitude of zero-decoding samples at the given depth, in units of
// 1/128, rounded half up and saturated.
func deadZoneCode(b *quantBlock8, scaled *[64]float32, depth int) uint8 {
	var sum float64
	var n int
	for i := range 64 {
		if b.valid>>i&1 == 0 {
			continue
		}
		if b.mags[i]>>depth != 0 {
			continue
		}
		v := float64(scaled[i])
		if v < 0 {
			v = -v
		}
		sum += v / float64(uint32(1)<<depth)
		n++
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	if mean > 0.5 {
		mean = 0.5
	}
	code := int(mean*128 + 0.5)
	if code > 63 {
		code = 63
	}
	return uint8(code)
}

// quantizeBlock8 quantises one 8x8 block of a subband and accumulates its
// per-depth statistics into the owning 32x32 record. scaled receives the
// pre-truncation values, from which the per-depth dead-zone codes that the
// packer later picks from are computed.
func quantizeBlock8(b *quantBlock8, plane *image.Image[float32], bandW, bandH, x8, y8 int,
	resolution float32, distWeight float64, st *quantBlock32, scaled *[64]float32) {

	*b = quantBlock8{msb: -1}
	mask, _ := subBlockMask(bandW, bandH, x8, y8)
	b.mask = mask
	if mask == 0 {
		return
	}

	// Gather, scale by the band resolution, find the peak.
	var maxAbs float32
	for i := range 64 {
		scaled[i] = 0
		sub := i >> 3
		if mask>>sub&1 == 0 {
			continue
		}
		x, y := swizzle8x8(i)
		gx := x8*8 + x
		gy := y8*8 + y
		if gx >= bandW || gy >= bandH {
			continue
		}
		b.valid |= 1 << i
		v := plane.Row(gy)[gx] * resolution
		scaled[i] = v
		if a := v; a < 0 {
			if -a > maxAbs {
				maxAbs = -a
			}
		} else if a > maxAbs {
			maxAbs = a
		}
	}

	b.fineCode = fineCodeForPeak(maxAbs)
	fine := DecodeQuantFine(b.fineCode)

	// Truncate toward zero: the dead zone.
	for i := range 64 {
		if b.valid>>i&1 == 0 {
			continue
		}
		s := scaled[i] * fine
		scaled[i] = s
		if s < 0 {
			b.negs |= 1 << i
			s = -s
		}
		m := uint16(s)
		b.mags[i] = m
		if m > b.subPeak[i>>3] {
			b.subPeak[i>>3] = m
		}
		if m > b.maxMag {
			b.maxMag = m
		}
	}
	if b.maxMag != 0 {
		b.msb = int8(bits.Len16(b.maxMag) - 1)
	}

	// Distortion is measured in the fine-scaled domain; fold the per-8x8
	// refinement into the weight so bands stay comparable.
	accumulateStats(b, scaled, distWeight/float64(fine*fine), st)
}

// accumulateStats folds one 8x8 block into the per-depth cost and
// distortion table of its 32x32 block. Reconstruction at each depth
// mirrors the dequantiser exactly: (m+0.5) with sign for survivors, the
// positive dead-zone value for zeros of populated blocks, zero otherwise.
func accumulateStats(b *quantBlock8, scaled *[64]float32, distWeight float64, st *quantBlock32) {
	emptyAt := int(b.msb) + 1
	if int8(emptyAt) > st.maxDepth {
		st.maxDepth = int8(emptyAt)
	}

	for depth := 0; depth <= maxQuantDepths; depth++ {
		peak := b.maxMag >> depth
		if peak == 0 {
			// Nothing survives: the block decodes to zero coefficients.
			var d float64
			for i := range 64 {
				if b.valid>>i&1 != 0 {
					d += float64(scaled[i]) * float64(scaled[i])
				}
			}
			st.dist[depth] += d * distWeight
			continue
		}

		msbQ := int(b.msb) - depth
		qb := qBitsFor(msbQ)
		st.ballots[depth]++

		var planeBytes, signs int
		for sub := range subBlocksPer8x8 {
			if b.mask>>sub&1 == 0 {
				continue
			}
			planeBytes += qb + planeCodeFor(b.subPeak[sub]>>depth>>qb)
		}
		for i := range 64 {
			if b.mags[i]>>depth != 0 {
				signs++
			}
		}
		st.planesBytes[depth] += int32(planeBytes)
		st.signBits[depth] += int32(signs)

		b.dz[depth] = deadZoneCode(b, scaled, depth)
		dz := float64(b.dz[depth]) / 128 * float64(uint32(1)<<depth)
		var d float64
		for i := range 64 {
			if b.valid>>i&1 == 0 {
				continue
			}
			s := float64(scaled[i])
			m := b.mags[i] >> depth
			var rec float64
			if m != 0 {
				rec = (float64(m) + 0.5) * float64(uint32(1)<<depth)
				if b.negs>>i&1 != 0 {
					rec = -rec
				}
			} else {
				rec = dz
			}
			err := rec - s
			d += err * err
		}
		st.dist[depth] += d * distWeight
	}
}

// Band quantisation parameters, fixed per (component, level, band) at
// encoder construction.
type bandParams struct {
	quantCode  uint8
	resolution float32 // decoded steps per unit, 1/DecodeQuantScale(quantCode)
	distWeight float64 // CSF-weighted distortion scale per squared step
}

// noiseNormalizedResolution aims for a flat spectrum with noise power
// normalisation. The low-pass gain of CDF 9/7 is 6 dB per level.
func noiseNormalizedResolution(level, component int, band Band) float64 {
	exp := 6
	if band == BandLL {
		exp += 2
	} else if band != BandHH {
		exp++
	}
	exp += level
	// Chroma starts at level 1, subtract one bit.
	if component != 0 {
		exp--
	}
	return float64(int(1) << exp)
}

// quantResolution caps the initial estimate; FP16 range is limited and
// this is more than a good enough starting point.
func quantResolution(level, component int, band Band) float64 {
	return math.Min(512, noiseNormalizedResolution(level, component, band))
}

// rdoDistortionScale weights band distortion by a contrast sensitivity
// model so that a saved byte costs comparable perceptual quality wherever
// it is taken from.
func rdoDistortionScale(level, component int, band Band) float64 {
	horizMidpoint := 0.25
	if band == BandHL || band == BandHH {
		horizMidpoint = 0.75
	}
	vertMidpoint := 0.25
	if band == BandLH || band == BandHH {
		vertMidpoint = 0.75
	}

	const (
		dpi             = 96.0
		viewingDistance = 1.0
		cpdNyquist      = 0.34 * viewingDistance * dpi
	)

	cpd := math.Sqrt(horizMidpoint*horizMidpoint+vertMidpoint*vertMidpoint) *
		cpdNyquist * math.Exp2(-float64(level))

	// Never treat the LL band as cheap to quantise.
	cpd = math.Max(cpd, 8.0)

	csf := 2.6 * (0.0192 + 0.114*cpd) * math.Exp(-math.Pow(0.114*cpd, 1.1))

	// Heavily discount chroma quality.
	if component != 0 && level != DecompositionLevels-1 {
		csf *= 0.4
	}

	// Filtering spreads distortion in lower bands into more noise power;
	// scaling keeps the result uniform across levels.
	weighted := csf * noiseNormalizedResolution(level, component, band)

	// The distortion is scaled in terms of power, not amplitude.
	return weighted * weighted
}

func makeBandParams(level, component int, band Band) bandParams {
	res := quantResolution(level, component, band)
	code := EncodeQuantScale(float32(1.0 / res))
	decodedRes := 1.0 / float64(DecodeQuantScale(code))
	return bandParams{
		quantCode:  code,
		resolution: float32(decodedRes),
		distWeight: rdoDistortionScale(level, component, band) / (decodedRes * decodedRes),
	}
}

// appendMagnitudePlanes appends the bit planes of one sub-block, most
// significant plane first. Bit j of each plane byte is coefficient j in
// sub-block order.
func appendMagnitudePlanes(dst []byte, mags []uint16, planes int) []byte {
	for p := planes - 1; p >= 0; p-- {
		var b byte
		for j := range coeffsPerSub {
			b |= byte(mags[j]>>p&1) << j
		}
		dst = append(dst, b)
	}
	return dst
}
