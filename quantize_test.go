package pyrowave

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEncoder(t *testing.T, w, h int, chroma ChromaSubsampling) *Encoder {
	t.Helper()
	enc, err := NewEncoder(w, h, chroma, &EncoderOptions{NumWorkers: 2})
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	t.Cleanup(enc.Close)
	return enc
}

func TestQuantizeEmptyBlock(t *testing.T) {
	// An all-zero 32x32 block carries no ballot bits, costs nothing and
	// is elided from the frame entirely.
	enc := newTestEncoder(t, 256, 256, Chroma444)

	index := enc.layout.band(0, 0, BandHH).blockOffset32
	enc.quantizeBlock32(index)

	st := &enc.stats32[index]
	require.Equal(t, 0, st.packedSize(0))

	pos := enc.layout.Position(index)
	params := &enc.params[pos.Component][pos.Level][pos.Band]
	rec := packBlock32(nil, enc.layout, enc.blocks8, params, index, 0, 1)
	require.Empty(t, rec)
}

func TestQuantizeSingleCoefficient(t *testing.T) {
	// One coefficient whose scaled magnitude lands just above 1 in a band
	// with an exact inverse scale of 1/32: one magnitude plane plus one
	// sign bit, a four-word record.
	enc := newTestEncoder(t, 256, 256, Chroma444)

	// Cb HH at the finest level carries 32 steps per unit.
	params := &enc.params[1][0][BandHH]
	require.Equal(t, float32(32), params.resolution)

	plane := enc.pyramid.band(1, 0, BandHH)
	plane.Row(0)[0] = 1.5 / 32

	index := enc.layout.band(1, 0, BandHH).blockOffset32
	enc.quantizeBlock32(index)

	b8 := &enc.blocks8[enc.layout.mapping(index).blockOffset8]
	require.Equal(t, uint16(1), b8.maxMag)
	require.Equal(t, int8(0), b8.msb)
	require.Equal(t, uint8(0xff), b8.mask)

	st := &enc.stats32[index]
	require.Equal(t, 16, st.packedSize(0))
	require.EqualValues(t, 1, st.ballots[0])
	require.EqualValues(t, 1, st.planesBytes[0])
	require.EqualValues(t, 1, st.signBits[0])

	rec := packBlock32(nil, enc.layout, enc.blocks8, params, index, 0, 3)
	require.Len(t, rec, 16)

	var h blockHeader
	h.unmarshal(rec)
	require.Equal(t, uint16(1), h.ballot)
	require.Equal(t, 4, h.payloadWords)
	require.Equal(t, uint32(3), h.sequence)
	require.Equal(t, params.quantCode, h.quantCode)
	require.Equal(t, uint32(index), h.blockIndex)

	cw := uint32(rec[8]) | uint32(rec[9])<<8 | uint32(rec[10])<<16 | uint32(rec[11])<<24
	require.Equal(t, 0, codeWordQBits(cw))
	require.Equal(t, 1, codeWordPlaneCode(cw, 0))
	for sub := 1; sub < subBlocksPer8x8; sub++ {
		require.Equal(t, 0, codeWordPlaneCode(cw, sub))
	}

	// One plane byte with bit 0 set, one zero sign bit, padding.
	require.Equal(t, byte(0x01), rec[12])
	require.Equal(t, byte(0x00), rec[13])
	require.Equal(t, byte(0x00), rec[14])
	require.Equal(t, byte(0x00), rec[15])
}

func TestQuantizeNegativeCoefficientSign(t *testing.T) {
	enc := newTestEncoder(t, 256, 256, Chroma444)
	params := &enc.params[1][0][BandHH]
	plane := enc.pyramid.band(1, 0, BandHH)
	plane.Row(0)[0] = -1.5 / 32

	index := enc.layout.band(1, 0, BandHH).blockOffset32
	enc.quantizeBlock32(index)

	rec := packBlock32(nil, enc.layout, enc.blocks8, params, index, 0, 0)
	require.Len(t, rec, 16)
	// The single sign bit is set, LSB-first.
	require.Equal(t, byte(0x01), rec[13])
}

func TestPackedSizeMatchesPackerAtEveryDepth(t *testing.T) {
	// The rate controller trusts packedSize to predict the packer's
	// output byte for byte; verify across random content and depths.
	enc := newTestEncoder(t, 192, 160, Chroma420)

	rng := rand.New(rand.NewSource(21))
	for c := range NumComponents {
		for level := componentStartLevel(c, Chroma420); level < DecompositionLevels; level++ {
			for _, band := range bandsForLevel(level) {
				plane := enc.pyramid.band(c, level, band)
				bm := enc.layout.band(c, level, band)
				for y := range bm.height {
					row := plane.Row(y)
					for x := range bm.width {
						row[x] = (rng.Float32() - 0.5) * 0.2
					}
				}
			}
		}
	}

	for index := range enc.layout.BlockCount32() {
		enc.quantizeBlock32(index)
		pos := enc.layout.Position(index)
		params := &enc.params[pos.Component][pos.Level][pos.Band]
		st := &enc.stats32[index]

		maxScale := int(params.quantCode >> 3)
		for depth := 0; depth <= int(st.maxDepth); depth++ {
			if depth > maxScale && depth < int(st.maxDepth) {
				continue
			}
			rec := packBlock32(nil, enc.layout, enc.blocks8, params, index, depth, 0)
			if got, want := len(rec), st.packedSize(depth); got != want {
				t.Fatalf("block %d depth %d: packed %d bytes, stats predict %d", index, depth, got, want)
			}
		}
	}
}

func TestDeadZoneCodeSaturates(t *testing.T) {
	var b quantBlock8
	var scaled [64]float32
	b.valid = ^uint64(0)
	for i := range scaled {
		scaled[i] = 0.9 // below the first step, far above half
	}
	require.Equal(t, uint8(63), deadZoneCode(&b, &scaled, 0))

	for i := range scaled {
		scaled[i] = 0.25
	}
	require.Equal(t, uint8(32), deadZoneCode(&b, &scaled, 0))
}
