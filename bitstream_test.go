package pyrowave

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockHeaderLayout(t *testing.T) {
	h := blockHeader{
		ballot:       0xa5c3,
		payloadWords: 0x123,
		sequence:     5,
		quantCode:    0x9e,
		blockIndex:   0xabcdef,
	}
	var buf [HeaderSize]byte
	h.marshal(buf[:])

	// Little-endian, LSB-first field packing.
	require.Equal(t, byte(0xc3), buf[0])
	require.Equal(t, byte(0xa5), buf[1])
	// payloadWords:12 | sequence:3 | extended:1
	require.Equal(t, byte(0x23), buf[2])
	require.Equal(t, byte(0x51), buf[3])
	// quantCode:8 | blockIndex:24
	require.Equal(t, byte(0x9e), buf[4])
	require.Equal(t, byte(0xef), buf[5])
	require.Equal(t, byte(0xcd), buf[6])
	require.Equal(t, byte(0xab), buf[7])

	require.False(t, headerIsExtended(buf[:]))

	var back blockHeader
	back.unmarshal(buf[:])
	require.Equal(t, h, back)
}

func TestSequenceHeaderLayout(t *testing.T) {
	h := sequenceHeader{
		width:       1920,
		height:      1080,
		sequence:    3,
		totalBlocks: 1536,
		code:        extendedCodeStartOfFrame,
		chroma:      Chroma420,
		color: Colorimetry{
			Primaries:        ColorPrimariesBT2020,
			TransferFunction: TransferFunctionPQ,
			YCbCrTransform:   YCbCrTransformBT2020NCL,
			YCbCrRange:       YCbCrRangeLimited,
			ChromaSiting:     ChromaSitingLeft,
		},
	}
	var buf [HeaderSize]byte
	h.marshal(buf[:])

	require.True(t, headerIsExtended(buf[:]))

	var back sequenceHeader
	back.unmarshal(buf[:])
	require.Equal(t, h, back)

	// The extended flag and sequence field occupy the same bits in both
	// header variants.
	var bh blockHeader
	bh.unmarshal(buf[:])
	require.True(t, bh.extended)
	require.Equal(t, uint32(3), bh.sequence)
}

func TestCodeWordFields(t *testing.T) {
	w := makeCodeWord(0x1234, 0xb, 0x2a, 0x15)
	require.Equal(t, 0xb, codeWordQBits(w))
	require.Equal(t, uint8(0x2a), codeWordScale(w))
	require.Equal(t, uint8(0x15), codeWordDeadZone(w))
	require.Equal(t, 0, codeWordPlaneCode(w, 0))
	require.Equal(t, 1, codeWordPlaneCode(w, 1)) // 0x1234 >> 2 & 3
	require.Equal(t, 3, codeWordPlaneCode(w, 2)) // 0x1234 >> 4 & 3
	require.Equal(t, 2, codeWordPlaneCode(w, 4)) // 0x1234 >> 8 & 3
}
