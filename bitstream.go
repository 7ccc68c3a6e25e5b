package pyrowave

import "encoding/binary"

// Wire-format constants. Every 32x32 block record starts with an 8-byte
// little-endian header; when the extended bit is set the same 8 bytes are
// reinterpreted as a start-of-frame record.
const (
	// HeaderSize is the size of both header variants in bytes.
	HeaderSize = 8

	// sequenceMask bounds the 3-bit frame counter.
	sequenceMask = 0x7

	// extendedCodeStartOfFrame identifies the only defined extended record.
	extendedCodeStartOfFrame = 0
)

// ChromaSubsampling selects the chroma layout of a stream.
type ChromaSubsampling int

const (
	// Chroma420 omits the finest chroma decomposition level; width and
	// height must be even.
	Chroma420 ChromaSubsampling = iota
	// Chroma444 carries chroma at full resolution.
	Chroma444
)

// Colorimetry signalling values. These are advisory: they travel in the
// start-of-frame record but do not alter the decoding algorithm.
const (
	ColorPrimariesBT709  = 0
	ColorPrimariesBT2020 = 1

	TransferFunctionBT709 = 0
	TransferFunctionPQ    = 1

	YCbCrTransformBT709     = 0
	YCbCrTransformBT2020NCL = 1

	YCbCrRangeFull    = 0
	YCbCrRangeLimited = 1

	ChromaSitingCenter = 0
	ChromaSitingLeft   = 1
)

// Colorimetry collects the advisory colour tags carried per frame.
type Colorimetry struct {
	Primaries        int
	TransferFunction int
	YCbCrTransform   int
	YCbCrRange       int
	ChromaSiting     int
}

// blockHeader is the 8-byte header preceding every 32x32 block record.
//
// Bit layout, LSB first within each field group:
//
//	u16 ballot
//	u16 payloadWords:12 | sequence:3 | extended:1
//	u32 quantCode:8 | blockIndex:24
type blockHeader struct {
	ballot       uint16
	payloadWords int // in 32-bit words, header included
	sequence     uint32
	extended     bool
	quantCode    uint8
	blockIndex   uint32
}

func (h *blockHeader) marshal(dst []byte) {
	binary.LittleEndian.PutUint16(dst[0:], h.ballot)
	w := uint16(h.payloadWords&0xfff) | uint16(h.sequence&sequenceMask)<<12
	if h.extended {
		w |= 1 << 15
	}
	binary.LittleEndian.PutUint16(dst[2:], w)
	binary.LittleEndian.PutUint32(dst[4:], uint32(h.quantCode)|h.blockIndex<<8)
}

func (h *blockHeader) unmarshal(src []byte) {
	h.ballot = binary.LittleEndian.Uint16(src[0:])
	w := binary.LittleEndian.Uint16(src[2:])
	h.payloadWords = int(w & 0xfff)
	h.sequence = uint32(w>>12) & sequenceMask
	h.extended = w>>15 != 0
	v := binary.LittleEndian.Uint32(src[4:])
	h.quantCode = uint8(v)
	h.blockIndex = v >> 8
}

// sequenceHeader is the start-of-frame variant of the 8-byte header.
//
// Bit layout, LSB first:
//
//	u32 widthMinus1:14 | heightMinus1:14 | sequence:3 | extended:1
//	u32 totalBlocks:24 | code:2 | chromaResolution:1 | colorPrimaries:1 |
//	    transferFunction:1 | ycbcrTransform:1 | ycbcrRange:1 | chromaSiting:1
type sequenceHeader struct {
	width       int
	height      int
	sequence    uint32
	totalBlocks int
	code        int
	chroma      ChromaSubsampling
	color       Colorimetry
}

func (h *sequenceHeader) marshal(dst []byte) {
	w0 := uint32(h.width-1)&0x3fff |
		uint32(h.height-1)&0x3fff<<14 |
		(h.sequence&sequenceMask)<<28 |
		1<<31
	binary.LittleEndian.PutUint32(dst[0:], w0)

	w1 := uint32(h.totalBlocks)&0xffffff |
		uint32(h.code&0x3)<<24 |
		uint32(h.chroma&1)<<26 |
		uint32(h.color.Primaries&1)<<27 |
		uint32(h.color.TransferFunction&1)<<28 |
		uint32(h.color.YCbCrTransform&1)<<29 |
		uint32(h.color.YCbCrRange&1)<<30 |
		uint32(h.color.ChromaSiting&1)<<31
	binary.LittleEndian.PutUint32(dst[4:], w1)
}

func (h *sequenceHeader) unmarshal(src []byte) {
	w0 := binary.LittleEndian.Uint32(src[0:])
	h.width = int(w0&0x3fff) + 1
	h.height = int(w0>>14&0x3fff) + 1
	h.sequence = w0 >> 28 & sequenceMask

	w1 := binary.LittleEndian.Uint32(src[4:])
	h.totalBlocks = int(w1 & 0xffffff)
	h.code = int(w1 >> 24 & 0x3)
	h.chroma = ChromaSubsampling(w1 >> 26 & 1)
	h.color = Colorimetry{
		Primaries:        int(w1 >> 27 & 1),
		TransferFunction: int(w1 >> 28 & 1),
		YCbCrTransform:   int(w1 >> 29 & 1),
		YCbCrRange:       int(w1 >> 30 & 1),
		ChromaSiting:     int(w1 >> 31 & 1),
	}
}

// headerIsExtended peeks at the extended bit without a full unmarshal.
func headerIsExtended(src []byte) bool {
	return src[3]&0x80 != 0
}

// Control-word field offsets for the per-8x8 code word. The low 16 bits
// hold two plane-code bits per 4x2 sub-block.
const (
	codeWordQBitsShift = 16
	codeWordQBitsBits  = 4

	codeWordScaleShift = 20
	codeWordScaleBits  = 6

	codeWordDeadZoneShift = 26
	codeWordDeadZoneBits  = 6
)

func codeWordQBits(w uint32) int {
	return int(w >> codeWordQBitsShift & (1<<codeWordQBitsBits - 1))
}

func codeWordScale(w uint32) uint8 {
	return uint8(w >> codeWordScaleShift & (1<<codeWordScaleBits - 1))
}

func codeWordDeadZone(w uint32) uint8 {
	return uint8(w >> codeWordDeadZoneShift & (1<<codeWordDeadZoneBits - 1))
}

func codeWordPlaneCode(w uint32, sub int) int {
	return int(w >> (2 * sub) & 0x3)
}

func makeCodeWord(planeCodes uint16, qBits int, scale, deadZone uint8) uint32 {
	return uint32(planeCodes) |
		uint32(qBits)<<codeWordQBitsShift |
		uint32(scale)<<codeWordScaleShift |
		uint32(deadZone)<<codeWordDeadZoneShift
}
