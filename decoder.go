package pyrowave

import (
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/ajroetker/go-highway/hwy/contrib/image"
	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

const invalidSequence = ^uint32(0)

// DecoderOptions configures a Decoder. The zero value is usable.
type DecoderOptions struct {
	// Precision of intermediate wavelet buffers; see EncoderOptions.
	Precision Precision

	// NumWorkers sizes the worker pool; <= 0 uses GOMAXPROCS.
	NumWorkers int

	// Logger receives per-packet diagnostics (drops, duplicates,
	// backward sequences). Defaults to slog.Default().
	Logger *slog.Logger
}

// Decoder ingests transport packets, accumulates the 32x32 records of the
// current frame and reconstructs frames. Per-packet errors are local:
// PushPacket stops at the offending record and returns the error, and the
// decoder keeps the state it had before that record. Records that precede
// it in the same packet stay accepted.
//
// PushPacket calls must be serialised by the caller.
type Decoder struct {
	layout *FrameLayout
	log    *slog.Logger

	pool   *workerpool.Pool
	runner parallelRunner

	pyramid *subbandPyramid
	scratch [NumComponents]*image.Image[float32]

	// payload is the append-only copy of accepted records; offsets
	// indexes it per block, -1 when the block has not arrived.
	payload []byte
	offsets []int32

	decodedBlocks int
	totalBlocks   int
	lastSeq       uint32
	decodedFrame  bool

	// color holds the advisory tags of the last start-of-frame record.
	color Colorimetry
}

// NewDecoder creates a decoder for the given stream configuration.
func NewDecoder(width, height int, chroma ChromaSubsampling, opts *DecoderOptions) (*Decoder, error) {
	layout, err := NewFrameLayout(width, height, chroma)
	if err != nil {
		return nil, err
	}

	d := &Decoder{layout: layout}
	var o DecoderOptions
	if opts != nil {
		o = *opts
	}
	d.log = o.Logger
	if d.log == nil {
		d.log = slog.Default()
	}
	d.pool = workerpool.New(o.NumWorkers)
	d.runner = parallelRunner{pool: d.pool}
	d.pyramid = newSubbandPyramid(layout)
	for c := range NumComponents {
		start := componentStartLevel(c, chroma)
		d.scratch[c] = image.NewImage[float32](layout.AlignedWidth>>start, layout.AlignedHeight>>start)
	}
	d.payload = make([]byte, 0, 1<<20)
	d.offsets = make([]int32, layout.BlockCount32())
	d.lastSeq = invalidSequence
	d.clear()
	return d, nil
}

// Layout returns the immutable block catalogue of this decoder.
func (d *Decoder) Layout() *FrameLayout { return d.layout }

// Colorimetry returns the advisory tags of the most recent start-of-frame.
func (d *Decoder) Colorimetry() Colorimetry { return d.color }

// Close releases the worker pool. The decoder must not be used after.
func (d *Decoder) Close() {
	if d.pool != nil {
		d.pool.Close()
		d.pool = nil
	}
}

// Reset drops all frame state including the sequence tracking.
func (d *Decoder) Reset() {
	d.clear()
	d.lastSeq = invalidSequence
}

// clear resets the per-sequence accumulation state.
func (d *Decoder) clear() {
	for i := range d.offsets {
		d.offsets[i] = -1
	}
	d.payload = d.payload[:0]
	d.decodedBlocks = 0
	d.decodedFrame = false
	d.totalBlocks = d.layout.BlockCount32()
}

// advanceSequence applies the modular sequence rules to an inbound header.
// It reports whether the record should be ingested; backward jumps beyond
// half the 3-bit space drop the rest of the packet.
func (d *Decoder) advanceSequence(seq uint32) bool {
	if d.lastSeq == invalidSequence {
		d.clear()
		d.lastSeq = seq
		return true
	}
	diff := (seq - d.lastSeq) & sequenceMask
	if diff > sequenceMask/2 {
		d.log.Warn("pyrowave: backwards sequence, discarding packet",
			"sequence", seq, "last", d.lastSeq)
		return false
	}
	if diff != 0 {
		d.clear()
		d.lastSeq = seq
	}
	return true
}

// PushPacket parses one transport packet: any number of concatenated
// start-of-frame and 32x32 block records. Accepted block records are
// copied; the caller may reuse data once PushPacket returns.
func (d *Decoder) PushPacket(data []byte) error {
	for len(data) >= HeaderSize {
		if headerIsExtended(data) {
			var sh sequenceHeader
			sh.unmarshal(data)

			if sh.code != extendedCodeStartOfFrame {
				return fmt.Errorf("%w: extended record code %d", ErrParam, sh.code)
			}
			if sh.width != d.layout.Width || sh.height != d.layout.Height {
				return fmt.Errorf("%w: start of frame %dx%d, configured %dx%d",
					ErrDimensionMismatch, sh.width, sh.height, d.layout.Width, d.layout.Height)
			}
			if sh.chroma != d.layout.Chroma {
				return ErrChromaMismatch
			}
			if !d.advanceSequence(sh.sequence) {
				return nil
			}
			d.totalBlocks = sh.totalBlocks
			d.color = sh.color

			data = data[HeaderSize:]
			continue
		}

		var h blockHeader
		h.unmarshal(data)

		size := h.payloadWords * 4
		if h.payloadWords < HeaderSize/4 || size > len(data) {
			return fmt.Errorf("%w: record claims %d bytes, %d remain",
				ErrTruncatedPacket, size, len(data))
		}
		if int(h.blockIndex) >= d.layout.BlockCount32() {
			return fmt.Errorf("%w: %d >= %d",
				ErrOutOfRangeBlockIndex, h.blockIndex, d.layout.BlockCount32())
		}
		if err := d.validateRecord(data[:size], &h); err != nil {
			return err
		}
		if !d.advanceSequence(h.sequence) {
			return nil
		}

		if d.offsets[h.blockIndex] >= 0 {
			// Duplicates are primitive FEC; drop silently.
			d.log.Debug("pyrowave: duplicate block, skipping", "block", h.blockIndex)
		} else {
			d.offsets[h.blockIndex] = int32(len(d.payload))
			d.payload = append(d.payload, data[:size]...)
			d.decodedBlocks++
		}

		data = data[size:]
	}

	if len(data) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrTruncatedPacket, len(data))
	}
	return nil
}

// validateRecord performs the structural checks that do not require
// decoding magnitudes: ballot bits must address 8x8 tiles inside the
// clipped block, plane codes may only occupy in-range sub-block positions,
// and the declared payload must cover header, control words and magnitude
// planes.
func (d *Decoder) validateRecord(rec []byte, h *blockHeader) error {
	m := d.layout.mapping(int(h.blockIndex))
	pos := d.layout.Position(int(h.blockIndex))
	bm := d.layout.band(pos.Component, pos.Level, pos.Band)

	n := bits.OnesCount16(h.ballot)
	if (HeaderSize/4+n)*4 > len(rec) {
		return fmt.Errorf("%w: %d control words do not fit payload", ErrTruncatedPacket, n)
	}

	magBytes := 0
	cwOff := HeaderSize
	for bit := 0; bit < 16; bit++ {
		if h.ballot>>bit&1 == 0 {
			continue
		}
		x := bit & 3
		y := bit >> 2
		if x >= m.width8 || y >= m.height8 {
			return fmt.Errorf("%w: ballot bit %d outside %dx%d block",
				ErrTruncatedPacket, bit, m.width8, m.height8)
		}
		cw := uint32(rec[cwOff]) | uint32(rec[cwOff+1])<<8 |
			uint32(rec[cwOff+2])<<16 | uint32(rec[cwOff+3])<<24
		cwOff += 4

		mask, _ := subBlockMask(bm.width, bm.height, pos.X32*4+x, pos.Y32*4+y)
		pcs := uint16(cw)
		if pcs&planeCodeMask16(mask) != pcs {
			return fmt.Errorf("%w: plane codes outside sub-block range", ErrTruncatedPacket)
		}
		qb := codeWordQBits(cw)
		for sub := range subBlocksPer8x8 {
			if mask>>sub&1 == 0 {
				continue
			}
			magBytes += qb + codeWordPlaneCode(cw, sub)
		}
	}

	if HeaderSize+4*n+magBytes > len(rec) {
		return fmt.Errorf("%w: magnitude planes exceed payload", ErrTruncatedPacket)
	}
	return nil
}

// Ready reports whether the accumulated blocks suffice to decode the
// current frame. With allowPartial, more than half the frame is enough;
// anything less is assumed to be complete garbage.
func (d *Decoder) Ready(allowPartial bool) bool {
	if d.decodedFrame {
		return false
	}
	if d.decodedBlocks < d.totalBlocks {
		if !allowPartial || d.decodedBlocks <= d.totalBlocks/2 {
			return false
		}
	}
	return true
}

// DecodeFrame reconstructs the current frame into frame. Blocks that never
// arrived contribute zero coefficients, which blurs the affected bands
// instead of corrupting the image. A frame decodes at most once per
// sequence.
func (d *Decoder) DecodeFrame(frame *Frame, allowPartial bool) error {
	if err := frame.validateAgainst(d.layout); err != nil {
		return err
	}
	if !d.Ready(allowPartial) {
		return ErrFrameNotReady
	}

	d.pyramid.clearCoded()

	count := d.layout.BlockCount32()
	d.runner.run(count, func(start, end int) {
		var scratch dequantScratch
		for i := start; i < end; i++ {
			off := d.offsets[i]
			if off < 0 {
				continue
			}
			if err := dequantBlock32(d.layout, d.pyramid, d.payload[off:], &scratch); err != nil {
				d.log.Warn("pyrowave: dropping corrupt block", "block", i, "err", err)
			}
		}
	})

	inverseDWT(d.pyramid, frame, d.scratch, d.runner)
	d.decodedFrame = true
	return nil
}
