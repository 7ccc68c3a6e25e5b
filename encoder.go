package pyrowave

import (
	"fmt"
	"math"

	"github.com/ajroetker/go-highway/hwy/contrib/image"
	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

// Precision selects the intermediate coefficient precision contract.
// The pure-Go pipeline computes lifting in float32 regardless and
// saturates stored coefficients to the FP16-representable band range;
// the option is carried so alternative backends interchange cleanly.
type Precision int

const (
	// PrecisionFP16 keeps all wavelet buffers in 16-bit floats.
	PrecisionFP16 Precision = iota
	// PrecisionMixed keeps the two finest levels in FP16 and the coarse
	// levels in FP32.
	PrecisionMixed
	// PrecisionFP32 keeps everything in 32-bit floats.
	PrecisionFP32
)

// EncoderOptions configures an Encoder. The zero value is usable.
type EncoderOptions struct {
	// Precision of intermediate wavelet buffers.
	Precision Precision

	// Colorimetry tags signalled in every start-of-frame record.
	Colorimetry Colorimetry

	// NumWorkers sizes the worker pool; <= 0 uses GOMAXPROCS.
	NumWorkers int

	// ReplicateSOF repeats the start-of-frame record at the head of
	// every transport packet instead of only the first. Decoders
	// tolerate either.
	ReplicateSOF bool
}

// BlockPacket locates one packed 32x32 record inside a frame bitstream.
// Empty blocks record zero words and occupy no bytes.
type BlockPacket struct {
	OffsetWords int
	NumWords    int
}

// Packet is one transport packet inside a packetised frame buffer.
type Packet struct {
	Offset int
	Size   int
}

// Encoder turns frames into PyroWave bitstreams. All scratch buffers are
// acquired at construction and reused across frames; the only state
// carried between frames is the 3-bit sequence counter.
type Encoder struct {
	layout *FrameLayout
	opts   EncoderOptions

	pool   *workerpool.Pool
	runner parallelRunner

	pyramid *subbandPyramid
	scratch [NumComponents]*image.Image[float32]
	params  [NumComponents][DecompositionLevels][4]bandParams

	blocks8   []quantBlock8
	stats32   []quantBlock32
	chosen    []uint8
	buckets   *rdoBuckets
	blockBufs [][]byte

	out      EncodedFrame
	sequence uint32
}

// NewEncoder creates an encoder for the given stream configuration.
func NewEncoder(width, height int, chroma ChromaSubsampling, opts *EncoderOptions) (*Encoder, error) {
	layout, err := NewFrameLayout(width, height, chroma)
	if err != nil {
		return nil, err
	}

	e := &Encoder{layout: layout}
	if opts != nil {
		e.opts = *opts
	}
	e.pool = workerpool.New(e.opts.NumWorkers)
	e.runner = parallelRunner{pool: e.pool}
	e.pyramid = newSubbandPyramid(layout)

	for c := range NumComponents {
		start := componentStartLevel(c, chroma)
		e.scratch[c] = image.NewImage[float32](layout.AlignedWidth>>start, layout.AlignedHeight>>start)
		for level := start; level < DecompositionLevels; level++ {
			for _, band := range bandsForLevel(level) {
				e.params[c][level][band] = makeBandParams(level, c, band)
			}
		}
	}

	e.blocks8 = make([]quantBlock8, layout.BlockCount8())
	e.stats32 = make([]quantBlock32, layout.BlockCount32())
	e.chosen = make([]uint8, layout.BlockCount32())
	e.buckets = newRDOBuckets(layout.BlockCount32())
	e.blockBufs = make([][]byte, layout.BlockCount32())
	e.out = EncodedFrame{
		layout: layout,
		meta:   make([]BlockPacket, layout.BlockCount32()),
	}
	return e, nil
}

// Layout returns the immutable block catalogue of this encoder.
func (e *Encoder) Layout() *FrameLayout { return e.layout }

// Close releases the worker pool. The encoder must not be used after.
func (e *Encoder) Close() {
	if e.pool != nil {
		e.pool.Close()
		e.pool = nil
	}
}

// EncodeFrame compresses one frame against a byte budget. targetBytes <= 0
// disables rate control. The returned frame shares the encoder's internal
// buffers and stays valid until the next EncodeFrame call; packetised
// bytes handed to the network must be consumed or copied before then.
func (e *Encoder) EncodeFrame(frame *Frame, targetBytes int) (*EncodedFrame, error) {
	if err := frame.validateAgainst(e.layout); err != nil {
		return nil, err
	}

	e.sequence = (e.sequence + 1) & sequenceMask

	forwardDWT(e.pyramid, frame, e.scratch, e.runner)

	count := e.layout.BlockCount32()
	e.runner.run(count, func(start, end int) {
		for i := start; i < end; i++ {
			e.quantizeBlock32(i)
		}
	})

	total := 0
	for i := range count {
		total += e.stats32[i].packedSize(0)
	}

	e.buckets.reset()
	for i := range count {
		pos := e.layout.Position(i)
		params := &e.params[pos.Component][pos.Level][pos.Band]
		e.buckets.analyzeBlock(i, &e.stats32[i], int(params.quantCode>>3))
	}

	budget := math.MaxInt
	if targetBytes > 0 {
		budget = max(targetBytes-HeaderSize, 0)
	}
	overflow := resolveRateControl(e.buckets, total, budget, e.chosen)

	e.runner.run(count, func(start, end int) {
		for i := start; i < end; i++ {
			pos := e.layout.Position(i)
			params := &e.params[pos.Component][pos.Level][pos.Band]
			e.blockBufs[i] = packBlock32(e.blockBufs[i][:0], e.layout, e.blocks8,
				params, i, int(e.chosen[i]), e.sequence)
		}
	})

	out := &e.out
	out.Bitstream = out.Bitstream[:0]
	out.Sequence = e.sequence
	out.color = e.opts.Colorimetry
	out.replicateSOF = e.opts.ReplicateSOF
	out.totalBlocks = 0
	for i := range count {
		buf := e.blockBufs[i]
		out.meta[i] = BlockPacket{
			OffsetWords: len(out.Bitstream) / 4,
			NumWords:    len(buf) / 4,
		}
		if len(buf) != 0 {
			out.Bitstream = append(out.Bitstream, buf...)
			out.totalBlocks++
		}
	}
	out.Overflow = overflow ||
		(targetBytes > 0 && out.PayloadSize() > targetBytes)
	return out, nil
}

func (e *Encoder) quantizeBlock32(index int) {
	pos := e.layout.Position(index)
	m := e.layout.mapping(index)
	bm := e.layout.band(pos.Component, pos.Level, pos.Band)
	plane := e.pyramid.band(pos.Component, pos.Level, pos.Band)
	params := &e.params[pos.Component][pos.Level][pos.Band]

	st := &e.stats32[index]
	*st = quantBlock32{}

	var scaled [64]float32
	for y := range m.height8 {
		for x := range m.width8 {
			b8 := &e.blocks8[m.blockOffset8+y*m.blockStride8+x]
			quantizeBlock8(b8, plane, bm.width, bm.height,
				pos.X32*4+x, pos.Y32*4+y,
				params.resolution, params.distWeight, st, &scaled)
		}
	}
}

// EncodedFrame is the packed output of one EncodeFrame call.
type EncodedFrame struct {
	layout       *FrameLayout
	color        Colorimetry
	replicateSOF bool
	totalBlocks  int
	meta         []BlockPacket

	// Bitstream holds the concatenated non-empty 32x32 records in
	// catalogue order.
	Bitstream []byte

	// Sequence is the 3-bit frame counter carried by every record.
	Sequence uint32

	// Overflow reports that the rate controller could not reach the
	// target even at maximum quantisation. The bitstream is still
	// well formed; the caller decides whether to drop it.
	Overflow bool
}

// Meta returns the per-block record table of the frame.
func (f *EncodedFrame) Meta() []BlockPacket { return f.meta }

// TotalBlocks returns the number of non-empty 32x32 records.
func (f *EncodedFrame) TotalBlocks() int { return f.totalBlocks }

// PayloadSize returns the packetised size in bytes with a single
// start-of-frame record.
func (f *EncodedFrame) PayloadSize() int {
	return HeaderSize + len(f.Bitstream)
}

func (f *EncodedFrame) validate() error {
	for i, m := range f.meta {
		if m.NumWords == 0 {
			continue
		}
		end := (m.OffsetWords + m.NumWords) * 4
		if end > len(f.Bitstream) {
			return fmt.Errorf("%w: block %d overruns bitstream", ErrTruncatedPacket, i)
		}
		var h blockHeader
		h.unmarshal(f.Bitstream[m.OffsetWords*4:])
		if h.blockIndex != uint32(i) || h.payloadWords != m.NumWords {
			return fmt.Errorf("%w: block %d header mismatch", ErrParam, i)
		}
	}
	return nil
}
