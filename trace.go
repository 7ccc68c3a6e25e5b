package pyrowave

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// Packet trace capture and replay. Traces record every transport packet of
// a session, zstd-compressed, with frame boundaries preserved, so loss and
// reorder experiments can be replayed offline against a decoder.
//
// Stream layout: 8-byte magic, u32 version, 16-byte session id, then a
// zstd stream of records. Each record is a kind byte; packet records are
// followed by a u32 length and the packet bytes.

var traceMagic = [8]byte{'P', 'Y', 'W', 'T', 'R', 'A', 'C', 'E'}

const traceVersion = 1

const (
	traceRecordFrame  = 0
	traceRecordPacket = 1
)

// TraceWriter captures transport packets.
type TraceWriter struct {
	zw      *zstd.Encoder
	session uuid.UUID
}

// NewTraceWriter starts a capture with a fresh session id.
func NewTraceWriter(w io.Writer) (*TraceWriter, error) {
	session := uuid.New()
	if _, err := w.Write(traceMagic[:]); err != nil {
		return nil, err
	}
	var ver [4]byte
	binary.LittleEndian.PutUint32(ver[:], traceVersion)
	if _, err := w.Write(ver[:]); err != nil {
		return nil, err
	}
	if _, err := w.Write(session[:]); err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, err
	}
	return &TraceWriter{zw: zw, session: session}, nil
}

// Session returns the capture's session id.
func (t *TraceWriter) Session() uuid.UUID { return t.session }

// WritePacket records one transport packet.
func (t *TraceWriter) WritePacket(pkt []byte) error {
	var hdr [5]byte
	hdr[0] = traceRecordPacket
	binary.LittleEndian.PutUint32(hdr[1:], uint32(len(pkt)))
	if _, err := t.zw.Write(hdr[:]); err != nil {
		return err
	}
	_, err := t.zw.Write(pkt)
	return err
}

// EndFrame records a frame boundary.
func (t *TraceWriter) EndFrame() error {
	_, err := t.zw.Write([]byte{traceRecordFrame})
	return err
}

// Close flushes and closes the compressed stream.
func (t *TraceWriter) Close() error {
	return t.zw.Close()
}

// TraceReader replays a capture.
type TraceReader struct {
	zr      *zstd.Decoder
	session uuid.UUID
	buf     []byte
}

// NewTraceReader validates the header and opens the compressed stream.
func NewTraceReader(r io.Reader) (*TraceReader, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTrace, err)
	}
	if magic != traceMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrInvalidTrace, magic[:])
	}
	var ver [4]byte
	if _, err := io.ReadFull(r, ver[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTrace, err)
	}
	if v := binary.LittleEndian.Uint32(ver[:]); v != traceVersion {
		return nil, fmt.Errorf("%w: version %d", ErrInvalidTrace, v)
	}
	var session uuid.UUID
	if _, err := io.ReadFull(r, session[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTrace, err)
	}
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &TraceReader{zr: zr, session: session}, nil
}

// Session returns the capture's session id.
func (t *TraceReader) Session() uuid.UUID { return t.session }

// Next returns the next packet, or (nil, nil) at a frame boundary, or
// io.EOF when the capture ends. The returned slice is reused.
func (t *TraceReader) Next() ([]byte, error) {
	var kind [1]byte
	if _, err := io.ReadFull(t.zr, kind[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidTrace, err)
	}
	switch kind[0] {
	case traceRecordFrame:
		return nil, nil
	case traceRecordPacket:
		var size [4]byte
		if _, err := io.ReadFull(t.zr, size[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTrace, err)
		}
		n := binary.LittleEndian.Uint32(size[:])
		if cap(t.buf) < int(n) {
			t.buf = make([]byte, n)
		}
		t.buf = t.buf[:n]
		if _, err := io.ReadFull(t.zr, t.buf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTrace, err)
		}
		return t.buf, nil
	default:
		return nil, fmt.Errorf("%w: record kind %d", ErrInvalidTrace, kind[0])
	}
}

// Close releases the decoder.
func (t *TraceReader) Close() {
	t.zr.Close()
}
