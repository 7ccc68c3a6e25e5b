package pyrowave

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Simple file envelope for offline streams: the magic, eight int32
// parameters, then one (u32 size, bytes) record per frame. This is
// tooling convenience, not part of the wire format.

var containerMagic = [8]byte{'P', 'Y', 'R', 'O', 'W', 'A', 'V', 'E'}

// ContainerHeader carries the stream parameters of a .pyrowave file.
type ContainerHeader struct {
	Width        int32
	Height       int32
	Format       int32 // 0 = 8-bit planes, 1 = 16-bit planes
	Chroma       ChromaSubsampling
	FullRange    bool
	FrameRateNum int32
	FrameRateDen int32
}

// ContainerWriter writes a .pyrowave file.
type ContainerWriter struct {
	w       io.Writer
	scratch []byte
}

// NewContainerWriter writes the magic and parameter block.
func NewContainerWriter(w io.Writer, hdr ContainerHeader) (*ContainerWriter, error) {
	if hdr.Width < 1 || hdr.Height < 1 {
		return nil, fmt.Errorf("%w: container dimensions %dx%d", ErrParam, hdr.Width, hdr.Height)
	}
	if _, err := w.Write(containerMagic[:]); err != nil {
		return nil, err
	}
	fullRange := int32(0)
	if hdr.FullRange {
		fullRange = 1
	}
	params := [8]int32{
		hdr.Width, hdr.Height, hdr.Format, int32(hdr.Chroma), fullRange,
		hdr.FrameRateNum, hdr.FrameRateDen, 0, // placeholder for chroma siting
	}
	var buf [32]byte
	for i, p := range params {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(p))
	}
	if _, err := w.Write(buf[:]); err != nil {
		return nil, err
	}
	return &ContainerWriter{w: w}, nil
}

// WriteFrame appends one frame's packetised bytes.
func (c *ContainerWriter) WriteFrame(payload []byte) error {
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(payload)))
	if _, err := c.w.Write(size[:]); err != nil {
		return err
	}
	_, err := c.w.Write(payload)
	return err
}

// ContainerReader reads a .pyrowave file.
type ContainerReader struct {
	r      io.Reader
	header ContainerHeader
	buf    []byte
}

// NewContainerReader validates the magic and reads the parameter block.
func NewContainerReader(r io.Reader) (*ContainerReader, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}
	if magic != containerMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrInvalidContainer, magic[:])
	}

	var buf [32]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}
	var params [8]int32
	for i := range params {
		params[i] = int32(binary.LittleEndian.Uint32(buf[4*i:]))
	}

	c := &ContainerReader{
		r: r,
		header: ContainerHeader{
			Width:        params[0],
			Height:       params[1],
			Format:       params[2],
			Chroma:       ChromaSubsampling(params[3]),
			FullRange:    params[4] != 0,
			FrameRateNum: params[5],
			FrameRateDen: params[6],
		},
	}
	if c.header.Width < 1 || c.header.Height < 1 ||
		c.header.Width > maxImageDim || c.header.Height > maxImageDim {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidContainer, c.header.Width, c.header.Height)
	}
	return c, nil
}

// Header returns the stream parameters.
func (c *ContainerReader) Header() ContainerHeader { return c.header }

// ReadFrame returns the next frame's bytes, or io.EOF at the end of the
// stream. The returned slice is reused by the next call.
func (c *ContainerReader) ReadFrame() ([]byte, error) {
	var size [4]byte
	if _, err := io.ReadFull(c.r, size[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}
	n := binary.LittleEndian.Uint32(size[:])
	if n > uint32(maxImageDim)*uint32(maxImageDim)*8 {
		return nil, fmt.Errorf("%w: frame size %d", ErrInvalidContainer, n)
	}
	if cap(c.buf) < int(n) {
		c.buf = make([]byte, n)
	}
	c.buf = c.buf[:n]
	if _, err := io.ReadFull(c.r, c.buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}
	return c.buf, nil
}
