package pyrowave

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// YUV4MPEG2 reader and writer for the 8-bit C420/C444 layouts the tools
// exchange. Frames convert to and from the codec's planar [0, 1] floats.

// Y4MHeader describes a YUV4MPEG2 stream.
type Y4MHeader struct {
	Width        int
	Height       int
	FrameRateNum int
	FrameRateDen int
	Chroma       ChromaSubsampling
	FullRange    bool
}

// Y4MReader reads frames from a YUV4MPEG2 stream.
type Y4MReader struct {
	r      *bufio.Reader
	header Y4MHeader
	buf    []byte
}

// NewY4MReader parses the stream header.
func NewY4MReader(r io.Reader) (*Y4MReader, error) {
	br := bufio.NewReaderSize(r, 1<<16)
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("pyrowave: reading y4m header: %w", err)
	}
	fields := strings.Fields(strings.TrimSuffix(line, "\n"))
	if len(fields) == 0 || fields[0] != "YUV4MPEG2" {
		return nil, fmt.Errorf("%w: not a YUV4MPEG2 stream", ErrParam)
	}

	h := Y4MHeader{FrameRateNum: 25, FrameRateDen: 1, Chroma: Chroma420}
	for _, f := range fields[1:] {
		switch f[0] {
		case 'W':
			h.Width, err = strconv.Atoi(f[1:])
		case 'H':
			h.Height, err = strconv.Atoi(f[1:])
		case 'F':
			num, den, ok := strings.Cut(f[1:], ":")
			if !ok {
				return nil, fmt.Errorf("%w: y4m frame rate %q", ErrParam, f)
			}
			if h.FrameRateNum, err = strconv.Atoi(num); err == nil {
				h.FrameRateDen, err = strconv.Atoi(den)
			}
		case 'C':
			switch f[1:] {
			case "420", "420jpeg", "420mpeg2", "420paldv":
				h.Chroma = Chroma420
			case "444":
				h.Chroma = Chroma444
			default:
				return nil, fmt.Errorf("%w: unsupported y4m chroma %q", ErrParam, f)
			}
		case 'X':
			if f == "XCOLORRANGE=FULL" {
				h.FullRange = true
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%w: y4m tag %q", ErrParam, f)
		}
	}
	if h.Width < 1 || h.Height < 1 {
		return nil, fmt.Errorf("%w: y4m dimensions %dx%d", ErrParam, h.Width, h.Height)
	}
	return &Y4MReader{r: br, header: h}, nil
}

// Header returns the parsed stream header.
func (y *Y4MReader) Header() Y4MHeader { return y.header }

// ReadFrame reads the next frame into f, which must match the stream
// configuration. Returns io.EOF at the end of the stream.
func (y *Y4MReader) ReadFrame(f *Frame) error {
	line, err := y.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return io.EOF
		}
		return fmt.Errorf("pyrowave: reading y4m frame marker: %w", err)
	}
	if !strings.HasPrefix(line, "FRAME") {
		return fmt.Errorf("%w: y4m frame marker %q", ErrParam, line)
	}

	for c := range NumComponents {
		w, h := f.PlaneDims(c)
		if cap(y.buf) < w {
			y.buf = make([]byte, w)
		}
		row := y.buf[:w]
		plane := f.Planes[c]
		for py := range h {
			if _, err := io.ReadFull(y.r, row); err != nil {
				return fmt.Errorf("pyrowave: reading y4m plane %d: %w", c, err)
			}
			dst := plane.Row(py)
			for x, v := range row {
				dst[x] = float32(v) / 255
			}
		}
	}
	return nil
}

// Y4MWriter writes frames to a YUV4MPEG2 stream.
type Y4MWriter struct {
	w      *bufio.Writer
	header Y4MHeader
	buf    []byte
}

// NewY4MWriter emits the stream header.
func NewY4MWriter(w io.Writer, header Y4MHeader) (*Y4MWriter, error) {
	chroma := "C420"
	if header.Chroma == Chroma444 {
		chroma = "C444"
	}
	colorRange := "LIMITED"
	if header.FullRange {
		colorRange = "FULL"
	}
	bw := bufio.NewWriterSize(w, 1<<16)
	_, err := fmt.Fprintf(bw, "YUV4MPEG2 W%d H%d F%d:%d Ip A1:1 XCOLORRANGE=%s %s\n",
		header.Width, header.Height, header.FrameRateNum, header.FrameRateDen, colorRange, chroma)
	if err != nil {
		return nil, err
	}
	return &Y4MWriter{w: bw, header: header}, nil
}

// WriteFrame appends one frame.
func (y *Y4MWriter) WriteFrame(f *Frame) error {
	if _, err := y.w.WriteString("FRAME\n"); err != nil {
		return err
	}
	for c := range NumComponents {
		w, h := f.PlaneDims(c)
		if cap(y.buf) < w {
			y.buf = make([]byte, w)
		}
		row := y.buf[:w]
		plane := f.Planes[c]
		for py := range h {
			src := plane.Row(py)
			for x := range w {
				v := float64(src[x])*255 + 0.5
				if v < 0 {
					v = 0
				} else if v > 255 {
					v = 255
				}
				row[x] = byte(math.Floor(v))
			}
			if _, err := y.w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush drains buffered output.
func (y *Y4MWriter) Flush() error { return y.w.Flush() }
