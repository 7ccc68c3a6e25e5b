package pyrowave

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTraceRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewTraceWriter(&buf)
	require.NoError(t, err)
	session := w.Session()

	frames := [][][]byte{
		{{1, 2, 3}, {4, 5}},
		{bytes.Repeat([]byte{0x7f}, 5000)},
		{},
	}
	for _, frame := range frames {
		for _, pkt := range frame {
			require.NoError(t, w.WritePacket(pkt))
		}
		require.NoError(t, w.EndFrame())
	}
	require.NoError(t, w.Close())

	r, err := NewTraceReader(&buf)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, session, r.Session())

	for _, frame := range frames {
		for _, want := range frame {
			got, err := r.Next()
			require.NoError(t, err)
			require.Equal(t, want, append([]byte(nil), got...))
		}
		got, err := r.Next()
		require.NoError(t, err)
		require.Nil(t, got, "frame boundary")
	}
	_, err = r.Next()
	require.Equal(t, io.EOF, err)
}

func TestTraceReplayFeedsDecoder(t *testing.T) {
	const w, h = 192, 160
	enc := newTestEncoder(t, w, h, Chroma420)

	var traceBuf bytes.Buffer
	tw, err := NewTraceWriter(&traceBuf)
	require.NoError(t, err)

	var buf []byte
	for i := range 3 {
		out, err := enc.EncodeFrame(smoothFrame(w, h, Chroma420, int64(i)), 30000)
		require.NoError(t, err)
		var packets []Packet
		buf, packets, err = out.Packetize(buf[:0], 1400)
		require.NoError(t, err)
		for _, p := range packets {
			require.NoError(t, tw.WritePacket(buf[p.Offset:p.Offset+p.Size]))
		}
		require.NoError(t, tw.EndFrame())
	}
	require.NoError(t, tw.Close())

	tr, err := NewTraceReader(&traceBuf)
	require.NoError(t, err)
	defer tr.Close()

	dec := newTestDecoder(t, w, h, Chroma420)
	frame := NewFrame(w, h, Chroma420)
	decoded := 0
	for {
		pkt, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if pkt == nil {
			require.True(t, dec.Ready(false))
			require.NoError(t, dec.DecodeFrame(frame, false))
			decoded++
			continue
		}
		require.NoError(t, dec.PushPacket(pkt))
	}
	require.Equal(t, 3, decoded)
}

func TestTraceRejectsBadStream(t *testing.T) {
	_, err := NewTraceReader(bytes.NewReader([]byte("nope")))
	require.ErrorIs(t, err, ErrInvalidTrace)

	_, err = NewTraceReader(bytes.NewReader(append([]byte("PYWTRACE"), make([]byte, 20)...)))
	require.ErrorIs(t, err, ErrInvalidTrace)
}
