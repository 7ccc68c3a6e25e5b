// Package pyrowave implements the PyroWave intra-only video codec.
//
// PyroWave targets extremely low-latency game streaming at high bitrates
// over packet networks. Each frame is transformed with a 5-level CDF 9/7
// wavelet, coarsely quantised with a dead-zone quantiser, bit-plane packed
// without an entropy coder, and split into packets so that every 32x32
// subband block is independently decodable. Packet loss degrades the
// affected frequency bands to blur instead of corrupting the stream.
//
// Encoding:
//
//	enc, err := pyrowave.NewEncoder(1920, 1080, pyrowave.Chroma420, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer enc.Close()
//	out, err := enc.EncodeFrame(frame, bytesPerFrame)
//	buf, packets, err := out.Packetize(nil, mtu)
//
// Decoding:
//
//	dec, err := pyrowave.NewDecoder(1920, 1080, pyrowave.Chroma420, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dec.Close()
//	for _, pkt := range received {
//	    dec.PushPacket(pkt)
//	}
//	if dec.Ready(false) {
//	    dec.DecodeFrame(frame, false)
//	}
//
// The bitstream is defined mathematically; decoders are not required to be
// bit-exact with encoders in the low float bits, but every implementation
// must interchange at the bitstream boundary.
package pyrowave
