package pyrowave

import "fmt"

// Packetiser: groups packed 32x32 records into transport packets bounded
// by a caller-supplied maximum size. Framing beyond the boundary split is
// externalised; the emitted bytes carry no transport headers of their own.

func (f *EncodedFrame) sequenceHeader() sequenceHeader {
	return sequenceHeader{
		width:       f.layout.Width,
		height:      f.layout.Height,
		sequence:    f.Sequence,
		totalBlocks: f.totalBlocks,
		code:        extendedCodeStartOfFrame,
		chroma:      f.layout.Chroma,
		color:       f.color,
	}
}

// NumPackets returns how many transport packets Packetize will produce for
// the given boundary.
func (f *EncodedFrame) NumPackets(boundary int) int {
	numPackets := 0
	sizeInPacket := HeaderSize // start-of-frame

	for _, m := range f.meta {
		packetSize := m.NumWords * 4
		if packetSize == 0 {
			continue
		}
		if sizeInPacket+packetSize > boundary {
			sizeInPacket = 0
			if f.replicateSOF {
				sizeInPacket = HeaderSize
			}
			numPackets++
		}
		sizeInPacket += packetSize
	}

	if sizeInPacket != 0 {
		numPackets++
	}
	return numPackets
}

// Packetize appends the frame to dst split into transport packets no
// larger than boundary (single records larger than the boundary become
// oversized packets of their own). It returns the extended buffer and the
// packet ranges within it. The start-of-frame record leads the first
// packet, or every packet when the encoder was configured to replicate it.
func (f *EncodedFrame) Packetize(dst []byte, boundary int) ([]byte, []Packet, error) {
	if boundary < HeaderSize*2 {
		return dst, nil, fmt.Errorf("%w: packet boundary %d", ErrParam, boundary)
	}
	if err := f.validate(); err != nil {
		return dst, nil, err
	}

	var packets []Packet
	sof := f.sequenceHeader()
	var sofBytes [HeaderSize]byte
	sof.marshal(sofBytes[:])

	packetOffset := len(dst)
	dst = append(dst, sofBytes[:]...)
	sizeInPacket := HeaderSize

	for _, m := range f.meta {
		packetSize := m.NumWords * 4
		if packetSize == 0 {
			continue
		}

		if sizeInPacket+packetSize > boundary {
			packets = append(packets, Packet{Offset: packetOffset, Size: sizeInPacket})
			packetOffset = len(dst)
			sizeInPacket = 0
			if f.replicateSOF {
				dst = append(dst, sofBytes[:]...)
				sizeInPacket = HeaderSize
			}
		}

		dst = append(dst, f.Bitstream[m.OffsetWords*4:(m.OffsetWords+m.NumWords)*4]...)
		sizeInPacket += packetSize
	}

	if sizeInPacket != 0 {
		packets = append(packets, Packet{Offset: packetOffset, Size: sizeInPacket})
	}
	return dst, packets, nil
}
