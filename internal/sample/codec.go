package sample

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ProtocolString identifies the sensor side of the aggregator protocol.
const ProtocolString = "GRAIL sensor protocol"

const (
	protocolVersion   = 0
	protocolExtension = 0

	// physical layer + tx id + rx id + timestamp + rss
	sampleBodyLen = 1 + 16 + 16 + 8 + 4
	// frames larger than this are rejected by Decode
	maxFrameLen = 1 << 16
)

// ErrHandshake reports a handshake that does not match ProtocolString.
var ErrHandshake = errors.New("sample: handshake mismatch")

// Handshake returns the bytes a sensor sends when it connects.
func Handshake() []byte {
	buf := make([]byte, 4, 4+len(ProtocolString)+2)
	binary.BigEndian.PutUint32(buf, uint32(len(ProtocolString)))
	buf = append(buf, ProtocolString...)
	return append(buf, protocolVersion, protocolExtension)
}

// ReadHandshake reads a handshake from r and checks it.
func ReadHandshake(r io.Reader) error {
	want := Handshake()
	got := make([]byte, len(want))
	if _, err := io.ReadFull(r, got); err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%w: %q", ErrHandshake, got)
	}
	return nil
}

// Encode serializes s as a length-prefixed sensor frame. Transmitter and
// receiver ids are written as 128-bit big-endian integers; the Valid flag is
// not part of the wire format.
func Encode(s Sample) []byte {
	buf := make([]byte, 4+sampleBodyLen)
	binary.BigEndian.PutUint32(buf[0:4], sampleBodyLen)
	buf[4] = s.PhysicalLayer
	putUint128(buf[5:21], s.TxID)
	putUint128(buf[21:37], s.RxID)
	binary.BigEndian.PutUint64(buf[37:45], uint64(s.RxTimestamp))
	binary.BigEndian.PutUint32(buf[45:49], math.Float32bits(s.RSS))
	return buf
}

// Decode reads one frame written by Encode. Any trailing sense data is
// discarded. Decoded samples are always marked valid.
func Decode(r io.Reader) (Sample, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Sample{}, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n < sampleBodyLen || n > maxFrameLen {
		return Sample{}, fmt.Errorf("sample: bad frame length %d", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Sample{}, fmt.Errorf("read frame: %w", err)
	}
	return Sample{
		PhysicalLayer: body[0],
		TxID:          binary.BigEndian.Uint64(body[9:17]),
		RxID:          binary.BigEndian.Uint64(body[25:33]),
		RxTimestamp:   int64(binary.BigEndian.Uint64(body[33:41])),
		RSS:           math.Float32frombits(binary.BigEndian.Uint32(body[41:45])),
		Valid:         true,
	}, nil
}

// putUint128 writes v into the low 64 bits of a 16-byte big-endian field.
func putUint128(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[i] = 0
	}
	binary.BigEndian.PutUint64(dst[8:16], v)
}
