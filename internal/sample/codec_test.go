package sample

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestTemplateBuild(t *testing.T) {
	s := DefaultTemplate().Build(42, 1700000000123)
	if s.PhysicalLayer != 1 || s.RxID != 1 || s.RSS != -50 || !s.Valid {
		t.Fatalf("unexpected constants: %+v", s)
	}
	if s.TxID != 42 || s.RxTimestamp != 1700000000123 {
		t.Fatalf("unexpected identity/timestamp: %+v", s)
	}
	if !s.Time().Equal(time.UnixMilli(1700000000123)) {
		t.Fatalf("Time() = %v", s.Time())
	}
}

func TestHandshakeLayout(t *testing.T) {
	hs := Handshake()
	if len(hs) != 4+len(ProtocolString)+2 {
		t.Fatalf("handshake length = %d", len(hs))
	}
	if hs[3] != byte(len(ProtocolString)) || string(hs[4:4+len(ProtocolString)]) != ProtocolString {
		t.Fatalf("unexpected handshake prefix: %q", hs)
	}
	if err := ReadHandshake(bytes.NewReader(hs)); err != nil {
		t.Fatalf("ReadHandshake: %v", err)
	}
	bad := append([]byte(nil), hs...)
	bad[5] = 'x'
	if err := ReadHandshake(bytes.NewReader(bad)); !errors.Is(err, ErrHandshake) {
		t.Fatalf("expected ErrHandshake, got %v", err)
	}
	if err := ReadHandshake(bytes.NewReader(hs[:5])); err == nil {
		t.Fatalf("expected error on short handshake")
	}
}

func TestEncodeFrame(t *testing.T) {
	s := Sample{PhysicalLayer: 1, TxID: 7, RxID: 1, RxTimestamp: 1234, RSS: -50, Valid: true}
	buf := Encode(s)
	if len(buf) != 4+sampleBodyLen {
		t.Fatalf("frame length = %d", len(buf))
	}
	if buf[3] != sampleBodyLen {
		t.Fatalf("length prefix = %d", buf[3])
	}
	if buf[20] != 7 || buf[36] != 1 {
		t.Fatalf("ids not in low bytes of 128-bit fields: % x", buf)
	}

	var stream bytes.Buffer
	stream.Write(buf)
	stream.Write(Encode(Sample{PhysicalLayer: 2, TxID: 8, RxTimestamp: 99, RSS: -70}))
	first, err := Decode(&stream)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if first != s {
		t.Fatalf("decoded %+v, want %+v", first, s)
	}
	second, err := Decode(&stream)
	if err != nil {
		t.Fatalf("Decode second: %v", err)
	}
	if second.TxID != 8 || second.PhysicalLayer != 2 || second.RSS != -70 {
		t.Fatalf("unexpected second frame: %+v", second)
	}
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte{0, 0, 0, 3, 1, 2, 3})); err == nil {
		t.Fatalf("expected error for short frame")
	}
}
