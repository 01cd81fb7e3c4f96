package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"owl-traffic-gen/internal/sample"
)

// fakeAggregator accepts one sensor connection, answers the handshake with
// reply, and forwards every decoded sample on got.
type fakeAggregator struct {
	ln    net.Listener
	reply []byte
	got   chan sample.Sample
	conns chan net.Conn
}

func newFakeAggregator(t *testing.T, reply []byte) *fakeAggregator {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	a := &fakeAggregator{ln: ln, reply: reply, got: make(chan sample.Sample, 16), conns: make(chan net.Conn, 1)}
	t.Cleanup(func() { ln.Close() })
	go a.serve()
	return a
}

func (a *fakeAggregator) serve() {
	c, err := a.ln.Accept()
	if err != nil {
		return
	}
	a.conns <- c
	if err := sample.ReadHandshake(c); err != nil {
		c.Close()
		return
	}
	if _, err := c.Write(a.reply); err != nil {
		return
	}
	for {
		s, err := sample.Decode(c)
		if err != nil {
			return
		}
		a.got <- s
	}
}

func (a *fakeAggregator) dialer() *SensorDialer {
	addr := a.ln.Addr().(*net.TCPAddr)
	return &SensorDialer{Host: "127.0.0.1", Port: addr.Port, HandshakeTimeout: time.Second}
}

func TestSensorDialerSendsSamples(t *testing.T) {
	agg := newFakeAggregator(t, sample.Handshake())
	conn, err := agg.dialer().Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if !conn.Alive() {
		t.Fatalf("expected live connection")
	}

	want := sample.DefaultTemplate().Build(3, 5000)
	if err := conn.Send(want); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case got := <-agg.got:
		if got != want {
			t.Fatalf("aggregator got %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("aggregator did not receive sample")
	}
}

func TestSensorDialerHandshakeMismatch(t *testing.T) {
	agg := newFakeAggregator(t, []byte("\x00\x00\x00\x15GRAIL client protocol\x00\x00"))
	_, err := agg.dialer().Dial(context.Background())
	if !errors.Is(err, sample.ErrHandshake) {
		t.Fatalf("expected ErrHandshake, got %v", err)
	}
}

func TestSensorDialerRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	d := &SensorDialer{Host: "127.0.0.1", Port: port}
	if _, err := d.Dial(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestSensorConnDetectsPeerClose(t *testing.T) {
	agg := newFakeAggregator(t, sample.Handshake())
	conn, err := agg.dialer().Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	peer := <-agg.conns
	peer.Close()

	deadline := time.Now().Add(2 * time.Second)
	for conn.Alive() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if conn.Alive() {
		t.Fatalf("connection still alive after peer close")
	}
	if err := conn.Send(sample.Sample{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSensorConnWriteTimeoutOnStalledAggregator(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	accepted := make(chan net.Conn, 1)
	defer func() {
		select {
		case c := <-accepted:
			c.Close()
		default:
		}
	}()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- c
		if tc, ok := c.(*net.TCPConn); ok {
			_ = tc.SetReadBuffer(4096)
		}
		if err := sample.ReadHandshake(c); err != nil {
			return
		}
		_, _ = c.Write(sample.Handshake())
		// never read again
	}()

	d := &SensorDialer{
		Host:             "127.0.0.1",
		Port:             ln.Addr().(*net.TCPAddr).Port,
		HandshakeTimeout: time.Second,
		WriteTimeout:     50 * time.Millisecond,
	}
	conn, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	smp := sample.DefaultTemplate().Build(1, 1)
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		start := time.Now()
		err = conn.Send(smp)
		if took := time.Since(start); took > 2*time.Second {
			t.Fatalf("Send blocked for %v despite write timeout", took)
		}
		if err != nil {
			break
		}
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("expected deadline error once the aggregator stops reading, got %v", err)
	}
	if conn.Alive() {
		t.Fatalf("connection still alive after write timeout")
	}
	if err := conn.Send(smp); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after timeout, got %v", err)
	}
}

func TestWriterDialer(t *testing.T) {
	var buf bytes.Buffer
	d := &WriterDialer{Out: &buf}
	conn, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := conn.Send(sample.DefaultTemplate().Build(1, 10)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	var got sample.Sample
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TxID != 1 || got.RxTimestamp != 10 {
		t.Fatalf("unexpected sample %+v", got)
	}
	conn.Close()
	if conn.Alive() {
		t.Fatalf("closed writer conn still alive")
	}
	if err := conn.Send(sample.Sample{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
