package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"owl-traffic-gen/internal/sample"
)

const (
	// DefaultHandshakeTimeout bounds the handshake exchange on a new connection.
	DefaultHandshakeTimeout = 5 * time.Second
	// DefaultWriteTimeout bounds a single sample write. An aggregator that
	// stops reading for longer is treated as gone.
	DefaultWriteTimeout = 5 * time.Second
)

// SensorDialer connects to an aggregator's sensor port over TCP.
type SensorDialer struct {
	Host             string
	Port             int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Addr returns host:port.
func (d *SensorDialer) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// Dial opens a TCP connection and performs the sensor handshake.
func (d *SensorDialer) Dial(ctx context.Context) (Conn, error) {
	var nd net.Dialer
	c, err := nd.DialContext(ctx, "tcp", d.Addr())
	if err != nil {
		return nil, err
	}
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	if err := handshake(c, timeout); err != nil {
		c.Close()
		return nil, err
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return newSensorConn(c, writeTimeout), nil
}

func handshake(c net.Conn, timeout time.Duration) error {
	if err := c.SetDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if _, err := c.Write(sample.Handshake()); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}
	if err := sample.ReadHandshake(c); err != nil {
		return err
	}
	return c.SetDeadline(time.Time{})
}

// sensorConn is a live aggregator link. A background reader drains anything
// the aggregator sends and marks the link dead when the peer goes away.
type sensorConn struct {
	c            net.Conn
	writeTimeout time.Duration
	alive        atomic.Bool
	mu           sync.Mutex
	once         sync.Once
}

func newSensorConn(c net.Conn, writeTimeout time.Duration) *sensorConn {
	sc := &sensorConn{c: c, writeTimeout: writeTimeout}
	sc.alive.Store(true)
	go sc.watch()
	return sc
}

func (s *sensorConn) watch() {
	_, _ = io.Copy(io.Discard, s.c)
	s.alive.Store(false)
}

// Alive implements Conn.
func (s *sensorConn) Alive() bool {
	return s.alive.Load()
}

// Send implements Conn. A write that cannot complete within the write
// timeout kills the link.
func (s *sensorConn) Send(smp sample.Sample) error {
	if !s.alive.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.c.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		s.alive.Store(false)
		return fmt.Errorf("send sample: %w", err)
	}
	if _, err := s.c.Write(sample.Encode(smp)); err != nil {
		s.alive.Store(false)
		return fmt.Errorf("send sample: %w", err)
	}
	return nil
}

// Close implements Conn.
func (s *sensorConn) Close() error {
	var err error
	s.once.Do(func() {
		s.alive.Store(false)
		err = s.c.Close()
	})
	return err
}
