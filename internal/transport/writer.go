package transport

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"owl-traffic-gen/internal/sample"
)

// WriterDialer "connects" to an io.Writer and emits samples as JSON lines.
// It backs print-only mode, where no aggregator is contacted.
type WriterDialer struct {
	Out io.Writer
}

// Dial implements Dialer. It never fails.
func (d *WriterDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &writerConn{enc: json.NewEncoder(d.Out)}, nil
}

type writerConn struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closed bool
}

func (w *writerConn) Alive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.closed
}

func (w *writerConn) Send(s sample.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.enc.Encode(s)
}

func (w *writerConn) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}
