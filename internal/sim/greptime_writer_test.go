package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"owl-traffic-gen/internal/sample"
)

type mockGreptimeClient struct {
	mu      sync.Mutex
	tables  []*table.Table
	err     error
	started chan struct{}
	release chan struct{} // when set, writes block until it is closed
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	if m.release != nil {
		select {
		case m.started <- struct{}{}:
		default:
		}
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.tables = append(m.tables, tables...)
	return &gpb.GreptimeResponse{}, nil
}

func (m *mockGreptimeClient) written() []*table.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*table.Table(nil), m.tables...)
}

func TestGreptimeWriterBatchesSamples(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newGreptimeDBWriter(m, "owl_samples", "owl_generator_state", "run-1")
	w.batchSize = 3

	tpl := sample.DefaultTemplate()
	for i := 0; i < 2; i++ {
		if err := w.Write(tpl.Build(i, int64(1000+i))); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if got := len(w.queue); got != 0 {
		t.Fatalf("expected samples to be buffered, got %d queued batches", got)
	}
	if err := w.Write(tpl.Build(7, 1002)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	tables := m.written()
	if len(tables) != 1 {
		t.Fatalf("expected one batch write, got %d", len(tables))
	}

	rows := tables[0].GetRows()
	if len(rows.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows.Rows))
	}
	if len(rows.Schema) != 6 {
		t.Fatalf("unexpected schema length: %d", len(rows.Schema))
	}
	last := rows.Rows[2].Values
	if got := last[0].GetStringValue(); got != "run-1" {
		t.Errorf("run_id = %s, want run-1", got)
	}
	if got := last[1].GetI64Value(); got != 7 {
		t.Errorf("tx_id = %d, want 7", got)
	}
	if got := last[4].GetF64Value(); got != float64(sample.DefaultRSS) {
		t.Errorf("rss = %v, want %v", got, sample.DefaultRSS)
	}
	if got := last[5].GetTimestampMillisecondValue(); got != 1002 {
		t.Errorf("ts = %d, want 1002", got)
	}
}

func TestGreptimeWriterFlushOnClose(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newGreptimeDBWriter(m, "owl_samples", "", "run-1")

	if err := w.Write(sample.DefaultTemplate().Build(1, 5)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	tables := m.written()
	if len(tables) != 1 || len(tables[0].GetRows().Rows) != 1 {
		t.Fatalf("expected buffered sample flushed on close")
	}
	if err := w.Close(); err != nil || len(m.written()) != 1 {
		t.Fatalf("second close should be a no-op")
	}
	if err := w.Write(sample.DefaultTemplate().Build(1, 6)); !errors.Is(err, ErrWriterClosed) {
		t.Fatalf("expected ErrWriterClosed after close, got %v", err)
	}
}

func TestGreptimeWriterState(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newGreptimeDBWriter(m, "owl_samples", "owl_generator_state", "run-1")

	row := StateRow{RunID: "run-1", State: "running", Sent: 10, Dropped: 2, ScheduleSize: 4, Timestamp: time.UnixMilli(42)}
	if err := w.WriteState(row); err != nil {
		t.Fatalf("WriteState: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	tables := m.written()
	if len(tables) != 1 {
		t.Fatalf("expected state table write")
	}
	vals := tables[0].GetRows().Rows[0].Values
	if got := vals[1].GetStringValue(); got != "running" {
		t.Errorf("state = %s, want running", got)
	}
	if got := vals[2].GetI64Value(); got != 10 {
		t.Errorf("sent = %d, want 10", got)
	}
	if got := vals[7].GetI64Value(); got != 4 {
		t.Errorf("schedule_size = %d, want 4", got)
	}

	disabled := newGreptimeDBWriter(m, "owl_samples", "", "run-1")
	if err := disabled.WriteState(row); err != nil {
		t.Fatalf("WriteState: %v", err)
	}
	if err := disabled.Close(); err != nil || len(m.written()) != 1 {
		t.Fatalf("state rows should be skipped without a state table")
	}
}

func TestGreptimeWriterError(t *testing.T) {
	m := &mockGreptimeClient{err: errors.New("unavailable")}
	w := newGreptimeDBWriter(m, "owl_samples", "", "run-1")
	if err := w.Write(sample.DefaultTemplate().Build(1, 1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err == nil {
		t.Fatal("expected client error to be returned from Close")
	}
}

func TestGreptimeWriterDoesNotBlockOnSlowDatabase(t *testing.T) {
	m := &mockGreptimeClient{started: make(chan struct{}, 1), release: make(chan struct{})}
	w := newGreptimeDBWriter(m, "owl_samples", "owl_generator_state", "run-1")
	w.batchSize = 1

	tpl := sample.DefaultTemplate()
	if err := w.Write(tpl.Build(0, 0)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case <-m.started:
	case <-time.After(2 * time.Second):
		t.Fatal("flusher never picked up the first batch")
	}

	returned := make(chan error, 1)
	go func() {
		for i := 1; i <= greptimeQueue; i++ {
			if err := w.Write(tpl.Build(i, int64(i))); err != nil {
				returned <- err
				return
			}
		}
		returned <- w.Write(tpl.Build(99, 99))
	}()
	select {
	case err := <-returned:
		if !errors.Is(err, ErrGreptimeBacklog) {
			t.Fatalf("expected backlog error once the queue is full, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Write blocked on a stalled database")
	}
	if err := w.WriteState(StateRow{RunID: "run-1", State: "running"}); !errors.Is(err, ErrGreptimeBacklog) {
		t.Fatalf("expected WriteState to report backlog, got %v", err)
	}

	close(m.release)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := len(m.written()); got != greptimeQueue+1 {
		t.Fatalf("wrote %d batches after release, expected %d", got, greptimeQueue+1)
	}
}

func TestNewGreptimeDBWriterBadEndpoint(t *testing.T) {
	if _, err := NewGreptimeDBWriter("no-port", "public", "t", "", "run"); err == nil {
		t.Fatal("expected error for endpoint without port")
	}
}
