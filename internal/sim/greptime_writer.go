package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"owl-traffic-gen/internal/sample"
)

// DefaultGreptimeBatch is the number of samples buffered before a write.
const DefaultGreptimeBatch = 100

const (
	greptimeWriteTimeout = 5 * time.Second
	// greptimeQueue bounds the tables waiting for the flusher.
	greptimeQueue = 16
)

var (
	// ErrGreptimeBacklog is returned when the flusher is too far behind to
	// take another table. The rows in that table are discarded.
	ErrGreptimeBacklog = errors.New("greptimedb: write queue full")
	// ErrWriterClosed is returned by writes after Close.
	ErrWriterClosed = errors.New("greptimedb: writer closed")
)

// greptimeClient is the part of the ingester client the writer needs.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

type greptimeJob struct {
	name string
	tbl  *table.Table
	rows int
}

// GreptimeDBWriter mirrors delivered samples and generator state into
// GreptimeDB. Samples are buffered into batches; batches and state rows are
// written by a background flusher so a slow database never holds up the
// caller.
type GreptimeDBWriter struct {
	client     greptimeClient
	runID      string
	table      string
	stateTable string
	batchSize  int
	log        *slog.Logger

	mu      sync.Mutex
	pending []sample.Sample
	closed  bool
	queue   chan greptimeJob
	done    chan struct{}

	errMu   sync.Mutex
	lastErr error
}

// NewGreptimeDBWriter connects to the GreptimeDB gRPC endpoint (host:port).
// An empty stateTable disables state rows.
func NewGreptimeDBWriter(endpoint, database, tableName, stateTable, runID string) (*GreptimeDBWriter, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, fmt.Errorf("greptime endpoint %q: %w", endpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("greptime port %q: %w", portStr, err)
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return newGreptimeDBWriter(client, tableName, stateTable, runID), nil
}

func newGreptimeDBWriter(client greptimeClient, tableName, stateTable, runID string) *GreptimeDBWriter {
	w := &GreptimeDBWriter{
		client:     client,
		runID:      runID,
		table:      tableName,
		stateTable: stateTable,
		batchSize:  DefaultGreptimeBatch,
		log:        slog.Default().With("writer", "greptimedb"),
		queue:      make(chan greptimeJob, greptimeQueue),
		done:       make(chan struct{}),
	}
	go w.flush()
	return w
}

// Write buffers a sample and queues the batch once it is full.
func (w *GreptimeDBWriter) Write(s sample.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	w.pending = append(w.pending, s)
	if len(w.pending) < w.batchSize {
		return nil
	}
	rows := w.pending
	w.pending = nil
	job, err := w.samplesJob(rows)
	if err != nil {
		return err
	}
	return w.offer(job)
}

// WriteState queues a generator state row, if enabled.
func (w *GreptimeDBWriter) WriteState(row StateRow) error {
	if w.stateTable == "" {
		return nil
	}
	tbl, err := table.New(w.stateTable)
	if err != nil {
		return err
	}
	if err := addColumns(tbl,
		column{"run_id", types.STRING, colTag},
		column{"state", types.STRING, colField},
		column{"sent", types.INT64, colField},
		column{"dropped", types.INT64, colField},
		column{"send_errors", types.INT64, colField},
		column{"reconnects", types.INT64, colField},
		column{"connect_failures", types.INT64, colField},
		column{"schedule_size", types.INT64, colField},
		column{"ts", types.TIMESTAMP_MILLISECOND, colTime},
	); err != nil {
		return err
	}
	if err := tbl.AddRow(row.RunID, row.State,
		int64(row.Sent), int64(row.Dropped), int64(row.SendErrors),
		int64(row.Reconnects), int64(row.ConnectFailures), int64(row.ScheduleSize),
		row.Timestamp); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	return w.offer(greptimeJob{name: w.stateTable, tbl: tbl, rows: 1})
}

// Close queues any buffered samples, waits for the flusher to finish and
// returns the last write error it saw. Later calls are no-ops.
func (w *GreptimeDBWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	var err error
	if len(w.pending) > 0 {
		var job greptimeJob
		if job, err = w.samplesJob(w.pending); err == nil {
			w.queue <- job
		}
		w.pending = nil
	}
	close(w.queue)
	w.mu.Unlock()

	<-w.done
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if err != nil {
		return err
	}
	return w.lastErr
}

// offer hands a job to the flusher without blocking. Callers hold mu.
func (w *GreptimeDBWriter) offer(job greptimeJob) error {
	select {
	case w.queue <- job:
		return nil
	default:
		w.log.Warn("write queue full, discarding rows", "table", job.name, "rows", job.rows)
		return ErrGreptimeBacklog
	}
}

func (w *GreptimeDBWriter) samplesJob(samples []sample.Sample) (greptimeJob, error) {
	tbl, err := table.New(w.table)
	if err != nil {
		return greptimeJob{}, err
	}
	if err := addColumns(tbl,
		column{"run_id", types.STRING, colTag},
		column{"tx_id", types.INT64, colTag},
		column{"rx_id", types.INT64, colTag},
		column{"physical_layer", types.INT64, colField},
		column{"rss", types.FLOAT64, colField},
		column{"ts", types.TIMESTAMP_MILLISECOND, colTime},
	); err != nil {
		return greptimeJob{}, err
	}
	for _, s := range samples {
		if err := tbl.AddRow(w.runID, int64(s.TxID), int64(s.RxID), int64(s.PhysicalLayer), float64(s.RSS), s.Time()); err != nil {
			return greptimeJob{}, err
		}
	}
	return greptimeJob{name: w.table, tbl: tbl, rows: len(samples)}, nil
}

func (w *GreptimeDBWriter) flush() {
	defer close(w.done)
	for job := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), greptimeWriteTimeout)
		_, err := w.client.Write(ctx, job.tbl)
		cancel()
		if err != nil {
			w.log.Error("write failed", "table", job.name, "rows", job.rows, "err", err)
			w.errMu.Lock()
			w.lastErr = err
			w.errMu.Unlock()
			continue
		}
		w.log.Debug("wrote rows", "table", job.name, "rows", job.rows)
	}
}

type columnKind int

const (
	colTag columnKind = iota
	colField
	colTime
)

type column struct {
	name string
	typ  types.ColumnType
	kind columnKind
}

func addColumns(tbl *table.Table, cols ...column) error {
	for _, c := range cols {
		var err error
		switch c.kind {
		case colTag:
			err = tbl.AddTagColumn(c.name, c.typ)
		case colField:
			err = tbl.AddFieldColumn(c.name, c.typ)
		case colTime:
			err = tbl.AddTimestampColumn(c.name, c.typ)
		}
		if err != nil {
			return fmt.Errorf("column %s: %w", c.name, err)
		}
	}
	return nil
}
