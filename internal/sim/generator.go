// Generator scheduling virtual transmitters and delivering their samples
package sim

import (
	"errors"
	"sync"
	"time"

	"owl-traffic-gen/internal/clock"
	"owl-traffic-gen/internal/observability"
	"owl-traffic-gen/internal/random"
	"owl-traffic-gen/internal/sample"
	"owl-traffic-gen/internal/schedule"
	"owl-traffic-gen/internal/transport"
)

// ErrConnectionLost is returned by the send loop when the link reports
// itself dead between sends.
var ErrConnectionLost = errors.New("aggregator connection lost")

// State is a phase of the generator's connection state machine.
type State int

const (
	StateConnecting State = iota
	StateRunning
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Options configures a Generator. Zero Clock and Rand select the real clock
// and a randomly seeded engine.
type Options struct {
	Transmitters   int
	Interval       time.Duration
	Loss           float64
	Jitter         float64
	ReconnectPause time.Duration
	StateEvery     time.Duration
	Template       sample.Template
	Clock          clock.Clock
	Rand           *random.Engine
}

// Generator owns the transmission schedule and runs the connect/send loop.
type Generator struct {
	runID      string
	opts       Options
	intervalMs int64
	clock      clock.Clock
	rng        *random.Engine
	sched      *schedule.Schedule
	dialer     transport.Dialer
	writer     SampleWriter
	metrics    *observability.GeneratorCollector

	mu            sync.Mutex
	state         State
	stats         StateRow
	everConnected bool
	lastStateMs   int64
}

// NewGenerator creates a generator and seeds one event per transmitter, each
// due at a random time within the first interval. writer and metrics may be nil.
func NewGenerator(runID string, opts Options, dialer transport.Dialer, writer SampleWriter, metrics *observability.GeneratorCollector) *Generator {
	if opts.Jitter <= 0 {
		opts.Jitter = random.DefaultJitter
	}
	if opts.ReconnectPause <= 0 {
		opts.ReconnectPause = time.Second
	}
	if opts.StateEvery <= 0 {
		opts.StateEvery = time.Second
	}
	if opts.Template == (sample.Template{}) {
		opts.Template = sample.DefaultTemplate()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewReal()
	}
	rng := opts.Rand
	if rng == nil {
		rng = random.New()
	}
	n := opts.Transmitters
	if n < 0 {
		n = 0
	}

	g := &Generator{
		runID:      runID,
		opts:       opts,
		intervalMs: opts.Interval.Milliseconds(),
		clock:      clk,
		rng:        rng,
		sched:      schedule.New(n),
		dialer:     dialer,
		writer:     writer,
		metrics:    metrics,
		state:      StateConnecting,
	}

	start := clk.Now()
	for i := 0; i < n; i++ {
		g.sched.Push(schedule.Event{ID: i, Due: rng.Between(start, start+g.intervalMs)})
	}
	g.stats.RunID = runID
	g.stats.ScheduleSize = g.sched.Len()
	g.lastStateMs = start
	metrics.SetScheduleSize(g.sched.Len())
	return g
}

// RunID returns the identifier of this generator run.
func (g *Generator) RunID() string {
	return g.runID
}

// State returns the current state machine phase.
func (g *Generator) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Snapshot returns the current counters.
func (g *Generator) Snapshot() StateRow {
	g.mu.Lock()
	defer g.mu.Unlock()
	row := g.stats
	row.State = g.state.String()
	row.Timestamp = time.UnixMilli(g.clock.Now()).UTC()
	return row
}
