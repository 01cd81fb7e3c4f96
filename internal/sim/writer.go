package sim

import (
	"time"

	"owl-traffic-gen/internal/sample"
	"owl-traffic-gen/internal/transport"
)

// SampleWriter receives every sample the aggregator accepted. Writers are
// taps for logging and mirroring; their errors never stop the generator.
type SampleWriter interface {
	Write(sample.Sample) error
}

// StateWriter is implemented by writers that also record generator state.
type StateWriter interface {
	WriteState(StateRow) error
}

// StateRow is a snapshot of the generator's counters.
type StateRow struct {
	RunID           string    `json:"run_id"`
	State           string    `json:"state"`
	Sent            uint64    `json:"sent"`
	Dropped         uint64    `json:"dropped"`
	SendErrors      uint64    `json:"send_errors"`
	Reconnects      uint64    `json:"reconnects"`
	ConnectFailures uint64    `json:"connect_failures"`
	ScheduleSize    int       `json:"schedule_size"`
	Timestamp       time.Time `json:"ts"`
}

// ConnWriter adapts an aggregator connection to SampleWriter so recorded
// samples can be replayed through it.
type ConnWriter struct {
	Conn transport.Conn
}

// Write sends the sample over the connection.
func (w ConnWriter) Write(s sample.Sample) error {
	if !w.Conn.Alive() {
		return transport.ErrClosed
	}
	return w.Conn.Send(s)
}
