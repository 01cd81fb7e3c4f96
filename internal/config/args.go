package config

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// ArgCount is the number of positional arguments the generator takes.
const ArgCount = 5

// Target is the run description given on the command line.
type Target struct {
	Host         string
	Port         int
	Transmitters int
	Interval     time.Duration
	// Loss is the probability in [0,1] that a scheduled sample is skipped.
	Loss float64
}

// maxIntervalMillis keeps a jittered interval (jitter below 1) within
// time.Duration range.
const maxIntervalMillis = math.MaxInt64 / int64(time.Millisecond) / 2

// ParseArgs parses <ip> <port> <transmitters> <interval-ms> <loss>.
func ParseArgs(args []string) (Target, error) {
	if len(args) != ArgCount {
		return Target{}, fmt.Errorf("expected %d arguments, got %d", ArgCount, len(args))
	}
	var t Target
	t.Host = args[0]
	if t.Host == "" {
		return Target{}, fmt.Errorf("aggregator address must not be empty")
	}

	port, err := strconv.Atoi(args[1])
	if err != nil {
		return Target{}, fmt.Errorf("invalid port %q: %w", args[1], err)
	}
	if port < 1 || port > 65535 {
		return Target{}, fmt.Errorf("port %d out of range 1-65535", port)
	}
	t.Port = port

	n, err := strconv.Atoi(args[2])
	if err != nil {
		return Target{}, fmt.Errorf("invalid transmitter count %q: %w", args[2], err)
	}
	if n < 0 {
		return Target{}, fmt.Errorf("transmitter count must not be negative")
	}
	t.Transmitters = n

	ms, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		return Target{}, fmt.Errorf("invalid interval %q: %w", args[3], err)
	}
	if ms <= 0 {
		return Target{}, fmt.Errorf("interval must be positive")
	}
	if ms > maxIntervalMillis {
		return Target{}, fmt.Errorf("interval %dms exceeds %dms", ms, maxIntervalMillis)
	}
	t.Interval = time.Duration(ms) * time.Millisecond

	loss, err := strconv.ParseFloat(args[4], 64)
	if err != nil {
		return Target{}, fmt.Errorf("invalid loss rate %q: %w", args[4], err)
	}
	if math.IsNaN(loss) || loss < 0 || loss > 1 {
		return Target{}, fmt.Errorf("loss rate %v out of range 0-1", loss)
	}
	t.Loss = loss

	return t, nil
}
