package main

import (
	"net"
	"os"
	"strconv"

	"golang.org/x/term"

	"owl-traffic-gen/internal/config"
	"owl-traffic-gen/internal/sim"
)

// stdoutIsTerminal reports whether the TUI can take over STDOUT.
var stdoutIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

type writerOptions struct {
	runID     string
	target    config.Target
	printOnly bool
	logFile   string
	tui       bool
}

// greptimeSettings merges GREPTIMEDB_* environment variables over the config file.
func greptimeSettings(cfg *config.Config) config.GreptimeConfig {
	g := cfg.Greptime
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		g.Endpoint = v
	}
	if v := os.Getenv("GREPTIMEDB_DATABASE"); v != "" {
		g.Database = v
	}
	if v := os.Getenv("GREPTIMEDB_TABLE"); v != "" {
		g.Table = v
	}
	if v := os.Getenv("GREPTIMEDB_STATE_TABLE"); v != "" {
		g.StateTable = v
	}
	return g
}

// newWriters sets up the sample taps based on flags, config and env vars.
// It returns nil when no tap is enabled, plus a cleanup function that
// flushes and closes any resources.
func newWriters(cfg *config.Config, opts writerOptions) (sim.SampleWriter, func(), error) {
	var writers []sim.SampleWriter

	if g := greptimeSettings(cfg); g.Endpoint != "" && !opts.printOnly {
		gw, err := sim.NewGreptimeDBWriter(g.Endpoint, g.Database, g.Table, g.StateTable, opts.runID)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, gw)
	}

	if opts.logFile != "" {
		fw, err := sim.NewFileWriter(opts.logFile, opts.logFile+".state")
		if err != nil {
			closeAll(writers)
			return nil, nil, err
		}
		writers = append(writers, fw)
	}

	if opts.tui {
		writers = append(writers, sim.NewTUIWriter(sim.TUIInfo{
			RunID:        opts.runID,
			Aggregator:   net.JoinHostPort(opts.target.Host, strconv.Itoa(opts.target.Port)),
			Transmitters: opts.target.Transmitters,
			Interval:     opts.target.Interval,
			Loss:         opts.target.Loss,
		}))
	}

	switch len(writers) {
	case 0:
		return nil, func() {}, nil
	case 1:
		w := writers[0]
		return w, func() { closeAll(writers) }, nil
	}
	mw := sim.NewMultiWriter(writers...)
	return mw, func() { mw.Close() }, nil
}

func closeAll(writers []sim.SampleWriter) {
	sim.NewMultiWriter(writers...).Close()
}
