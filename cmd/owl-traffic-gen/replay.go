package main

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"owl-traffic-gen/internal/logging"
	"owl-traffic-gen/internal/sim"
	"owl-traffic-gen/internal/transport"
)

type replayOptions struct {
	input      string
	aggregator string
	speed      float64
	printOnly  bool
}

func newReplayCmd() *cobra.Command {
	opts := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded sample log",
		Long:  "replay re-sends samples from a JSONL log written with --log-file to an aggregator or STDOUT.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd)
		},
	}
	cmd.Flags().StringVar(&opts.input, "input", "", "Path to sample log file")
	cmd.Flags().StringVar(&opts.aggregator, "aggregator", "", "Aggregator sensor address (host:port)")
	cmd.Flags().Float64Var(&opts.speed, "speed", 1.0, "Playback speed multiplier (0 disables pacing)")
	cmd.Flags().BoolVar(&opts.printOnly, "print-only", false, "Print samples to STDOUT instead of sending them")
	cmd.MarkFlagRequired("input")
	return cmd
}

func (o *replayOptions) dialer(out io.Writer) (transport.Dialer, error) {
	if o.printOnly {
		return &transport.WriterDialer{Out: out}, nil
	}
	if o.aggregator == "" {
		return nil, fmt.Errorf("--aggregator is required unless --print-only is set")
	}
	host, portStr, err := net.SplitHostPort(o.aggregator)
	if err != nil {
		return nil, fmt.Errorf("invalid aggregator address %q: %w", o.aggregator, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid aggregator port %q", portStr)
	}
	return &transport.SensorDialer{Host: host, Port: port}, nil
}

func (o *replayOptions) run(cmd *cobra.Command) error {
	dialer, err := o.dialer(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	log := logging.New()
	ctx, stop := notifyShutdown(logging.NewContext(cmd.Context(), log), cmd.ErrOrStderr())
	defer stop()

	conn, err := dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	n, err := sim.ReplayLogFile(ctx, o.input, sim.ConnWriter{Conn: conn}, o.speed)
	log.Info("replay finished", "samples", n, "input", o.input)
	return err
}
