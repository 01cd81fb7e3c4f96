package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"owl-traffic-gen/internal/admin"
	"owl-traffic-gen/internal/config"
	"owl-traffic-gen/internal/logging"
	"owl-traffic-gen/internal/observability"
	"owl-traffic-gen/internal/sim"
	"owl-traffic-gen/internal/transport"
)

const usageLine = "owl-traffic-gen <aggregator-ip> <aggregator-port> <transmitters> <interval-ms> <loss>"

// usageError marks command line mistakes that should be answered with usage.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// runGenerator drives a configured generator; replaced in tests.
var runGenerator = func(ctx context.Context, g *sim.Generator) error {
	return g.Run(ctx)
}

type rootOptions struct {
	configPath  string
	schemaPath  string
	printOnly   bool
	logFile     string
	logLevel    string
	metricsAddr string
	tui         bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   usageLine,
		Short: "Owl aggregator traffic generator",
		Long: "owl-traffic-gen simulates many transmitters, each sending a sample to an Owl\n" +
			"aggregator once per interval with ±5% jitter and synthetic packet loss.\n" +
			"loss is the probability in [0,1] that a scheduled sample is skipped.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != config.ArgCount {
				return usageError{fmt.Errorf("expected %d arguments, got %d", config.ArgCount, len(args))}
			}
			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Path to generator configuration YAML")
	f.StringVar(&opts.schemaPath, "schema", "", "Path to CUE schema file (embedded schema by default)")
	f.BoolVar(&opts.printOnly, "print-only", false, "Print samples to STDOUT instead of sending them to the aggregator")
	f.StringVar(&opts.logFile, "log-file", "", "Path to export delivered samples (JSONL); state rows go to <path>.state")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /status, /healthz and /metrics on this address (overrides config)")
	f.BoolVar(&opts.tui, "tui", false, "Show a terminal status view")

	cmd.AddCommand(newReplayCmd())
	return cmd
}

func (o *rootOptions) run(cmd *cobra.Command, args []string) error {
	target, err := config.ParseArgs(args)
	if err != nil {
		return usageError{err}
	}
	cfg, err := config.Load(o.configPath, o.schemaPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.metricsAddr != "" {
		cfg.MetricsAddr = o.metricsAddr
	}

	runID := uuid.NewString()
	useTUI := o.tui && !o.printOnly && stdoutIsTerminal()
	var logOut io.Writer = cmd.ErrOrStderr()
	if useTUI {
		// the TUI owns the terminal
		logOut = io.Discard
	}
	log, err := logging.NewWithLevel(logOut, cfg.LogLevel)
	if err != nil {
		return usageError{err}
	}
	if o.tui && !useTUI {
		log.Warn("terminal status view disabled: stdout is not a terminal or print-only is set")
	}

	ctx, stop := notifyShutdown(logging.NewContext(cmd.Context(), log), cmd.ErrOrStderr())
	defer stop()

	var dialer transport.Dialer
	if o.printOnly {
		log.Info("print-only mode: samples will be printed to STDOUT")
		dialer = &transport.WriterDialer{Out: cmd.OutOrStdout()}
	} else {
		dialer = &transport.SensorDialer{
			Host:             target.Host,
			Port:             target.Port,
			HandshakeTimeout: cfg.HandshakeTimeout,
			WriteTimeout:     cfg.WriteTimeout,
		}
	}

	writer, cleanup, err := newWriters(cfg, writerOptions{
		runID:     runID,
		target:    target,
		printOnly: o.printOnly,
		logFile:   o.logFile,
		tui:       useTUI,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	var metrics *observability.GeneratorCollector
	if cfg.MetricsAddr != "" {
		if metrics, err = observability.NewGeneratorCollector(nil); err != nil {
			return err
		}
	}

	gen := sim.NewGenerator(runID, sim.Options{
		Transmitters:   target.Transmitters,
		Interval:       target.Interval,
		Loss:           target.Loss,
		Jitter:         cfg.Jitter,
		ReconnectPause: cfg.ReconnectPause,
		StateEvery:     cfg.StateEvery,
		Template:       cfg.Template(),
	}, dialer, writer, metrics)

	if cfg.MetricsAddr != "" {
		srv := admin.NewServer(gen, metrics.Handler())
		go func() {
			if err := srv.Start(ctx, cfg.MetricsAddr); err != nil {
				log.Error("admin server failed", "addr", cfg.MetricsAddr, "err", err)
			}
		}()
	}

	err = runGenerator(ctx, gen)
	fmt.Fprintln(cmd.ErrOrStderr(), "Exiting")
	return err
}

// Execute runs the root command.
func Execute() {
	os.Exit(execute(newRootCmd(), os.Args[1:]))
}

// execute runs cmd and maps the outcome to a process exit status.
func execute(cmd *cobra.Command, args []string) int {
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		errOut := cmd.ErrOrStderr()
		fmt.Fprintln(errOut, "Error:", err)
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprint(errOut, cmd.UsageString())
		}
		return 1
	}
	return 0
}
