package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"owl-traffic-gen/internal/logging"
)

// exitProcess ends the process on a second interrupt; replaced in tests.
var exitProcess = os.Exit

// notifyShutdown returns a context cancelled by the first SIGINT or SIGTERM.
// A second signal while shutting down exits immediately with status 1.
func notifyShutdown(parent context.Context, out io.Writer) (context.Context, func()) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	ctx, stop := watchSignals(parent, sigs, out)
	return ctx, func() {
		signal.Stop(sigs)
		stop()
	}
}

func watchSignals(parent context.Context, sigs <-chan os.Signal, out io.Writer) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigs:
			logging.FromContext(parent).Debug("signal received", "signal", sig.String())
			fmt.Fprintln(out, "Shutting down...")
			cancel()
		case <-done:
			return
		}
		select {
		case <-sigs:
			fmt.Fprintln(out, "Aborting.")
			exitProcess(1)
		case <-done:
		}
	}()
	return ctx, func() {
		close(done)
		cancel()
	}
}
