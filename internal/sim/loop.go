package sim

import (
	"context"
	"fmt"
	"time"

	"owl-traffic-gen/internal/logging"
	"owl-traffic-gen/internal/sample"
	"owl-traffic-gen/internal/schedule"
	"owl-traffic-gen/internal/transport"
)

// Run connects to the aggregator and sends samples until ctx is done.
// Connection and send failures are logged and followed by a reconnect after
// ReconnectPause; they never end the run. Run returns nil on shutdown.
func (g *Generator) Run(ctx context.Context) error {
	log := logging.FromContext(ctx).With("run_id", g.runID)
	ctx = logging.NewContext(ctx, log)
	log.Info("starting generator",
		"transmitters", g.sched.Len(),
		"interval", g.opts.Interval,
		"loss", g.opts.Loss,
		"jitter", g.opts.Jitter)
	g.publishState(ctx)

	for ctx.Err() == nil {
		g.setState(ctx, StateConnecting)
		conn, err := g.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			g.recordConnect(err)
			log.Warn("connect failed", "err", err)
			g.pause(ctx)
			continue
		}
		g.recordConnect(nil)
		log.Info("connected to aggregator")

		g.setState(ctx, StateRunning)
		err = g.serve(ctx, conn)
		conn.Close()
		g.metrics.ObserveDisconnect()
		if err != nil {
			log.Error("aggregator link failed", "err", err)
			g.pause(ctx)
		}
	}

	g.setState(ctx, StateShuttingDown)
	g.setState(ctx, StateTerminated)
	log.Info("generator stopped")
	return nil
}

// serve is the RUNNING state: one step per scheduled event while the link is
// alive. It returns nil when ctx is done and an error on link failure.
func (g *Generator) serve(ctx context.Context, conn transport.Conn) error {
	for ctx.Err() == nil {
		if !conn.Alive() {
			return ErrConnectionLost
		}
		if err := g.step(ctx, conn); err != nil {
			return err
		}
	}
	return nil
}

// step waits for the earliest event to fall due, then drops or sends it and
// puts the transmitter back on the schedule. An event whose send fails or
// whose wait is interrupted goes back unchanged.
func (g *Generator) step(ctx context.Context, conn transport.Conn) error {
	ev, err := g.sched.Pop()
	if err != nil {
		// no transmitters; idle one interval so shutdown and link loss are still noticed
		_ = g.clock.Sleep(ctx, g.opts.Interval)
		return nil
	}

	if wait := ev.Due - g.clock.Now(); wait > 0 {
		if err := g.clock.Sleep(ctx, time.Duration(wait)*time.Millisecond); err != nil {
			g.sched.Push(ev)
			return nil
		}
	}

	if g.rng.Float64() < g.opts.Loss {
		g.recordDrop()
		g.reschedule(ev)
		return nil
	}

	smp := g.opts.Template.Build(ev.ID, ev.Due)
	if err := conn.Send(smp); err != nil {
		g.sched.Push(ev)
		g.recordSendError()
		return fmt.Errorf("send tx %d: %w", ev.ID, err)
	}
	g.reschedule(ev)
	g.recordSend(ctx, smp)
	return nil
}

func (g *Generator) reschedule(ev schedule.Event) {
	ev.Due += g.rng.Jitter(g.intervalMs, g.opts.Jitter)
	g.sched.Push(ev)
}

func (g *Generator) pause(ctx context.Context) {
	_ = g.clock.Sleep(ctx, g.opts.ReconnectPause)
}

func (g *Generator) setState(ctx context.Context, s State) {
	g.mu.Lock()
	changed := g.state != s
	g.state = s
	g.mu.Unlock()
	if changed {
		logging.FromContext(ctx).Debug("state change", "state", s.String())
		g.publishState(ctx)
	}
}

func (g *Generator) recordConnect(err error) {
	g.mu.Lock()
	reconnect := g.everConnected
	if err != nil {
		g.stats.ConnectFailures++
	} else {
		if reconnect {
			g.stats.Reconnects++
		}
		g.everConnected = true
	}
	g.mu.Unlock()
	g.metrics.ObserveConnect(err, reconnect)
}

func (g *Generator) recordDrop() {
	g.mu.Lock()
	g.stats.Dropped++
	g.mu.Unlock()
	g.metrics.ObserveDrop()
}

func (g *Generator) recordSendError() {
	g.mu.Lock()
	g.stats.SendErrors++
	g.stats.ScheduleSize = g.sched.Len()
	g.mu.Unlock()
	g.metrics.ObserveSendError()
}

func (g *Generator) recordSend(ctx context.Context, smp sample.Sample) {
	now := g.clock.Now()
	g.mu.Lock()
	g.stats.Sent++
	g.stats.ScheduleSize = g.sched.Len()
	due := now-g.lastStateMs >= g.opts.StateEvery.Milliseconds()
	g.mu.Unlock()

	g.metrics.ObserveSend(time.Duration(now-smp.RxTimestamp) * time.Millisecond)
	if g.writer != nil {
		if err := g.writer.Write(smp); err != nil {
			logging.FromContext(ctx).Warn("sample writer failed", "tx_id", smp.TxID, "err", err)
		}
	}
	if due {
		g.publishState(ctx)
	}
}

// publishState hands a state row to the writer if it records state.
func (g *Generator) publishState(ctx context.Context) {
	row := g.Snapshot()
	g.mu.Lock()
	g.lastStateMs = g.clock.Now()
	g.mu.Unlock()
	sw, ok := g.writer.(StateWriter)
	if !ok {
		return
	}
	if err := sw.WriteState(row); err != nil {
		logging.FromContext(ctx).Warn("state writer failed", "err", err)
	}
}
