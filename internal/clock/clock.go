// Millisecond clock used to pace transmissions
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock supplies millisecond timestamps and a cancellable wait.
type Clock interface {
	// Now returns milliseconds since the clock's epoch. Values never decrease
	// within a process run.
	Now() int64
	// Sleep blocks for d or until ctx is done, whichever comes first. It
	// returns ctx.Err() when interrupted.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall clock. Its epoch is the Unix epoch, read once at
// construction; later readings advance by the monotonic clock so that wall
// clock adjustments never move Now backwards.
type Real struct {
	base  int64
	start time.Time
}

// NewReal creates a Real clock anchored at the current time.
func NewReal() *Real {
	start := time.Now()
	return &Real{base: start.UnixMilli(), start: start}
}

// Now implements Clock.
func (c *Real) Now() int64 {
	return c.base + time.Since(c.start).Milliseconds()
}

// Sleep implements Clock.
func (c *Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Manual is a Clock that only moves when told to. Sleep advances it by the
// requested duration immediately.
type Manual struct {
	mu    sync.Mutex
	now   int64
	slept time.Duration
	naps  int
}

// NewManual returns a Manual clock reading start.
func NewManual(start int64) *Manual {
	return &Manual{now: start}
}

// Now implements Clock.
func (m *Manual) Now() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d.Milliseconds()
}

// Sleep implements Clock.
func (m *Manual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d.Milliseconds()
	m.slept += d
	m.naps++
	return nil
}

// Slept reports the total time spent in Sleep and the number of calls that
// actually waited.
func (m *Manual) Slept() (time.Duration, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slept, m.naps
}
