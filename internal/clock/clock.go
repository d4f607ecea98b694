// Package clock abstracts wall time so the control loop, the actuator and the
// thermal simulator can run on real time, accelerated time or a manual clock.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock reports the current time and blocks for a duration.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Scaled runs Factor times faster than the wall clock. Now reports simulated
// time elapsed since the clock was created; Sleep waits d/Factor real time.
type Scaled struct {
	Factor float64
	origin time.Time
	real   Real
}

// NewScaled returns a clock running factor times faster than real time.
// Factors below 1 are treated as 1.
func NewScaled(factor float64) *Scaled {
	if factor < 1 {
		factor = 1
	}
	return &Scaled{Factor: factor, origin: time.Now()}
}

func (s *Scaled) Now() time.Time {
	elapsed := time.Since(s.origin)
	return s.origin.Add(time.Duration(float64(elapsed) * s.Factor))
}

func (s *Scaled) Sleep(ctx context.Context, d time.Duration) error {
	return s.real.Sleep(ctx, time.Duration(float64(d)/s.Factor))
}

// Manual only moves when told to. Sleep advances the clock by d and returns
// immediately, which makes loops built on it deterministic.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Advance(d)
	return nil
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
