// Package heater drives the heating element with time-proportioned on/off
// control: within each control period the output is asserted for a fraction
// of the period equal to the commanded duty.
package heater

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kiln_controller/internal/clock"
	"kiln_controller/internal/logger"

	"go.uber.org/atomic"
)

// Output is a digital output line. Write sets the electrical level.
type Output interface {
	Write(high bool) error
}

// NullOutput accepts every write. Used when no GPIO is available.
type NullOutput struct{}

func (NullOutput) Write(bool) error { return nil }

// Option configures an Actuator.
type Option func(*Actuator)

// WithInvert drives the line low to switch the element on.
func WithInvert(invert bool) Option {
	return func(a *Actuator) { a.invert = invert }
}

// Actuator owns the heat output. Off may be called while Drive is blocked in
// its on time; the element is then off again at the latest when that on time
// ends.
type Actuator struct {
	out    Output
	invert bool
	clock  clock.Clock
	log    *logger.Logger

	mu   sync.Mutex // serialises writes to out
	duty *atomic.Float64
}

// New returns an actuator for out. The output is not touched until the first
// Drive or Off call.
func New(out Output, clk clock.Clock, log *logger.Logger, opts ...Option) *Actuator {
	if out == nil {
		out = NullOutput{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	a := &Actuator{
		out:   out,
		clock: clk,
		log:   log,
		duty:  atomic.NewFloat64(0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Drive switches the element on for period*duty and then off again, blocking
// for the on time. It returns how long the element was on. A duty of zero or
// less, or NaN, switches it off immediately. The output is always left off on return.
func (a *Actuator) Drive(ctx context.Context, duty float64, period time.Duration) (time.Duration, error) {
	if duty > 1 {
		duty = 1
	}
	if !(duty > 0) {
		return 0, a.Off()
	}

	on := time.Duration(float64(period) * duty)
	a.duty.Store(duty)
	if err := a.set(true); err != nil {
		return 0, errors.Join(fmt.Errorf("heater on: %w", err), a.Off())
	}

	a.log.Debugw("heater_on", "duty", duty, "on", on)
	start := a.clock.Now()
	if err := a.clock.Sleep(ctx, on); err != nil {
		return a.clock.Now().Sub(start), errors.Join(err, a.Off())
	}
	if err := a.set(false); err != nil {
		a.duty.Store(0)
		return on, fmt.Errorf("heater off: %w", err)
	}
	return on, nil
}

// Off de-asserts the output and clears the duty.
func (a *Actuator) Off() error {
	a.duty.Store(0)
	if err := a.set(false); err != nil {
		return fmt.Errorf("heater off: %w", err)
	}
	return nil
}

// Duty is the last commanded duty in [0, 1]. It stays set for the off part
// of the period and drops to zero on Off.
func (a *Actuator) Duty() float64 { return a.duty.Load() }

func (a *Actuator) set(on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.out.Write(on != a.invert)
}
