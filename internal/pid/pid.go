// Package pid implements the kiln's PID controller: a bounded output in
// [-1, 1] with a hard-clamped integrator.
package pid

import (
	"errors"
	"fmt"
	"math"
	"time"

	"kiln_controller/internal/clock"
)

// MinSampleInterval is the smallest spacing between two Compute calls for
// which the derivative term is evaluated.
const MinSampleInterval = time.Millisecond

const (
	outputMin = -1.0
	outputMax = 1.0
)

// ErrSampleTooSoon is returned when Compute is called again before
// MinSampleInterval has elapsed.
var ErrSampleTooSoon = errors.New("pid: sample interval too short")

// ErrNonFinite is returned when the setpoint or measurement is NaN or
// infinite.
var ErrNonFinite = errors.New("pid: non-finite input")

// Gains holds the controller coefficients.
type Gains struct {
	Kp float64
	Ki float64
	Kd float64
}

// Controller is not safe for concurrent use; the oven loop is its only caller.
type Controller struct {
	gains Gains
	clock clock.Clock

	integrator     float64
	lastError      float64
	lastSampleTime time.Time
}

// New returns a controller whose first sample interval is measured from now.
func New(gains Gains, clk clock.Clock) *Controller {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Controller{
		gains:          gains,
		clock:          clk,
		lastSampleTime: clk.Now(),
	}
}

// Compute returns the control signal for the given setpoint and measurement.
// When called less than MinSampleInterval after the previous call it returns
// 0 and ErrSampleTooSoon, leaving the controller state untouched. Non-finite
// inputs are rejected the same way with ErrNonFinite.
func (c *Controller) Compute(setpoint, measurement float64) (float64, error) {
	if !finite(setpoint) || !finite(measurement) {
		return 0, fmt.Errorf("%w: setpoint=%v measurement=%v", ErrNonFinite, setpoint, measurement)
	}
	now := c.clock.Now()
	elapsed := now.Sub(c.lastSampleTime)
	if elapsed < MinSampleInterval {
		return 0, fmt.Errorf("%w: %v since previous sample", ErrSampleTooSoon, elapsed)
	}
	dt := elapsed.Seconds()

	err := setpoint - measurement
	c.integrator = clamp(c.integrator+err*dt*c.gains.Ki, outputMin, outputMax)
	derivative := (err - c.lastError) / dt

	output := c.gains.Kp*err + c.integrator + c.gains.Kd*derivative

	c.lastError = err
	c.lastSampleTime = now

	return clamp(output, outputMin, outputMax), nil
}

// Integrator exposes the accumulated integral term.
func (c *Controller) Integrator() float64 { return c.integrator }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
