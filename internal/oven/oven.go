// Package oven runs the kiln control loop: it follows the active schedule
// with a PID controller, drives the heater and resets itself when the
// temperature stops responding to heat.
package oven

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"kiln_controller/internal/clock"
	"kiln_controller/internal/logger"
	"kiln_controller/internal/models"
	"kiln_controller/internal/pid"
	"kiln_controller/internal/schedule"

	"github.com/google/uuid"
)

// State is the controller mode.
type State string

const (
	Idle    State = "IDLE"
	Running State = "RUNNING"
)

// RunawayLimit is the number of consecutive control periods with heat on and
// an unchanged reading after which the run is aborted.
const RunawayLimit = 3600

var (
	ErrNoProfile       = errors.New("no profile supplied")
	ErrInvalidTimeStep = errors.New("time step must be positive")
)

// Thermometer supplies the latest temperature reading.
type Thermometer interface {
	Temperature() float64
}

// Heater is the time-proportioned heat output.
type Heater interface {
	Drive(ctx context.Context, duty float64, period time.Duration) (time.Duration, error)
	Off() error
}

// Config holds the control loop settings.
type Config struct {
	TimeStep time.Duration
	Gains    pid.Gains
	// Simulate advances runtime by RuntimeStep per period instead of
	// measuring wall time.
	Simulate    bool
	RuntimeStep time.Duration
}

// Option configures an Oven.
type Option func(*Oven)

// WithObserver registers fn to receive a snapshot after every control period
// of a run, and the IDLE snapshot when a run ends by completion, runaway trip
// or abort. fn is called from the loop goroutine, or from the goroutine that
// called AbortRun or Reset.
func WithObserver(fn func(models.OvenStatus)) Option {
	return func(o *Oven) { o.observers = append(o.observers, fn) }
}

// Oven is the controller. All exported methods are safe for concurrent use;
// Run must be called from a single goroutine.
type Oven struct {
	cfg         Config
	thermometer Thermometer
	heater      Heater
	clock       clock.Clock
	log         *logger.Logger
	observers   []func(models.OvenStatus)

	mu        sync.RWMutex
	state     State
	runID     string
	profile   schedule.Profile
	startedAt time.Time
	runtime   float64
	target    float64
	heat      float64
	totalTime float64
	pid       *pid.Controller

	// runaway guard
	stalled  int
	lastTemp float64

	// last finite reading, reported while the sensor returns garbage
	lastReading float64
}

// New returns an idle oven.
func New(cfg Config, t Thermometer, h Heater, clk clock.Clock, log *logger.Logger, opts ...Option) (*Oven, error) {
	if cfg.TimeStep <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimeStep, cfg.TimeStep)
	}
	if cfg.Simulate && cfg.RuntimeStep <= 0 {
		cfg.RuntimeStep = cfg.TimeStep
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	o := &Oven{
		cfg:         cfg,
		thermometer: t,
		heater:      h,
		clock:       clk,
		log:         log,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.resetLocked()
	return o, nil
}

// RunProfile starts executing p. A run in progress is replaced.
func (o *Oven) RunProfile(p schedule.Profile) error {
	if p == nil {
		o.log.Errorw("oven_run_rejected", "error", ErrNoProfile)
		return ErrNoProfile
	}

	now := o.clock.Now()
	temp := o.thermometer.Temperature()

	o.mu.Lock()
	if o.state == Running {
		o.log.Warnw("oven_run_replaced", "run_id", o.runID, "profile", o.profile.Name())
	}
	o.resetLocked()
	p.Start(now)
	o.state = Running
	o.runID = uuid.NewString()
	o.profile = p
	o.startedAt = now
	o.totalTime = p.Duration()
	o.lastTemp = temp
	if finite(temp) {
		o.lastReading = temp
	}
	runID := o.runID
	o.mu.Unlock()

	o.log.Infow("oven_run_started",
		"run_id", runID,
		"profile", p.Name(),
		"type", p.Kind(),
		"duration_s", p.Duration(),
		"temperature", temp,
	)
	return nil
}

// AbortRun stops the current run, if any.
func (o *Oven) AbortRun() {
	o.mu.RLock()
	runID, running := o.runID, o.state == Running
	o.mu.RUnlock()
	if running {
		o.log.Infow("oven_run_aborted", "run_id", runID)
	}
	o.Reset()
}

// Reset returns the oven to IDLE and switches the heater off. Observers see
// the IDLE snapshot when a run was in progress.
func (o *Oven) Reset() {
	o.mu.Lock()
	wasRunning := o.state == Running
	o.resetLocked()
	status := o.statusLocked()
	o.mu.Unlock()
	o.heaterOff()
	if wasRunning {
		o.notify(status)
	}
}

func (o *Oven) notify(st models.OvenStatus) {
	for _, fn := range o.observers {
		fn(st)
	}
}

func (o *Oven) resetLocked() {
	o.state = Idle
	o.runID = ""
	o.profile = nil
	o.startedAt = time.Time{}
	o.runtime = 0
	o.target = 0
	o.heat = 0
	o.totalTime = 0
	o.pid = pid.New(o.cfg.Gains, o.clock)
	o.stalled = 0
	o.lastTemp = 0
}

// State returns a consistent snapshot of the controller.
func (o *Oven) State() models.OvenStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.statusLocked()
}

func (o *Oven) statusLocked() models.OvenStatus {
	temp := o.thermometer.Temperature()
	if !finite(temp) {
		temp = o.lastReading
	}
	st := models.OvenStatus{
		RunID:       o.runID,
		State:       string(o.state),
		Runtime:     o.runtime,
		Temperature: temp,
		Target:      o.target,
		Heat:        o.heat,
		TotalTime:   o.totalTime,
	}
	if o.profile != nil {
		st.Profile = o.profile.Name()
	}
	return st
}

// Run executes control periods until ctx is done, then switches the heater
// off.
func (o *Oven) Run(ctx context.Context) error {
	o.log.Infow("oven_loop_started", "time_step", o.cfg.TimeStep, "simulate", o.cfg.Simulate)
	defer o.heaterOff()
	for {
		rest := o.step(ctx)
		if err := o.clock.Sleep(ctx, rest); err != nil {
			o.log.Infow("oven_loop_stopped")
			return nil
		}
	}
}

// step runs one control period and returns how long to sleep before the
// next one.
func (o *Oven) step(ctx context.Context) time.Duration {
	period := o.cfg.TimeStep

	o.mu.Lock()
	if o.state != Running {
		o.mu.Unlock()
		return period
	}
	p := o.profile
	now := o.clock.Now()
	temp := o.thermometer.Temperature()

	if o.cfg.Simulate {
		o.runtime += o.cfg.RuntimeStep.Seconds()
	} else {
		o.runtime = now.Sub(o.startedAt).Seconds()
	}

	if !finite(temp) {
		// no usable reading: no heat, and the period counts as stalled
		o.log.Warnw("sensor_reading_invalid", "run_id", o.runID, "temperature", temp)
		o.heat = 0
		o.stalled++
		if o.stalled > RunawayLimit {
			return o.tripLocked(p, temp)
		}
		status := o.statusLocked()
		o.mu.Unlock()
		o.heaterOff()
		o.notify(status)
		return period
	}
	o.lastReading = temp
	o.target = p.Target(o.runtime, temp, now)

	output, err := o.pid.Compute(o.target, temp)
	if err != nil {
		o.log.Warnw("pid_sample_skipped", "run_id", o.runID, "error", err)
		output = 0
	}

	if output > 0 && temp == o.lastTemp {
		o.stalled++
	} else {
		o.stalled = 0
	}
	o.lastTemp = temp
	if o.stalled > RunawayLimit {
		return o.tripLocked(p, temp)
	}

	o.heat = clampDuty(output)
	runID := o.runID
	o.mu.Unlock()

	on, err := o.heater.Drive(ctx, output, period)
	if err != nil && ctx.Err() == nil {
		o.log.Errorw("heater_drive_failed", "run_id", runID, "error", err)
	}

	o.mu.Lock()
	if o.profile != p || o.runID != runID {
		// aborted or replaced while the heater was on
		o.mu.Unlock()
		return period - on
	}
	p.Advance(temp, o.clock.Now())
	o.totalTime = p.Duration()
	status := o.statusLocked()
	finished := p.Finished()
	var idle models.OvenStatus
	if finished {
		o.log.Infow("oven_run_completed",
			"run_id", runID,
			"profile", p.Name(),
			"runtime_s", o.runtime,
			"total_time_s", o.totalTime,
		)
		o.resetLocked()
		idle = o.statusLocked()
	}
	o.mu.Unlock()

	if finished {
		o.heaterOff()
	}
	o.notify(status)
	if finished {
		o.notify(idle)
	}
	if on <= 0 {
		return period
	}
	return period - on
}

// tripLocked aborts the run after the runaway limit. It is entered with
// o.mu held and releases it.
func (o *Oven) tripLocked(p schedule.Profile, temp float64) time.Duration {
	o.log.Errorw("thermal_runaway",
		"run_id", o.runID,
		"profile", p.Name(),
		"temperature", temp,
		"target", o.target,
		"stalled_periods", o.stalled,
	)
	o.resetLocked()
	status := o.statusLocked()
	o.mu.Unlock()
	o.heaterOff()
	o.notify(status)
	return o.cfg.TimeStep
}

func (o *Oven) heaterOff() {
	if err := o.heater.Off(); err != nil {
		o.log.Errorw("heater_off_failed", "error", err)
	}
}

func clampDuty(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
