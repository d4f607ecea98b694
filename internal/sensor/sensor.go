// Package sensor provides the kiln's temperature sources: a poller around a
// hardware reader and a lumped thermal model used when no sensor is fitted.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"kiln_controller/internal/clock"
	"kiln_controller/internal/logger"

	"go.uber.org/atomic"
)

// ErrNonFinite marks a NaN or infinite reading, which thermocouple
// amplifiers report for an open circuit.
var ErrNonFinite = errors.New("non-finite temperature reading")

// Source publishes the most recent temperature reading.
type Source interface {
	Temperature() float64
	// Run updates the reading until ctx is done.
	Run(ctx context.Context) error
}

// Reader is a raw temperature read capability, e.g. a thermocouple bridge.
type Reader interface {
	ReadTemperature(ctx context.Context) (float64, error)
}

// HeatSource reports the fraction of the period the heater is driven, 0..1.
type HeatSource interface {
	Duty() float64
}

// Real polls a Reader once per interval. A failed read is logged and the
// previous value kept.
type Real struct {
	reader   Reader
	interval time.Duration
	clock    clock.Clock
	log      *logger.Logger

	temperature *atomic.Float64
	failures    *atomic.Uint64
}

// NewReal returns a poller reading from r every interval.
func NewReal(r Reader, interval time.Duration, clk clock.Clock, log *logger.Logger) *Real {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Real{
		reader:      r,
		interval:    interval,
		clock:       clk,
		log:         log,
		temperature: atomic.NewFloat64(0),
		failures:    atomic.NewUint64(0),
	}
}

func (s *Real) Temperature() float64 { return s.temperature.Load() }

// Failures is the number of failed reads since start.
func (s *Real) Failures() uint64 { return s.failures.Load() }

func (s *Real) Run(ctx context.Context) error {
	for {
		s.poll(ctx)
		if err := s.clock.Sleep(ctx, s.interval); err != nil {
			return nil
		}
	}
}

func (s *Real) poll(ctx context.Context) {
	v, err := s.reader.ReadTemperature(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.fail(err)
		return
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		s.fail(fmt.Errorf("%w: %v", ErrNonFinite, v))
		return
	}
	s.temperature.Store(v)
}

func (s *Real) fail(err error) {
	n := s.failures.Inc()
	s.log.Warnw("sensor_read_failed", "error", err, "failures", n, "kept", s.temperature.Load())
}
