package sensor

import (
	"context"
	"time"

	"kiln_controller/internal/clock"
	"kiln_controller/internal/logger"

	"go.uber.org/atomic"
)

// Params are the constants of the two-body thermal model: a heating element
// coupled to the kiln cavity, which in turn loses heat to the room.
type Params struct {
	TEnv  float64 // ambient temperature
	CHeat float64 // element heat capacity, J/K
	COven float64 // cavity heat capacity, J/K
	PHeat float64 // element power when on, W
	ROut  float64 // cavity to ambient resistance, K/W
	RHo   float64 // element to cavity resistance, K/W
}

// DefaultParams is a small electric kiln.
func DefaultParams() Params {
	return Params{
		TEnv:  25,
		CHeat: 100,
		COven: 2000,
		PHeat: 3500,
		ROut:  1.0,
		RHo:   0.1,
	}
}

// Simulated integrates the thermal model with explicit Euler steps, reading
// the heater duty from a HeatSource.
type Simulated struct {
	params   Params
	heat     HeatSource
	interval time.Duration
	clock    clock.Clock
	log      *logger.Logger

	element     *atomic.Float64 // written by Step only
	temperature *atomic.Float64
}

// NewSimulated starts both bodies at ambient temperature.
func NewSimulated(p Params, heat HeatSource, interval time.Duration, clk clock.Clock, log *logger.Logger) *Simulated {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Simulated{
		params:      p,
		heat:        heat,
		interval:    interval,
		clock:       clk,
		log:         log,
		element:     atomic.NewFloat64(p.TEnv),
		temperature: atomic.NewFloat64(p.TEnv),
	}
}

func (s *Simulated) Temperature() float64 { return s.temperature.Load() }

// ElementTemperature is the heating element's modelled temperature.
func (s *Simulated) ElementTemperature() float64 { return s.element.Load() }

// Step advances the model by dt seconds.
func (s *Simulated) Step(dt float64) float64 {
	p := s.params
	duty := 0.0
	if s.heat != nil {
		duty = clampUnit(s.heat.Duty())
	}
	t := s.temperature.Load()
	e := s.element.Load()

	// element heats up
	e += p.PHeat * dt * duty / p.CHeat

	// element -> cavity
	flow := (e - t) / p.RHo
	t += flow * dt / p.COven
	e -= flow * dt / p.CHeat

	// cavity -> room
	loss := (t - p.TEnv) / p.ROut
	t -= loss * dt / p.COven

	s.element.Store(e)
	s.temperature.Store(t)
	return t
}

func (s *Simulated) Run(ctx context.Context) error {
	s.log.Infow("thermal_simulation_started",
		"t_env", s.params.TEnv, "p_heat", s.params.PHeat, "interval", s.interval)
	for {
		if err := s.clock.Sleep(ctx, s.interval); err != nil {
			return nil
		}
		s.Step(s.interval.Seconds())
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
