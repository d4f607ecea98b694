package schedule

import (
	"fmt"
	"math"
	"time"

	"kiln_controller/internal/models"
)

const (
	// MaxSegments is the largest ramp/hold schedule accepted.
	MaxSegments = 20
	// TempRange is how close the kiln must get to a segment target before
	// the hold phase starts, in degrees.
	TempRange = 2.0
	// TargetInterval is the minimum time between two setpoint recalculations.
	TargetInterval = 2500 * time.Millisecond
)

// Phase is the part of a ramp/hold segment being executed.
type Phase int

const (
	PhaseRamp Phase = iota
	PhaseHold
)

func (p Phase) String() string {
	if p == PhaseHold {
		return "hold"
	}
	return "ramp"
}

type rampSegment struct {
	rate float64 // degrees per hour, signed in the direction of travel
	temp float64
	hold time.Duration
}

// RampHold is a segment-based schedule: every segment ramps at a fixed rate
// towards its target temperature, then holds there for a number of minutes.
type RampHold struct {
	name     string
	rows     [][]float64
	segments []rampSegment
	ambient  float64
	nominal  float64

	segment   int // 1-based
	phase     Phase
	rampStart time.Time
	holdStart time.Time
	running   bool

	target     float64
	targetAt   time.Time
	haveTarget bool

	overtime float64 // completed ramps
	rampOver float64 // ramp in progress
}

// NewRampHold builds a ramp/hold schedule from [rate_per_hour, target,
// hold_minutes] rows. Rates are stored signed: negative when a segment's
// target is below the previous one.
func NewRampHold(name string, rows [][]float64, scale Scale) (*RampHold, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: profile %q has no segments", ErrMalformed, name)
	}
	if len(rows) > MaxSegments {
		return nil, fmt.Errorf("%w: profile %q has %d segments, at most %d allowed", ErrMalformed, name, len(rows), MaxSegments)
	}
	if !scale.Valid() {
		return nil, fmt.Errorf("%w: unknown temperature scale %q", ErrMalformed, scale)
	}

	segments := make([]rampSegment, len(rows))
	for i, r := range rows {
		if len(r) != 3 {
			return nil, fmt.Errorf("%w: segment %d: want [rate, temperature, hold], got %d values", ErrMalformed, i+1, len(r))
		}
		if !finite(r...) {
			return nil, fmt.Errorf("%w: segment %d: non-finite value", ErrMalformed, i+1)
		}
		if r[0] == 0 {
			return nil, fmt.Errorf("%w: segment %d: ramp rate must not be zero", ErrMalformed, i+1)
		}
		if r[2] < 0 {
			return nil, fmt.Errorf("%w: segment %d: negative hold time", ErrMalformed, i+1)
		}
		rate := math.Abs(r[0])
		if i > 0 && r[1] < rows[i-1][1] {
			rate = -rate
		}
		segments[i] = rampSegment{
			rate: rate,
			temp: r[1],
			hold: time.Duration(r[2] * float64(time.Minute)),
		}
	}

	p := &RampHold{
		name:     name,
		rows:     copyRows(rows),
		segments: segments,
		ambient:  scale.Ambient(),
	}
	for i := range segments {
		p.nominal += p.rampSeconds(i) + segments[i].hold.Seconds()
	}
	p.rewind(time.Time{})
	return p, nil
}

func (p *RampHold) Name() string { return p.name }
func (p *RampHold) Kind() string { return models.ScheduleRampHold }

func (p *RampHold) Start(now time.Time) { p.rewind(now) }

func (p *RampHold) rewind(now time.Time) {
	p.segment = 1
	p.phase = PhaseRamp
	p.rampStart = now
	p.holdStart = time.Time{}
	p.running = true
	p.haveTarget = false
	p.overtime = 0
	p.rampOver = 0
}

// Target returns the ramp setpoint. It is recalculated at most once per
// TargetInterval unless the segment or phase changed in between.
func (p *RampHold) Target(_, _ float64, now time.Time) float64 {
	if p.haveTarget && now.Sub(p.targetAt) < TargetInterval {
		return p.target
	}
	p.target = p.compute(now)
	p.targetAt = now
	p.haveTarget = true
	return p.target
}

func (p *RampHold) compute(now time.Time) float64 {
	if p.segment > len(p.segments) {
		return p.segments[len(p.segments)-1].temp
	}
	seg := p.segments[p.segment-1]
	if p.phase == PhaseHold {
		return seg.temp
	}

	hours := now.Sub(p.rampStart).Hours()
	candidate := p.baseline(p.segment-1) + seg.rate*hours
	if seg.rate >= 0 && candidate >= seg.temp {
		return seg.temp
	}
	if seg.rate < 0 && candidate <= seg.temp {
		return seg.temp
	}
	return candidate
}

// Advance runs the segment state machine once: ramp to hold inside the
// TempRange band, hold to the next segment once the hold time elapsed.
func (p *RampHold) Advance(temperature float64, now time.Time) {
	if !p.running {
		return
	}
	idx := p.segment - 1
	seg := p.segments[idx]

	if p.phase == PhaseRamp {
		ramped := now.Sub(p.rampStart).Seconds()
		p.rampOver = math.Max(0, ramped-p.rampSeconds(idx))

		if (seg.rate < 0 && temperature <= seg.temp+TempRange) ||
			(seg.rate >= 0 && temperature >= seg.temp-TempRange) {
			p.phase = PhaseHold
			p.holdStart = now
			p.overtime += p.rampOver
			p.rampOver = 0
			p.haveTarget = false
		}
	}

	if p.phase == PhaseHold && now.Sub(p.holdStart) >= seg.hold {
		p.segment++
		p.phase = PhaseRamp
		p.rampStart = now
		p.haveTarget = false
	}

	if p.segment > len(p.segments) {
		p.running = false
	}
}

func (p *RampHold) Finished() bool { return !p.running }

func (p *RampHold) Duration() float64 { return p.nominal + p.Overtime() }

// Overtime is the time spent ramping beyond the nominal ramp times, seconds.
func (p *RampHold) Overtime() float64 { return p.overtime + p.rampOver }

// Segment returns the 1-based segment number and its phase.
func (p *RampHold) Segment() (int, Phase) { return p.segment, p.phase }

// Rates returns the signed ramp rates in degrees per hour.
func (p *RampHold) Rates() []float64 {
	out := make([]float64, len(p.segments))
	for i, s := range p.segments {
		out[i] = s.rate
	}
	return out
}

func (p *RampHold) Document() models.ScheduleDocument {
	return models.ScheduleDocument{Name: p.name, Type: models.ScheduleRampHold, Data: copyRows(p.rows)}
}

// Projection converts the schedule into [seconds, temperature] points using
// nominal ramp times, starting at ambient.
func (p *RampHold) Projection() [][]float64 {
	points := [][]float64{{0, p.ambient}}
	t := 0.0
	for i, s := range p.segments {
		t += p.rampSeconds(i)
		points = append(points, []float64{t, s.temp})
		if s.hold > 0 {
			t += s.hold.Seconds()
			points = append(points, []float64{t, s.temp})
		}
	}
	return points
}

func (p *RampHold) baseline(idx int) float64 {
	if idx == 0 {
		return p.ambient
	}
	return p.segments[idx-1].temp
}

// rampSeconds is the nominal time segment idx needs to reach its target.
func (p *RampHold) rampSeconds(idx int) float64 {
	s := p.segments[idx]
	return math.Abs(s.temp-p.baseline(idx)) / math.Abs(s.rate) * 3600
}
