package schedule

import (
	"fmt"
	"time"

	"kiln_controller/internal/models"
)

// segment is the time spent reaching a waypoint and the waypoint's temperature.
type segment struct {
	duration float64
	temp     float64
}

// Waypoint follows (time, temperature) points with linear interpolation.
// When a segment's time is up but the kiln has not reached the next
// waypoint, the target is held there and the wait is counted as overtime.
type Waypoint struct {
	name string
	rows [][]float64

	segments []segment // segments[0] is the implicit origin

	nominal float64

	current         int
	running         bool
	lastStateChange float64
	overtime        float64 // current segment
	overtimeTotal   float64 // completed segments
}

// NewWaypoint builds a waypoint schedule from [time_offset, temperature] rows.
// An origin at (0, 0) is implied; offsets must be non-decreasing.
func NewWaypoint(name string, rows [][]float64) (*Waypoint, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: profile %q has no waypoints", ErrMalformed, name)
	}

	points := [][2]float64{{0, 0}}
	for i, r := range rows {
		if len(r) != 2 {
			return nil, fmt.Errorf("%w: waypoint %d: want [time, temperature], got %d values", ErrMalformed, i, len(r))
		}
		if !finite(r[0], r[1]) {
			return nil, fmt.Errorf("%w: waypoint %d: non-finite value", ErrMalformed, i)
		}
		if r[0] < 0 {
			return nil, fmt.Errorf("%w: waypoint %d: negative time offset %.1f", ErrMalformed, i, r[0])
		}
		prev := points[len(points)-1]
		if r[0] < prev[0] {
			return nil, fmt.Errorf("%w: waypoint %d: time offsets must be ascending (%.1f after %.1f)", ErrMalformed, i, r[0], prev[0])
		}
		if i == 0 && r[0] == 0 && r[1] == 0 {
			continue // same point as the implicit origin
		}
		points = append(points, [2]float64{r[0], r[1]})
	}
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: profile %q has no waypoint after the origin", ErrMalformed, name)
	}

	segments := make([]segment, len(points))
	for i := 1; i < len(points); i++ {
		segments[i] = segment{duration: points[i][0] - points[i-1][0], temp: points[i][1]}
	}

	w := &Waypoint{
		name:     name,
		rows:     copyRows(rows),
		segments: segments,
		nominal:  points[len(points)-1][0],
	}
	w.rewind()
	return w, nil
}

func (w *Waypoint) Name() string { return w.name }
func (w *Waypoint) Kind() string { return models.ScheduleWaypoint }

func (w *Waypoint) Start(time.Time) { w.rewind() }

func (w *Waypoint) rewind() {
	w.current = 1
	w.running = true
	w.lastStateChange = 0
	w.overtime = 0
	w.overtimeTotal = 0
}

// Target returns the setpoint at elapsed seconds into the run.
func (w *Waypoint) Target(elapsed, temperature float64, _ time.Time) float64 {
	if w.current >= len(w.segments) {
		return w.segments[len(w.segments)-1].temp
	}

	relative := elapsed - w.lastStateChange
	next := w.segments[w.current]
	if relative < next.duration {
		return w.interpolate(relative)
	}

	if !w.reached(temperature) {
		w.overtime = relative - next.duration
		return next.temp
	}

	w.current++
	w.lastStateChange = elapsed
	w.overtimeTotal += w.overtime
	w.overtime = 0

	if w.current >= len(w.segments) {
		w.running = false
		return w.segments[len(w.segments)-1].temp
	}
	return w.interpolate(0)
}

// Advance is a no-op: waypoint segments move forward inside Target.
func (w *Waypoint) Advance(float64, time.Time) {}

func (w *Waypoint) Finished() bool { return !w.running }

func (w *Waypoint) Duration() float64 { return w.nominal + w.Overtime() }

// Overtime is the total time spent waiting for the kiln to reach waypoints.
func (w *Waypoint) Overtime() float64 { return w.overtimeTotal + w.overtime }

// Segment returns the 1-based index of the segment being followed.
func (w *Waypoint) Segment() int { return w.current }

func (w *Waypoint) Document() models.ScheduleDocument {
	return models.ScheduleDocument{Name: w.name, Type: models.ScheduleWaypoint, Data: copyRows(w.rows)}
}

// Points returns the waypoints including the implicit origin, using nominal
// segment times.
func (w *Waypoint) Points() [][]float64 {
	out := make([][]float64, 0, len(w.segments))
	t := 0.0
	for _, s := range w.segments {
		t += s.duration
		out = append(out, []float64{t, s.temp})
	}
	return out
}

func (w *Waypoint) interpolate(relative float64) float64 {
	prev, next := w.segments[w.current-1], w.segments[w.current]
	if next.duration == 0 {
		return next.temp
	}
	slope := (next.temp - prev.temp) / next.duration
	return prev.temp + relative*slope
}

// reached reports whether the measurement has met the next waypoint in the
// direction of travel. Flat segments are always reached.
func (w *Waypoint) reached(temperature float64) bool {
	prev, next := w.segments[w.current-1], w.segments[w.current]
	switch {
	case prev.temp < next.temp:
		return temperature >= next.temp
	case prev.temp > next.temp:
		return temperature <= next.temp
	default:
		return true
	}
}
