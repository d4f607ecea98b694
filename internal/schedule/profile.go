// Package schedule holds the firing-schedule engine. A schedule document is
// parsed into a Profile, either a waypoint-interpolated "profile" or a
// segment-based "ramp-hold" schedule, which the oven loop queries for its
// setpoint and advances once per control period.
package schedule

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"kiln_controller/internal/models"

	"gopkg.in/yaml.v3"
)

// ErrMalformed wraps every schedule document validation failure.
var ErrMalformed = errors.New("malformed schedule")

// Profile is a firing schedule together with its runtime cursor.
type Profile interface {
	Name() string
	Kind() string

	// Start rewinds the cursor; called when a run begins.
	Start(now time.Time)
	// Target returns the setpoint for the given run time (seconds) and
	// measured temperature. Waypoint schedules advance segments here.
	Target(elapsed, temperature float64, now time.Time) float64
	// Advance moves phase/segment state forward once per control period.
	Advance(temperature float64, now time.Time)
	Finished() bool
	// Duration is the nominal schedule length plus accumulated overtime, seconds.
	Duration() float64

	Document() models.ScheduleDocument
}

// Scale is the temperature unit system the kiln runs in.
type Scale string

const (
	Celsius    Scale = "c"
	Fahrenheit Scale = "f"
)

// Ambient is the room temperature assumed before the first ramp.
func (s Scale) Ambient() float64 {
	if s == Fahrenheit {
		return 75
	}
	return 24
}

// Valid reports whether s is a known scale.
func (s Scale) Valid() bool {
	return s == Celsius || s == Fahrenheit
}

// Parse validates doc and builds the matching Profile. Nothing is returned
// unless the whole document is valid.
func Parse(doc models.ScheduleDocument, scale Scale) (Profile, error) {
	name := strings.TrimSpace(doc.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrMalformed)
	}
	switch doc.Type {
	case models.ScheduleWaypoint:
		return NewWaypoint(name, doc.Data)
	case models.ScheduleRampHold:
		return NewRampHold(name, doc.Data, scale)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, doc.Type)
	}
}

// DecodeDocument reads a schedule document in JSON or YAML form.
func DecodeDocument(raw []byte) (models.ScheduleDocument, error) {
	var doc models.ScheduleDocument
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&doc); err != nil {
		return models.ScheduleDocument{}, fmt.Errorf("%w: decode: %v", ErrMalformed, err)
	}
	return doc, nil
}

// ParseFile loads and validates a schedule document from disk.
func ParseFile(path string, scale Scale) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule %q: %w", path, err)
	}
	doc, err := DecodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", path, err)
	}
	return Parse(doc, scale)
}

func copyRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
