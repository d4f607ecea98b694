package models

import "time"

// Schedule kinds accepted in the "type" field of a schedule document.
const (
	ScheduleWaypoint = "profile"
	ScheduleRampHold = "ramp-hold"
)

// ScheduleDocument is the stored/serialised form of a firing schedule.
//
// For "profile" each data row is [time_offset_seconds, temperature].
// For "ramp-hold" each row is [rate_per_hour, target_temperature, hold_minutes].
type ScheduleDocument struct {
	Name string      `json:"name" yaml:"name"`
	Type string      `json:"type" yaml:"type"`
	Data [][]float64 `json:"data" yaml:"data"`
}

// StoredSchedule is a schedule document as kept in the profile catalog.
type StoredSchedule struct {
	ScheduleDocument
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileDetail is a stored schedule plus what it looks like when run:
// nominal duration in seconds and [seconds, temperature] points for graphs.
type ProfileDetail struct {
	StoredSchedule
	Duration float64     `json:"duration"`
	Points   [][]float64 `json:"points"`
}
