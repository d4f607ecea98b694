package models

// OvenStatus is a point-in-time snapshot of the oven controller.
type OvenStatus struct {
	RunID       string  `json:"run_id,omitempty"`
	Profile     string  `json:"profile,omitempty"`
	State       string  `json:"state"`       // IDLE | RUNNING
	Runtime     float64 `json:"runtime"`     // seconds since the run started
	Temperature float64 `json:"temperature"` // latest sensor reading
	Target      float64 `json:"target"`      // last computed setpoint
	Heat        float64 `json:"heat"`        // actuator duty, 0..1
	TotalTime   float64 `json:"totaltime"`   // schedule duration incl. overtime, seconds
}
