package models

// Backlog is what a status client missed before it connected: the snapshots
// recorded since the active run started, oldest first. Both fields are empty
// while the oven is idle.
type Backlog struct {
	Profile string       `json:"profile,omitempty"`
	Log     []OvenStatus `json:"log"`
}

// UIConfig are the display settings a dashboard needs to render the run.
type UIConfig struct {
	TempScale        string  `json:"temp_scale"`         // c | f
	TimeScaleSlope   string  `json:"time_scale_slope"`   // s | m | h
	TimeScaleProfile string  `json:"time_scale_profile"` // s | m | h
	KWhRate          float64 `json:"kwh_rate"`
	CurrencyType     string  `json:"currency_type"`
}
