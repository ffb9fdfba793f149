package model

import "time"

// Status is the payload of GET /api/status and of the status event.
type Status struct {
	Running bool         `json:"running"`
	Run     *RunSnapshot `json:"run"`
}

// RunSnapshot is the externally visible view of the active run.
type RunSnapshot struct {
	Spec              string        `json:"spec"`
	Project           string        `json:"project"`
	Presets           []string      `json:"presets"`
	ActivePresetTitle string        `json:"activePresetTitle"`
	ActiveCommand     string        `json:"activeCommand"`
	StartedAt         time.Time     `json:"startedAt"`
	PID               int           `json:"pid"`
	Stats             *ProcessStats `json:"stats,omitempty"`
}

// ProcessStats holds a point-in-time resource sample of the active subprocess.
type ProcessStats struct {
	CPUPercent float64 `json:"cpuPercent"`
	RSSBytes   uint64  `json:"rssBytes"`
}

// Ack is returned when a run request is accepted.
type Ack struct {
	OK            bool `json:"ok"`
	Queued        int  `json:"queued"`
	RunInProgress bool `json:"runInProgress"`
}
