package model

import "time"

// RunStatus is the lifecycle state of a single RunAttempt.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusPassed  RunStatus = "passed"
	RunStatusFailed  RunStatus = "failed"
)

// SuitePresetID marks attempts created by a suite run rather than a preset chain.
const SuitePresetID = "suite"

// RunAttempt represents one test-runner subprocess invocation and its outcome.
// It is created with status running and resolved exactly once.
type RunAttempt struct {
	// Monotonic identifier, unique for the lifetime of the history store
	ID int64 `json:"id"`
	// Spec path, or "N selected specs" for a suite run
	Spec string `json:"spec"`
	// Spec paths covered by a suite run (empty for preset runs)
	Specs []string `json:"specs,omitempty"`
	// Browser/device project name
	Project string `json:"project"`
	// Preset used for this invocation
	PresetID    string `json:"presetId"`
	PresetTitle string `json:"presetTitle"`
	// Fully expanded invocation, environment overlay included
	Command string `json:"command"`
	// Wall-clock start and end of the subprocess
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt"`
	// Duration in milliseconds, set once the attempt resolves
	DurationMs *int64    `json:"durationMs"`
	Status     RunStatus `json:"status"`
	// Exit code of the subprocess (nil while running or when terminated by a signal)
	ExitCode *int `json:"exitCode"`
	// Name of the terminating signal, if any
	Signal *string `json:"signal"`
}

// Resolution carries the fields written when an attempt finishes.
type Resolution struct {
	EndedAt  time.Time
	ExitCode *int
	Signal   *string
}

// Resolve applies r to the attempt: the status is derived from the exit code
// (0 passes, anything else including a signal fails).
func (a *RunAttempt) Resolve(r Resolution) {
	ended := r.EndedAt
	duration := ended.Sub(a.StartedAt).Milliseconds()
	a.EndedAt = &ended
	a.DurationMs = &duration
	a.ExitCode = r.ExitCode
	a.Signal = r.Signal
	if r.Signal == nil && r.ExitCode != nil && *r.ExitCode == 0 {
		a.Status = RunStatusPassed
	} else {
		a.Status = RunStatusFailed
	}
}

// Duration returns the recorded duration, or zero while running.
func (a RunAttempt) Duration() time.Duration {
	if a.DurationMs == nil {
		return 0
	}
	return time.Duration(*a.DurationMs) * time.Millisecond
}

// HistorySnapshot is the payload of GET /api/history and of the history event.
type HistorySnapshot struct {
	History    []RunAttempt `json:"history"`
	LastFailed *RunAttempt  `json:"lastFailed"`
}
