package model

import "time"

// LogLevel tags the origin of a LogEntry.
type LogLevel string

const (
	LogLevelInfo   LogLevel = "info"
	LogLevelStdout LogLevel = "stdout"
	LogLevelStderr LogLevel = "stderr"
	LogLevelError  LogLevel = "error"
)

// LogEntry is one line of operator-facing run output.
type LogEntry struct {
	ID      int64     `json:"id"`
	TS      time.Time `json:"ts"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
}
