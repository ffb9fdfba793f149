package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func TestRunAttemptResolve(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name       string
		resolution Resolution
		wantStatus RunStatus
	}{
		{
			name:       "exit zero passes",
			resolution: Resolution{EndedAt: start.Add(1500 * time.Millisecond), ExitCode: intPtr(0)},
			wantStatus: RunStatusPassed,
		},
		{
			name:       "non-zero exit fails",
			resolution: Resolution{EndedAt: start.Add(time.Second), ExitCode: intPtr(1)},
			wantStatus: RunStatusFailed,
		},
		{
			name:       "signal fails",
			resolution: Resolution{EndedAt: start.Add(time.Second), Signal: strPtr("SIGINT")},
			wantStatus: RunStatusFailed,
		},
		{
			name:       "exit zero with signal still fails",
			resolution: Resolution{EndedAt: start.Add(time.Second), ExitCode: intPtr(0), Signal: strPtr("SIGTERM")},
			wantStatus: RunStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := RunAttempt{ID: 1, StartedAt: start, Status: RunStatusRunning}
			a.Resolve(tt.resolution)

			require.Equal(t, tt.wantStatus, a.Status)
			require.NotNil(t, a.EndedAt)
			require.NotNil(t, a.DurationMs)
			require.Equal(t, tt.resolution.EndedAt.Sub(start).Milliseconds(), *a.DurationMs)
			require.Equal(t, tt.resolution.EndedAt.Sub(start).Truncate(time.Millisecond), a.Duration())
		})
	}
}

func TestCommandPresetEnvPairs(t *testing.T) {
	p := CommandPreset{Env: map[string]string{"PW_VIDEO": "on", "HEADLESS": "false"}}
	require.Equal(t, []string{"HEADLESS=false", "PW_VIDEO=on"}, p.EnvPairs())
	require.Empty(t, CommandPreset{}.EnvPairs())
}
