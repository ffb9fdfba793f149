package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/bennhub/playwright-command-center/model"
	"github.com/stretchr/testify/require"
)

func ms(v int64) *int64 { return &v }

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   *int64
		want string
	}{
		{nil, "-"},
		{ms(250), "250ms"},
		{ms(1500), "1.5s"},
		{ms(125000), "2m 5s"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, FormatDuration(tt.in))
		})
	}
}

func TestRender(t *testing.T) {
	start := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	code := 1
	failed := model.RunAttempt{
		ID: 2, Spec: "tests/specs/05-bill-pay.spec.ts", Project: "chromium",
		PresetID: "headed", PresetTitle: "Headed", StartedAt: start,
		Command: `HEADLESS=false npx playwright test tests/specs/05-bill-pay.spec.ts --grep '<script>'`,
	}
	failed.Resolve(model.Resolution{EndedAt: start.Add(3 * time.Second), ExitCode: &code})
	running := model.RunAttempt{ID: 3, Spec: "2 selected specs", Project: "chromium", PresetTitle: "Suite", StartedAt: start, Status: model.RunStatusRunning}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, model.HistorySnapshot{
		History:    []model.RunAttempt{running, failed},
		LastFailed: &failed,
	}, start))

	page := buf.String()
	require.Contains(t, page, "<title>Playwright Run History</title>")
	require.Contains(t, page, `<div class="value failed">1</div>`)
	require.Contains(t, page, `<div class="value running">1</div>`)
	require.Contains(t, page, "Last failed:</strong> #2 tests/specs/05-bill-pay.spec.ts")
	require.Contains(t, page, "3.0s")
	require.Contains(t, page, "&lt;script&gt;")
	require.NotContains(t, page, "<script>")
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, model.HistorySnapshot{}, time.Now()))
	require.Contains(t, buf.String(), "No runs recorded yet.")
}
