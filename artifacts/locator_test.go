package artifacts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"01-register-login", "01-register-login"},
		{"Register Login", "register-login"},
		{"__a..b__", "a-b"},
		{"test-results/01-register-login-Bank-flow-chromium-retry1/video.webm", "test-results-01-register-login-bank-flow-chromium-retry1-video-webm"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestSpecKey(t *testing.T) {
	l := NewLocator(zerolog.Nop(), "", "", ".spec.ts")
	require.Equal(t, "01-register-login", l.SpecKey("tests/specs/01-register-login.spec.ts"))
	require.Equal(t, "04-transfer-funds", l.SpecKey("04_Transfer Funds.spec.ts"))
}

func TestLatestPicksNewestMatch(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	older := filepath.Join(root, "a", "b-trace.zip")
	newer := filepath.Join(root, "a", "c-trace.zip")
	writeFile(t, newer, now)
	writeFile(t, older, now.Add(-time.Hour))

	l := NewLocator(zerolog.Nop(), root, "", ".spec.ts")
	got, ok := l.Latest(Query{Extension: TraceExtension, NameContains: TraceName, SpecKey: "a"})
	require.True(t, ok)
	require.Equal(t, newer, got)
}

func TestLatestTieBreakIsWalkOrder(t *testing.T) {
	root := t.TempDir()
	stamp := time.Now().Truncate(time.Second)
	writeFile(t, filepath.Join(root, "spec-b", "video.webm"), stamp)
	writeFile(t, filepath.Join(root, "spec-a", "video.webm"), stamp)

	l := NewLocator(zerolog.Nop(), root, "", "")
	got, ok := l.LatestAny(VideoExtension)
	require.True(t, ok)
	require.Equal(t, filepath.Join(root, "spec-a", "video.webm"), got)
}

func TestLatestVideoAndTraceBySpec(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeFile(t, filepath.Join(root, "01-register-login-Bank-chromium", "video.webm"), now.Add(-time.Minute))
	writeFile(t, filepath.Join(root, "01-register-login-Bank-chromium", "trace.zip"), now.Add(-time.Minute))
	writeFile(t, filepath.Join(root, "05-bill-pay-Pay-bill-chromium", "video.webm"), now)
	writeFile(t, filepath.Join(root, "05-bill-pay-Pay-bill-chromium", "attachments.zip"), now)

	l := NewLocator(zerolog.Nop(), root, "", ".spec.ts")

	video, ok := l.LatestVideo("tests/specs/01-register-login.spec.ts")
	require.True(t, ok)
	require.Contains(t, video, "01-register-login")

	_, ok = l.LatestTrace("tests/specs/05-bill-pay.spec.ts")
	require.False(t, ok, "zip without trace in its name is not a trace")

	_, ok = l.LatestVideo("tests/specs/03-open-account.spec.ts")
	require.False(t, ok)

	latest, ok := l.LatestAny(VideoExtension)
	require.True(t, ok)
	require.Contains(t, latest, "05-bill-pay")
}

func TestLatestMissingTree(t *testing.T) {
	l := NewLocator(zerolog.Nop(), filepath.Join(t.TempDir(), "absent"), filepath.Join(t.TempDir(), "absent"), ".spec.ts")
	_, ok := l.LatestVideo("tests/specs/01-register-login.spec.ts")
	require.False(t, ok)
	require.False(t, l.ReportAvailable())
}

func TestReportAvailable(t *testing.T) {
	report := t.TempDir()
	l := NewLocator(zerolog.Nop(), "", report, "")
	require.False(t, l.ReportAvailable())

	writeFile(t, filepath.Join(report, ReportIndex), time.Now())
	require.True(t, l.ReportAvailable())
}

func TestSpecKeyIgnoresDirectoriesAboveResultsRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "login-checkout", "test-results")
	writeFile(t, filepath.Join(root, "05-bill-pay-chromium", "video.webm"), time.Now())
	writeFile(t, filepath.Join(root, "05-bill-pay-chromium", "trace.zip"), time.Now())

	l := NewLocator(zerolog.Nop(), root, "", ".spec.ts")

	_, ok := l.LatestVideo("tests/specs/login.spec.ts")
	require.False(t, ok, "a parent directory name must not match the spec key")
	_, ok = l.LatestTrace("tests/specs/checkout.spec.ts")
	require.False(t, ok)

	video, ok := l.LatestVideo("tests/specs/05-bill-pay.spec.ts")
	require.True(t, ok)
	require.Equal(t, filepath.Join(root, "05-bill-pay-chromium", "video.webm"), video)
}
