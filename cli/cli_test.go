package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"

	"github.com/bennhub/playwright-command-center/config"
	"github.com/bennhub/playwright-command-center/history"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := New()
	var buf bytes.Buffer
	app.cli.Writer = &buf
	err := app.Run(append([]string{AppName}, args...))
	return buf.String(), err
}

func seedHistory(t *testing.T, dir string) {
	t.Helper()
	store, err := history.OpenStore(filepath.Join(dir, ".pcc", "history.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(resolvedAttempt(1, "tests/specs/01-register-login.spec.ts", 0)))
	require.NoError(t, store.Save(resolvedAttempt(2, "tests/specs/02-add-payee.spec.ts", 1)))
}

func TestHistoryCommand(t *testing.T) {
	dir := t.TempDir()
	seedHistory(t, dir)

	out, err := runApp(t, "--project-dir", dir, "history")
	require.NoError(t, err)
	require.Contains(t, out, "=== History (2 total) ===")
	require.Contains(t, out, "tests/specs/02-add-payee.spec.ts")

	out, err = runApp(t, "--project-dir", dir, "history", "--failed")
	require.NoError(t, err)
	require.Contains(t, out, "=== History (1 total) ===")
	require.NotContains(t, out, "01-register-login")
}

func TestHistoryCommandWithoutDatabase(t *testing.T) {
	dir := t.TempDir()
	out, err := runApp(t, "--project-dir", dir, "history")
	require.NoError(t, err)
	require.Equal(t, "No history entries found\n", out)
	require.NoFileExists(t, filepath.Join(dir, ".pcc", "history.db"))
}

func TestViewCommand(t *testing.T) {
	dir := t.TempDir()
	seedHistory(t, dir)

	out, err := runApp(t, "--project-dir", dir, "view")
	require.NoError(t, err)
	require.Contains(t, out, "=== Run Attempt: 2 ===")
	require.Contains(t, out, "No artifacts found")

	out, err = runApp(t, "--project-dir", dir, "view", "-1")
	require.NoError(t, err)
	require.Contains(t, out, "=== Run Attempt: 1 ===")

	_, err = runApp(t, "--project-dir", dir, "view", "-5")
	require.ErrorContains(t, err, "out of range")

	_, err = runApp(t, "--project-dir", dir, "view", "1", "--open-trace")
	require.ErrorIs(t, err, errNoTrace)
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.DefaultConfigPath)

	_, err := runApp(t, "--project-dir", dir, "config", "init")
	require.NoError(t, err)
	require.FileExists(t, path)

	var written config.Config
	_, err = toml.DecodeFile(path, &written)
	require.NoError(t, err)
	require.Equal(t, config.DefaultConfig().Server.Port, written.Server.Port)

	_, err = runApp(t, "--project-dir", dir, "config", "init")
	require.ErrorContains(t, err, "already exists")

	require.NoError(t, os.WriteFile(path, []byte("# edited\n"), 0o644))
	_, err = runApp(t, "--project-dir", dir, "config", "init", "--force")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "# edited")
}

func TestSetVersion(t *testing.T) {
	app := New()
	app.SetVersion("1.2.0", "none", "unknown")
	require.Equal(t, "1.2.0", app.cli.Version)

	app.SetVersion("1.2.0", "0123456789abcdef", "2026-05-01")
	require.Equal(t, "1.2.0 (commit: 01234567, built: 2026-05-01)", app.cli.Version)
}
