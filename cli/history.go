package cli

// This file contains the history command for listing previous run attempts
// from the persisted history store.

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/bennhub/playwright-command-center/config"
	"github.com/bennhub/playwright-command-center/export"
	"github.com/bennhub/playwright-command-center/history"
	"github.com/bennhub/playwright-command-center/model"
)

var errHistoryDisabled = errors.New("history persistence is disabled (history.database_path is empty)")

type historyFilter struct {
	Spec   string
	Failed bool
	Limit  int
}

func (a *App) history(ctx *cli.Context) error {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}

	attempts, err := loadAttempts(cfg)
	if err != nil {
		return err
	}

	filter := historyFilter{
		Spec:   ctx.String("spec"),
		Failed: ctx.Bool("failed"),
		Limit:  ctx.Int("limit"),
	}
	writeHistory(ctx.App.Writer, attempts, filter)
	return nil
}

// loadAttempts reads every persisted attempt, newest first. A database that
// does not exist yet yields no attempts.
func loadAttempts(cfg config.Config) ([]model.RunAttempt, error) {
	if cfg.History.DatabasePath == "" {
		return nil, errHistoryDisabled
	}
	path := cfg.Path(cfg.History.DatabasePath)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	store, err := history.OpenStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	attempts, err := store.Load(0)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return attempts, nil
}

func filterAttempts(attempts []model.RunAttempt, filter historyFilter) []model.RunAttempt {
	var out []model.RunAttempt
	for _, a := range attempts {
		if filter.Failed && a.Status != model.RunStatusFailed {
			continue
		}
		if filter.Spec != "" && !matchesSpec(a, filter.Spec) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func matchesSpec(a model.RunAttempt, substr string) bool {
	if strings.Contains(a.Spec, substr) {
		return true
	}
	for _, s := range a.Specs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

func writeHistory(w io.Writer, attempts []model.RunAttempt, filter historyFilter) {
	matched := filterAttempts(attempts, filter)
	if len(matched) == 0 {
		if filter.Spec != "" || filter.Failed {
			fmt.Fprintln(w, "No history entries found matching the filter")
		} else {
			fmt.Fprintln(w, "No history entries found")
		}
		return
	}

	display := matched
	if filter.Limit > 0 && filter.Limit < len(display) {
		display = display[:filter.Limit]
	}

	fmt.Fprintf(w, "\n=== History (%d total) ===\n\n", len(matched))
	for _, a := range display {
		fmt.Fprintf(w, "%s  %s  [%s]  %s  id=%d\n",
			statusMark(a.Status),
			a.StartedAt.Local().Format("2006-01-02 15:04:05"),
			export.FormatDuration(a.DurationMs),
			exitSummary(a),
			a.ID,
		)
		fmt.Fprintf(w, "   Spec: %s\n", a.Spec)
		fmt.Fprintf(w, "   Project: %s  Preset: %s\n", a.Project, a.PresetTitle)
		if a.Command != "" {
			fmt.Fprintf(w, "   Command: %s\n", a.Command)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "View an attempt: %s view <ID>\n", AppName)
}

func statusMark(status model.RunStatus) string {
	switch status {
	case model.RunStatusPassed:
		return "✓"
	case model.RunStatusFailed:
		return "✗"
	default:
		return "…"
	}
}

func exitSummary(a model.RunAttempt) string {
	switch {
	case a.Signal != nil:
		return "signal=" + *a.Signal
	case a.ExitCode != nil:
		return fmt.Sprintf("exit=%d", *a.ExitCode)
	default:
		return "running"
	}
}
