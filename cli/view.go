package cli

// This file contains the view command for displaying one run attempt and
// the artifacts recorded for its spec.

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/bennhub/playwright-command-center/artifacts"
	"github.com/bennhub/playwright-command-center/config"
	"github.com/bennhub/playwright-command-center/export"
	"github.com/bennhub/playwright-command-center/model"
)

const openTraceFlag = "--open-trace"

var errNoTrace = errors.New("no trace recorded for this attempt")

// parseViewArgs splits the raw arguments into the attempt selector and
// options. Flag parsing is skipped for this command so that negative indexes
// are not mistaken for flags.
func parseViewArgs(in []string) (selector string, openTrace bool, err error) {
	selector = "0"
	seen := false
	for _, arg := range in {
		switch {
		case arg == "--":
			continue
		case arg == openTraceFlag || arg == "-open-trace":
			openTrace = true
		case !seen:
			selector = arg
			seen = true
		default:
			return "", false, fmt.Errorf("unexpected argument: %s", arg)
		}
	}
	return selector, openTrace, nil
}

// selectAttempt picks an attempt from a newest-first list: 0 is the latest,
// -N counts back from it, a positive number is an attempt id.
func selectAttempt(attempts []model.RunAttempt, selector string) (model.RunAttempt, error) {
	if len(attempts) == 0 {
		return model.RunAttempt{}, fmt.Errorf("no history entries found")
	}

	n, err := strconv.ParseInt(selector, 10, 64)
	if err != nil {
		return model.RunAttempt{}, fmt.Errorf("invalid selector: %s (use 0 for the latest attempt, -1 for the one before, or an attempt id)", selector)
	}

	if n <= 0 {
		index := int(-n)
		if index >= len(attempts) {
			return model.RunAttempt{}, fmt.Errorf("index %s out of range (only %d history entries)", selector, len(attempts))
		}
		return attempts[index], nil
	}

	for _, a := range attempts {
		if a.ID == n {
			return a, nil
		}
	}
	return model.RunAttempt{}, fmt.Errorf("no history entry found with id %d", n)
}

func (a *App) view(ctx *cli.Context) error {
	selector, openTrace, err := parseViewArgs(ctx.Args().Slice())
	if err != nil {
		return err
	}

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}

	attempts, err := loadAttempts(cfg)
	if err != nil {
		return err
	}
	attempt, err := selectAttempt(attempts, selector)
	if err != nil {
		return err
	}

	locator := artifacts.NewLocator(a.logger, cfg.Path(cfg.Runner.ResultsDir), cfg.Path(cfg.Runner.ReportDir), cfg.Runner.SpecSuffix)
	found := findArtifacts(locator, attempt)
	displayAttempt(ctx.App.Writer, attempt, found)

	if !openTrace {
		return nil
	}
	if found.Trace == "" {
		return errNoTrace
	}
	return a.openTrace(cfg, found.Trace)
}

type attemptArtifacts struct {
	Video  string
	Trace  string
	Report string
}

// findArtifacts returns the newest video and trace for the attempt's spec.
// Suite attempts use the first spec that has each artifact.
func findArtifacts(locator *artifacts.Locator, attempt model.RunAttempt) attemptArtifacts {
	specList := attempt.Specs
	if len(specList) == 0 {
		specList = []string{attempt.Spec}
	}

	var out attemptArtifacts
	for _, spec := range specList {
		if out.Video == "" {
			if p, ok := locator.LatestVideo(spec); ok {
				out.Video = p
			}
		}
		if out.Trace == "" {
			if p, ok := locator.LatestTrace(spec); ok {
				out.Trace = p
			}
		}
	}
	if locator.ReportAvailable() {
		out.Report = locator.ReportDir()
	}
	return out
}

func displayAttempt(w io.Writer, a model.RunAttempt, found attemptArtifacts) {
	fmt.Fprintf(w, "=== Run Attempt: %d ===\n", a.ID)
	fmt.Fprintf(w, "Spec: %s\n", a.Spec)
	for _, s := range a.Specs {
		fmt.Fprintf(w, "  - %s\n", s)
	}
	fmt.Fprintf(w, "Project: %s\n", a.Project)
	fmt.Fprintf(w, "Preset: %s (%s)\n", a.PresetTitle, a.PresetID)
	fmt.Fprintf(w, "Status: %s %s\n", statusMark(a.Status), a.Status)
	fmt.Fprintf(w, "Time: %s\n", a.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Duration: %s\n", export.FormatDuration(a.DurationMs))
	fmt.Fprintf(w, "Result: %s\n", exitSummary(a))
	if a.Command != "" {
		fmt.Fprintf(w, "Command: %s\n", a.Command)
	}
	fmt.Fprintln(w)

	if found.Video == "" && found.Trace == "" && found.Report == "" {
		fmt.Fprintln(w, "No artifacts found")
		return
	}
	if found.Video != "" {
		fmt.Fprintf(w, "Video: %s\n", found.Video)
	}
	if found.Trace != "" {
		fmt.Fprintf(w, "Trace: %s\n", found.Trace)
	}
	if found.Report != "" {
		fmt.Fprintf(w, "Report: %s\n", found.Report)
	}
}

func (a *App) openTrace(cfg config.Config, trace string) error {
	runner, err := cfg.Runner.Argv()
	if err != nil {
		return err
	}
	args := append(append([]string{}, runner[1:]...), "show-trace", trace)

	a.logger.Info().Str("trace", trace).Msg("Opening trace viewer")
	cmd := exec.Command(runner[0], args...)
	cmd.Dir = cfg.Root
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to run trace viewer: %w", err)
	}
	return nil
}
