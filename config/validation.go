package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bennhub/playwright-command-center/model"
)

type presetFile struct {
	ID          string            `toml:"id"`
	Title       string            `toml:"title"`
	Description string            `toml:"description"`
	Flags       []string          `toml:"flags"`
	Env         map[string]string `toml:"env"`
}

func (p presetFile) preset() model.CommandPreset {
	flags := p.Flags
	if flags == nil {
		flags = []string{}
	}
	env := p.Env
	if env == nil {
		env = map[string]string{}
	}
	title := p.Title
	if title == "" {
		title = p.ID
	}
	return model.CommandPreset{ID: p.ID, Title: title, Description: p.Description, Flags: flags, Env: env}
}

// Validate checks the configuration for semantic errors.
func Validate(cfg Config) error {
	var errs []string

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if strings.TrimSpace(cfg.Server.Host) == "" {
		errs = append(errs, "server.host must not be empty")
	}

	if _, err := cfg.Runner.Argv(); err != nil {
		errs = append(errs, fmt.Sprintf("runner.command: %v", err))
	}
	if cfg.Runner.SpecsDir == "" {
		errs = append(errs, "runner.specs_dir must not be empty")
	}
	if cfg.Runner.ResultsDir == "" {
		errs = append(errs, "runner.results_dir must not be empty")
	}
	if cfg.Runner.ReportDir == "" {
		errs = append(errs, "runner.report_dir must not be empty")
	}
	if d, err := time.ParseDuration(cfg.Runner.StopGrace); err != nil {
		errs = append(errs, fmt.Sprintf("runner.stop_grace: %v", err))
	} else if d < 0 {
		errs = append(errs, "runner.stop_grace cannot be negative")
	}

	if len(cfg.Projects.Names) == 0 {
		errs = append(errs, "projects.names must not be empty")
	} else if !cfg.HasProject(cfg.Projects.Default) {
		errs = append(errs, fmt.Sprintf("projects.default %q is not in projects.names", cfg.Projects.Default))
	}

	if len(cfg.Presets) == 0 {
		errs = append(errs, "presets must not be empty")
	}
	seen := make(map[string]bool, len(cfg.Presets))
	for i, p := range cfg.Presets {
		switch {
		case p.ID == "":
			errs = append(errs, fmt.Sprintf("presets[%d].id must not be empty", i))
		case p.ID == model.SuitePresetID:
			errs = append(errs, fmt.Sprintf("presets[%d].id %q is reserved", i, p.ID))
		case seen[p.ID]:
			errs = append(errs, fmt.Sprintf("presets[%d].id %q is duplicated", i, p.ID))
		}
		seen[p.ID] = true
	}

	if cfg.History.Capacity <= 0 {
		errs = append(errs, "history.capacity must be > 0")
	}
	if cfg.Logs.Capacity <= 0 {
		errs = append(errs, "logs.capacity must be > 0")
	}

	if cfg.Center.Retries < 0 {
		errs = append(errs, "center.retries cannot be negative")
	}
	for i, g := range cfg.Center.Groups {
		if g.Name == "" || len(g.Specs) == 0 {
			errs = append(errs, fmt.Sprintf("center.groups[%d] needs a name and at least one spec", i))
		}
	}

	if len(errs) > 0 {
		return errors.New("invalid config: " + strings.Join(errs, "; "))
	}
	return nil
}
