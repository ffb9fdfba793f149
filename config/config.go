// Package config loads the command center configuration.
// Precedence: defaults < config file (.pcc/config.toml) < env < flags.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/bennhub/playwright-command-center/model"
	"github.com/mattn/go-shellwords"
)

type Config struct {
	Server   ServerConfig          `toml:"server" mapstructure:"server"`
	Runner   RunnerConfig          `toml:"runner" mapstructure:"runner"`
	Projects ProjectsConfig        `toml:"projects" mapstructure:"projects"`
	History  HistoryConfig         `toml:"history" mapstructure:"history"`
	Logs     LogsConfig            `toml:"logs" mapstructure:"logs"`
	Center   CenterConfig          `toml:"center" mapstructure:"center"`
	Presets  []model.CommandPreset `toml:"presets" mapstructure:"-"`

	// Root is the project directory every relative path is resolved against.
	Root string `toml:"-" mapstructure:"-"`
}

type ServerConfig struct {
	Host      string `toml:"host" mapstructure:"host"`
	Port      int    `toml:"port" mapstructure:"port"`
	StaticDir string `toml:"static_dir" mapstructure:"static_dir"`
}

type RunnerConfig struct {
	// Command is split into argv with shell quoting rules, e.g. "npx playwright".
	Command        string `toml:"command" mapstructure:"command"`
	SpecsDir       string `toml:"specs_dir" mapstructure:"specs_dir"`
	SpecSuffix     string `toml:"spec_suffix" mapstructure:"spec_suffix"`
	ResultsDir     string `toml:"results_dir" mapstructure:"results_dir"`
	ReportDir      string `toml:"report_dir" mapstructure:"report_dir"`
	TraceViewerURL string `toml:"trace_viewer_url" mapstructure:"trace_viewer_url"`
	// StopGrace is how long a stopped run may take to exit before it is killed.
	// "0" disables escalation.
	StopGrace string `toml:"stop_grace" mapstructure:"stop_grace"`
}

type ProjectsConfig struct {
	Names   []string `toml:"names" mapstructure:"names"`
	Default string   `toml:"default" mapstructure:"default"`
}

type HistoryConfig struct {
	Capacity int `toml:"capacity" mapstructure:"capacity"`
	// Empty keeps history in memory only.
	DatabasePath string `toml:"database_path" mapstructure:"database_path"`
}

type LogsConfig struct {
	Capacity int `toml:"capacity" mapstructure:"capacity"`
}

type CenterConfig struct {
	Projects []string      `toml:"projects" mapstructure:"projects"`
	Retries  int           `toml:"retries" mapstructure:"retries"`
	Groups   []GroupConfig `toml:"groups" mapstructure:"groups"`
}

// GroupConfig is one parallel worker of the command center.
type GroupConfig struct {
	Name  string   `toml:"name" mapstructure:"name"`
	Specs []string `toml:"specs" mapstructure:"specs"`
}

// Argv splits the runner command into its argument vector.
func (r RunnerConfig) Argv() ([]string, error) {
	args, err := shellwords.NewParser().Parse(r.Command)
	if err != nil {
		return nil, fmt.Errorf("parse runner command %q: %w", r.Command, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("runner command is empty")
	}
	return args, nil
}

// Grace returns the parsed stop grace period. Invalid values were rejected by Validate.
func (r RunnerConfig) Grace() time.Duration {
	d, err := time.ParseDuration(r.StopGrace)
	if err != nil {
		return 0
	}
	return d
}

// Path resolves p against the project root.
func (c Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Root == "" {
		return p
	}
	return filepath.Join(c.Root, p)
}

// Addr is the listen address of the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Preset looks up a preset by id.
func (c Config) Preset(id string) (model.CommandPreset, bool) {
	for _, p := range c.Presets {
		if p.ID == id {
			return p, true
		}
	}
	return model.CommandPreset{}, false
}

// HasProject reports whether name is a known project.
func (c Config) HasProject(name string) bool {
	for _, p := range c.Projects.Names {
		if p == name {
			return true
		}
	}
	return false
}
