package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// DefaultConfigPath is the config file location relative to the project root.
const DefaultConfigPath = ".pcc/config.toml"

// LoadOptions controls configuration loading.
type LoadOptions struct {
	// ProjectDir is the project root. Defaults to CWD when empty.
	ProjectDir string
	// ConfigPath overrides DefaultConfigPath.
	ConfigPath string
	// FlagOverrides are highest-priority overrides from CLI flags (dot-notated keys).
	FlagOverrides map[string]any
}

type envKind int

const (
	kindString envKind = iota
	kindInt
	kindList
)

var envBindings = []struct {
	Env  string
	Key  string
	Kind envKind
}{
	{"LAUNCHER_HOST", "server.host", kindString},
	{"LAUNCHER_PORT", "server.port", kindInt},
	{"PCC_RUNNER", "runner.command", kindString},
	{"PCC_RESULTS_DIR", "runner.results_dir", kindString},
	{"PCC_REPORT_DIR", "runner.report_dir", kindString},
	{"PCC_HISTORY_DB", "history.database_path", kindString},
	{"CC_PROJECTS", "center.projects", kindList},
	{"CC_RETRIES", "center.retries", kindInt},
}

// Load returns the effective configuration after applying precedence.
func Load(opts LoadOptions) (Config, error) {
	projectDir := opts.ProjectDir
	if projectDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("determine project dir: %w", err)
		}
		projectDir = cwd
	}
	path := ConfigPath(projectDir, opts.ConfigPath)

	v := viper.New()
	setDefaults(v)

	found, err := mergeConfigFile(v, path)
	if err != nil {
		return Config{}, err
	}
	if err := applyEnvOverrides(v); err != nil {
		return Config{}, err
	}
	for k, val := range opts.FlagOverrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Root = projectDir

	// Presets are decoded straight from TOML: viper lowercases map keys,
	// which would mangle environment variable names.
	cfg.Presets = DefaultPresets()
	if found {
		var file struct {
			Presets []presetFile `toml:"presets"`
		}
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return Config{}, fmt.Errorf("decode presets from %s: %w", path, err)
		}
		if len(file.Presets) > 0 {
			cfg.Presets = cfg.Presets[:0]
			for _, p := range file.Presets {
				cfg.Presets = append(cfg.Presets, p.preset())
			}
		}
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConfigPath resolves the config file path for a project.
func ConfigPath(projectDir, override string) string {
	p := override
	if p == "" {
		p = DefaultConfigPath
	}
	if filepath.IsAbs(p) || projectDir == "" {
		return p
	}
	return filepath.Join(projectDir, p)
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.static_dir", def.Server.StaticDir)

	v.SetDefault("runner.command", def.Runner.Command)
	v.SetDefault("runner.specs_dir", def.Runner.SpecsDir)
	v.SetDefault("runner.spec_suffix", def.Runner.SpecSuffix)
	v.SetDefault("runner.results_dir", def.Runner.ResultsDir)
	v.SetDefault("runner.report_dir", def.Runner.ReportDir)
	v.SetDefault("runner.trace_viewer_url", def.Runner.TraceViewerURL)
	v.SetDefault("runner.stop_grace", def.Runner.StopGrace)

	v.SetDefault("projects.names", def.Projects.Names)
	v.SetDefault("projects.default", def.Projects.Default)

	v.SetDefault("history.capacity", def.History.Capacity)
	v.SetDefault("history.database_path", def.History.DatabasePath)

	v.SetDefault("logs.capacity", def.Logs.Capacity)

	v.SetDefault("center.projects", def.Center.Projects)
	v.SetDefault("center.retries", def.Center.Retries)
	v.SetDefault("center.groups", def.Center.Groups)
}

// mergeConfigFile merges the TOML config file if it exists.
func mergeConfigFile(v *viper.Viper, path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat config %s: %w", path, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("config path %s is a directory", path)
	}
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.MergeInConfig(); err != nil {
		return false, fmt.Errorf("merge config %s: %w", path, err)
	}
	return true, nil
}

func applyEnvOverrides(v *viper.Viper) error {
	for _, b := range envBindings {
		raw := strings.TrimSpace(os.Getenv(b.Env))
		if raw == "" {
			continue
		}
		switch b.Kind {
		case kindInt:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("env %s: expected integer, got %q", b.Env, raw)
			}
			v.Set(b.Key, n)
		case kindList:
			var items []string
			for _, item := range strings.Split(raw, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			v.Set(b.Key, items)
		default:
			v.Set(b.Key, raw)
		}
	}
	return nil
}

// WriteDefault writes the built-in configuration to path. An existing file is
// only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(DefaultConfig()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
