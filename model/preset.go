package model

import "sort"

// CommandPreset is a named combination of runner flags and environment overrides.
type CommandPreset struct {
	ID          string            `json:"id" toml:"id" mapstructure:"id"`
	Title       string            `json:"title" toml:"title" mapstructure:"title"`
	Description string            `json:"description" toml:"description" mapstructure:"description"`
	Flags       []string          `json:"flags" toml:"flags" mapstructure:"flags"`
	Env         map[string]string `json:"env" toml:"env" mapstructure:"env"`
}

// EnvPairs returns the preset environment as sorted KEY=VALUE pairs.
func (p CommandPreset) EnvPairs() []string {
	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+p.Env[k])
	}
	return pairs
}
