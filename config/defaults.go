package config

import "github.com/bennhub/playwright-command-center/model"

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      4173,
			StaticDir: "scripts/test-launcher",
		},
		Runner: RunnerConfig{
			Command:        "npx playwright",
			SpecsDir:       "tests/specs",
			SpecSuffix:     ".spec.ts",
			ResultsDir:     "test-results",
			ReportDir:      "playwright-report",
			TraceViewerURL: "https://trace.playwright.dev/",
			StopGrace:      "10s",
		},
		Projects: ProjectsConfig{
			Names:   []string{"chromium", "mobile-chrome"},
			Default: "chromium",
		},
		History: HistoryConfig{
			Capacity:     300,
			DatabasePath: ".pcc/history.db",
		},
		Logs: LogsConfig{
			Capacity: 1500,
		},
		Center: CenterConfig{
			Projects: []string{"chromium", "mobile-chrome"},
			Retries:  1,
			Groups:   DefaultGroups(),
		},
		Presets: DefaultPresets(),
	}
}

// DefaultPresets is the built-in catalog of runner invocations.
func DefaultPresets() []model.CommandPreset {
	return []model.CommandPreset{
		{
			ID:          "headless",
			Title:       "Headless",
			Description: "Fast no-UI run",
			Flags:       []string{},
			Env:         map[string]string{"HEADLESS": "true"},
		},
		{
			ID:          "headed",
			Title:       "Headed",
			Description: "Visible browser run without inspector",
			Flags:       []string{"--headed"},
			Env:         map[string]string{"HEADLESS": "false"},
		},
		{
			ID:          "debug",
			Title:       "Debug",
			Description: "Headed browser + Playwright Inspector",
			Flags:       []string{"--headed", "--debug"},
			Env:         map[string]string{"HEADLESS": "false"},
		},
		{
			ID:          "trace",
			Title:       "Trace On",
			Description: "Collect trace for every step",
			Flags:       []string{"--headed", "--trace", "on"},
			Env:         map[string]string{"HEADLESS": "false"},
		},
		{
			ID:          "video",
			Title:       "Video On",
			Description: "Record a video of every test",
			Flags:       []string{"--headed"},
			Env:         map[string]string{"HEADLESS": "false", "PW_VIDEO": "on"},
		},
		{
			ID:          "repeat3",
			Title:       "Repeat x3",
			Description: "Run the same test three times",
			Flags:       []string{"--headed", "--repeat-each", "3"},
			Env:         map[string]string{"HEADLESS": "false"},
		},
		{
			ID:          "report",
			Title:       "Reporter HTML",
			Description: "Generate the HTML report",
			Flags:       []string{"--reporter=html"},
			Env:         map[string]string{"HEADLESS": "true"},
		},
		{
			ID:          "ui",
			Title:       "UI Mode",
			Description: "Open Playwright UI mode",
			Flags:       []string{"--ui"},
			Env:         map[string]string{},
		},
	}
}

// DefaultGroups are the command center's parallel spec groups.
func DefaultGroups() []GroupConfig {
	return []GroupConfig{
		{
			Name: "Auth + Account",
			Specs: []string{
				"tests/specs/01-register-login.spec.ts",
				"tests/specs/02-negative-login.spec.ts",
				"tests/specs/03-open-account.spec.ts",
			},
		},
		{
			Name: "Money Movement",
			Specs: []string{
				"tests/specs/04-transfer-funds.spec.ts",
				"tests/specs/05-bill-pay.spec.ts",
			},
		},
		{
			Name:  "API Observability",
			Specs: []string{"tests/specs/06-api-observability.spec.ts"},
		},
	}
}
