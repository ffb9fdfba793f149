package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/bennhub/playwright-command-center/config"
)

const AppName = "pcc"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
			NoColor:    !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()),
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Local control plane for Playwright test runs",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:    "config",
					Usage:   "Path to the config file (default: <project-dir>/" + config.DefaultConfigPath + ")",
					EnvVars: []string{"PCC_CONFIG"},
				},
				&cli.StringFlag{
					Name:  "project-dir",
					Usage: "Project root containing the specs (default: current directory)",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}

	app.cli.Action = app.serve
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "serve",
		Usage:  "Serve the dashboard and run API (default command)",
		Action: app.serve,
		Flags:  serveFlags(),
	})
	app.cli.Flags = append(app.cli.Flags, serveFlags()...)
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "history",
		Usage:  "List previous run attempts",
		Action: app.history,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results",
				Value:   20,
			},
			&cli.StringFlag{
				Name:  "spec",
				Usage: "Only show attempts whose spec contains this substring",
			},
			&cli.BoolFlag{
				Name:  "failed",
				Usage: "Only show failed attempts",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:            "view",
		Usage:           "Show a run attempt and its latest artifacts",
		ArgsUsage:       "[ID|INDEX] [--open-trace]",
		Action:          app.view,
		SkipFlagParsing: true,
		Description: `Show a run attempt from history together with the newest
video and trace recorded for its spec.

Arguments:
  0             View the latest attempt (default)
  -1            View the 2nd latest attempt
  -N            View the (N+1)th latest attempt
  <id>          View the attempt with this id
  --open-trace  Open the trace in the runner's trace viewer

Examples:
  pcc view                 # latest attempt
  pcc view -2              # 3rd latest attempt
  pcc view 42 --open-trace # attempt 42, opening its trace`,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "command-center",
		Usage:  "Run spec groups in parallel with a live terminal dashboard",
		Action: app.commandCenter,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "project",
				Usage: "Project to run every group against (repeatable, overrides center.projects)",
			},
			&cli.IntFlag{
				Name:  "retries",
				Usage: "Retries per failed test (overrides center.retries)",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:  "config",
		Usage: "Manage the configuration file",
		Subcommands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write the default configuration to the config path",
				Action: app.configInit,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing config file",
					},
				},
			},
		},
	})
	return app
}

// serveFlags are accepted both globally, for the default action, and on serve.
func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "host",
			Usage: "Address to bind the dashboard server to",
		},
		&cli.IntFlag{
			Name:  "port",
			Usage: "Port to bind the dashboard server to",
		},
	}
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && len(commit) >= 8 {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}

// loadConfig resolves the effective configuration from the global flags and
// any server overrides given on the command line.
func (a *App) loadConfig(ctx *cli.Context) (config.Config, error) {
	overrides := map[string]any{}
	if ctx.IsSet("host") {
		overrides["server.host"] = ctx.String("host")
	}
	if ctx.IsSet("port") {
		overrides["server.port"] = ctx.Int("port")
	}

	projectDir := ctx.String("project-dir")
	if projectDir != "" {
		abs, err := filepath.Abs(projectDir)
		if err != nil {
			return config.Config{}, fmt.Errorf("resolve project dir: %w", err)
		}
		projectDir = abs
	}

	cfg, err := config.Load(config.LoadOptions{
		ProjectDir:    projectDir,
		ConfigPath:    ctx.String("config"),
		FlagOverrides: overrides,
	})
	if err != nil {
		return config.Config{}, err
	}
	a.logger.Debug().
		Str("root", cfg.Root).
		Str("runner", cfg.Runner.Command).
		Strs("projects", cfg.Projects.Names).
		Msg("Loaded configuration")
	return cfg, nil
}
