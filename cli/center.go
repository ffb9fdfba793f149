package cli

// This file contains the command-center command and config management.

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/bennhub/playwright-command-center/center"
	"github.com/bennhub/playwright-command-center/config"
)

func (a *App) commandCenter(ctx *cli.Context) error {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	runner, err := cfg.Runner.Argv()
	if err != nil {
		return err
	}

	projects := cfg.Center.Projects
	if ctx.IsSet("project") {
		projects = ctx.StringSlice("project")
	}
	retries := cfg.Center.Retries
	if ctx.IsSet("retries") {
		retries = ctx.Int("retries")
		if retries < 0 {
			return fmt.Errorf("retries must not be negative, got %d", retries)
		}
	}

	cc := center.New(a.logger.With().Str("component", "center").Logger(), center.Options{
		Runner:      runner,
		Dir:         cfg.Root,
		ResultsDir:  cfg.Path(cfg.Runner.ResultsDir),
		Groups:      cfg.Center.Groups,
		Projects:    projects,
		Retries:     retries,
		Out:         ctx.App.Writer,
		Interactive: isatty.IsTerminal(os.Stdout.Fd()),
	})

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = cc.Run(sigCtx)
	if errors.Is(err, center.ErrGroupsFailed) {
		return cli.Exit(err.Error(), 1)
	}
	return err
}

func (a *App) configInit(ctx *cli.Context) error {
	projectDir := ctx.String("project-dir")
	if projectDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine project dir: %w", err)
		}
		projectDir = cwd
	}

	path := config.ConfigPath(projectDir, ctx.String("config"))
	if err := config.WriteDefault(path, ctx.Bool("force")); err != nil {
		return err
	}
	a.logger.Info().Str("path", path).Msg("Wrote default configuration")
	return nil
}
