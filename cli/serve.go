package cli

// This file contains the serve command, which wires the supervisor, history,
// log buffer, broadcaster and HTTP server together.

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/bennhub/playwright-command-center/artifacts"
	"github.com/bennhub/playwright-command-center/broadcast"
	"github.com/bennhub/playwright-command-center/config"
	"github.com/bennhub/playwright-command-center/history"
	"github.com/bennhub/playwright-command-center/procstat"
	"github.com/bennhub/playwright-command-center/runlog"
	"github.com/bennhub/playwright-command-center/server"
	"github.com/bennhub/playwright-command-center/specs"
	"github.com/bennhub/playwright-command-center/supervisor"
)

const shutdownTimeout = 15 * time.Second

func (a *App) serve(ctx *cli.Context) error {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}

	runner, err := cfg.Runner.Argv()
	if err != nil {
		return err
	}

	ledger, closeStore, err := a.openLedger(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if commit, branch, err := a.getGitInfo(ctx.Context, cfg.Root); err == nil {
		a.logger.Info().Str("commit", shortCommit(commit)).Str("branch", branch).Msg("Project repository")
	} else {
		a.logger.Debug().Err(err).Msg("Project is not a git checkout")
	}

	logs := runlog.NewBuffer(cfg.Logs.Capacity)
	events := broadcast.New(a.logger.With().Str("component", "broadcast").Logger())
	catalog := specs.Catalog{
		Root:   cfg.Root,
		Dir:    cfg.Runner.SpecsDir,
		Suffix: cfg.Runner.SpecSuffix,
	}
	locator := artifacts.NewLocator(
		a.logger.With().Str("component", "artifacts").Logger(),
		cfg.Path(cfg.Runner.ResultsDir),
		cfg.Path(cfg.Runner.ReportDir),
		cfg.Runner.SpecSuffix,
	)

	sup := supervisor.New(
		a.logger.With().Str("component", "supervisor").Logger(),
		supervisor.Options{
			Runner:    runner,
			Dir:       cfg.Root,
			Presets:   cfg.Presets,
			StopGrace: cfg.Runner.Grace(),
			Sampler:   procstat.NewSampler(),
		},
		ledger, logs, events,
	)

	srv := server.New(a.logger.With().Str("component", "server").Logger(), cfg, server.Deps{
		Supervisor: sup,
		Ledger:     ledger,
		Logs:       logs,
		Events:     events,
		Locator:    locator,
		Catalog:    catalog,
	})
	watcher := specs.NewWatcher(
		a.logger.With().Str("component", "specs").Logger(),
		catalog,
		specs.DefaultDebounce,
		srv.SpecsChanged,
	)

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return watcher.Run(gctx)
	})

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := sup.Shutdown(shutdownCtx); serr != nil {
		a.logger.Warn().Err(serr).Msg("Failed to stop active run on shutdown")
	}
	a.logger.Info().Msg("Shut down")
	return err
}

// openLedger builds the run history ledger, backed by sqlite unless the
// database path is empty. The returned func releases the store.
func (a *App) openLedger(cfg config.Config) (*history.Ledger, func(), error) {
	logger := a.logger.With().Str("component", "history").Logger()
	if cfg.History.DatabasePath == "" {
		return history.NewLedger(logger, cfg.History.Capacity, nil), func() {}, nil
	}

	path := cfg.Path(cfg.History.DatabasePath)
	store, err := history.OpenStore(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history store: %w", err)
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close history store")
		}
	}

	ledger := history.NewLedger(logger, cfg.History.Capacity, store)
	entries, err := store.Load(cfg.History.Capacity)
	if err != nil {
		// Non-fatal: start with an empty history.
		a.logger.Warn().Err(err).Str("path", path).Msg("Failed to load run history")
		return ledger, closeStore, nil
	}
	for _, orphan := range ledger.Restore(entries, time.Now()) {
		a.logger.Warn().
			Int64("id", orphan.ID).
			Str("spec", orphan.Spec).
			Msg("Run was interrupted by a previous shutdown, marked failed")
	}
	a.logger.Debug().Int("entries", ledger.Len()).Str("path", path).Msg("Restored run history")
	return ledger, closeStore, nil
}
