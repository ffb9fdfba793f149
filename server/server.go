// Package server exposes the supervisor, history, logs and artifacts over
// HTTP, and pushes every change to connected dashboards.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bennhub/playwright-command-center/artifacts"
	"github.com/bennhub/playwright-command-center/broadcast"
	"github.com/bennhub/playwright-command-center/config"
	"github.com/bennhub/playwright-command-center/history"
	"github.com/bennhub/playwright-command-center/model"
	"github.com/bennhub/playwright-command-center/runlog"
	"github.com/bennhub/playwright-command-center/specs"
	"github.com/bennhub/playwright-command-center/supervisor"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// DefaultPingInterval is how often idle streams receive a keep-alive.
const DefaultPingInterval = 15 * time.Second

// Deps are the components the server delegates to.
type Deps struct {
	Supervisor *supervisor.Supervisor
	Ledger     *history.Ledger
	Logs       *runlog.Buffer
	Events     *broadcast.Broadcaster
	Locator    *artifacts.Locator
	Catalog    specs.Catalog
}

type Server struct {
	logger zerolog.Logger
	cfg    config.Config
	deps   Deps
	router chi.Router

	pingInterval time.Duration
	now          func() time.Time
}

func New(logger zerolog.Logger, cfg config.Config, deps Deps) *Server {
	s := &Server{
		logger:       logger,
		cfg:          cfg,
		deps:         deps,
		pingInterval: DefaultPingInterval,
		now:          time.Now,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/specs", s.handle(s.handleSpecs))
		r.Get("/status", s.handle(s.handleStatus))
		r.Get("/history", s.handle(s.handleHistory))
		r.Get("/logs", s.handle(s.handleLogs))
		r.Get("/stream", s.handleStream)
		r.Get("/ws", s.handleWebSocket)

		r.Post("/run", s.handle(s.handleRun))
		r.Post("/run-suite", s.handle(s.handleRunSuite))
		r.Post("/stop", s.handle(s.handleStop))
		r.Post("/rerun-last-failed", s.handle(s.handleRerunLastFailed))

		r.Get("/artifact-status", s.handle(s.handleArtifactStatus))
		r.Get("/report-status", s.handle(s.handleReportStatus))
		r.Get("/video-status", s.handle(s.handleVideoStatus))
		r.Get("/export/history.html", s.handle(s.handleExportHistory))

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			s.writeError(w, r, notFound(msgNotFound))
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{OK: false, Error: "Method not allowed"})
		})
	})

	r.Get("/report", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/report/", http.StatusMovedPermanently)
	})
	r.Get("/report/*", s.handle(s.handleReport))
	r.Get("/artifact/latest/{kind}", s.handle(s.handleLatestArtifact))
	r.Get("/video/latest", s.handle(s.handleLatestVideo))
	r.Get("/trace/view", s.handle(s.handleTraceView))

	r.Get("/", s.handle(s.handleIndex))
	r.Get("/*", s.handle(s.handleStatic))
	return r
}

// handle adapts an error-returning handler.
func (s *Server) handle(fn func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			s.writeError(w, r, err)
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// SpecsChanged broadcasts a new spec listing.
func (s *Server) SpecsChanged(list []string) {
	s.deps.Events.Publish(model.Event{Name: model.EventSpecs, Data: model.SpecsPayload{Specs: list}})
}

// Run serves on the configured address until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info().Str("addr", "http://"+ln.Addr().String()).Msg("Playwright command center running")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
