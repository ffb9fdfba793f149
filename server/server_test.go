//go:build !windows

package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bennhub/playwright-command-center/artifacts"
	"github.com/bennhub/playwright-command-center/broadcast"
	"github.com/bennhub/playwright-command-center/config"
	"github.com/bennhub/playwright-command-center/history"
	"github.com/bennhub/playwright-command-center/model"
	"github.com/bennhub/playwright-command-center/runlog"
	"github.com/bennhub/playwright-command-center/specs"
	"github.com/bennhub/playwright-command-center/supervisor"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const fakeRunner = `#!/bin/sh
echo "runner args: $*"
if [ -n "$SLEEP" ]; then
	exec sleep "$SLEEP"
fi
exit ${EXIT_CODE:-0}
`

const (
	specLogin = "tests/specs/01-register-login.spec.ts"
	specBill  = "tests/specs/05-bill-pay.spec.ts"
)

type testEnv struct {
	root   string
	cfg    config.Config
	srv    *Server
	sup    *supervisor.Supervisor
	ledger *history.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	write := func(rel, content string) {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o755))
	}
	write(specLogin, "")
	write(specBill, "")
	write("runner.sh", fakeRunner)
	write("scripts/test-launcher/index.html", "<h1>launcher</h1>")
	write("playwright-report/index.html", "<h1>report</h1>")
	write("playwright-report/data/trace.zip", "zip")
	write("secret.txt", "secret")
	write("test-results/01-register-login-Bank-chromium/video.webm", "webm")
	write("test-results/01-register-login-Bank-chromium/trace.zip", "zip")

	cfg := config.DefaultConfig()
	cfg.Root = root
	cfg.Runner.Command = "/bin/sh " + filepath.Join(root, "runner.sh")
	cfg.Presets = []model.CommandPreset{
		{ID: "pass", Title: "Pass", Flags: []string{}, Env: map[string]string{"EXIT_CODE": "0"}},
		{ID: "fail", Title: "Fail", Flags: []string{}, Env: map[string]string{"EXIT_CODE": "1"}},
		{ID: "slow", Title: "Slow", Flags: []string{}, Env: map[string]string{"SLEEP": "30"}},
	}
	require.NoError(t, config.Validate(cfg))

	argv, err := cfg.Runner.Argv()
	require.NoError(t, err)

	logger := zerolog.Nop()
	ledger := history.NewLedger(logger, cfg.History.Capacity, nil)
	logs := runlog.NewBuffer(cfg.Logs.Capacity)
	events := broadcast.New(logger)
	sup := supervisor.New(logger, supervisor.Options{
		Runner:  argv,
		Dir:     root,
		Presets: cfg.Presets,
	}, ledger, logs, events)

	srv := New(logger, cfg, Deps{
		Supervisor: sup,
		Ledger:     ledger,
		Logs:       logs,
		Events:     events,
		Locator:    artifacts.NewLocator(logger, cfg.Path(cfg.Runner.ResultsDir), cfg.Path(cfg.Runner.ReportDir), cfg.Runner.SpecSuffix),
		Catalog:    specs.Catalog{Root: root, Dir: cfg.Runner.SpecsDir, Suffix: cfg.Runner.SpecSuffix},
	})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})
	return &testEnv{root: root, cfg: cfg, srv: srv, sup: sup, ledger: ledger}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) waitIdle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.sup.WaitIdle(ctx))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRunWithUnregisteredSpec(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/run", `{"spec":"tests/specs/99-missing.spec.ts","project":"chromium","presets":["pass"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, errorResponse{OK: false, Error: msgInvalidSpec}, decode[errorResponse](t, rec))

	status := decode[model.Status](t, env.do(t, http.MethodGet, "/api/status", ""))
	require.False(t, status.Running)
	require.Nil(t, status.Run)
	require.Zero(t, env.ledger.Len())
}

func TestRunValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		path    string
		body    string
		wantMsg string
	}{
		{"path traversal spec", "/api/run", `{"spec":"tests/specs/../../secret.txt","presets":["pass"]}`, msgInvalidSpec},
		{"unknown project", "/api/run", `{"spec":"` + specLogin + `","project":"webkit","presets":["pass"]}`, msgInvalidProject},
		{"no presets", "/api/run", `{"spec":"` + specLogin + `","presets":[]}`, msgInvalidPresets},
		{"unknown preset", "/api/run", `{"spec":"` + specLogin + `","presets":["pass","nope"]}`, msgInvalidPresets},
		{"malformed body", "/api/run", `{"spec":`, msgInvalidBody},
		{"empty suite", "/api/run-suite", `{"specs":[]}`, msgNoSpecs},
		{"suite with unknown spec", "/api/run-suite", `{"specs":["` + specLogin + `","nope.spec.ts"]}`, msgInvalidSpec},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, tt.wantMsg, decode[errorResponse](t, rec).Error)
		})
	}
	require.Zero(t, env.ledger.Len())
	require.False(t, env.sup.Running())
}

func TestSpecsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := decode[specsResponse](t, env.do(t, http.MethodGet, "/api/specs", ""))
	require.Equal(t, []string{specLogin, specBill}, resp.Specs)
	require.Equal(t, []string{"chromium", "mobile-chrome"}, resp.Projects)
	require.Equal(t, "chromium", resp.DefaultProject)
	require.Len(t, resp.Presets, 3)

	// The listing is re-read per request.
	require.NoError(t, os.WriteFile(filepath.Join(env.root, "tests", "specs", "03-open-account.spec.ts"), nil, 0o644))
	resp = decode[specsResponse](t, env.do(t, http.MethodGet, "/api/specs", ""))
	require.Len(t, resp.Specs, 3)
}

func TestRunLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/run", `{"spec":"`+specLogin+`","presets":["pass","fail","pass"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, model.Ack{OK: true, Queued: 3, RunInProgress: true}, decode[model.Ack](t, rec))
	env.waitIdle(t)

	hist := decode[model.HistorySnapshot](t, env.do(t, http.MethodGet, "/api/history", ""))
	require.Len(t, hist.History, 2)
	require.Equal(t, "chromium", hist.History[0].Project, "project defaults to the default project")
	require.NotNil(t, hist.LastFailed)
	require.Equal(t, "fail", hist.LastFailed.PresetID)

	logs := decode[map[string][]model.LogEntry](t, env.do(t, http.MethodGet, "/api/logs", ""))
	require.NotEmpty(t, logs["logs"])

	rec = env.do(t, http.MethodPost, "/api/rerun-last-failed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, decode[model.Ack](t, rec).Queued)
	env.waitIdle(t)

	hist = decode[model.HistorySnapshot](t, env.do(t, http.MethodGet, "/api/history", ""))
	require.Len(t, hist.History, 3)
	require.Equal(t, "fail", hist.History[0].PresetID)
	require.Equal(t, specLogin, hist.History[0].Spec)
}

func TestRerunLastFailedSuite(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/rerun-last-failed", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	t.Setenv("EXIT_CODE", "3")
	rec = env.do(t, http.MethodPost, "/api/run-suite", `{"specs":["`+specBill+`","`+specLogin+`","`+specBill+`"],"project":"mobile-chrome"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	env.waitIdle(t)

	last := env.ledger.LastFailed()
	require.NotNil(t, last)
	require.Equal(t, "2 selected specs", last.Spec)
	require.Equal(t, []string{specBill, specLogin}, last.Specs)
	require.Equal(t, 3, *last.ExitCode)

	rec = env.do(t, http.MethodPost, "/api/rerun-last-failed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	env.waitIdle(t)
	require.Equal(t, 2, env.ledger.Len())
	require.Equal(t, "mobile-chrome", env.ledger.Snapshot().History[0].Project)
}

func TestBusyAndStop(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/stop", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, msgIdle, decode[errorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPost, "/api/run", `{"spec":"`+specBill+`","presets":["fail"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	env.waitIdle(t)
	require.NotNil(t, env.ledger.LastFailed())

	rec = env.do(t, http.MethodPost, "/api/run", `{"spec":"`+specLogin+`","presets":["slow"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		st := decode[model.Status](t, env.do(t, http.MethodGet, "/api/status", ""))
		return st.Running && st.Run.PID > 0
	}, 5*time.Second, 10*time.Millisecond)

	busy := []struct {
		name   string
		target string
		body   string
	}{
		{name: "run", target: "/api/run", body: `{"spec":"` + specBill + `","presets":["pass"]}`},
		{name: "run suite", target: "/api/run-suite", body: `{"specs":["` + specBill + `"]}`},
		{name: "rerun last failed", target: "/api/rerun-last-failed"},
	}
	for _, tt := range busy {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.target, tt.body)
			require.Equal(t, http.StatusConflict, rec.Code)
			require.Equal(t, msgBusy, decode[errorResponse](t, rec).Error)
			require.Equal(t, 2, env.ledger.Len())
		})
	}

	rec = env.do(t, http.MethodPost, "/api/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	env.waitIdle(t)

	status := decode[model.Status](t, env.do(t, http.MethodGet, "/api/status", ""))
	require.False(t, status.Running)
	require.Equal(t, model.RunStatusFailed, env.ledger.Snapshot().History[0].Status)
}

func TestReportServing(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/report/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "report")

	rec = env.do(t, http.MethodGet, "/report/data/trace.zip", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/report/../secret.txt", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret")

	rec = env.do(t, http.MethodGet, "/report/missing.html", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	status := decode[availability](t, env.do(t, http.MethodGet, "/api/report-status", ""))
	require.True(t, status.Available)
}

func TestArtifacts(t *testing.T) {
	env := newTestEnv(t)

	avail := decode[artifactAvailability](t, env.do(t, http.MethodGet, "/api/artifact-status?spec="+specLogin, ""))
	require.True(t, avail.Available.Video)
	require.True(t, avail.Available.Trace)

	avail = decode[artifactAvailability](t, env.do(t, http.MethodGet, "/api/artifact-status?spec="+specBill, ""))
	require.False(t, avail.Available.Video)

	rec := env.do(t, http.MethodGet, "/api/artifact-status?spec=nope", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/artifact/latest/video?spec="+specLogin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "video/webm", rec.Header().Get("Content-Type"))
	require.Equal(t, "webm", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/artifact/latest/trace?spec="+specBill, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/artifact/latest/screenshot?spec="+specLogin, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/video/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.True(t, decode[availability](t, env.do(t, http.MethodGet, "/api/video-status", "")).Available)

	rec = env.do(t, http.MethodGet, "/trace/view?spec="+specLogin, "")
	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "https://trace.playwright.dev/?trace="), loc)
	require.Contains(t, loc, "http%3A%2F%2Fexample.com%2Fartifact%2Flatest%2Ftrace%3Fspec%3D")

	rec = env.do(t, http.MethodGet, "/trace/view?spec="+specBill, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportAndStatic(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/export/history.html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "Playwright Run History")

	rec = env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "launcher")

	rec = env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, msgNotFound, decode[errorResponse](t, rec).Error)
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	seen := map[string]bool{}
	sc := bufio.NewScanner(resp.Body)
	readUntil := func(name string) {
		for !seen[name] && sc.Scan() {
			if ev, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
				seen[ev] = true
			}
		}
		require.True(t, seen[name], "never saw %s event", name)
	}

	readUntil(model.EventSpecs)
	require.True(t, seen[model.EventStatus])
	require.True(t, seen[model.EventHistory])

	rec := env.do(t, http.MethodPost, "/api/run", `{"spec":"`+specLogin+`","presets":["pass"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	readUntil(model.EventLog)
	env.waitIdle(t)
}

func TestWebSocketMirrorsEvents(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	var first struct {
		Event string       `json:"event"`
		Data  model.Status `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, model.EventStatus, first.Event)
	require.False(t, first.Data.Running)

	env.srv.SpecsChanged([]string{specLogin})
	for {
		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Event != model.EventSpecs {
			continue
		}
		var payload model.SpecsPayload
		require.NoError(t, json.Unmarshal(frame.Data, &payload))
		if len(payload.Specs) == 1 {
			require.Equal(t, []string{specLogin}, payload.Specs)
			return
		}
	}
}
