// Package supervisor owns the single test-runner subprocess the server may
// run at a time.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bennhub/playwright-command-center/history"
	"github.com/bennhub/playwright-command-center/model"
	"github.com/bennhub/playwright-command-center/runlog"
	"github.com/rs/zerolog"
)

var (
	// ErrBusy is returned when a run is requested while another is active.
	ErrBusy = errors.New("a test is already running")
	// ErrIdle is returned when stop is requested with nothing running.
	ErrIdle = errors.New("no running test to stop")
	// ErrNoPresets is returned when none of the requested presets are known.
	ErrNoPresets = errors.New("no command preset selected")
)

// outputDrainTimeout bounds how long runner output is read after the runner
// itself has exited. Background children that inherited stdout or stderr can
// hold the pipes open indefinitely.
const outputDrainTimeout = 2 * time.Second

// Publisher receives every status, history and log event.
type Publisher interface {
	Publish(ev model.Event)
}

// StatsSampler reports resource usage of a running process tree.
type StatsSampler interface {
	Sample(pid int) (*model.ProcessStats, error)
}

// Options configures how runner subprocesses are launched.
type Options struct {
	// Runner is the runner command prefix, e.g. ["npx", "playwright"].
	Runner []string
	// Dir is the working directory of every subprocess.
	Dir     string
	Presets []model.CommandPreset
	// StopGrace is how long a stopped subprocess may take before it is
	// killed. Zero disables escalation.
	StopGrace time.Duration
	// Sampler is optional.
	Sampler StatsSampler
}

// Supervisor enforces the single-active-run invariant and drives subprocess
// chains. All run state lives behind mu; callers only ever see snapshots.
type Supervisor struct {
	logger zerolog.Logger
	opts   Options
	ledger *history.Ledger
	logs   *runlog.Buffer
	events Publisher
	now    func() time.Time

	drainTimeout time.Duration

	// logMu keeps log events in the order their ids were assigned.
	logMu sync.Mutex

	mu      sync.Mutex
	current *activeRun
}

type activeRun struct {
	spec      string
	project   string
	presetIDs []string

	activePresetTitle string
	activeCommand     string
	startedAt         time.Time
	proc              *process
	stopRequested     bool

	done chan struct{}
}

type process struct {
	cmd    *exec.Cmd
	exited chan struct{}
}

type outcome struct {
	exitCode *int
	signal   *string
}

func (o outcome) ok() bool {
	return o.signal == nil && o.exitCode != nil && *o.exitCode == 0
}

func New(logger zerolog.Logger, opts Options, ledger *history.Ledger, logs *runlog.Buffer, events Publisher) *Supervisor {
	return &Supervisor{
		logger: logger,
		opts:   opts,
		ledger: ledger,
		logs:   logs,
		events: events,
		now:    time.Now,

		drainTimeout: outputDrainTimeout,
	}
}

// StartRun accepts a chain of presets against one spec and runs them in order
// in the background, halting at the first failure or stop.
func (s *Supervisor) StartRun(spec, project string, presetIDs []string) (model.Ack, error) {
	presets := s.resolvePresets(presetIDs)
	if len(presets) == 0 {
		return model.Ack{}, ErrNoPresets
	}

	run, err := s.accept(spec, project, presetIDs)
	if err != nil {
		return model.Ack{}, err
	}

	invocations := make([]invocation, len(presets))
	for i, p := range presets {
		invocations[i] = invocation{specs: []string{spec}, project: project, preset: p}
	}
	go s.runChain(run, invocations)

	return model.Ack{OK: true, Queued: len(presets), RunInProgress: true}, nil
}

// StartSuiteRun runs all specs in a single subprocess with the default
// invocation. It produces exactly one history entry.
func (s *Supervisor) StartSuiteRun(specs []string, project string) (model.Ack, error) {
	run, err := s.accept(SuiteLabel(len(specs)), project, []string{model.SuitePresetID})
	if err != nil {
		return model.Ack{}, err
	}

	specs = append([]string(nil), specs...)
	go s.runChain(run, []invocation{{specs: specs, project: project, preset: suitePreset}})

	return model.Ack{OK: true, Queued: 1, RunInProgress: true}, nil
}

// Stop interrupts the active subprocess and prevents the rest of its chain
// from starting.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	run := s.current
	if run == nil {
		s.mu.Unlock()
		return ErrIdle
	}
	run.stopRequested = true
	proc := run.proc
	s.mu.Unlock()

	s.appendLog(model.LogLevelInfo, "Stop requested (SIGINT).")
	if proc != nil {
		s.interrupt(proc)
	}
	return nil
}

// Status returns the idle state or a snapshot of the active run.
func (s *Supervisor) Status() model.Status {
	s.mu.Lock()
	run := s.current
	if run == nil {
		s.mu.Unlock()
		return model.Status{Running: false}
	}
	snap := &model.RunSnapshot{
		Spec:              run.spec,
		Project:           run.project,
		Presets:           append([]string(nil), run.presetIDs...),
		ActivePresetTitle: run.activePresetTitle,
		ActiveCommand:     run.activeCommand,
		StartedAt:         run.startedAt,
	}
	if run.proc != nil && run.proc.cmd.Process != nil {
		snap.PID = run.proc.cmd.Process.Pid
	}
	s.mu.Unlock()

	if snap.PID > 0 && s.opts.Sampler != nil {
		if stats, err := s.opts.Sampler.Sample(snap.PID); err == nil {
			snap.Stats = stats
		} else {
			s.logger.Debug().Err(err).Int("pid", snap.PID).Msg("Failed to sample process stats")
		}
	}
	return model.Status{Running: true, Run: snap}
}

// Running reports whether a run is active.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// WaitIdle blocks until no run is active or ctx is done.
func (s *Supervisor) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	run := s.current
	s.mu.Unlock()
	if run == nil {
		return nil
	}

	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the active run, if any, and waits for it to finish. When ctx
// expires first the process group is killed.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if err := s.Stop(); err != nil && !errors.Is(err, ErrIdle) {
		return err
	}
	err := s.WaitIdle(ctx)
	if err == nil {
		return nil
	}

	s.mu.Lock()
	var proc *process
	if s.current != nil {
		proc = s.current.proc
	}
	s.mu.Unlock()
	if proc != nil {
		if kerr := killProcess(proc.cmd); kerr != nil {
			s.logger.Warn().Err(kerr).Msg("Failed to kill runner on shutdown")
		}
	}
	return fmt.Errorf("wait for active run: %w", err)
}

func (s *Supervisor) resolvePresets(ids []string) []model.CommandPreset {
	var out []model.CommandPreset
	for _, id := range ids {
		for _, p := range s.opts.Presets {
			if p.ID == id {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func (s *Supervisor) accept(spec, project string, presetIDs []string) (*activeRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return nil, ErrBusy
	}
	s.current = &activeRun{
		spec:      spec,
		project:   project,
		presetIDs: append([]string(nil), presetIDs...),
		startedAt: s.now(),
		done:      make(chan struct{}),
	}
	return s.current, nil
}

func (s *Supervisor) runChain(run *activeRun, invocations []invocation) {
	defer s.finish(run)

	for _, inv := range invocations {
		if s.stopRequested(run) {
			s.appendLog(model.LogLevelInfo, "Run sequence stopped by user.")
			return
		}
		out := s.runOne(run, inv)
		if s.stopRequested(run) {
			s.appendLog(model.LogLevelInfo, "Run sequence stopped by user.")
			return
		}
		if !out.ok() {
			return
		}
	}
}

func (s *Supervisor) stopRequested(run *activeRun) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return run.stopRequested
}

func (s *Supervisor) finish(run *activeRun) {
	s.mu.Lock()
	if s.current == run {
		s.current = nil
	}
	close(run.done)
	s.mu.Unlock()

	s.logger.Debug().Str("spec", run.spec).Msg("Run finished, supervisor idle")
	s.publishStatus()
}

// runOne launches a single subprocess and blocks until it exits. Every
// outcome, spawn failure included, resolves the attempt it recorded.
func (s *Supervisor) runOne(run *activeRun, inv invocation) outcome {
	argv := inv.args(s.opts.Runner)
	env := inv.preset.EnvPairs()
	command := printableCommand(env, argv)
	title := inv.preset.Title

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = s.opts.Dir
	// Later duplicates win, so the preset overlays the ambient environment.
	cmd.Env = append(os.Environ(), env...)
	configureProcess(cmd)

	spec := run.spec
	var specs []string
	if inv.preset.ID == model.SuitePresetID {
		specs = inv.specs
	}

	startedAt := s.now()
	attempt := s.ledger.Add(model.RunAttempt{
		Spec:        spec,
		Specs:       specs,
		Project:     inv.project,
		PresetID:    inv.preset.ID,
		PresetTitle: title,
		Command:     command,
		StartedAt:   startedAt,
		Status:      model.RunStatusRunning,
	})
	s.publishHistory()

	s.mu.Lock()
	run.activePresetTitle = title
	run.activeCommand = command
	run.startedAt = startedAt
	s.mu.Unlock()

	s.appendLog(model.LogLevelInfo, fmt.Sprintf("[%s] $ %s", title, command))

	streams, err := openPipes(cmd)
	if err == nil {
		err = cmd.Start()
		streams.closeWriters()
		if err != nil {
			streams.closeReaders()
		}
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("spec", spec).Str("preset", inv.preset.ID).Msg("Failed to start runner")
		s.appendLog(model.LogLevelError, fmt.Sprintf("[%s] Failed to start: %v", title, err))
		code := 1
		failed := outcome{exitCode: &code}
		s.resolve(attempt.ID, failed)
		return failed
	}
	defer streams.closeReaders()

	proc := &process{cmd: cmd, exited: make(chan struct{})}
	s.mu.Lock()
	run.proc = proc
	stopping := run.stopRequested
	s.mu.Unlock()

	s.logger.Info().Str("spec", spec).Str("preset", inv.preset.ID).Int("pid", cmd.Process.Pid).Msg("Runner started")
	s.publishStatus()
	if stopping {
		s.interrupt(proc)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go s.stream(&wg, streams.stdoutR, model.LogLevelStdout)
	go s.stream(&wg, streams.stderrR, model.LogLevelStderr)

	waitErr := cmd.Wait()
	close(proc.exited)
	s.drain(&wg, streams, spec)

	s.mu.Lock()
	run.proc = nil
	s.mu.Unlock()

	res := classify(cmd.ProcessState, waitErr)
	if res.signal != nil {
		s.appendLog(model.LogLevelError, fmt.Sprintf("[%s] Run finished: terminated by %s", title, *res.signal))
	} else {
		level := model.LogLevelError
		if res.ok() {
			level = model.LogLevelInfo
		}
		s.appendLog(level, fmt.Sprintf("[%s] Run finished: exited %d", title, *res.exitCode))
	}
	s.resolve(attempt.ID, res)
	return res
}

// drain waits for both output streams to reach EOF. Once the drain timeout
// passes, the read ends are closed so leftover writers cannot stall the run.
func (s *Supervisor) drain(wg *sync.WaitGroup, streams *outputPipes, spec string) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return
	case <-timer.C:
	}

	s.logger.Warn().Str("spec", spec).Dur("timeout", s.drainTimeout).Msg("Runner output still open after exit, closing")
	streams.closeReaders()
	<-done
}

// outputPipes carries runner stdout and stderr. The child writes straight to
// the write ends, so Wait returns as soon as the runner exits.
type outputPipes struct {
	stdoutR, stdoutW *os.File
	stderrR, stderrW *os.File
}

func openPipes(cmd *exec.Cmd) (*outputPipes, error) {
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	return &outputPipes{stdoutR: stdoutR, stdoutW: stdoutW, stderrR: stderrR, stderrW: stderrW}, nil
}

// closeWriters drops the parent's copies of the write ends after Start.
func (p *outputPipes) closeWriters() {
	p.stdoutW.Close()
	p.stderrW.Close()
}

func (p *outputPipes) closeReaders() {
	p.stdoutR.Close()
	p.stderrR.Close()
}

// classify derives the exit code or terminating signal of a finished process.
func classify(state *os.ProcessState, waitErr error) outcome {
	if name, ok := exitSignal(state); ok {
		return outcome{signal: &name}
	}
	code := 1
	if state != nil {
		code = state.ExitCode()
	} else {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
	}
	if code < 0 {
		code = 1
	}
	return outcome{exitCode: &code}
}

func (s *Supervisor) resolve(id int64, out outcome) {
	ended := s.now()
	s.ledger.Update(id, func(a *model.RunAttempt) {
		a.Resolve(model.Resolution{EndedAt: ended, ExitCode: out.exitCode, Signal: out.signal})
	})
	s.publishHistory()
}

// stream forwards non-blank lines of r to the log, trailing whitespace trimmed.
func (s *Supervisor) stream(wg *sync.WaitGroup, r io.Reader, level model.LogLevel) {
	defer wg.Done()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if text := strings.TrimRight(line, " \t\r\n"); strings.TrimSpace(text) != "" {
			s.appendLog(level, text)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Debug().Err(err).Str("stream", string(level)).Msg("Runner output closed")
			}
			return
		}
	}
}

func (s *Supervisor) interrupt(proc *process) {
	if err := interruptProcess(proc.cmd); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to interrupt runner")
	}
	grace := s.opts.StopGrace
	if grace <= 0 {
		return
	}
	go func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-proc.exited:
			return
		case <-timer.C:
		}
		if err := killProcess(proc.cmd); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to kill runner")
			return
		}
		s.appendLog(model.LogLevelInfo, fmt.Sprintf("Stop escalated to SIGKILL after %s.", grace))
	}()
}

func (s *Supervisor) appendLog(level model.LogLevel, message string) {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	entry := s.logs.Append(level, message)
	s.events.Publish(model.Event{Name: model.EventLog, Data: entry})
}

func (s *Supervisor) publishHistory() {
	s.events.Publish(model.Event{Name: model.EventHistory, Data: s.ledger.Snapshot()})
}

func (s *Supervisor) publishStatus() {
	s.events.Publish(model.Event{Name: model.EventStatus, Data: s.Status()})
}
