// Package center runs spec groups in parallel, one runner process per
// group, and draws a live dashboard of their progress.
package center

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/bennhub/playwright-command-center/artifacts"
	"github.com/bennhub/playwright-command-center/config"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrGroupsFailed is returned when at least one group did not pass.
var ErrGroupsFailed = errors.New("one or more groups failed")

// State is the lifecycle of one group.
type State string

const (
	StateQueued  State = "queued"
	StatePassed  State = "passed"
	StateFailed  State = "failed"
	StateRunning State = "running"
)

type Options struct {
	Runner     []string
	Dir        string
	ResultsDir string
	Groups     []config.GroupConfig
	Projects   []string
	Retries    int
	// Refresh is the dashboard redraw interval.
	Refresh time.Duration
	Out     io.Writer
	// Interactive clears the screen between frames and enables colour.
	Interactive bool
}

// Group is the observable state of one worker.
type Group struct {
	Name      string
	Specs     []string
	State     State
	ExitCode  *int
	StartedAt time.Time
	Duration  time.Duration
	LogFile   string
}

type Center struct {
	logger zerolog.Logger
	opts   Options
	output *termenv.Output
	now    func() time.Time

	mu     sync.Mutex
	groups []Group
}

func New(logger zerolog.Logger, opts Options) *Center {
	if opts.Refresh <= 0 {
		opts.Refresh = time.Second
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	profile := termenv.Ascii
	if opts.Interactive {
		profile = termenv.EnvColorProfile()
	}

	groups := make([]Group, len(opts.Groups))
	for i, g := range opts.Groups {
		groups[i] = Group{
			Name:    g.Name,
			Specs:   append([]string(nil), g.Specs...),
			State:   StateQueued,
			LogFile: filepath.Join(opts.ResultsDir, artifacts.Normalize(g.Name)+".log"),
		}
	}

	return &Center{
		logger: logger,
		opts:   opts,
		output: termenv.NewOutput(opts.Out, termenv.WithProfile(profile)),
		now:    time.Now,
		groups: groups,
	}
}

// Groups returns a copy of the current group states.
func (c *Center) Groups() []Group {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Group, len(c.groups))
	copy(out, c.groups)
	for i := range out {
		if out[i].State == StateRunning {
			out[i].Duration = c.now().Sub(out[i].StartedAt)
		}
	}
	return out
}

// Run starts every group at once and redraws the dashboard until all of
// them have exited.
func (c *Center) Run(ctx context.Context) error {
	if err := os.MkdirAll(c.opts.ResultsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	c.draw()

	var g errgroup.Group
	for i := range c.groups {
		i := i
		g.Go(func() error {
			return c.runGroup(ctx, i)
		})
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(c.opts.Refresh)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.draw()
			}
		}
	}()

	err := g.Wait()
	close(done)
	c.draw()
	if err != nil {
		return err
	}

	for _, grp := range c.Groups() {
		if grp.State != StatePassed {
			return ErrGroupsFailed
		}
	}
	return nil
}

// args builds the runner invocation of one group.
func (c *Center) args(grp Group) []string {
	args := append([]string(nil), c.opts.Runner...)
	args = append(args, "test")
	args = append(args, grp.Specs...)
	args = append(args, "--workers", "1", "--retries", strconv.Itoa(c.opts.Retries), "--reporter=list")
	for _, p := range c.opts.Projects {
		args = append(args, "--project", p)
	}
	return args
}

func (c *Center) runGroup(ctx context.Context, idx int) error {
	c.mu.Lock()
	grp := c.groups[idx]
	c.groups[idx].State = StateRunning
	c.groups[idx].StartedAt = c.now()
	c.mu.Unlock()

	logFile, err := os.Create(grp.LogFile)
	if err != nil {
		return fmt.Errorf("failed to create log for %s: %w", grp.Name, err)
	}
	defer logFile.Close()

	argv := c.args(grp)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = c.opts.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	c.logger.Debug().Str("group", grp.Name).Strs("args", argv).Msg("Starting group")

	code := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
			code = exitErr.ExitCode()
		case exitErr != nil:
			code = 1
			fmt.Fprintf(logFile, "runner terminated: %v\n", err)
		default:
			code = 1
			// Non-fatal: the failure is visible in the dashboard and the log.
			fmt.Fprintf(logFile, "failed to start runner: %v\n", err)
			c.logger.Warn().Err(err).Str("group", grp.Name).Msg("Failed to run group")
		}
	}

	c.mu.Lock()
	g := &c.groups[idx]
	g.Duration = c.now().Sub(g.StartedAt)
	g.ExitCode = &code
	if code == 0 {
		g.State = StatePassed
	} else {
		g.State = StateFailed
	}
	c.mu.Unlock()

	c.logger.Debug().Str("group", grp.Name).Int("exit_code", code).Msg("Group finished")
	return nil
}

func (c *Center) draw() {
	if c.opts.Interactive {
		c.output.ClearScreen()
	}
	fmt.Fprint(c.opts.Out, c.Render())
}
