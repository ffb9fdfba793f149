package supervisor

import (
	"fmt"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/bennhub/playwright-command-center/model"
)

// invocation is one runner subprocess: the spec(s) to run and the preset
// that decorates the command line.
type invocation struct {
	specs   []string
	project string
	preset  model.CommandPreset
}

var suitePreset = model.CommandPreset{
	ID:    model.SuitePresetID,
	Title: "Suite",
	Flags: []string{},
	Env:   map[string]string{},
}

// SuiteLabel is the history label of a suite run.
func SuiteLabel(n int) string {
	return fmt.Sprintf("%d selected specs", n)
}

// args builds the runner argument vector:
// <runner...> test <spec...> --project <name> [preset flags...]
func (inv invocation) args(runner []string) []string {
	args := make([]string, 0, len(runner)+len(inv.specs)+len(inv.preset.Flags)+3)
	args = append(args, runner...)
	args = append(args, "test")
	args = append(args, inv.specs...)
	args = append(args, "--project", inv.project)
	args = append(args, inv.preset.Flags...)
	return args
}

// printableCommand renders the invocation the way an operator would type it,
// environment overlay first.
func printableCommand(env []string, argv []string) string {
	parts := make([]string, 0, len(env)+len(argv))
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		parts = append(parts, k+"="+shellescape.Quote(v))
	}
	for _, arg := range argv {
		parts = append(parts, shellescape.Quote(arg))
	}
	return strings.Join(parts, " ")
}
