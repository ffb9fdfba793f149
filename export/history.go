// Package export renders the run history as a standalone HTML page.
package export

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/bennhub/playwright-command-center/model"
)

// Summary holds the counts shown at the top of the page.
type Summary struct {
	Total   int
	Passed  int
	Failed  int
	Running int
}

type pageData struct {
	GeneratedAt time.Time
	Summary     Summary
	LastFailed  *model.RunAttempt
	History     []model.RunAttempt
}

var pageTemplate = template.Must(template.New("history").Funcs(template.FuncMap{
	"formatTime":     formatTime,
	"formatDuration": FormatDuration,
	"statusSymbol":   statusSymbol,
	"exitText":       exitText,
}).Parse(historyTemplate))

// Summarize counts attempts by status.
func Summarize(history []model.RunAttempt) Summary {
	s := Summary{Total: len(history)}
	for _, a := range history {
		switch a.Status {
		case model.RunStatusPassed:
			s.Passed++
		case model.RunStatusFailed:
			s.Failed++
		case model.RunStatusRunning:
			s.Running++
		}
	}
	return s
}

// Render writes the history page for snap to w.
func Render(w io.Writer, snap model.HistorySnapshot, generatedAt time.Time) error {
	data := pageData{
		GeneratedAt: generatedAt,
		Summary:     Summarize(snap.History),
		LastFailed:  snap.LastFailed,
		History:     snap.History,
	}
	if err := pageTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render history page: %w", err)
	}
	return nil
}

// FormatDuration renders a duration in milliseconds for humans.
func FormatDuration(ms *int64) string {
	if ms == nil {
		return "-"
	}
	if *ms < 1000 {
		return fmt.Sprintf("%dms", *ms)
	}
	seconds := float64(*ms) / 1000.0
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	minutes := int(seconds / 60)
	secs := int(seconds) % 60
	return fmt.Sprintf("%dm %ds", minutes, secs)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func statusSymbol(status model.RunStatus) string {
	switch status {
	case model.RunStatusPassed:
		return "✓"
	case model.RunStatusFailed:
		return "✗"
	default:
		return "•"
	}
}

func exitText(a model.RunAttempt) string {
	switch {
	case a.Signal != nil:
		return *a.Signal
	case a.ExitCode != nil:
		return fmt.Sprintf("%d", *a.ExitCode)
	default:
		return "-"
	}
}

const historyTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Playwright Run History</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; color: #1f2328; }
h1 { margin-bottom: 0.25rem; }
.meta { color: #656d76; margin-bottom: 1.5rem; }
.cards { display: flex; gap: 1rem; margin-bottom: 1.5rem; }
.card { border: 1px solid #d0d7de; border-radius: 6px; padding: 0.75rem 1.25rem; min-width: 6rem; }
.card .value { font-size: 1.5rem; font-weight: 600; }
table { border-collapse: collapse; width: 100%; font-size: 0.9rem; }
th, td { border-bottom: 1px solid #d0d7de; padding: 0.4rem 0.6rem; text-align: left; vertical-align: top; }
th { background: #f6f8fa; }
td.command { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 0.8rem; word-break: break-all; }
.passed { color: #1a7f37; }
.failed { color: #cf222e; }
.running { color: #9a6700; }
.last-failed { border-left: 4px solid #cf222e; padding: 0.5rem 1rem; margin-bottom: 1.5rem; background: #fff8f8; }
</style>
</head>
<body>
<h1>Playwright Run History</h1>
<div class="meta">Generated {{formatTime .GeneratedAt}}</div>

<div class="cards">
  <div class="card"><div>Total</div><div class="value">{{.Summary.Total}}</div></div>
  <div class="card"><div>Passed</div><div class="value passed">{{.Summary.Passed}}</div></div>
  <div class="card"><div>Failed</div><div class="value failed">{{.Summary.Failed}}</div></div>
  <div class="card"><div>Running</div><div class="value running">{{.Summary.Running}}</div></div>
</div>

{{with .LastFailed}}
<div class="last-failed">
  <strong>Last failed:</strong> #{{.ID}} {{.Spec}} ({{.Project}}, {{.PresetTitle}}) at {{formatTime .StartedAt}}, exit {{exitText .}}
</div>
{{end}}

{{if .History}}
<table>
  <thead>
    <tr><th>#</th><th>Started</th><th>Spec</th><th>Project</th><th>Preset</th><th>Status</th><th>Exit</th><th>Duration</th><th>Command</th></tr>
  </thead>
  <tbody>
  {{range .History}}
    <tr>
      <td>{{.ID}}</td>
      <td>{{formatTime .StartedAt}}</td>
      <td>{{.Spec}}</td>
      <td>{{.Project}}</td>
      <td>{{.PresetTitle}}</td>
      <td class="{{.Status}}">{{statusSymbol .Status}} {{.Status}}</td>
      <td>{{exitText .}}</td>
      <td>{{formatDuration .DurationMs}}</td>
      <td class="command">{{.Command}}</td>
    </tr>
  {{end}}
  </tbody>
</table>
{{else}}
<p>No runs recorded yet.</p>
{{end}}
</body>
</html>
`
