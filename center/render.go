package center

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

// FormatDuration renders whole minutes and seconds, e.g. "1m 5s".
func FormatDuration(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}

// Render returns one dashboard frame.
func (c *Center) Render() string {
	r := lipgloss.NewRenderer(c.opts.Out)
	r.SetColorProfile(c.output.Profile)

	title := r.NewStyle().Foreground(purple).Bold(true)
	muted := r.NewStyle().Foreground(dim)
	stateStyles := map[State]lipgloss.Style{
		StateQueued:  muted,
		StateRunning: r.NewStyle().Foreground(yellow),
		StatePassed:  r.NewStyle().Foreground(green),
		StateFailed:  r.NewStyle().Foreground(red),
	}

	groups := c.Groups()
	rows := make([][]string, 0, len(groups))
	for i, g := range groups {
		exit := "-"
		if g.ExitCode != nil {
			exit = strconv.Itoa(*g.ExitCode)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			g.Name,
			strconv.Itoa(len(g.Specs)),
			string(g.State),
			FormatDuration(g.Duration),
			exit,
		})
	}

	cell := r.NewStyle().Padding(0, 1)
	header := cell.Foreground(purple).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.NewStyle().Foreground(faint)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if col == 3 && row >= 0 && row < len(groups) {
				return cell.Inherit(stateStyles[groups[row].State])
			}
			return cell
		}).
		Headers("Worker", "Scenario Group", "Specs", "State", "Duration", "Exit").
		Rows(rows...)

	runner := strings.Join(c.opts.Runner, " ")

	var sb strings.Builder
	sb.WriteString(title.Render("Playwright Command Center") + "\n")
	sb.WriteString(muted.Render("Updated: "+c.now().Format("2006-01-02 15:04:05")) + "\n\n")
	sb.WriteString(t.String() + "\n\n")
	fmt.Fprintf(&sb, "Playwright projects: %s | Retries: %d\n", strings.Join(c.opts.Projects, ", "), c.opts.Retries)
	fmt.Fprintf(&sb, "Worker logs are saved to %s\n", muted.Render(c.opts.ResultsDir+"/*.log"))
	fmt.Fprintf(&sb, "HTML report: %s show-report\n", runner)
	return sb.String()
}
