package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/verte-zerg/rizexist/internal/model"
)

const errorWidth = 60

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	titleStyle = lipgloss.NewStyle().Bold(true)
)

// Printer writes reports to one writer.
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter returns a Printer. Color is used only when w is a terminal and
// NO_COLOR is unset, unless force is true.
func NewPrinter(w io.Writer, force bool) *Printer {
	return &Printer{w: w, color: ShouldUseColor(w, force)}
}

// ShouldUseColor reports whether styled output suits w.
func ShouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	return IsTerminal(w)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p *Printer) status(ok bool, okText, failText string) string {
	if ok {
		return p.style(okStyle, okText)
	}
	return p.style(failStyle, failText)
}

func (p *Printer) writeLines(lines ...string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(p.w, line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

// Days prints one block per synced date.
func (p *Printer) Days(results []model.DayResult) error {
	for i, day := range results {
		if i > 0 {
			if err := p.writeLines(""); err != nil {
				return err
			}
		}
		if err := p.day(day); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) day(day model.DayResult) error {
	title := day.Date.Format(model.DateLayout)
	if day.DryRun {
		title += " (dry run)"
	}
	if day.FetchErr != nil {
		return p.writeLines(
			p.style(titleStyle, title)+" "+p.status(false, "", "fetch failed"),
			p.style(mutedStyle, "  "+day.FetchErr.Error()),
		)
	}

	summary := fmt.Sprintf("%d written, %d failed", day.Succeeded, day.Failed)
	if day.DryRun {
		summary = fmt.Sprintf("%d computed", day.Succeeded)
	}
	lines := []string{p.style(titleStyle, title) + " " + p.status(day.OK(), "ok", "failed") + " " + p.style(mutedStyle, summary)}

	table := Table{
		Headers: []string{"Attribute", "Raw", "Value", "Status"},
		Columns: map[int]Column{1: {Right: true}, 2: {Right: true}, 3: {Max: errorWidth}},
	}
	for _, u := range day.Updates {
		status := "ok"
		if u.Err != nil {
			status = "error: " + u.Err.Error()
		} else if day.DryRun {
			status = "skipped"
		}
		table.Add(u.Attribute, strconv.FormatInt(u.Raw, 10), strconv.FormatInt(u.Value, 10), status)
	}
	for _, line := range table.Lines() {
		lines = append(lines, "  "+line)
	}
	return p.writeLines(lines...)
}

// Tally prints a provisioning outcome line.
func (p *Printer) Tally(mode string, succeeded, failed, skipped int) error {
	line := fmt.Sprintf("%s: %d done, %d failed, %d skipped", mode, succeeded, failed, skipped)
	return p.writeLines(p.status(failed == 0, line, line))
}

// Attributes prints owned attributes.
func (p *Printer) Attributes(attrs []model.Attribute) error {
	if len(attrs) == 0 {
		return p.writeLines(p.style(mutedStyle, "no owned attributes"))
	}
	table := Table{Headers: []string{"Name", "Label", "Group", "Type", "Active"}}
	for _, a := range attrs {
		table.Add(a.Name, a.Label, a.Group, valueTypeName(a.ValueType), yesNo(a.Active))
	}
	return p.writeLines(table.Lines()...)
}

// History prints journaled runs with their per-date outcomes.
func (p *Printer) History(runs []model.RunEntry, days []model.DayEntry) error {
	if len(runs) == 0 {
		return p.writeLines(p.style(mutedStyle, "no runs recorded"))
	}
	table := Table{
		Headers: HistoryHeaders(),
		Columns: map[int]Column{4: {Right: true}, 5: {Right: true}, 6: {Max: errorWidth}},
	}
	for _, row := range HistoryRows(runs, days) {
		table.Add(row...)
	}
	return p.writeLines(table.Lines()...)
}

// HistoryHeaders names the columns of HistoryRows.
func HistoryHeaders() []string {
	return []string{"Started", "Mode", "Status", "Date", "Written", "Failed", "Error"}
}

// HistoryRows flattens runs and days into table rows, one per journaled date.
// Runs without dates get a single row.
func HistoryRows(runs []model.RunEntry, days []model.DayEntry) [][]string {
	byRun := make(map[string][]model.DayEntry, len(runs))
	for _, d := range days {
		byRun[d.RunID] = append(byRun[d.RunID], d)
	}
	var rows [][]string
	for _, run := range runs {
		base := []string{run.StartedAt.Local().Format(time.DateTime), run.Mode, runStatus(run)}
		entries := byRun[run.ID]
		if len(entries) == 0 {
			rows = append(rows, append(base, "", "", "", ""))
			continue
		}
		for _, d := range entries {
			rows = append(rows, append(append([]string(nil), base...),
				d.Date,
				strconv.Itoa(d.Succeeded),
				strconv.Itoa(d.Failed),
				oneLine(d.Error),
			))
		}
	}
	return rows
}

func runStatus(run model.RunEntry) string {
	switch {
	case run.FinishedAt.IsZero():
		return "incomplete"
	case run.OK:
		return "ok"
	default:
		return "failed"
	}
}

var valueTypeNames = []string{"integer", "float", "string", "duration", "percentage", "boolean", "scale", "time"}

func valueTypeName(code int) string {
	if code >= 0 && code < len(valueTypeNames) {
		return valueTypeNames[code]
	}
	return strconv.Itoa(code)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
