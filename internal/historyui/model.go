// Package historyui provides the Bubble Tea sync journal browser.
package historyui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/rizexist/internal/model"
	"github.com/verte-zerg/rizexist/internal/report"
)

const (
	tabRuns = iota
	tabDetail
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Journal is the read side of the sync journal.
type Journal interface {
	ListRuns(ctx context.Context, cfg model.HistoryConfig) ([]model.RunEntry, error)
	ListDays(ctx context.Context, runIDs []string) ([]model.DayEntry, error)
	ListUpdates(ctx context.Context, runID, date string) ([]model.UpdateEntry, error)
}

// row ties a table row back to its journal keys.
type row struct {
	runID string
	date  string
}

// Model implements the Bubble Tea history UI.
type Model struct {
	journal Journal
	cfg     model.HistoryConfig

	runs   []model.RunEntry
	days   []model.DayEntry
	keys   []row
	errMsg string

	tabs      []string
	activeTab int
	runTable  table.Model
	detail    viewport.Model

	width  int
	height int
}

// NewModel constructs a history UI model and loads the journal.
func NewModel(journal Journal, cfg model.HistoryConfig) *Model {
	m := &Model{
		journal: journal,
		cfg:     cfg,
		tabs:    []string{"Runs", "Details"},
		detail:  viewport.New(0, 0),
	}
	m.runTable = table.New(
		table.WithColumns(columns(0)),
		table.WithFocused(true),
		table.WithHeight(1),
	)
	m.runTable.SetStyles(tableStyles())
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			return m, tea.Quit
		}
		switch msg.String() {
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "enter":
			if m.activeTab == tabRuns {
				m.moveTab(1)
				return m, tea.ClearScreen
			}
			return m, nil
		case "esc":
			if m.activeTab == tabDetail {
				m.moveTab(-1)
				return m, tea.ClearScreen
			}
			return m, nil
		case "r":
			m.refresh()
			m.updateLayout()
			return m, nil
		case "g", "home":
			if m.activeTab == tabRuns {
				m.runTable.GotoTop()
			} else {
				m.detail.GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabRuns {
				m.runTable.GotoBottom()
			} else {
				m.detail.GotoBottom()
			}
			return m, nil
		}
		var cmd tea.Cmd
		if m.activeTab == tabRuns {
			m.runTable, cmd = m.runTable.Update(msg)
		} else {
			m.detail, cmd = m.detail.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderTabs(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

// Selected returns the run id and date under the cursor.
func (m *Model) Selected() (runID, date string, ok bool) {
	idx := m.runTable.Cursor()
	if idx < 0 || idx >= len(m.keys) {
		return "", "", false
	}
	return m.keys[idx].runID, m.keys[idx].date, true
}

func (m *Model) refresh() {
	ctx := context.Background()
	m.errMsg = ""
	runs, err := m.journal.ListRuns(ctx, m.cfg)
	if err != nil {
		m.errMsg = fmt.Sprintf("Failed to load runs: %v", err)
		return
	}
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	days, err := m.journal.ListDays(ctx, ids)
	if err != nil {
		m.errMsg = fmt.Sprintf("Failed to load days: %v", err)
		return
	}
	m.runs = runs
	m.days = days
	m.keys = rowKeys(runs, days)

	rows := report.HistoryRows(runs, days)
	tableRows := make([]table.Row, len(rows))
	for i, r := range rows {
		tableRows[i] = table.Row(r)
	}
	m.runTable.SetRows(tableRows)
	if m.runTable.Cursor() >= len(tableRows) {
		m.runTable.GotoTop()
	}
}

// rowKeys mirrors the row order of report.HistoryRows.
func rowKeys(runs []model.RunEntry, days []model.DayEntry) []row {
	byRun := make(map[string][]model.DayEntry, len(runs))
	for _, d := range days {
		byRun[d.RunID] = append(byRun[d.RunID], d)
	}
	var keys []row
	for _, run := range runs {
		entries := byRun[run.ID]
		if len(entries) == 0 {
			keys = append(keys, row{runID: run.ID})
			continue
		}
		for _, d := range entries {
			keys = append(keys, row{runID: run.ID, date: d.Date})
		}
	}
	return keys
}

func (m *Model) loadDetail() {
	runID, date, ok := m.Selected()
	if !ok {
		m.detail.SetContent("No run selected.")
		return
	}
	if date == "" {
		m.detail.SetContent(fmt.Sprintf("Run %s recorded no dates.", runID))
		return
	}
	updates, err := m.journal.ListUpdates(context.Background(), runID, date)
	if err != nil {
		m.detail.SetContent(errorStyle.Render(fmt.Sprintf("Failed to load updates: %v", err)))
		return
	}
	m.detail.SetContent(renderDetail(runID, date, updates))
}

func renderDetail(runID, date string, updates []model.UpdateEntry) string {
	lines := []string{headerStyle.Render(fmt.Sprintf("Run %s  Date %s", runID, date)), ""}
	if len(updates) == 0 {
		return strings.Join(append(lines, "No attribute writes recorded."), "\n")
	}
	table := report.Table{
		Headers: []string{"Attribute", "Value", "Status"},
		Columns: map[int]report.Column{1: {Right: true}},
	}
	for _, u := range updates {
		status := "ok"
		if u.Error != "" {
			status = "error: " + u.Error
		}
		table.Add(u.Attribute, strconv.FormatInt(u.Value, 10), status)
	}
	lines = append(lines, table.Lines()...)
	return strings.Join(lines, "\n")
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	if count == 0 {
		return
	}
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	if m.activeTab == tabDetail {
		m.runTable.Blur()
		m.loadDetail()
		m.detail.GotoTop()
	} else {
		m.runTable.Focus()
	}
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	headerHeight = lipgloss.Height(activeNavStyle.Render("X"))
	if headerHeight < 1 {
		headerHeight = 1
	}
	footerHeight = 1
	if m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.runTable.SetColumns(columns(m.width))
	m.runTable.SetWidth(m.width)
	m.runTable.SetHeight(maxInt(1, bodyHeight-1))
	m.detail.Width = m.width
	m.detail.Height = bodyHeight
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderBody() string {
	if m.activeTab == tabDetail {
		return m.detail.View()
	}
	if len(m.runs) == 0 {
		return "No runs recorded."
	}
	return tableMutedStyle.Render(m.runTable.View())
}

func (m *Model) renderFooter() string {
	help := "Nav: left/right  Move: up/down  Details: enter  Reload: r  Quit: q"
	if m.activeTab == tabDetail {
		help = "Back: esc  Scroll: up/down/pgup/pgdn  Reload: r  Quit: q"
	}
	help = headerStyle.Render(truncateLine(help, m.width))
	if m.errMsg != "" {
		return help + "\n" + errorStyle.Render(m.errMsg)
	}
	return help
}

// columns sizes the history columns, giving the error column what is left.
func columns(width int) []table.Column {
	headers := report.HistoryHeaders()
	fixed := []int{19, 7, 10, 10, 7, 6}
	cols := make([]table.Column, len(headers))
	used := 0
	for i := range fixed {
		cols[i] = table.Column{Title: headers[i], Width: fixed[i]}
		used += fixed[i] + 1
	}
	cols[len(headers)-1] = table.Column{Title: headers[len(headers)-1], Width: maxInt(10, width-used)}
	return cols
}

func tableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
