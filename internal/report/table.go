// Package report renders sync outcomes and journal listings as plain tables.
package report

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const ellipsis = "..."

// Column controls how one table column is laid out.
type Column struct {
	Right bool
	// Max caps the cell width; wider cells are cut with an ellipsis. Zero means no cap.
	Max int
}

// Table collects rows and renders them as aligned, single-line text.
type Table struct {
	Headers []string
	Columns map[int]Column

	rows [][]string
}

// Add appends a row. Embedded newlines and runs of spaces collapse to one space.
func (t *Table) Add(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows added.
func (t *Table) Len() int {
	return len(t.rows)
}

// Lines renders the header line, when there are headers, followed by every row.
func (t *Table) Lines() []string {
	all := make([][]string, 0, len(t.rows)+1)
	if len(t.Headers) > 0 {
		all = append(all, t.Headers)
	}
	all = append(all, t.rows...)

	cells := make([][]string, len(all))
	var widths []int
	for r, row := range all {
		cells[r] = make([]string, len(row))
		for c, raw := range row {
			cell := t.fit(c, raw)
			cells[r][c] = cell
			for len(widths) <= c {
				widths = append(widths, 0)
			}
			if w := runewidth.StringWidth(cell); w > widths[c] {
				widths[c] = w
			}
		}
	}
	if len(widths) == 0 {
		return nil
	}

	lines := make([]string, len(cells))
	var b strings.Builder
	for r, row := range cells {
		b.Reset()
		for c, width := range widths {
			if c > 0 {
				b.WriteByte(' ')
			}
			cell := ""
			if c < len(row) {
				cell = row[c]
			}
			gap := strings.Repeat(" ", width-runewidth.StringWidth(cell))
			if t.Columns[c].Right {
				b.WriteString(gap + cell)
			} else {
				b.WriteString(cell + gap)
			}
		}
		lines[r] = strings.TrimRight(b.String(), " ")
	}
	return lines
}

func (t *Table) fit(col int, raw string) string {
	cell := strings.Join(strings.Fields(raw), " ")
	limit := t.Columns[col].Max
	if limit <= 0 || runewidth.StringWidth(cell) <= limit {
		return cell
	}
	if limit <= len(ellipsis) {
		return runewidth.Truncate(cell, limit, "")
	}
	return runewidth.Truncate(cell, limit, ellipsis)
}
