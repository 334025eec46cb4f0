package db

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// DefaultCellWidth is the widest a cell is printed before it is shortened.
const DefaultCellWidth = 40

// SimpleTable prints rows as a boxed text table
type SimpleTable struct {
	writer   io.Writer
	headers  []string
	rows     [][]string
	maxWidth int
}

func NewTable(w io.Writer) *SimpleTable {
	return &SimpleTable{
		writer:   w,
		maxWidth: DefaultCellWidth,
	}
}

// MaxWidth sets the widest cell; 0 disables shortening.
func (t *SimpleTable) MaxWidth(width int) {
	t.maxWidth = width
}

func (t *SimpleTable) Header(headers []string) {
	t.headers = headers
}

func (t *SimpleTable) Row(row []string) {
	t.rows = append(t.rows, row)
}

func (t *SimpleTable) Bulk(rows [][]string) {
	t.rows = append(t.rows, rows...)
}

// Shorten cuts text to at most width runes, marking the cut with "...".
func Shorten(text string, width int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	if width <= 0 || utf8.RuneCountInString(text) <= width {
		return text
	}
	if width <= 3 {
		return string([]rune(text)[:width])
	}
	return string([]rune(text)[:width-3]) + "..."
}

func (t *SimpleTable) Render() {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return
	}

	headers := t.shortenRow(t.headers)
	rows := make([][]string, len(t.rows))
	for i, row := range t.rows {
		rows[i] = t.shortenRow(row)
	}

	widths := calculateWidths(headers, rows)
	separator := buildSeparator(widths)

	fmt.Fprintln(t.writer, separator)
	if len(headers) > 0 {
		fmt.Fprintln(t.writer, formatRow(headers, widths))
		fmt.Fprintln(t.writer, separator)
	}
	for _, row := range rows {
		fmt.Fprintln(t.writer, formatRow(row, widths))
	}
	fmt.Fprintln(t.writer, separator)
}

func (t *SimpleTable) shortenRow(row []string) []string {
	shortened := make([]string, len(row))
	for i, cell := range row {
		shortened[i] = Shorten(cell, t.maxWidth)
	}
	return shortened
}

func calculateWidths(headers []string, rows [][]string) []int {
	numCols := len(headers)
	for _, row := range rows {
		if len(row) > numCols {
			numCols = len(row)
		}
	}

	widths := make([]int, numCols)
	measure := func(row []string) {
		for i, cell := range row {
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}
	measure(headers)
	for _, row := range rows {
		measure(row)
	}

	for i := range widths {
		if widths[i] < 1 {
			widths[i] = 1
		}
	}
	return widths
}

func buildSeparator(widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = strings.Repeat("-", w+2)
	}
	return "+" + strings.Join(parts, "+") + "+"
}

func formatRow(row []string, widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		parts[i] = " " + cell + strings.Repeat(" ", w-utf8.RuneCountInString(cell)+1)
	}
	return "|" + strings.Join(parts, "|") + "|"
}
