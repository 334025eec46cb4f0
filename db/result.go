package db

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/LordWolfenstein/databass/core"
)

type ResultType int

const (
	QueryResultType ResultType = iota
	CommitResultType
)

// Result is what a single statement or operation produced.
type Result interface {
	Type() ResultType
	Display(w io.Writer)
}

type QueryResult struct {
	Columns     []string
	Rows        []core.Row
	RecordsRead int
	Elapsed     time.Duration
	Statements  int
}

type CommitResult struct {
	TablesCreated  int
	TablesAltered  int
	TablesDeleted  int
	RecordsWritten int
	RecordsUpdated int
	RecordsDeleted int
	RowsAffected   int64
	Elapsed        time.Duration
	Statements     int
}

func (QueryResult) Type() ResultType  { return QueryResultType }
func (CommitResult) Type() ResultType { return CommitResultType }

// formatDuration rounds d to a precision that suits its magnitude.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return "<1ms"
	case d < 10*time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < 10*time.Second:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	text := d.Truncate(time.Second).String()
	if strings.HasSuffix(text, "m0s") {
		text = strings.TrimSuffix(text, "0s")
	}
	return text
}

// timing renders the elapsed time, with a statement rate when one is known.
func timing(d time.Duration, statements int) string {
	text := formatDuration(d)
	if d <= 0 || statements <= 0 {
		return text
	}
	rate := float64(statements) / d.Seconds()
	switch {
	case rate >= 1e6:
		return fmt.Sprintf("%s, %.1fM stmt/s", text, rate/1e6)
	case rate >= 1e3:
		return fmt.Sprintf("%s, %.1fK stmt/s", text, rate/1e3)
	}
	return fmt.Sprintf("%s, %.0f stmt/s", text, rate)
}

func (result QueryResult) ExecutionTime() string {
	return formatDuration(result.Elapsed)
}

func (result CommitResult) ExecutionTime() string {
	return formatDuration(result.Elapsed)
}

// Data renders the rows as text in column order.
func (result QueryResult) Data() [][]string {
	data := make([][]string, len(result.Rows))
	for i, row := range result.Rows {
		cells := make([]string, len(result.Columns))
		for j, column := range result.Columns {
			cells[j] = FormatValue(row[column])
		}
		data[i] = cells
	}
	return data
}

// FormatValue renders a single value for display.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.DateTime)
	default:
		return fmt.Sprint(v)
	}
}

func (result QueryResult) Display(w io.Writer) {
	if len(result.Rows) > 0 {
		table := NewTable(w)
		table.Header(result.Columns)
		table.Bulk(result.Data())
		table.Render()
	}
	fmt.Fprintf(w, "%d rows (%s)\n", result.RecordsRead, timing(result.Elapsed, result.Statements))
}

// Summary lists the non-zero counters, for example "2 table(s) created".
func (result CommitResult) Summary() string {
	counters := []struct {
		n    int
		what string
	}{
		{result.TablesCreated, "table(s) created"},
		{result.TablesAltered, "table(s) altered"},
		{result.TablesDeleted, "table(s) deleted"},
		{result.RecordsWritten, "record(s) written"},
		{result.RecordsUpdated, "record(s) updated"},
		{result.RecordsDeleted, "record(s) deleted"},
	}

	var parts []string
	for _, c := range counters {
		if c.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c.n, c.what))
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	if result.RowsAffected > 0 {
		return fmt.Sprintf("%d row(s) affected", result.RowsAffected)
	}
	return "OK"
}

func (result CommitResult) Display(w io.Writer) {
	fmt.Fprintf(w, "%s (%s)\n", result.Summary(), timing(result.Elapsed, result.Statements))
}
