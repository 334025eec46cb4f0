package db

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/LordWolfenstein/databass/core"
)

func TestQueryResultDisplay(t *testing.T) {
	result := QueryResult{
		Columns:     []string{"id", "text"},
		Rows:        []core.Row{{"id": int64(1), "text": "a"}, {"id": int64(2), "text": nil}},
		RecordsRead: 2,
	}

	var buf bytes.Buffer
	result.Display(&buf)
	output := buf.String()

	for _, want := range []string{"| id | text |", "| 1  | a    |", "| 2  | NULL |", "2 rows"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output:\n%s", want, output)
		}
	}
}

func TestQueryResultDisplayEmpty(t *testing.T) {
	var buf bytes.Buffer
	QueryResult{Columns: []string{"id"}}.Display(&buf)

	if strings.Contains(buf.String(), "+") {
		t.Errorf("Expected no table for an empty result, got:\n%s", buf.String())
	}
	if !strings.HasPrefix(buf.String(), "0 rows") {
		t.Errorf("Unexpected output %q", buf.String())
	}
}

func TestCommitResultDisplay(t *testing.T) {
	tests := []struct {
		name   string
		result CommitResult
		want   string
	}{
		{"created", CommitResult{TablesCreated: 2}, "2 table(s) created"},
		{"mixed", CommitResult{RecordsWritten: 3, RecordsDeleted: 1}, "3 record(s) written, 1 record(s) deleted"},
		{"raw", CommitResult{RowsAffected: 5}, "5 row(s) affected"},
		{"nothing", CommitResult{}, "OK"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.result.Display(&buf)
			if !strings.HasPrefix(buf.String(), tt.want) {
				t.Errorf("Expected output starting with %q, got %q", tt.want, buf.String())
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		value any
		want  string
	}{
		{nil, "NULL"},
		{[]byte("raw"), "raw"},
		{when, "2024-03-01 12:30:00"},
		{int64(42), "42"},
		{2.5, "2.5"},
		{true, "true"},
	}

	for _, tt := range tests {
		if got := FormatValue(tt.value); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, expected %q", tt.value, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{100 * time.Microsecond, "<1ms"},
		{5 * time.Millisecond, "5.0ms"},
		{250 * time.Millisecond, "250ms"},
		{3500 * time.Millisecond, "3.5s"},
		{42 * time.Second, "42s"},
		{2 * time.Minute, "2m"},
		{125 * time.Second, "2m5s"},
		{time.Hour + 30*time.Second, "1h0m30s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, expected %q", tt.d, got, tt.want)
		}
	}
}

func TestTimingRate(t *testing.T) {
	if got := timing(2*time.Second, 4000); got != "2.0s, 2.0K stmt/s" {
		t.Errorf("Unexpected timing %q", got)
	}
	if got := timing(0, 5); got != "<1ms" {
		t.Errorf("Expected no rate for zero duration, got %q", got)
	}
}

func TestShorten(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer piece of text", 10, "a longe..."},
		{"two\nlines", 0, "two lines"},
		{"ÅÄÖÅÄÖ", 5, "ÅÄ..."},
		{"abcdef", 2, "ab"},
	}

	for _, tt := range tests {
		if got := Shorten(tt.text, tt.width); got != tt.want {
			t.Errorf("Shorten(%q, %d) = %q, expected %q", tt.text, tt.width, got, tt.want)
		}
	}
}

func TestSimpleTableShortensCells(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf)
	table.MaxWidth(8)
	table.Header([]string{"value"})
	table.Row([]string{strings.Repeat("x", 20)})
	table.Render()

	if !strings.Contains(buf.String(), "| xxxxx... |") {
		t.Errorf("Expected shortened cell, got:\n%s", buf.String())
	}
}
