package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/redmonkez12/todo-app/internal/todo"
)

func TestEntryTable(t *testing.T) {
	due := time.Date(2026, 1, 2, 9, 0, 0, 0, time.Local).UnixMilli()
	entries := []todo.Entry{
		{ID: "0123456789abcdef", Title: "write report", Priority: todo.PriorityHigh, DueDate: &due},
		{ID: "fedcba98", Title: "buy milk", Priority: todo.PriorityLow, Completed: true},
	}

	out := EntryTable(entries, time.Date(2026, 6, 1, 0, 0, 0, 0, time.Local))

	for _, want := range []string{"01234567", "write report", "high", "2026-01-02 09:00", "buy milk", "[x]"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0123456789abcdef") {
		t.Error("table should show short ids")
	}
}

func TestPrintEntries_Empty(t *testing.T) {
	var buf bytes.Buffer
	PrintEntries(&buf, "Guest entries", nil, time.Now())
	if !strings.Contains(buf.String(), "nothing to do") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestOverdue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour).UnixMilli()
	future := now.Add(time.Hour).UnixMilli()

	tests := []struct {
		name  string
		entry todo.Entry
		want  bool
	}{
		{"no due date", todo.Entry{}, false},
		{"past", todo.Entry{DueDate: &past}, true},
		{"past but done", todo.Entry{DueDate: &past, Completed: true}, false},
		{"future", todo.Entry{DueDate: &future}, false},
	}
	for _, tt := range tests {
		if got := overdue(tt.entry, now); got != tt.want {
			t.Errorf("%s: overdue() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
