package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/redmonkez12/todo-app/internal/todo"
)

const idWidth = 8

const (
	colID = iota
	colDone
	colTitle
	colPriority
	colDue
)

// EntryTable renders entries as a bordered table. now decides which due dates are overdue.
func EntryTable(entries []todo.Entry, now time.Time) string {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{ShortID(e.ID), check(e.Completed), e.Title, string(e.Priority), dueText(e.DueDate)}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(subtleStyle).
		Headers("ID", "", "TITLE", "PRIORITY", "DUE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row < 0 || row >= len(entries) {
				return cellStyle
			}
			e := entries[row]
			switch {
			case e.Completed:
				return doneStyle
			case col == colPriority:
				return cellStyle.Foreground(priorityColors[string(e.Priority)])
			case col == colDue && overdue(e, now):
				return overdueStyle
			}
			return cellStyle
		})

	return t.Render()
}

// PrintEntries writes the table, or a hint when there is nothing to show
func PrintEntries(w io.Writer, heading string, entries []todo.Entry, now time.Time) {
	fmt.Fprintln(w, titleStyle.Render(heading))
	if len(entries) == 0 {
		fmt.Fprintln(w, subtleStyle.Render("  nothing to do"))
		return
	}
	fmt.Fprintln(w, EntryTable(entries, now))
}

// PrintEntry prints one entry with its description
func PrintEntry(w io.Writer, e todo.Entry) {
	fmt.Fprintf(w, "%s %s  %s\n", check(e.Completed), titleStyle.UnsetMarginBottom().Render(e.Title), subtleStyle.Render(e.ID))
	if e.Description != "" {
		fmt.Fprintf(w, "  %s\n", e.Description)
	}
	fmt.Fprintf(w, "  priority: %s  due: %s\n", e.Priority, dueText(e.DueDate))
}

func PrintSuccess(w io.Writer, msg string) {
	fmt.Fprintln(w, successStyle.Render(msg))
}

func PrintNote(w io.Writer, msg string) {
	fmt.Fprintln(w, subtleStyle.Render(msg))
}

func PrintError(w io.Writer, msg string) {
	fmt.Fprintln(w, errorStyle.Render("Error: "+msg))
}

// ShortID trims an id to its first characters, which is enough to address it
func ShortID(id string) string {
	if len(id) <= idWidth {
		return id
	}
	return id[:idWidth]
}

func check(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

func dueText(due *int64) string {
	if due == nil {
		return "-"
	}
	return time.UnixMilli(*due).Local().Format("2006-01-02 15:04")
}

func overdue(e todo.Entry, now time.Time) bool {
	return e.DueDate != nil && !e.Completed && time.UnixMilli(*e.DueDate).Before(now)
}
