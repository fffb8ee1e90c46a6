// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"offtask/internal/connectivity"
	"offtask/internal/reconcile"
	"offtask/internal/service"
)

const (
	// ListSeparator is the separator line for list sections.
	ListSeparator = "------------"
)

// FormatTask formats a task line.
// Format: "{ID:>13}  {TEXT}\n" (13-wide right-aligned id, two spaces, text)
func FormatTask(w io.Writer, task service.Task) {
	fmt.Fprintf(w, "%13d  %s\n", task.ID, normalizeText(task.Text))
}

// FormatTasks writes tasks newest first without reordering the caller's slice.
func FormatTasks(w io.Writer, tasks []service.Task) {
	sorted := make([]service.Task, len(tasks))
	copy(sorted, tasks)
	service.SortNewestFirst(sorted)
	for _, t := range sorted {
		FormatTask(w, t)
	}
}

// FormatSectionHeader formats a section header.
func FormatSectionHeader(w io.Writer, title string) {
	fmt.Fprintln(w, ListSeparator)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, ListSeparator)
}

// FormatPending formats one queued operation.
// Format: "{OP:<6}  {ID:>13}  {TEXT}" plus " (attempts N)" once it has failed.
func FormatPending(w io.Writer, op reconcile.PendingOperation) {
	line := fmt.Sprintf("%-6s  %13d  %s", op.Op, op.Task.ID, normalizeText(op.Task.Text))
	if op.Attempts > 0 {
		line += fmt.Sprintf(" (attempts %d)", op.Attempts)
	}
	fmt.Fprintln(w, line)
}

// FormatStatus formats the connectivity indicator.
func FormatStatus(w io.Writer, status connectivity.Status) {
	fmt.Fprintf(w, "status: %s\n", status)
}

// FormatReport formats the summary of a replay pass.
func FormatReport(w io.Writer, r reconcile.Report) {
	fmt.Fprintf(w, "synced %d, failed %d, waiting %d, dead lettered %d\n",
		r.Synced, r.Failed, r.Skipped, r.DeadLettered)
}

// TaskRenderer redraws the task list on every change.
// It is safe for concurrent use.
type TaskRenderer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTaskRenderer returns a renderer writing to w.
func NewTaskRenderer(w io.Writer) *TaskRenderer {
	return &TaskRenderer{w: w}
}

// Render implements reconcile.Renderer.
func (r *TaskRenderer) Render(tasks []service.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	FormatSectionHeader(r.w, fmt.Sprintf("tasks (%d)", len(tasks)))
	if len(tasks) == 0 {
		fmt.Fprintln(r.w, "no tasks")
		return
	}
	FormatTasks(r.w, tasks)
}

// Status prints a status change; it matches connectivity.StatusFunc.
func (r *TaskRenderer) Status(s connectivity.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	FormatStatus(r.w, s)
}

// normalizeText normalizes task text for display.
// - Empty or whitespace-only text becomes "(untitled)"
// - Newlines are replaced with spaces
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r", " ")
	text = strings.ReplaceAll(text, "\n", " ")

	if strings.TrimSpace(text) == "" {
		return "(untitled)"
	}
	return text
}
