package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/slok/tasksync/internal/model"
)

// TablePrinter prints task information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintTaskList prints tasks in a table format.
func (t *TablePrinter) PrintTaskList(tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tLABELS\tTHREAD\tUPDATED")

	// Print rows.
	for _, task := range tasks {
		thread := task.ExternalRef
		if thread == "" {
			thread = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			task.ID, task.Title, task.Status,
			strings.Join(task.Labels, ","), thread, TimeAgo(task.UpdatedAt))
	}

	return nil
}

// PrintTask prints detailed task information.
func (t *TablePrinter) PrintTask(task model.Task) error {
	fmt.Fprintf(t.writer, "ID:          %s\n", task.ID)
	fmt.Fprintf(t.writer, "Title:       %s\n", task.Title)
	fmt.Fprintf(t.writer, "Status:      %s\n", task.Status)
	if task.Description != "" {
		fmt.Fprintf(t.writer, "Description: %s\n", task.Description)
	}
	if task.Owner != "" {
		fmt.Fprintf(t.writer, "Owner:       %s\n", task.Owner)
	}
	if len(task.Labels) > 0 {
		fmt.Fprintf(t.writer, "Labels:      %s\n", strings.Join(task.Labels, ", "))
	}
	if task.ExternalRef != "" {
		fmt.Fprintf(t.writer, "Thread:      %s\n", task.ExternalRef)
	}
	fmt.Fprintf(t.writer, "Created:     %s\n", FormatTimestamp(task.CreatedAt))
	fmt.Fprintf(t.writer, "Updated:     %s\n", FormatTimestamp(task.UpdatedAt))
	if task.ClosedAt != nil {
		fmt.Fprintf(t.writer, "Closed:      %s\n", FormatTimestamp(*task.ClosedAt))
	}

	return nil
}

// PrintSyncResult prints a sync run summary.
func (t *TablePrinter) PrintSyncResult(result model.SyncResult) error {
	fmt.Fprintf(t.writer, "Run:              %s\n", result.RunID)
	fmt.Fprintf(t.writer, "Duration:         %s\n", result.Duration)
	fmt.Fprintf(t.writer, "Created:          %d\n", result.ThreadsCreated)
	fmt.Fprintf(t.writer, "Renamed:          %d\n", result.ThreadNamesUpdated)
	fmt.Fprintf(t.writer, "Starter updates:  %d\n", result.StarterMessagesUpdated)
	fmt.Fprintf(t.writer, "Tag updates:      %d\n", result.TagsUpdated)
	fmt.Fprintf(t.writer, "Archived:         %d\n", result.ThreadsArchived)
	fmt.Fprintf(t.writer, "Reconciled:       %d\n", result.ThreadsReconciled)
	fmt.Fprintf(t.writer, "Orphans:          %d\n", result.OrphanThreadsFound)
	fmt.Fprintf(t.writer, "Closes deferred:  %d\n", result.ClosesDeferred)

	for _, w := range result.Warnings {
		fmt.Fprintf(t.writer, "Warning: %s\n", w)
	}

	return nil
}

// PrintMessage prints a simple message.
func (t *TablePrinter) PrintMessage(msg string) error {
	_, err := fmt.Fprintln(t.writer, msg)
	return err
}
