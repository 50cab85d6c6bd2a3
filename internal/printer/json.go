package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/tasksync/internal/model"
)

// JSONPrinter prints task information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// taskOutput represents a task in the JSON output.
type taskOutput struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority,omitempty"`
	Owner       string     `json:"owner,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	ExternalRef string     `json:"external_ref,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// syncResultOutput represents a sync run summary in the JSON output.
type syncResultOutput struct {
	RunID                  string   `json:"run_id"`
	ThreadsCreated         int      `json:"threads_created"`
	ThreadNamesUpdated     int      `json:"thread_names_updated"`
	StarterMessagesUpdated int      `json:"starter_messages_updated"`
	TagsUpdated            int      `json:"tags_updated"`
	ThreadsArchived        int      `json:"threads_archived"`
	ThreadsReconciled      int      `json:"threads_reconciled"`
	OrphanThreadsFound     int      `json:"orphan_threads_found"`
	ClosesDeferred         int      `json:"closes_deferred"`
	Warnings               []string `json:"warnings,omitempty"`
	DurationMS             int64    `json:"duration_ms"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintTaskList prints tasks in JSON format.
func (j *JSONPrinter) PrintTaskList(tasks []model.Task) error {
	items := make([]taskOutput, len(tasks))
	for i, t := range tasks {
		items[i] = newTaskOutput(t)
	}
	return j.print(items)
}

// PrintTask prints a single task in JSON format.
func (j *JSONPrinter) PrintTask(task model.Task) error {
	return j.print(newTaskOutput(task))
}

// PrintSyncResult prints a sync run summary in JSON format.
func (j *JSONPrinter) PrintSyncResult(result model.SyncResult) error {
	return j.print(syncResultOutput{
		RunID:                  result.RunID,
		ThreadsCreated:         result.ThreadsCreated,
		ThreadNamesUpdated:     result.ThreadNamesUpdated,
		StarterMessagesUpdated: result.StarterMessagesUpdated,
		TagsUpdated:            result.TagsUpdated,
		ThreadsArchived:        result.ThreadsArchived,
		ThreadsReconciled:      result.ThreadsReconciled,
		OrphanThreadsFound:     result.OrphanThreadsFound,
		ClosesDeferred:         result.ClosesDeferred,
		Warnings:               result.Warnings,
		DurationMS:             result.Duration.Milliseconds(),
	})
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.print(messageOutput{Message: msg})
}

func (j *JSONPrinter) print(v interface{}) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTaskOutput(t model.Task) taskOutput {
	return taskOutput{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    t.Priority,
		Owner:       t.Owner,
		Labels:      t.Labels,
		ExternalRef: t.ExternalRef,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		ClosedAt:    t.ClosedAt,
	}
}
