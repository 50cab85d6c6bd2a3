package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusClosed     TaskStatus = "closed"
)

// NoThreadLabel marks a task that must never get a remote thread.
const NoThreadLabel = "no-thread"

// Task is the authoritative local record of a unit of work.
//
// ID has the form `<workspace-prefix>-<zero-padded-sequence>` and is immutable
// once assigned. ExternalRef points at the remote thread representing this task
// and, once set, identifies exactly one thread for the task's lifetime unless
// explicitly cleared.
type Task struct {
	ID          string
	Title       string
	Description string
	Status      TaskStatus
	Priority    int
	Owner       string
	Labels      []string
	ExternalRef string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
}

// Validate checks the task is correct.
func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if t.Title == "" {
		return fmt.Errorf("title is required: %w", ErrNotValid)
	}

	switch t.Status {
	case TaskStatusOpen, TaskStatusInProgress, TaskStatusBlocked, TaskStatusClosed:
	default:
		return fmt.Errorf("unknown status %q: %w", t.Status, ErrNotValid)
	}

	return nil
}

// HasLabel returns true if the task has the given label.
func (t Task) HasLabel(label string) bool {
	for _, l := range t.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// ShortID returns the sequence portion of the task id (e.g. `ws-001` -> `001`).
// Returns an empty string when the id has no prefix separator.
func (t Task) ShortID() string {
	idx := strings.LastIndex(t.ID, "-")
	if idx < 0 || idx == len(t.ID)-1 {
		return ""
	}
	return t.ID[idx+1:]
}

// NormalizeLabels returns the labels as a sorted set without duplicates or
// empty entries. Labels are order-insensitive, normalizing keeps comparisons
// and persistence deterministic.
func NormalizeLabels(labels []string) []string {
	seen := map[string]struct{}{}
	result := make([]string, 0, len(labels))
	for _, l := range labels {
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		result = append(result, l)
	}
	sort.Strings(result)
	return result
}

// TaskID builds a task id from a workspace prefix and a sequence number,
// zero-padding the sequence to three digits.
func TaskID(workspacePrefix string, seq int) string {
	return fmt.Sprintf("%s-%03d", workspacePrefix, seq)
}

// TaskPatch is a partial update of a task. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *TaskStatus
	Priority    *int
	Owner       *string
	ExternalRef *string
}

// TaskFilter filters task listings. Zero value matches everything.
type TaskFilter struct {
	Status         *TaskStatus
	HasExternalRef *bool
	Label          string
}

// Matches returns true when the task passes the filter.
func (f TaskFilter) Matches(t Task) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.HasExternalRef != nil && (t.ExternalRef != "") != *f.HasExternalRef {
		return false
	}
	if f.Label != "" && !t.HasLabel(f.Label) {
		return false
	}
	return true
}
