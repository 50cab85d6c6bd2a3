package model

import (
	"fmt"
	"regexp"
)

// Thread names embed the task short id so humans (and the reconciler) can
// correlate threads back to tasks, e.g. `[002] Fix flaky importer`.
const threadNameMaxLength = 100

var threadNameShortIDRegexp = regexp.MustCompile(`^\[(\d+)\]`)

// ThreadSnapshot is the ephemeral view of a remote discussion thread. It is
// fetched fresh on every sync run and never persisted.
type ThreadSnapshot struct {
	ID       string
	Name     string
	Archived bool
}

// ThreadNameForTask returns the remote thread name for a task, truncated to
// the platform name limit.
func ThreadNameForTask(t Task) string {
	name := fmt.Sprintf("[%s] %s", t.ShortID(), t.Title)
	runes := []rune(name)
	if len(runes) > threadNameMaxLength {
		return string(runes[:threadNameMaxLength])
	}
	return name
}

// ShortIDFromThreadName parses the short id token out of a thread name.
// Returns an empty string when the name doesn't encode one.
func ShortIDFromThreadName(name string) string {
	m := threadNameShortIDRegexp.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}

// MergeThreadSnapshots merges the archived and active thread listings into a
// single one. A thread cannot be both archived and active at the same time, on
// id collision the active listing entry wins because it is the fresher one.
func MergeThreadSnapshots(archived, active []ThreadSnapshot) []ThreadSnapshot {
	merged := make([]ThreadSnapshot, 0, len(archived)+len(active))
	indexByID := make(map[string]int, len(archived))

	for _, t := range archived {
		if _, ok := indexByID[t.ID]; ok {
			continue
		}
		indexByID[t.ID] = len(merged)
		merged = append(merged, t)
	}

	for _, t := range active {
		if idx, ok := indexByID[t.ID]; ok {
			merged[idx] = t
			continue
		}
		indexByID[t.ID] = len(merged)
		merged = append(merged, t)
	}

	return merged
}
