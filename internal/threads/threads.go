package threads

import (
	"context"

	"github.com/slok/tasksync/internal/model"
)

// Forum is a handle to the resolved remote forum where task threads live.
type Forum struct {
	WorkspaceRef string
	ID           string
}

// Platform is the capability set the sync engine needs from the remote
// collaboration platform. The engine depends only on this interface, never on
// a concrete platform client, so any mock or alternate backend substitutes
// cleanly.
//
// Lookup misses are model.ErrNotFound, rate limited mutations wrap
// model.ErrDeferred.
type Platform interface {
	ResolveForum(ctx context.Context, workspaceRef, forumID string) (*Forum, error)
	// FindExistingThreadForTask returns the existing thread id for the task,
	// or an empty string when there is none.
	FindExistingThreadForTask(ctx context.Context, forum Forum, taskID string) (string, error)
	CreateThread(ctx context.Context, forum Forum, task model.Task, tagMap map[string]string, mentionRef string) (string, error)
	EnsureUnarchived(ctx context.Context, threadID string) error
	UpdateThreadName(ctx context.Context, threadID string, task model.Task) error
	UpdateThreadTags(ctx context.Context, threadID string, task model.Task, tagMap map[string]string) error
	UpdateStarterMessage(ctx context.Context, threadID string, task model.Task) error
	CloseThread(ctx context.Context, threadID string, task model.Task, tagMap map[string]string) error
	ListActiveThreads(ctx context.Context) ([]model.ThreadSnapshot, error)
	ListArchivedThreads(ctx context.Context) ([]model.ThreadSnapshot, error)
}
