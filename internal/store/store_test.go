package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/tasksync/internal/model"
	"github.com/slok/tasksync/internal/storage/memory"
	"github.com/slok/tasksync/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	journal, err := memory.NewJournal(memory.JournalConfig{})
	require.NoError(t, err)

	s, err := store.NewStore(store.StoreConfig{
		WorkspacePrefix: "ws",
		Journal:         journal,
	})
	require.NoError(t, err)

	return s
}

func TestNewStore(t *testing.T) {
	tests := map[string]struct {
		cfg    store.StoreConfig
		expErr bool
		errMsg string
	}{
		"Valid config": {
			cfg: func() store.StoreConfig {
				j, _ := memory.NewJournal(memory.JournalConfig{})
				return store.StoreConfig{WorkspacePrefix: "ws", Journal: j}
			}(),
		},
		"Missing workspace prefix returns error": {
			cfg: func() store.StoreConfig {
				j, _ := memory.NewJournal(memory.JournalConfig{})
				return store.StoreConfig{Journal: j}
			}(),
			expErr: true,
			errMsg: "workspace prefix is required",
		},
		"Missing journal returns error": {
			cfg:    store.StoreConfig{WorkspacePrefix: "ws"},
			expErr: true,
			errMsg: "journal is required",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := store.NewStore(tt.cfg)

			if tt.expErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, s)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, s)
			}
		})
	}
}

func TestStoreCreate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var events []store.Event
	s.Subscribe(store.EventCreated, func(e store.Event) { events = append(events, e) })

	t1, err := s.Create(ctx, store.NewTask{Title: "First", Labels: []string{"urgent", "bug", "bug"}})
	require.NoError(t, err)
	t2, err := s.Create(ctx, store.NewTask{Title: "Second"})
	require.NoError(t, err)

	// Sequential zero-padded ids.
	assert.Equal(t, "ws-001", t1.ID)
	assert.Equal(t, "ws-002", t2.ID)
	assert.Equal(t, model.TaskStatusOpen, t1.Status)
	assert.Equal(t, []string{"bug", "urgent"}, t1.Labels)
	assert.False(t, t1.CreatedAt.IsZero())

	require.Len(t, events, 2)
	assert.Equal(t, store.EventCreated, events[0].Kind)
	assert.Equal(t, "ws-001", events[0].Task.ID)

	// Missing title is rejected and assigns no id.
	_, err = s.Create(ctx, store.NewTask{})
	require.Error(t, err)
	t3, err := s.Create(ctx, store.NewTask{Title: "Third"})
	require.NoError(t, err)
	assert.Equal(t, "ws-003", t3.ID)
}

func TestStoreUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, store.NewTask{Title: "First"})
	require.NoError(t, err)

	var events []store.Event
	s.Subscribe(store.EventUpdated, func(e store.Event) { events = append(events, e) })

	newTitle := "Renamed"
	ref := "thread-1"
	updated, err := s.Update(ctx, created.ID, model.TaskPatch{Title: &newTitle, ExternalRef: &ref})
	require.NoError(t, err)

	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "thread-1", updated.ExternalRef)
	assert.Equal(t, created.ID, updated.ID)

	require.Len(t, events, 1)
	require.NotNil(t, events[0].Prev)
	assert.Equal(t, "First", events[0].Prev.Title)
	assert.Equal(t, "Renamed", events[0].Task.Title)

	// Closing through a status patch stamps the closed timestamp.
	closedStatus := model.TaskStatusClosed
	closed, err := s.Update(ctx, created.ID, model.TaskPatch{Status: &closedStatus})
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)

	// Unknown task.
	_, err = s.Update(ctx, "ws-999", model.TaskPatch{Title: &newTitle})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStoreLabels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, store.NewTask{Title: "First", Labels: []string{"bug"}})
	require.NoError(t, err)

	var events []store.Event
	s.Subscribe(store.EventLabeled, func(e store.Event) { events = append(events, e) })

	labeled, err := s.AddLabel(ctx, created.ID, "urgent")
	require.NoError(t, err)
	assert.Equal(t, []string{"bug", "urgent"}, labeled.Labels)
	assert.Len(t, events, 1)

	// Adding an already present label is a no-op and emits nothing.
	same, err := s.AddLabel(ctx, created.ID, "urgent")
	require.NoError(t, err)
	assert.Equal(t, []string{"bug", "urgent"}, same.Labels)
	assert.Len(t, events, 1)

	// Removing a missing label is a no-op too.
	same, err = s.RemoveLabel(ctx, created.ID, "nope")
	require.NoError(t, err)
	assert.Equal(t, []string{"bug", "urgent"}, same.Labels)
	assert.Len(t, events, 1)

	removed, err := s.RemoveLabel(ctx, created.ID, "bug")
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent"}, removed.Labels)
	assert.Len(t, events, 2)
}

func TestStoreClose(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, store.NewTask{Title: "First"})
	require.NoError(t, err)

	var events []store.Event
	s.Subscribe(store.EventClosed, func(e store.Event) { events = append(events, e) })

	closed, err := s.Close(ctx, created.ID, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	require.Len(t, events, 1)
	assert.Equal(t, "duplicate", events[0].Reason)

	// Closing again is a no-op and emits nothing.
	again, err := s.Close(ctx, created.ID, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusClosed, again.Status)
	assert.Len(t, events, 1)
}

func TestStoreList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, store.NewTask{Title: "First"})
	require.NoError(t, err)
	_, err = s.Create(ctx, store.NewTask{Title: "Second", Labels: []string{"bug"}})
	require.NoError(t, err)
	_, err = s.Create(ctx, store.NewTask{Title: "Third"})
	require.NoError(t, err)
	_, err = s.Close(ctx, "ws-003", "")
	require.NoError(t, err)

	// Creation order.
	all, err := s.List(ctx, model.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ws-001", all[0].ID)
	assert.Equal(t, "ws-002", all[1].ID)
	assert.Equal(t, "ws-003", all[2].ID)

	// Filtered.
	open := model.TaskStatusOpen
	openTasks, err := s.List(ctx, model.TaskFilter{Status: &open})
	require.NoError(t, err)
	require.Len(t, openTasks, 2)

	labeled, err := s.List(ctx, model.TaskFilter{Label: "bug"})
	require.NoError(t, err)
	require.Len(t, labeled, 1)
	assert.Equal(t, "ws-002", labeled[0].ID)
}

func TestStoreLoad(t *testing.T) {
	journal, err := memory.NewJournal(memory.JournalConfig{})
	require.NoError(t, err)

	ctx := context.Background()

	s1, err := store.NewStore(store.StoreConfig{WorkspacePrefix: "ws", Journal: journal})
	require.NoError(t, err)
	_, err = s1.Create(ctx, store.NewTask{Title: "First"})
	require.NoError(t, err)
	_, err = s1.Create(ctx, store.NewTask{Title: "Second"})
	require.NoError(t, err)
	_, err = s1.Close(ctx, "ws-001", "")
	require.NoError(t, err)

	// A fresh store over the same journal resumes where the first left.
	s2, err := store.NewStore(store.StoreConfig{WorkspacePrefix: "ws", Journal: journal})
	require.NoError(t, err)
	require.NoError(t, s2.Load(ctx))

	assert.Equal(t, 2, s2.Size())

	loaded, err := s2.Get(ctx, "ws-001")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusClosed, loaded.Status)

	// The id sequence continues after the loaded tasks.
	t3, err := s2.Create(ctx, store.NewTask{Title: "Third"})
	require.NoError(t, err)
	assert.Equal(t, "ws-003", t3.ID)
}

// failingJournal rejects every append, replay succeeds empty.
type failingJournal struct{}

func (failingJournal) Append(ctx context.Context, t model.Task) error { return assert.AnError }
func (failingJournal) Replay(ctx context.Context) ([]model.Task, error) {
	return nil, nil
}

func TestStorePersistFailure(t *testing.T) {
	s, err := store.NewStore(store.StoreConfig{WorkspacePrefix: "ws", Journal: failingJournal{}})
	require.NoError(t, err)

	ctx := context.Background()

	var events []store.Event
	for _, kind := range []store.EventKind{store.EventCreated, store.EventUpdated, store.EventLabeled, store.EventClosed} {
		s.Subscribe(kind, func(e store.Event) { events = append(events, e) })
	}

	_, err = s.Create(ctx, store.NewTask{Title: "First"})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)

	// Nothing was committed and nothing was emitted.
	assert.Equal(t, 0, s.Size())
	assert.Empty(t, events)
	_, err = s.Get(ctx, "ws-001")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
