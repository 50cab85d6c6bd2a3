package sync_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appsync "github.com/slok/tasksync/internal/app/sync"
	"github.com/slok/tasksync/internal/lifecycle"
	"github.com/slok/tasksync/internal/model"
	"github.com/slok/tasksync/internal/storage/memory"
	"github.com/slok/tasksync/internal/store"
	"github.com/slok/tasksync/internal/tagmap"
	"github.com/slok/tasksync/internal/threads"
	"github.com/slok/tasksync/internal/threads/threadsfake"
	"github.com/slok/tasksync/internal/threads/threadsmock"
)

type testEngine struct {
	store     *store.Store
	platform  *threadsfake.Platform
	tagMap    *tagmap.Loader
	lifecycle *lifecycle.Registry
	service   *appsync.Service
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	journal, err := memory.NewJournal(memory.JournalConfig{})
	require.NoError(t, err)
	s, err := store.NewStore(store.StoreConfig{WorkspacePrefix: "ws", Journal: journal})
	require.NoError(t, err)

	platform, err := threadsfake.NewPlatform(threadsfake.PlatformConfig{})
	require.NoError(t, err)

	tagMap, err := tagmap.NewLoader(tagmap.LoaderConfig{
		Path: filepath.Join(t.TempDir(), "tagmap.yaml"),
	})
	require.NoError(t, err)

	registry, err := lifecycle.NewRegistry(lifecycle.RegistryConfig{})
	require.NoError(t, err)

	svc, err := appsync.NewService(appsync.ServiceConfig{
		Store:        s,
		Platform:     platform,
		TagMap:       tagMap,
		Lifecycle:    registry,
		WorkspaceRef: "acme",
		ForumID:      "forum-1",
	})
	require.NoError(t, err)

	return &testEngine{
		store:     s,
		platform:  platform,
		tagMap:    tagMap,
		lifecycle: registry,
		service:   svc,
	}
}

func TestNewService(t *testing.T) {
	journal, err := memory.NewJournal(memory.JournalConfig{})
	require.NoError(t, err)
	s, err := store.NewStore(store.StoreConfig{WorkspacePrefix: "ws", Journal: journal})
	require.NoError(t, err)
	platform, err := threadsfake.NewPlatform(threadsfake.PlatformConfig{})
	require.NoError(t, err)
	tagMap, err := tagmap.NewLoader(tagmap.LoaderConfig{Path: "/tmp/tagmap.yaml"})
	require.NoError(t, err)
	registry, err := lifecycle.NewRegistry(lifecycle.RegistryConfig{})
	require.NoError(t, err)

	valid := appsync.ServiceConfig{
		Store:        s,
		Platform:     platform,
		TagMap:       tagMap,
		Lifecycle:    registry,
		WorkspaceRef: "acme",
		ForumID:      "forum-1",
	}

	tests := map[string]struct {
		mutate func(cfg *appsync.ServiceConfig)
		expErr bool
		errMsg string
	}{
		"Valid config": {
			mutate: func(cfg *appsync.ServiceConfig) {},
		},
		"Missing store returns error": {
			mutate: func(cfg *appsync.ServiceConfig) { cfg.Store = nil },
			expErr: true,
			errMsg: "store is required",
		},
		"Missing platform returns error": {
			mutate: func(cfg *appsync.ServiceConfig) { cfg.Platform = nil },
			expErr: true,
			errMsg: "platform is required",
		},
		"Missing tag map returns error": {
			mutate: func(cfg *appsync.ServiceConfig) { cfg.TagMap = nil },
			expErr: true,
			errMsg: "tag map is required",
		},
		"Missing lifecycle registry returns error": {
			mutate: func(cfg *appsync.ServiceConfig) { cfg.Lifecycle = nil },
			expErr: true,
			errMsg: "lifecycle registry is required",
		},
		"Missing workspace ref returns error": {
			mutate: func(cfg *appsync.ServiceConfig) { cfg.WorkspaceRef = "" },
			expErr: true,
			errMsg: "workspace ref is required",
		},
		"Missing forum id returns error": {
			mutate: func(cfg *appsync.ServiceConfig) { cfg.ForumID = "" },
			expErr: true,
			errMsg: "forum id is required",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			svc, err := appsync.NewService(cfg)

			if tt.expErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, svc)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestSyncFullRun(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	// A wants a thread, B is blocked, C opted out, D is already closed
	// without a thread.
	_, err := engine.store.Create(ctx, store.NewTask{Title: "Fix importer", Labels: []string{"bug"}})
	require.NoError(t, err)
	_, err = engine.store.Create(ctx, store.NewTask{Title: "Waiting on review", Labels: []string{"waiting-review"}})
	require.NoError(t, err)
	_, err = engine.store.Create(ctx, store.NewTask{Title: "Local only", Labels: []string{model.NoThreadLabel}})
	require.NoError(t, err)
	_, err = engine.store.Create(ctx, store.NewTask{Title: "Already done"})
	require.NoError(t, err)
	_, err = engine.store.Close(ctx, "ws-004", "")
	require.NoError(t, err)

	// First run links threads for A and B; B's blocked refresh already sees
	// the thread phase 1 linked in the same run.
	result, err := engine.service.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, result.Coalesced)
	assert.Equal(t, 2, result.ThreadsCreated)
	assert.Equal(t, 1, result.TagsUpdated)
	assert.Equal(t, 0, result.ThreadsArchived)
	assert.Equal(t, 0, result.OrphanThreadsFound)
	assert.Empty(t, result.Warnings)

	taskA, err := engine.store.Get(ctx, "ws-001")
	require.NoError(t, err)
	assert.NotEmpty(t, taskA.ExternalRef)
	taskC, err := engine.store.Get(ctx, "ws-003")
	require.NoError(t, err)
	assert.Empty(t, taskC.ExternalRef, "no-thread task must never get one")

	active, err := engine.platform.ListActiveThreads(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	// Second run is a pure convergence pass over the linked threads.
	result, err = engine.service.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ThreadsCreated)
	assert.Equal(t, 2, result.ThreadNamesUpdated)
	assert.Equal(t, 3, result.TagsUpdated)
	assert.Equal(t, 2, result.StarterMessagesUpdated)

	// Closing A archives its thread on the next run; the same run's reconcile
	// pass then already sees the archived thread and reconciles it.
	_, err = engine.store.Close(ctx, "ws-001", "fixed")
	require.NoError(t, err)

	result, err = engine.service.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ThreadsArchived)
	assert.Equal(t, 1, result.ThreadsReconciled)

	archived, err := engine.platform.ListArchivedThreads(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, taskA.ExternalRef, archived[0].ID)
}

func TestSyncIsIdempotentOnStableState(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.store.Create(ctx, store.NewTask{Title: "Fix importer"})
	require.NoError(t, err)

	_, err = engine.service.Sync(ctx)
	require.NoError(t, err)

	// Re-running over converged state creates nothing new.
	for i := 0; i < 3; i++ {
		result, err := engine.service.Sync(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, result.ThreadsCreated)
		assert.Empty(t, result.Warnings)
	}

	active, err := engine.platform.ListActiveThreads(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSyncReportsOrphanThreads(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	// A thread whose short id points at no known task.
	forum := threads.Forum{WorkspaceRef: "acme", ID: "forum-1"}
	_, err := engine.platform.CreateThread(ctx, forum, model.Task{ID: "zz-099", Title: "Ghost"}, nil, "")
	require.NoError(t, err)

	result, err := engine.service.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.OrphanThreadsFound)
}

func TestSyncCoalescesConcurrentTriggers(t *testing.T) {
	journal, err := memory.NewJournal(memory.JournalConfig{})
	require.NoError(t, err)
	s, err := store.NewStore(store.StoreConfig{WorkspacePrefix: "ws", Journal: journal})
	require.NoError(t, err)
	tagMap, err := tagmap.NewLoader(tagmap.LoaderConfig{
		Path: filepath.Join(t.TempDir(), "tagmap.yaml"),
	})
	require.NoError(t, err)
	registry, err := lifecycle.NewRegistry(lifecycle.RegistryConfig{})
	require.NoError(t, err)

	// The platform blocks the first run so triggers pile up behind it.
	inFlight := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var runs atomic.Int32

	platform := threadsmock.NewMockPlatform(t)
	platform.On("ResolveForum", mock.Anything, "acme", "forum-1").
		Run(func(args mock.Arguments) {
			runs.Add(1)
			once.Do(func() {
				close(inFlight)
				<-release
			})
		}).
		Return(&threads.Forum{WorkspaceRef: "acme", ID: "forum-1"}, nil)
	platform.On("ListActiveThreads", mock.Anything).Return([]model.ThreadSnapshot{}, nil)
	platform.On("ListArchivedThreads", mock.Anything).Return([]model.ThreadSnapshot{}, nil)

	svc, err := appsync.NewService(appsync.ServiceConfig{
		Store:        s,
		Platform:     platform,
		TagMap:       tagMap,
		Lifecycle:    registry,
		WorkspaceRef: "acme",
		ForumID:      "forum-1",
	})
	require.NoError(t, err)

	ctx := context.Background()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		result, err := svc.Sync(ctx)
		assert.NoError(t, err)
		assert.False(t, result.Coalesced)
	}()
	<-inFlight

	// Every trigger arriving mid-run is coalesced, none runs inline.
	for i := 0; i < 5; i++ {
		result, err := svc.Sync(ctx)
		require.NoError(t, err)
		assert.True(t, result.Coalesced)
	}

	close(release)
	<-firstDone

	// The whole burst collapses into exactly one follow-up run.
	require.Eventually(t, func() bool {
		return runs.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(2), runs.Load(), "coalesced triggers must produce a single follow-up run")
}

func TestSyncCapsArchivedThreadListing(t *testing.T) {
	journal, err := memory.NewJournal(memory.JournalConfig{})
	require.NoError(t, err)
	s, err := store.NewStore(store.StoreConfig{WorkspacePrefix: "ws", Journal: journal})
	require.NoError(t, err)
	tagMap, err := tagmap.NewLoader(tagmap.LoaderConfig{
		Path: filepath.Join(t.TempDir(), "tagmap.yaml"),
	})
	require.NoError(t, err)
	registry, err := lifecycle.NewRegistry(lifecycle.RegistryConfig{})
	require.NoError(t, err)

	platform := threadsmock.NewMockPlatform(t)
	platform.On("ResolveForum", mock.Anything, "acme", "forum-1").
		Return(&threads.Forum{WorkspaceRef: "acme", ID: "forum-1"}, nil)
	platform.On("ListActiveThreads", mock.Anything).Return([]model.ThreadSnapshot{}, nil)
	platform.On("ListArchivedThreads", mock.Anything).Return([]model.ThreadSnapshot{
		{ID: "t1", Name: "[901] Old one", Archived: true},
		{ID: "t2", Name: "[902] Old two", Archived: true},
		{ID: "t3", Name: "[903] Old three", Archived: true},
	}, nil)

	svc, err := appsync.NewService(appsync.ServiceConfig{
		Store:                  s,
		Platform:               platform,
		TagMap:                 tagMap,
		Lifecycle:              registry,
		WorkspaceRef:           "acme",
		ForumID:                "forum-1",
		ArchivedReconcileLimit: 1,
	})
	require.NoError(t, err)

	result, err := svc.Sync(context.Background())
	require.NoError(t, err)

	// Only the first archived thread is considered this run.
	assert.Equal(t, 1, result.OrphanThreadsFound)
}

func TestSyncTagMapReloadFailureIsNotFatal(t *testing.T) {
	journal, err := memory.NewJournal(memory.JournalConfig{})
	require.NoError(t, err)
	s, err := store.NewStore(store.StoreConfig{WorkspacePrefix: "ws", Journal: journal})
	require.NoError(t, err)
	platform, err := threadsfake.NewPlatform(threadsfake.PlatformConfig{})
	require.NoError(t, err)
	registry, err := lifecycle.NewRegistry(lifecycle.RegistryConfig{})
	require.NoError(t, err)

	// Pointing the loader at a directory makes every reload fail.
	tagMap, err := tagmap.NewLoader(tagmap.LoaderConfig{Path: t.TempDir()})
	require.NoError(t, err)

	svc, err := appsync.NewService(appsync.ServiceConfig{
		Store:        s,
		Platform:     platform,
		TagMap:       tagMap,
		Lifecycle:    registry,
		WorkspaceRef: "acme",
		ForumID:      "forum-1",
	})
	require.NoError(t, err)

	result, err := svc.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "tag map reload failed")
}
