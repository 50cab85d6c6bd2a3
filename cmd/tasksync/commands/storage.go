package commands

import (
	"context"
	"fmt"

	"github.com/slok/tasksync/internal/storage"
	"github.com/slok/tasksync/internal/storage/journalfile"
	"github.com/slok/tasksync/internal/storage/memory"
	"github.com/slok/tasksync/internal/storage/sqlite"
	"github.com/slok/tasksync/internal/store"
)

// newJournal builds the journal backend selected by the global storage flag.
func newJournal(ctx context.Context, rootCmd *RootCommand) (storage.Journal, error) {
	switch rootCmd.StorageType {
	case StorageTypeSQLite:
		return sqlite.NewJournal(ctx, sqlite.JournalConfig{
			DBPath: rootCmd.DBPath,
			Logger: rootCmd.Logger,
		})
	case StorageTypeMemory:
		return memory.NewJournal(memory.JournalConfig{
			Logger: rootCmd.Logger,
		})
	default:
		return journalfile.NewJournal(journalfile.JournalConfig{
			Path:   rootCmd.JournalPath,
			Logger: rootCmd.Logger,
		})
	}
}

// newStore builds the task store on top of the configured journal and loads
// the persisted tasks.
func newStore(ctx context.Context, rootCmd *RootCommand) (*store.Store, error) {
	journal, err := newJournal(ctx, rootCmd)
	if err != nil {
		return nil, fmt.Errorf("could not create journal: %w", err)
	}

	s, err := store.NewStore(store.StoreConfig{
		WorkspacePrefix: rootCmd.Workspace,
		Journal:         journal,
		Logger:          rootCmd.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create store: %w", err)
	}

	if err := s.Load(ctx); err != nil {
		return nil, fmt.Errorf("could not load store: %w", err)
	}

	return s, nil
}
