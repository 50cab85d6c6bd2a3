package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	appsync "github.com/slok/tasksync/internal/app/sync"
	"github.com/slok/tasksync/internal/lifecycle"
	"github.com/slok/tasksync/internal/store"
	"github.com/slok/tasksync/internal/tagmap"
	"github.com/slok/tasksync/internal/threads"
	"github.com/slok/tasksync/internal/threads/threadsfake"
)

// syncFlags are the flags shared by the commands that run the sync engine.
type syncFlags struct {
	platform      string
	workspaceRef  string
	forumID       string
	mentionRef    string
	tagMapPath    string
	opDelay       time.Duration
	archivedLimit int
}

func (f *syncFlags) register(cmd *kingpin.CmdClause) {
	cmd.Flag("platform", "Thread platform backend (fake).").Default("fake").EnumVar(&f.platform, "fake")
	cmd.Flag("workspace-ref", "Remote workspace holding the task forum.").Required().StringVar(&f.workspaceRef)
	cmd.Flag("forum", "Forum id holding the task threads.").Required().StringVar(&f.forumID)
	cmd.Flag("mention", "Reference mentioned on newly created threads.").StringVar(&f.mentionRef)
	defaultTagMapPath := filepath.Join(homedir.HomeDir(), ".tasksync", "tagmap.yaml")
	cmd.Flag("tagmap-path", "Path to the label to tag id mapping file (YAML).").Default(defaultTagMapPath).StringVar(&f.tagMapPath)
	cmd.Flag("op-delay", "Delay between remote operations.").Default("0s").DurationVar(&f.opDelay)
	cmd.Flag("archived-limit", "Max archived threads considered per run.").Default("50").IntVar(&f.archivedLimit)
}

// syncEngine groups the collaborators a sync run needs.
type syncEngine struct {
	store     *store.Store
	platform  threads.Platform
	tagMap    *tagmap.Loader
	lifecycle *lifecycle.Registry
	service   *appsync.Service
}

// newSyncEngine wires the store, platform, tag map, lifecycle registry and
// coordinator for the sync commands.
func newSyncEngine(s *store.Store, flags syncFlags, rootCmd *RootCommand) (*syncEngine, error) {
	logger := rootCmd.Logger

	platform, err := threadsfake.NewPlatform(threadsfake.PlatformConfig{
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create platform: %w", err)
	}

	tagMap, err := tagmap.NewLoader(tagmap.LoaderConfig{
		Path:   flags.tagMapPath,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create tag map loader: %w", err)
	}

	registry, err := lifecycle.NewRegistry(lifecycle.RegistryConfig{
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create lifecycle registry: %w", err)
	}

	svc, err := appsync.NewService(appsync.ServiceConfig{
		Store:                  s,
		Platform:               platform,
		TagMap:                 tagMap,
		Lifecycle:              registry,
		WorkspaceRef:           flags.workspaceRef,
		ForumID:                flags.forumID,
		MentionRef:             flags.mentionRef,
		OperationDelay:         flags.opDelay,
		ArchivedReconcileLimit: flags.archivedLimit,
		Logger:                 logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create sync service: %w", err)
	}

	return &syncEngine{
		store:     s,
		platform:  platform,
		tagMap:    tagMap,
		lifecycle: registry,
		service:   svc,
	}, nil
}
