package tagmap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/slok/tasksync/internal/log"
)

// LoaderConfig is the configuration for the tag map loader.
type LoaderConfig struct {
	Path   string
	Logger log.Logger
}

func (c *LoaderConfig) defaults() error {
	if c.Path == "" {
		return fmt.Errorf("tag map path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "tagmap.Loader"})
	return nil
}

// Loader loads the label to external tag id mapping from a YAML file. The
// file is hot-reloadable, a missing file means an empty map and is not an
// error. Reload failures keep the previously cached map.
type Loader struct {
	path   string
	mu     sync.RWMutex
	cached map[string]string
	logger log.Logger
}

// NewLoader creates a new tag map loader with an empty cached map.
func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Loader{
		path:   cfg.Path,
		cached: map[string]string{},
		logger: cfg.Logger,
	}, nil
}

// Reload reads the backing file and replaces the cached map. On failure the
// cache is left untouched and the error is returned so the caller can decide
// to keep going with the cached map.
func (l *Loader) Reload(ctx context.Context) error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.mu.Lock()
			l.cached = map[string]string{}
			l.mu.Unlock()
			return nil
		}
		return fmt.Errorf("could not read tag map file: %w", err)
	}

	tags := map[string]string{}
	if err := yaml.Unmarshal(data, &tags); err != nil {
		return fmt.Errorf("could not parse tag map file: %w", err)
	}

	l.mu.Lock()
	l.cached = tags
	l.mu.Unlock()

	l.logger.Debugf("Reloaded tag map with %d entries", len(tags))

	return nil
}

// Snapshot returns an immutable copy of the cached map. Sync runs snapshot
// once at the start so behavior stays deterministic for the whole run even if
// the backing file changes mid-run.
func (l *Loader) Snapshot() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snapshot := make(map[string]string, len(l.cached))
	for k, v := range l.cached {
		snapshot[k] = v
	}
	return snapshot
}
