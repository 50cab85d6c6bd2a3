package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/tasksync/internal/log"
	"github.com/slok/tasksync/internal/model"
	"github.com/slok/tasksync/internal/storage/sqlite/migrations"
)

// JournalConfig is the configuration for the SQLite journal.
type JournalConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *JournalConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Journal is a SQLite implementation of storage.Journal. Appends are upserts,
// so the table always holds the last write per task id and replay is a plain
// select.
type Journal struct {
	db     *sql.DB
	logger log.Logger
}

// NewJournal creates a new SQLite journal.
func NewJournal(ctx context.Context, cfg JournalConfig) (*Journal, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite journal initialized at %s", cfg.DBPath)

	return &Journal{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error { return j.db.Close() }

// Append upserts a single task entry.
func (j *Journal) Append(ctx context.Context, t model.Task) error {
	labels, err := json.Marshal(model.NormalizeLabels(t.Labels))
	if err != nil {
		return fmt.Errorf("could not encode labels: %w", err)
	}

	var closedAt *int64
	if t.ClosedAt != nil {
		u := t.ClosedAt.Unix()
		closedAt = &u
	}

	query := `
		INSERT INTO tasks (
			id, title, description, status, priority, owner,
			labels, external_ref,
			created_at, updated_at, closed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title,
			description=excluded.description,
			status=excluded.status,
			priority=excluded.priority,
			owner=excluded.owner,
			labels=excluded.labels,
			external_ref=excluded.external_ref,
			updated_at=excluded.updated_at,
			closed_at=excluded.closed_at
	`

	_, err = j.db.ExecContext(
		ctx,
		query,
		t.ID,
		t.Title,
		t.Description,
		string(t.Status),
		t.Priority,
		t.Owner,
		string(labels),
		t.ExternalRef,
		t.CreatedAt.Unix(),
		t.UpdatedAt.Unix(),
		closedAt,
	)
	if err != nil {
		return fmt.Errorf("could not upsert task: %w", err)
	}

	return nil
}

// Replay returns all stored tasks in creation order.
func (j *Journal) Replay(ctx context.Context) ([]model.Task, error) {
	query := `
		SELECT id, title, description, status, priority, owner,
		       labels, external_ref,
		       created_at, updated_at, closed_at
		FROM tasks
		ORDER BY created_at ASC, id ASC
	`

	rows, err := j.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var (
			t         model.Task
			status    string
			labels    string
			createdAt int64
			updatedAt int64
			closedAt  *int64
		)
		err := rows.Scan(
			&t.ID, &t.Title, &t.Description, &status, &t.Priority, &t.Owner,
			&labels, &t.ExternalRef,
			&createdAt, &updatedAt, &closedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("could not scan task row: %w", err)
		}

		t.Status = model.TaskStatus(status)
		if err := json.Unmarshal([]byte(labels), &t.Labels); err != nil {
			return nil, fmt.Errorf("could not decode labels of task %s: %w", t.ID, err)
		}
		t.CreatedAt = time.Unix(createdAt, 0).UTC()
		t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		if closedAt != nil {
			u := time.Unix(*closedAt, 0).UTC()
			t.ClosedAt = &u
		}

		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate task rows: %w", err)
	}

	return tasks, nil
}
