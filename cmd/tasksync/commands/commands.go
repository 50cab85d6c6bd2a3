package commands

import (
	"context"
	"io"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/tasksync/internal/log"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

const (
	// StorageTypeJournal persists tasks on an append-only JSONL file.
	StorageTypeJournal = "journal"
	// StorageTypeSQLite persists tasks on a SQLite database.
	StorageTypeSQLite = "sqlite"
	// StorageTypeMemory keeps tasks in memory only.
	StorageTypeMemory = "memory"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug       bool
	NoLog       bool
	NoColor     bool
	LoggerType  string
	StorageType string
	JournalPath string
	DBPath      string
	Workspace   string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	app.Flag("storage", "Storage backend for the task journal.").Default(StorageTypeJournal).EnumVar(&c.StorageType, StorageTypeJournal, StorageTypeSQLite, StorageTypeMemory)

	defaultJournalPath := filepath.Join(homedir.HomeDir(), ".tasksync", "journal.jsonl")
	app.Flag("journal-path", "Path to the append-only task journal file.").Envar("TASKSYNC_JOURNAL_PATH").Default(defaultJournalPath).StringVar(&c.JournalPath)

	defaultDBPath := filepath.Join(homedir.HomeDir(), ".tasksync", "tasksync.db")
	app.Flag("db-path", "Path to the SQLite database file.").Envar("TASKSYNC_DB_PATH").Default(defaultDBPath).StringVar(&c.DBPath)

	app.Flag("workspace", "Workspace prefix used on task ids.").Envar("TASKSYNC_WORKSPACE").Default("ws").StringVar(&c.Workspace)

	return c
}
