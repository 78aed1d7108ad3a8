package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dougsko/antbridge/pkg/logging"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Outcome values for CommandRecord.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// CommandRecord is one audited controller command.
type CommandRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Rig       string    `json:"rig"`
	Command   string    `json:"command"`
	Origin    string    `json:"origin"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
}

// CommandStore handles persistent storage of outbound controller commands
type CommandStore struct {
	db          *sql.DB
	dbPath      string
	maxCommands int
	log         *logging.ComponentLogger
}

// NewCommandStore creates a new command store with SQLite backend
func NewCommandStore(dbPath string, maxCommands int, logger *logging.Logger) (*CommandStore, error) {
	store := &CommandStore{
		dbPath:      dbPath,
		maxCommands: maxCommands,
		log:         logger.Component("storage"),
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize command store: %w", err)
	}

	return store, nil
}

// initialize sets up the database connection and creates tables
func (cs *CommandStore) initialize() error {
	if cs.dbPath == "" {
		cs.dbPath = "./antbridge.db"
	}

	if err := os.MkdirAll(filepath.Dir(cs.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	connectionString := cs.dbPath + "?_busy_timeout=10000&_journal_mode=WAL"

	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	cs.db = db

	if err := cs.createTables(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if err := cs.createIndexes(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	cs.log.Info("Command store initialized", logging.Fields{"path": cs.dbPath, "max_commands": cs.maxCommands})
	return nil
}

// createTables creates the database schema
func (cs *CommandStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS commands (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		rig TEXT NOT NULL DEFAULT '',
		command TEXT NOT NULL,
		origin TEXT NOT NULL CHECK (origin IN ('auto', 'manual')),
		outcome TEXT NOT NULL CHECK (outcome IN ('sent', 'failed')),
		reason TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS command_stats (
		id INTEGER PRIMARY KEY,
		total_sent INTEGER NOT NULL DEFAULT 0,
		total_failed INTEGER NOT NULL DEFAULT 0,
		last_cleanup DATETIME,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO command_stats (id, total_sent, total_failed)
	VALUES (1, 0, 0);
	`

	_, err := cs.db.Exec(schema)
	return err
}

// createIndexes creates database indexes for performance
func (cs *CommandStore) createIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_commands_timestamp ON commands(timestamp DESC)",
		"CREATE INDEX IF NOT EXISTS idx_commands_rig ON commands(rig)",
		"CREATE INDEX IF NOT EXISTS idx_commands_outcome ON commands(outcome)",
	}

	for _, indexSQL := range indexes {
		if _, err := cs.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Record stores a command. Missing IDs and timestamps are filled in.
func (cs *CommandStore) Record(rec CommandRecord) (CommandRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Timestamp = rec.Timestamp.UTC()

	tx, err := cs.db.Begin()
	if err != nil {
		return rec, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO commands (id, timestamp, rig, command, origin, outcome, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Timestamp, rec.Rig, rec.Command, rec.Origin, rec.Outcome, rec.Reason)
	if err != nil {
		return rec, fmt.Errorf("failed to insert command: %w", err)
	}

	if err := cs.updateStats(tx, rec.Outcome); err != nil {
		return rec, fmt.Errorf("failed to update stats: %w", err)
	}

	if err := cs.cleanupOldCommands(tx); err != nil {
		cs.log.Warn("Failed to cleanup old commands", logging.Fields{"error": err})
	}

	return rec, tx.Commit()
}

// updateStats updates command statistics
func (cs *CommandStore) updateStats(tx *sql.Tx, outcome string) error {
	query := `
		UPDATE command_stats SET
			total_sent = CASE WHEN ? = 'sent' THEN total_sent + 1 ELSE total_sent END,
			total_failed = CASE WHEN ? = 'failed' THEN total_failed + 1 ELSE total_failed END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`

	_, err := tx.Exec(query, outcome, outcome)
	return err
}

// cleanupOldCommands removes commands beyond the maximum limit
func (cs *CommandStore) cleanupOldCommands(tx *sql.Tx) error {
	if cs.maxCommands <= 0 {
		return nil // No limit
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM commands").Scan(&count); err != nil {
		return err
	}

	if count <= cs.maxCommands {
		return nil
	}

	query := `
		DELETE FROM commands
		WHERE rowid IN (
			SELECT rowid FROM commands
			ORDER BY timestamp ASC, rowid ASC
			LIMIT ?
		)
	`

	if _, err := tx.Exec(query, count-cs.maxCommands); err != nil {
		return err
	}

	_, err := tx.Exec("UPDATE command_stats SET last_cleanup = CURRENT_TIMESTAMP WHERE id = 1")
	return err
}

// Close closes the database connection
func (cs *CommandStore) Close() error {
	if cs.db != nil {
		return cs.db.Close()
	}
	return nil
}
