package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/chmdznr/ftpsync/pkg/models"
)

// DB represents a database connection
type DB struct {
	*sql.DB
	log zerolog.Logger
}

// Open opens (or creates) the state store at path.
func Open(path string, log zerolog.Logger) (*DB, error) {
	log.Debug().Str("path", path).Msg("opening state store")
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	// One connection keeps every write on the sync worker strictly ordered.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, log: log}
	if err := db.initialize(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize state store: %w", err)
	}

	return db, nil
}

// initialize creates the necessary tables if they don't exist
func (db *DB) initialize() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			path TEXT PRIMARY KEY,
			local_modified_at INTEGER,
			remote_modified_at INTEGER,
			last_checked_local INTEGER,
			last_checked_server INTEGER,
			present_locally INTEGER NOT NULL DEFAULT 0,
			present_remotely INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS actions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			target TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_files_presence ON files(present_locally, present_remotely);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA temp_store=MEMORY;
		PRAGMA busy_timeout=5000;
	`)
	return err
}

// Reset clears both tables. The next run starts with a preemptive bootstrap.
func (db *DB) Reset() error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM actions`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM files`); err != nil {
		return err
	}
	return tx.Commit()
}

// GetStats returns statistics about the state store
func (db *DB) GetStats() (*models.Stats, error) {
	var stats models.Stats
	err := db.QueryRow(`
		SELECT
			COUNT(*) as total_files,
			COUNT(CASE WHEN present_locally = 1 AND present_remotely = 1 THEN 1 END) as synced_files,
			COUNT(CASE WHEN present_locally = 1 AND present_remotely = 0 THEN 1 END) as local_only,
			COUNT(CASE WHEN present_locally = 0 AND present_remotely = 1 THEN 1 END) as remote_only,
			COUNT(CASE WHEN present_locally = 0 AND present_remotely = 0 THEN 1 END) as absent
		FROM files
	`).Scan(
		&stats.TotalFiles,
		&stats.SyncedFiles,
		&stats.LocalOnlyFiles,
		&stats.RemoteOnlyFiles,
		&stats.AbsentFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %v", err)
	}

	err = db.QueryRow(`
		SELECT
			COUNT(CASE WHEN kind = 'upload' THEN 1 END),
			COUNT(CASE WHEN kind = 'download' THEN 1 END),
			COUNT(CASE WHEN kind = 'delete' THEN 1 END)
		FROM actions
	`).Scan(&stats.PendingUploads, &stats.PendingDownloads, &stats.PendingDeletes)
	if err != nil {
		return nil, fmt.Errorf("failed to get action stats: %v", err)
	}
	return &stats, nil
}

func toNull(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
