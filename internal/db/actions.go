package db

import (
	"fmt"

	"github.com/chmdznr/ftpsync/pkg/models"
)

// ActionQueue is the persisted queue of pending actions, at most one per path.
type ActionQueue struct {
	db *DB
}

// NewActionQueue returns the actions repository of db.
func NewActionQueue(db *DB) *ActionQueue {
	return &ActionQueue{db: db}
}

const upsertAction = `
	INSERT INTO actions (path, kind, target) VALUES (?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET kind = excluded.kind, target = excluded.target
`

// Add queues entry. An entry already queued for the same path is overwritten
// in place and keeps its position.
func (q *ActionQueue) Add(entry models.ActionEntry) error {
	_, err := q.db.Exec(upsertAction, entry.Path, string(entry.Kind), string(entry.Target))
	if err != nil {
		return fmt.Errorf("failed to queue %s: %w", entry, err)
	}
	return nil
}

// AddBatch queues entries in order within a single transaction.
func (q *ActionQueue) AddBatch(entries []models.ActionEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := q.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertAction)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.Exec(entry.Path, string(entry.Kind), string(entry.Target)); err != nil {
			return fmt.Errorf("failed to queue %s: %w", entry, err)
		}
	}
	return tx.Commit()
}

// Pending returns the queued entries in insertion order without consuming them.
func (q *ActionQueue) Pending() ([]models.ActionEntry, error) {
	rows, err := q.db.Query(`SELECT path, kind, target FROM actions ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ActionEntry
	for rows.Next() {
		var (
			e            models.ActionEntry
			kind, target string
		)
		if err := rows.Scan(&e.Path, &kind, &target); err != nil {
			return nil, err
		}
		e.Kind = models.ActionKind(kind)
		e.Target = models.Side(target)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DrainAll removes and returns every queued entry in insertion order.
func (q *ActionQueue) DrainAll() ([]models.ActionEntry, error) {
	tx, err := q.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT path, kind, target FROM actions ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	var entries []models.ActionEntry
	for rows.Next() {
		var (
			e            models.ActionEntry
			kind, target string
		)
		if err := rows.Scan(&e.Path, &kind, &target); err != nil {
			rows.Close()
			return nil, err
		}
		e.Kind = models.ActionKind(kind)
		e.Target = models.Side(target)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if _, err := tx.Exec(`DELETE FROM actions`); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to drain action queue: %w", err)
	}
	return entries, nil
}

// Len returns the number of queued entries.
func (q *ActionQueue) Len() (int, error) {
	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM actions`).Scan(&n)
	return n, err
}

// Clear drops every queued entry.
func (q *ActionQueue) Clear() error {
	_, err := q.db.Exec(`DELETE FROM actions`)
	return err
}
