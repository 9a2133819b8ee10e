package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/chmdznr/ftpsync/internal/errors"
	"github.com/chmdznr/ftpsync/pkg/models"
)

const fileColumns = `path, local_modified_at, remote_modified_at, last_checked_local,
	last_checked_server, present_locally, present_remotely`

// FileStore persists one FileRecord per logical path.
type FileStore struct {
	db  *DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewFileStore returns the files repository of db.
func NewFileStore(db *DB) *FileStore {
	return &FileStore{db: db, log: db.log.With().Str("table", "files").Logger()}
}

// Get returns the record for path, or nil when none exists.
func (s *FileStore) Get(path string) (*models.FileRecord, error) {
	records, err := s.query(`SELECT `+fileColumns+` FROM files WHERE path = ?`, path)
	if err != nil {
		return nil, err
	}
	switch len(records) {
	case 0:
		return nil, nil
	case 1:
	default:
		s.log.Error().
			Err(apperrors.Invariant("duplicate file record")).
			Str("path", path).
			Int("rows", len(records)).
			Msg("possible state store corruption, using first record")
	}
	return &records[0], nil
}

// GetOrCreate returns the record for path, inserting an empty one first.
func (s *FileStore) GetOrCreate(path string) (*models.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreate(path)
}

func (s *FileStore) getOrCreate(path string) (*models.FileRecord, error) {
	_, err := s.db.Exec(`INSERT INTO files (path) VALUES (?) ON CONFLICT(path) DO NOTHING`, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create record %s: %w", path, err)
	}
	rec, err := s.Get(path)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperrors.NotFound("file record", path)
	}
	return rec, nil
}

// Save writes every field of rec.
func (s *FileStore) Save(rec *models.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(rec)
}

func (s *FileStore) save(rec *models.FileRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			local_modified_at = excluded.local_modified_at,
			remote_modified_at = excluded.remote_modified_at,
			last_checked_local = excluded.last_checked_local,
			last_checked_server = excluded.last_checked_server,
			present_locally = excluded.present_locally,
			present_remotely = excluded.present_remotely
	`,
		rec.Path,
		toNull(rec.LocalModifiedAt),
		toNull(rec.RemoteModifiedAt),
		toNull(rec.LastCheckedLocal),
		toNull(rec.LastCheckedServer),
		boolInt(rec.PresentLocally),
		boolInt(rec.PresentRemotely),
	)
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", rec.Path, err)
	}
	return nil
}

// Update loads (or creates) the record for path, applies fn and saves the
// result as one step. The record is returned after fn has run.
func (s *FileStore) Update(path string, fn func(*models.FileRecord)) (*models.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.getOrCreate(path)
	if err != nil {
		return nil, err
	}
	fn(rec)
	if err := s.save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// StaleLocal returns records still marked present locally whose last local
// check precedes epoch.
func (s *FileStore) StaleLocal(epoch time.Time) ([]models.FileRecord, error) {
	return s.query(`SELECT `+fileColumns+` FROM files
		WHERE present_locally = 1 AND (last_checked_local IS NULL OR last_checked_local < ?)
		ORDER BY path`, epoch.UnixNano())
}

// StaleServer is StaleLocal for the remote replica.
func (s *FileStore) StaleServer(epoch time.Time) ([]models.FileRecord, error) {
	return s.query(`SELECT `+fileColumns+` FROM files
		WHERE present_remotely = 1 AND (last_checked_server IS NULL OR last_checked_server < ?)
		ORDER BY path`, epoch.UnixNano())
}

// Unsynced returns records present on exactly one side.
func (s *FileStore) Unsynced() ([]models.FileRecord, error) {
	return s.query(`SELECT ` + fileColumns + ` FROM files
		WHERE present_locally != present_remotely
		ORDER BY path`)
}

// Under returns records at or below the logical directory dir.
func (s *FileStore) Under(dir string) ([]models.FileRecord, error) {
	prefix := dir + "/"
	if dir == "/" {
		prefix = "/"
	}
	return s.query(`SELECT `+fileColumns+` FROM files
		WHERE path = ? OR substr(path, 1, length(?)) = ?
		ORDER BY path`, dir, prefix, prefix)
}

// PurgeFullyAbsent deletes records neither replica claims.
func (s *FileStore) PurgeFullyAbsent() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM files WHERE present_locally = 0 AND present_remotely = 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge absent records: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of records.
func (s *FileStore) Count() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM files`).Scan(&n)
	return n, err
}

func (s *FileStore) query(q string, args ...interface{}) ([]models.FileRecord, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (models.FileRecord, error) {
	var (
		rec                      models.FileRecord
		localMod, remoteMod      sql.NullInt64
		checkedLocal, checkedSrv sql.NullInt64
		presentL, presentR       int
	)
	err := rows.Scan(&rec.Path, &localMod, &remoteMod, &checkedLocal, &checkedSrv, &presentL, &presentR)
	if err != nil {
		return rec, err
	}
	rec.LocalModifiedAt = fromNull(localMod)
	rec.RemoteModifiedAt = fromNull(remoteMod)
	rec.LastCheckedLocal = fromNull(checkedLocal)
	rec.LastCheckedServer = fromNull(checkedSrv)
	rec.PresentLocally = presentL != 0
	rec.PresentRemotely = presentR != 0
	return rec, nil
}
