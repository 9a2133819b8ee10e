package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chmdznr/ftpsync/internal/db"
	"github.com/chmdznr/ftpsync/internal/notify"
	"github.com/chmdznr/ftpsync/pkg/models"
)

const testTolerance = 10 * time.Second

var baseTime = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *db.FileStore {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "state.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return db.NewFileStore(d)
}

func writeLocal(t *testing.T, root, logical, content string, mtime time.Time) string {
	t.Helper()
	p := ToLocal(root, logical)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(p, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return p
}

func mustGet(t *testing.T, store *db.FileStore, p string) *models.FileRecord {
	t.Helper()
	rec, err := store.Get(p)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", p, err)
	}
	if rec == nil {
		t.Fatalf("no record for %s", p)
	}
	return rec
}

// markSynced pretends the other replica holds the same version.
func markSynced(t *testing.T, store *db.FileStore, p string, mtime time.Time) {
	t.Helper()
	_, err := store.Update(p, func(r *models.FileRecord) {
		r.PresentLocally = true
		r.PresentRemotely = true
		r.LocalModifiedAt = models.TimePtr(mtime)
		r.RemoteModifiedAt = models.TimePtr(mtime)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func drainBus(bus *notify.Bus) []notify.Notification {
	var out []notify.Notification
	for {
		select {
		case n := <-bus.C():
			out = append(out, n)
		default:
			return out
		}
	}
}

func eventSet(events []Event) map[string]Event {
	m := make(map[string]Event, len(events))
	for _, e := range events {
		m[e.Path] = e
	}
	return m
}
