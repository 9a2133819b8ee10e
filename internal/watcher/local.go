package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/chmdznr/ftpsync/internal/db"
	"github.com/chmdznr/ftpsync/pkg/models"
)

// LocalWatcher tracks the local replica through full tree walks and, once
// armed, through filesystem notifications.
type LocalWatcher struct {
	root      string
	store     *db.FileStore
	tolerance time.Duration
	log       zerolog.Logger
	clock     epochClock

	fsw *fsnotify.Watcher
}

// NewLocalWatcher creates a watcher for the tree at root.
func NewLocalWatcher(root string, store *db.FileStore, tolerance time.Duration, log zerolog.Logger) *LocalWatcher {
	return &LocalWatcher{
		root:      filepath.Clean(root),
		store:     store,
		tolerance: tolerance,
		log:       log,
	}
}

// Root returns the local directory being synchronized.
func (w *LocalWatcher) Root() string {
	return w.root
}

// LocalPath maps a logical path to its file under the root.
func (w *LocalWatcher) LocalPath(logical string) string {
	return ToLocal(w.root, logical)
}

// Scan walks the whole tree, refreshes every record's local half and
// returns the resulting events. Deletion detection is skipped when part
// of the tree could not be read.
func (w *LocalWatcher) Scan(ctx context.Context) ([]Event, error) {
	if _, err := os.Stat(w.root); err != nil {
		return nil, fmt.Errorf("local root unavailable: %w", err)
	}

	epoch := w.clock.next()
	complete := true
	var events []Event

	err := filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			w.log.Warn().Err(err).Str("path", p).Msg("cannot read, deletions not tracked this pass")
			complete = false
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == w.root {
			return nil
		}
		if IsTemporary(d.Name()) {
			if isPartial(d.Name()) && d.Type().IsRegular() {
				w.removeStalePartial(p)
			}
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// vanished since the directory was read
			return nil
		}
		logical, err := ToLogical(w.root, p)
		if err != nil {
			return nil
		}
		ev, ok, err := w.observe(logical, info.ModTime(), epoch, false)
		if err != nil {
			return err
		}
		if ok {
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return events, err
	}

	if !complete {
		return events, nil
	}

	deleted, err := w.detectDeletions(epoch)
	return append(events, deleted...), err
}

func (w *LocalWatcher) removeStalePartial(p string) {
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		w.log.Warn().Err(err).Str("path", p).Msg("failed to remove stale partial download")
		return
	}
	w.log.Debug().Str("path", p).Msg("removed stale partial download")
}

// observe records that logical exists locally with mtime. force reports a
// change even when the mtime did not move, as for a write notification.
func (w *LocalWatcher) observe(logical string, mtime, epoch time.Time, force bool) (Event, bool, error) {
	mtime = mtime.UTC().Truncate(time.Second)

	var (
		justAdded bool
		previous  *time.Time
	)
	rec, err := w.store.Update(logical, func(r *models.FileRecord) {
		justAdded = !r.PresentLocally
		previous = r.LocalModifiedAt
		r.PresentLocally = true
		r.LastCheckedLocal = models.TimePtr(epoch)
		r.LocalModifiedAt = models.TimePtr(mtime)
	})
	if err != nil {
		return Event{}, false, err
	}

	if justAdded {
		return Event{Kind: Added, Side: models.SideLocal, Path: logical}, true, nil
	}

	delta, known := rec.TimeDiff()
	newer := previous == nil || mtime.After(*previous)
	if force || newer || (known && delta > w.tolerance.Seconds()) || !rec.PresentRemotely {
		// Only a real edit overrides the tolerance window.
		return Event{Kind: Changed, Side: models.SideLocal, Path: logical, SkipTolerance: force || newer}, true, nil
	}
	return Event{}, false, nil
}

func (w *LocalWatcher) detectDeletions(epoch time.Time) ([]Event, error) {
	stale, err := w.store.StaleLocal(epoch)
	if err != nil {
		return nil, err
	}
	var events []Event
	for _, rec := range stale {
		if _, err := w.store.Update(rec.Path, func(r *models.FileRecord) { r.PresentLocally = false }); err != nil {
			return events, err
		}
		events = append(events, Event{Kind: Deleted, Side: models.SideLocal, Path: rec.Path})
	}
	return events, nil
}

// Arm starts filesystem notifications for every directory in the tree.
func (w *LocalWatcher) Arm() error {
	if w.fsw != nil {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.fsw = fsw

	if err := w.watchTree(w.root); err != nil {
		fsw.Close()
		w.fsw = nil
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}
	w.log.Info().Str("root", w.root).Msg("watching local changes")
	return nil
}

func (w *LocalWatcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			w.log.Warn().Err(err).Str("path", p).Msg("cannot watch directory")
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && IsTemporary(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

// Armed reports whether notifications are active.
func (w *LocalWatcher) Armed() bool {
	return w.fsw != nil
}

// Events returns the raw notification channel, nil until armed.
func (w *LocalWatcher) Events() <-chan fsnotify.Event {
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Events
}

// Errors returns the notification error channel, nil until armed.
func (w *LocalWatcher) Errors() <-chan error {
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Errors
}

// Handle converts one filesystem notification into events, updating the
// store on the way. A rename arrives as the removal of the old name
// followed by a create of the new one.
func (w *LocalWatcher) Handle(ev fsnotify.Event) []Event {
	if IsTemporary(ev.Name) {
		return nil
	}
	logical, err := ToLogical(w.root, ev.Name)
	if err != nil || logical == "/" {
		return nil
	}

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		return w.handleRemove(ev.Name, logical)
	case ev.Has(fsnotify.Create):
		return w.handleCreate(ev.Name, logical)
	case ev.Has(fsnotify.Write):
		return w.handleWrite(ev.Name, logical)
	}
	return nil
}

func (w *LocalWatcher) handleCreate(p, logical string) []Event {
	info, err := os.Stat(p)
	if err != nil {
		return nil
	}
	if !info.IsDir() {
		ev, ok, err := w.observe(logical, info.ModTime(), w.clock.next(), false)
		if err != nil {
			w.log.Error().Err(err).Str("path", logical).Msg("failed to record local change")
		}
		if !ok {
			return nil
		}
		return []Event{ev}
	}

	// A new directory may already hold files, e.g. when moved into the tree.
	if w.fsw != nil {
		if err := w.watchTree(p); err != nil {
			w.log.Warn().Err(err).Str("path", p).Msg("cannot watch new directory")
		}
	}
	epoch := w.clock.next()
	var events []Event
	filepath.WalkDir(p, func(fp string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if IsTemporary(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		fl, err := ToLogical(w.root, fp)
		if err != nil {
			return nil
		}
		if ev, ok, err := w.observe(fl, fi.ModTime(), epoch, false); err == nil && ok {
			events = append(events, ev)
		}
		return nil
	})
	return events
}

func (w *LocalWatcher) handleWrite(p, logical string) []Event {
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return nil
	}
	ev, ok, err := w.observe(logical, info.ModTime(), w.clock.next(), true)
	if err != nil {
		w.log.Error().Err(err).Str("path", logical).Msg("failed to record local change")
		return nil
	}
	if !ok {
		return nil
	}
	return []Event{ev}
}

func (w *LocalWatcher) handleRemove(p, logical string) []Event {
	if w.fsw != nil {
		// Only succeeds for watched directories.
		w.fsw.Remove(p)
	}

	// An editor may replace a file by rename; the path still exists then.
	if info, err := os.Stat(p); err == nil && !info.IsDir() {
		return w.handleWrite(p, logical)
	}

	recs, err := w.store.Under(logical)
	if err != nil {
		w.log.Error().Err(err).Str("path", logical).Msg("failed to look up removed path")
		return nil
	}
	var events []Event
	for _, rec := range recs {
		if !rec.PresentLocally {
			continue
		}
		if _, err := w.store.Update(rec.Path, func(r *models.FileRecord) { r.PresentLocally = false }); err != nil {
			w.log.Error().Err(err).Str("path", rec.Path).Msg("failed to record local deletion")
			continue
		}
		events = append(events, Event{Kind: Deleted, Side: models.SideLocal, Path: rec.Path})
	}
	return events
}

// Stat returns the local file info for a logical path.
func (w *LocalWatcher) Stat(logical string) (os.FileInfo, error) {
	return os.Stat(w.LocalPath(logical))
}

// MarkAbsent records that logical no longer exists locally.
func (w *LocalWatcher) MarkAbsent(logical string) error {
	_, err := w.store.Update(logical, func(r *models.FileRecord) { r.PresentLocally = false })
	return err
}

// Delete removes the local copy of logical and records its absence. The
// local time is cleared, unlike deletions observed by a scan.
func (w *LocalWatcher) Delete(logical string) error {
	if err := os.Remove(w.LocalPath(logical)); err != nil && !os.IsNotExist(err) {
		return err
	}
	_, err := w.store.Update(logical, func(r *models.FileRecord) {
		r.PresentLocally = false
		r.LocalModifiedAt = nil
	})
	return err
}

// Close stops notifications.
func (w *LocalWatcher) Close() error {
	if w.fsw == nil {
		return nil
	}
	err := w.fsw.Close()
	w.fsw = nil
	return err
}
