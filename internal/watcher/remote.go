package watcher

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/chmdznr/ftpsync/internal/db"
	apperrors "github.com/chmdznr/ftpsync/internal/errors"
	"github.com/chmdznr/ftpsync/internal/notify"
	"github.com/chmdznr/ftpsync/internal/remote"
	"github.com/chmdznr/ftpsync/pkg/models"
)

// TransferReport counts the remote operations executed since the last
// TakeReport call.
type TransferReport struct {
	Uploaded   int
	Downloaded int
	Deleted    int
	Failed     int
	Bytes      int64
}

// Total returns the number of operations attempted.
func (r TransferReport) Total() int {
	return r.Uploaded + r.Downloaded + r.Deleted + r.Failed
}

// frame is one directory of the depth-first sweep. pending holds the
// subdirectories not visited yet; the directory is ready once it is empty.
type frame struct {
	dir     string
	listed  bool
	pending []string
}

// RemoteWatcher tracks the server replica. It owns the remote session:
// every transfer and listing runs from Scan, one at a time.
type RemoteWatcher struct {
	client    remote.Client
	root      string
	store     *db.FileStore
	local     *LocalWatcher
	tolerance time.Duration
	bus       *notify.Bus
	log       zerolog.Logger
	clock     epochClock
	goos      string

	pendingDeletes   []string
	pendingUploads   []string
	pendingDownloads []string

	knownDirs map[string]bool
	warned    map[string]bool
	report    TransferReport
}

// NewRemoteWatcher creates a watcher for root on the server. Transfers read
// from and write to the tree of local.
func NewRemoteWatcher(client remote.Client, root string, store *db.FileStore, local *LocalWatcher,
	tolerance time.Duration, bus *notify.Bus, log zerolog.Logger) *RemoteWatcher {
	if root == "" {
		root = "/"
	}
	return &RemoteWatcher{
		client:    client,
		root:      path.Clean(root),
		store:     store,
		local:     local,
		tolerance: tolerance,
		bus:       bus,
		log:       log,
		goos:      runtime.GOOS,
		knownDirs: make(map[string]bool),
		warned:    make(map[string]bool),
	}
}

// EnqueueDelete schedules removal of logical from the server.
func (w *RemoteWatcher) EnqueueDelete(logical string) {
	w.pendingDeletes = append(w.pendingDeletes, logical)
}

// EnqueueUpload schedules a transfer of the local copy of logical.
func (w *RemoteWatcher) EnqueueUpload(logical string) {
	w.pendingUploads = append(w.pendingUploads, logical)
}

// EnqueueDownload schedules a transfer of the server copy of logical.
func (w *RemoteWatcher) EnqueueDownload(logical string) {
	w.pendingDownloads = append(w.pendingDownloads, logical)
}

// Pending returns the number of queued remote operations.
func (w *RemoteWatcher) Pending() int {
	return len(w.pendingDeletes) + len(w.pendingUploads) + len(w.pendingDownloads)
}

// TakeReport returns the operation counters and resets them.
func (w *RemoteWatcher) TakeReport() TransferReport {
	r := w.report
	w.report = TransferReport{}
	return r
}

// Size returns the server size of logical.
func (w *RemoteWatcher) Size(logical string) (int64, error) {
	return w.client.FileSize(remote.Join(w.root, logical))
}

// ModTime returns the server mtime of logical.
func (w *RemoteWatcher) ModTime(logical string) (time.Time, error) {
	return w.client.ModTime(remote.Join(w.root, logical))
}

// Scan runs every queued operation (deletes, then uploads, then downloads)
// and then sweeps the server tree depth first. Deletion detection only runs
// after a sweep that listed every directory and read every mtime.
func (w *RemoteWatcher) Scan(ctx context.Context) ([]Event, error) {
	if err := w.flush(ctx); err != nil {
		return nil, err
	}
	w.knownDirs = make(map[string]bool)

	epoch := w.clock.next()
	complete := true
	var events []Event

	stack := []frame{{dir: "/"}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		top := &stack[len(stack)-1]

		if !top.listed {
			top.listed = true
			subdirs, files, err := w.listDir(top.dir)
			if err != nil {
				w.log.Warn().Err(err).Str("dir", top.dir).Msg("listing failed, deletions not tracked this pass")
				complete = false
				stack = stack[:len(stack)-1]
				continue
			}
			top.pending = subdirs
			w.mirrorDir(top.dir)

			for _, name := range files {
				logical := path.Join(top.dir, name)
				ev, ok, err := w.observeFile(logical, epoch)
				if err != nil {
					if apperrors.IsTransient(err) {
						w.log.Warn().Err(err).Str("path", logical).Msg("cannot read remote mtime")
						complete = false
						continue
					}
					return events, err
				}
				if ok {
					events = append(events, ev)
				}
			}
		}

		if len(top.pending) == 0 {
			// ready: backtrack to the parent
			stack = stack[:len(stack)-1]
			continue
		}
		next := path.Join(top.dir, top.pending[0])
		top.pending = top.pending[1:]
		stack = append(stack, frame{dir: next})
	}

	if !complete {
		w.bus.Status("Remote scan incomplete")
		return events, nil
	}

	deleted, err := w.detectDeletions(epoch)
	w.bus.Status("Remote scan complete")
	return append(events, deleted...), err
}

// listDir returns the subdirectory and file names of a logical directory.
// Files are the plain names that are not directories.
func (w *RemoteWatcher) listDir(dir string) (subdirs, files []string, err error) {
	abs := remote.Join(w.root, dir)
	w.bus.Status("Remote scan - listing " + dir)

	entries, err := w.client.List(abs)
	if err != nil {
		return nil, nil, err
	}
	names, err := w.client.NameList(abs)
	if err != nil {
		return nil, nil, err
	}
	w.knownDirs[abs] = true

	dirs := make(map[string]bool)
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		dirs[e.Name] = true
		if w.skipName(path.Join(dir, e.Name), e.Name) {
			continue
		}
		subdirs = append(subdirs, e.Name)
	}
	for _, name := range names {
		if dirs[name] {
			continue
		}
		if w.skipName(path.Join(dir, name), name) {
			continue
		}
		files = append(files, name)
	}
	return subdirs, files, nil
}

// skipName reports whether a remote name must stay out of the store,
// notifying the front end the first time each name is seen.
func (w *RemoteWatcher) skipName(logical, name string) bool {
	reason, bad := unsupportedName(name, w.goos)
	if !bad && IsTemporary(name) {
		if isPartial(name) {
			return true
		}
		reason, bad = "temporary file", true
	}
	if !bad {
		return false
	}
	if !w.warned[name] {
		w.warned[name] = true
		w.log.Warn().Str("path", logical).Str("reason", reason).Msg("skipping remote file")
		w.bus.BadFilename(logical, reason)
	}
	return true
}

func (w *RemoteWatcher) observeFile(logical string, epoch time.Time) (Event, bool, error) {
	rec, err := w.store.Get(logical)
	if err != nil {
		return Event{}, false, err
	}
	if rec != nil && rec.LastCheckedServer != nil && rec.LastCheckedServer.Equal(epoch) {
		return Event{}, false, nil
	}

	mtime, err := w.client.ModTime(remote.Join(w.root, logical))
	if err != nil {
		return Event{}, false, apperrors.Transient("mdtm", logical, err)
	}
	mtime = mtime.UTC().Truncate(time.Second)

	var (
		justAdded bool
		previous  *time.Time
	)
	rec, err = w.store.Update(logical, func(r *models.FileRecord) {
		justAdded = !r.PresentRemotely
		previous = r.RemoteModifiedAt
		r.PresentRemotely = true
		r.LastCheckedServer = models.TimePtr(epoch)
		r.RemoteModifiedAt = models.TimePtr(mtime)
	})
	if err != nil {
		return Event{}, false, err
	}

	if justAdded {
		return Event{Kind: Added, Side: models.SideServer, Path: logical}, true, nil
	}

	newer := previous == nil || mtime.After(*previous)
	delta, known := rec.TimeDiff()
	localOlder := rec.PresentLocally && known && delta < -w.tolerance.Seconds()
	if newer || localOlder || !rec.PresentLocally {
		return Event{Kind: Changed, Side: models.SideServer, Path: logical}, true, nil
	}
	return Event{}, false, nil
}

func (w *RemoteWatcher) detectDeletions(epoch time.Time) ([]Event, error) {
	stale, err := w.store.StaleServer(epoch)
	if err != nil {
		return nil, err
	}
	var events []Event
	for _, rec := range stale {
		if _, err := w.store.Update(rec.Path, func(r *models.FileRecord) { r.PresentRemotely = false }); err != nil {
			return events, err
		}
		events = append(events, Event{Kind: Deleted, Side: models.SideServer, Path: rec.Path})
	}
	return events, nil
}

// flush executes queued operations. A failed operation is reported and
// dropped; the next sweep derives it again from the store.
func (w *RemoteWatcher) flush(ctx context.Context) error {
	deletes, uploads, downloads := w.pendingDeletes, w.pendingUploads, w.pendingDownloads
	w.pendingDeletes, w.pendingUploads, w.pendingDownloads = nil, nil, nil

	run := func(op string, paths []string, fn func(string) error) error {
		for _, p := range paths {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(p); err != nil {
				if apperrors.Is(err, apperrors.CodeLocalRace) {
					w.log.Debug().Err(err).Str("op", op).Msg("skipped")
					continue
				}
				w.report.Failed++
				w.log.Error().Err(err).Str("op", op).Str("path", p).Msg("remote operation failed")
				w.bus.IOError(op, p, err)
			}
		}
		return nil
	}

	if err := run("delete", deletes, w.deleteFile); err != nil {
		return err
	}
	if err := run("upload", uploads, w.uploadFile); err != nil {
		return err
	}
	return run("download", downloads, w.downloadFile)
}

func (w *RemoteWatcher) deleteFile(logical string) error {
	if err := w.client.Delete(remote.Join(w.root, logical)); err != nil {
		return apperrors.Transient("delete", logical, err)
	}
	// Clearing the time marks the absence as our own doing rather than a
	// deletion observed on the server.
	_, err := w.store.Update(logical, func(r *models.FileRecord) {
		r.PresentRemotely = false
		r.RemoteModifiedAt = nil
	})
	if err != nil {
		return err
	}
	w.report.Deleted++
	w.log.Info().Str("path", logical).Msg("deleted on server")
	return nil
}

// mirrorDir creates the local counterpart of a listed remote directory, so
// empty directories exist on both sides.
func (w *RemoteWatcher) mirrorDir(dir string) {
	if dir == "/" {
		return
	}
	if err := os.MkdirAll(w.local.LocalPath(dir), 0o755); err != nil {
		w.log.Warn().Err(err).Str("dir", dir).Msg("cannot create local directory")
	}
}

// mkpath creates every missing directory down to dir. Failures are left
// for the following transfer to surface.
func (w *RemoteWatcher) mkpath(dir string) {
	if w.knownDirs[dir] {
		return
	}
	parent := path.Dir(dir)
	if parent != dir {
		w.mkpath(parent)
	}
	if err := w.client.MakeDir(dir); err != nil {
		w.log.Debug().Err(err).Str("dir", dir).Msg("mkdir")
	}
	w.knownDirs[dir] = true
}

func (w *RemoteWatcher) uploadFile(logical string) error {
	f, err := os.Open(w.local.LocalPath(logical))
	if err != nil {
		return apperrors.Vanished(logical, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return apperrors.Vanished(logical, err)
	}
	mtime := info.ModTime().UTC().Truncate(time.Second)

	abs := remote.Join(w.root, logical)
	w.mkpath(path.Dir(abs))

	progress := func(done, total int64) { w.bus.Progress("upload", logical, done, total) }
	if err := w.client.Store(abs, f, info.Size(), progress); err != nil {
		return apperrors.Transient("upload", logical, err)
	}
	if err := w.client.SetModTime(abs, mtime); err != nil {
		return apperrors.Transient("set mtime", logical, err)
	}

	_, err = w.store.Update(logical, func(r *models.FileRecord) {
		r.RemoteModifiedAt = models.TimePtr(mtime)
		r.PresentRemotely = true
	})
	if err != nil {
		return err
	}
	w.report.Uploaded++
	w.report.Bytes += info.Size()
	w.log.Info().Str("path", logical).Int64("bytes", info.Size()).Msg("uploaded")
	return nil
}

func (w *RemoteWatcher) downloadFile(logical string) error {
	abs := remote.Join(w.root, logical)
	dest := w.local.LocalPath(logical)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create local directory for %s: %w", logical, err)
	}

	tmp := filepath.Join(filepath.Dir(dest), PartialName(filepath.Base(dest)))
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	progress := func(done, total int64) { w.bus.Progress("download", logical, done, total) }
	n, err := w.client.Retrieve(abs, f, progress)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return apperrors.Transient("download", logical, err)
	}

	mtime, err := w.client.ModTime(abs)
	if err != nil {
		os.Remove(tmp)
		return apperrors.Transient("mdtm", logical, err)
	}
	mtime = mtime.UTC().Truncate(time.Second)

	if err := os.Chtimes(tmp, mtime, mtime); err != nil {
		w.log.Warn().Err(err).Str("path", logical).Msg("failed to set local mtime")
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", logical, err)
	}

	_, err = w.store.Update(logical, func(r *models.FileRecord) {
		r.LocalModifiedAt = models.TimePtr(mtime)
		r.RemoteModifiedAt = models.TimePtr(mtime)
		r.PresentLocally = true
		r.PresentRemotely = true
	})
	if err != nil {
		return err
	}
	w.report.Downloaded++
	w.report.Bytes += n
	w.log.Info().Str("path", logical).Int64("bytes", n).Msg("downloaded")
	return nil
}
