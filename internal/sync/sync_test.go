package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/chmdznr/ftpsync/internal/db"
	"github.com/chmdznr/ftpsync/internal/notify"
	"github.com/chmdznr/ftpsync/internal/testsupport"
	"github.com/chmdznr/ftpsync/pkg/models"
)

var baseTime = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	syncer *Syncer
	server *testsupport.MemoryClient
	root   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	database, err := db.Open(filepath.Join(t.TempDir(), "state.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	server := testsupport.NewMemoryClient()
	cfg := DefaultSyncerConfig()
	cfg.LocalRoot = root
	cfg.BusyInterval = 10 * time.Millisecond
	cfg.DefaultInterval = 20 * time.Millisecond
	cfg.IdleInterval = 30 * time.Millisecond

	s, err := NewSyncer(database, server, cfg, notify.NewBus(1024), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSyncer() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return &fixture{syncer: s, server: server, root: root}
}

func (f *fixture) writeLocal(t *testing.T, logical, content string, mtime time.Time) {
	t.Helper()
	p := filepath.Join(f.root, filepath.FromSlash(logical))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(p, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) localPath(logical string) string {
	return filepath.Join(f.root, filepath.FromSlash(logical))
}

func (f *fixture) settle(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.syncer.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := f.syncer.SyncNow(ctx); err != nil {
			t.Fatalf("SyncNow() error = %v", err)
		}
	}
}

func (f *fixture) pending(t *testing.T) map[string]models.ActionEntry {
	t.Helper()
	entries, err := f.syncer.queue.Pending()
	if err != nil {
		t.Fatal(err)
	}
	m := make(map[string]models.ActionEntry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return m
}

func (f *fixture) record(t *testing.T, p string) *models.FileRecord {
	t.Helper()
	rec, err := f.syncer.store.Get(p)
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

// A local file with no record is uploaded and the server copy takes the
// local mtime.
func TestNewLocalFileIsUploaded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeLocal(t, "/a.txt", "alpha", baseTime)

	if _, err := f.syncer.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}
	want := models.ActionEntry{Path: "/a.txt", Kind: models.ActionUpload, Target: models.SideServer}
	if got := f.pending(t)["/a.txt"]; got != want {
		t.Fatalf("queued = %v; want %v", got, want)
	}
	if f.syncer.Interval() != f.syncer.cfg.BusyInterval {
		t.Errorf("Interval() = %v; want busy interval while actions are queued", f.syncer.Interval())
	}

	stats, err := f.syncer.SyncNow(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Uploaded != 1 {
		t.Errorf("stats = %+v; want one upload", stats)
	}

	data, mtime, ok := f.server.File("/a.txt")
	if !ok || string(data) != "alpha" || !mtime.Equal(baseTime) {
		t.Errorf("server copy = %q %v %v", data, mtime, ok)
	}
	rec := f.record(t, "/a.txt")
	if rec.RemoteModifiedAt == nil || !rec.RemoteModifiedAt.Equal(baseTime) {
		t.Errorf("RemoteModifiedAt = %v; want %v", rec.RemoteModifiedAt, baseTime)
	}
}

// A server copy 30s newer than the local one is downloaded and both
// recorded mtimes end up equal to the server's.
func TestNewerServerFileIsDownloaded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t1 := baseTime
	t2 := baseTime.Add(30 * time.Second)

	f.writeLocal(t, "/b.txt", "old", t1)
	f.server.PutFile("/b.txt", []byte("old"), t1)
	f.settle(t)

	f.server.PutFile("/b.txt", []byte("new"), t2)
	if _, err := f.syncer.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}
	want := models.ActionEntry{Path: "/b.txt", Kind: models.ActionDownload, Target: models.SideLocal}
	if got := f.pending(t)["/b.txt"]; got != want {
		t.Fatalf("queued = %v; want %v", got, want)
	}

	if _, err := f.syncer.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(f.localPath("/b.txt"))
	if string(data) != "new" {
		t.Errorf("local content = %q; want new", data)
	}
	rec := f.record(t, "/b.txt")
	if !rec.LocalModifiedAt.Equal(t2) || !rec.RemoteModifiedAt.Equal(t2) {
		t.Errorf("record mtimes = %v / %v; want %v", rec.LocalModifiedAt, rec.RemoteModifiedAt, t2)
	}

	// Nothing left to do: the download must not bounce back as an upload.
	if _, err := f.syncer.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := f.syncer.queue.Len(); n != 0 {
		t.Errorf("queue has %d actions after download; want 0", n)
	}
}

// A file deleted locally while offline is deleted on the server and its
// record is garbage collected.
func TestOfflineLocalDeleteReachesServer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeLocal(t, "/c.txt", "c", baseTime)
	f.server.PutFile("/c.txt", []byte("c"), baseTime)
	f.settle(t)

	if err := os.Remove(f.localPath("/c.txt")); err != nil {
		t.Fatal(err)
	}
	events, err := f.syncer.local.Scan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rec := f.record(t, "/c.txt"); rec.PresentLocally {
		t.Fatal("local scan should clear presentLocally")
	}
	f.syncer.handle(events)

	want := models.ActionEntry{Path: "/c.txt", Kind: models.ActionDelete, Target: models.SideServer}
	if got := f.pending(t)["/c.txt"]; got != want {
		t.Fatalf("queued = %v; want %v", got, want)
	}

	stats, err := f.syncer.SyncNow(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, ok := f.server.File("/c.txt"); ok {
		t.Error("server copy should be deleted")
	}
	if stats.Deleted != 1 || stats.Purged != 1 {
		t.Errorf("stats = %+v; want one deletion and one purge", stats)
	}
	if rec := f.record(t, "/c.txt"); rec != nil {
		t.Errorf("record should be purged, got %+v", rec)
	}
}

func TestBootstrapDecisions(t *testing.T) {
	f := newFixture(t)

	f.writeLocal(t, "/same.txt", "s", baseTime)
	f.server.PutFile("/same.txt", []byte("s"), baseTime.Add(5*time.Second))

	f.writeLocal(t, "/local-only.txt", "l", baseTime)
	f.server.PutFile("/remote-only.txt", []byte("r"), baseTime)

	f.writeLocal(t, "/local-newer.txt", "ln", baseTime.Add(time.Minute))
	f.server.PutFile("/local-newer.txt", []byte("ln"), baseTime)

	f.writeLocal(t, "/remote-newer.txt", "rn", baseTime)
	f.server.PutFile("/remote-newer.txt", []byte("rn"), baseTime.Add(time.Minute))

	f.writeLocal(t, "/~$lock.tmp", "lock", baseTime)

	n, err := f.syncer.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	want := map[string]models.ActionEntry{
		"/local-only.txt":   {Path: "/local-only.txt", Kind: models.ActionUpload, Target: models.SideServer},
		"/remote-only.txt":  {Path: "/remote-only.txt", Kind: models.ActionDownload, Target: models.SideLocal},
		"/local-newer.txt":  {Path: "/local-newer.txt", Kind: models.ActionUpload, Target: models.SideServer},
		"/remote-newer.txt": {Path: "/remote-newer.txt", Kind: models.ActionDownload, Target: models.SideLocal},
	}
	got := f.pending(t)
	if len(got) != len(want) {
		t.Errorf("queued %v; want %v", got, want)
	}
	for p, w := range want {
		if got[p] != w {
			t.Errorf("queued[%s] = %v; want %v", p, got[p], w)
		}
	}
	if _, ok := got["/same.txt"]; ok {
		t.Error("matching file within tolerance must not produce an action")
	}
	if n < len(want) {
		t.Errorf("Bootstrap() = %d; want at least %d", n, len(want))
	}

	// A second call is a no-op once the store has content.
	if n, err := f.syncer.Bootstrap(context.Background()); err != nil || n != 0 {
		t.Errorf("second Bootstrap() = %d, %v", n, err)
	}
}

func TestTemporaryFilesNeverSync(t *testing.T) {
	f := newFixture(t)
	f.writeLocal(t, "/~$lock.tmp", "lock", baseTime)
	f.settle(t)

	if rec := f.record(t, "/~$lock.tmp"); rec != nil {
		t.Errorf("record created for temporary file: %+v", rec)
	}
	if _, _, ok := f.server.File("/~$lock.tmp"); ok {
		t.Error("temporary file uploaded")
	}
	if n, _ := f.syncer.queue.Len(); n != 0 {
		t.Errorf("queue has %d actions", n)
	}
}

func TestOnChangedTolerance(t *testing.T) {
	tests := []struct {
		name     string
		delta    time.Duration // local - remote
		side     models.Side
		skip     bool
		wantKind models.ActionKind
	}{
		{"server noise", -9 * time.Second, models.SideServer, false, ""},
		{"local noise", 9 * time.Second, models.SideLocal, false, ""},
		{"equal", 0, models.SideServer, false, ""},
		{"server newer", -30 * time.Second, models.SideServer, false, models.ActionDownload},
		{"local newer", 30 * time.Second, models.SideLocal, false, models.ActionUpload},
		{"local newer within tolerance, skip", 3 * time.Second, models.SideLocal, true, models.ActionUpload},
		{"server older than local", 30 * time.Second, models.SideServer, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := &models.FileRecord{
				Path:             "/t.txt",
				LocalModifiedAt:  models.TimePtr(baseTime.Add(tt.delta)),
				RemoteModifiedAt: models.TimePtr(baseTime),
				PresentLocally:   true,
				PresentRemotely:  true,
			}
			if err := f.syncer.store.Save(rec); err != nil {
				t.Fatal(err)
			}

			f.syncer.onChanged(tt.side, "/t.txt", tt.skip)

			got, ok := f.pending(t)["/t.txt"]
			if tt.wantKind == "" {
				if ok {
					t.Errorf("queued %v; want nothing", got)
				}
				return
			}
			if got.Kind != tt.wantKind {
				t.Errorf("queued %v; want %s", got, tt.wantKind)
			}
		})
	}
}

func TestOnChangedUnknownTimestampActs(t *testing.T) {
	f := newFixture(t)
	f.syncer.store.Save(&models.FileRecord{
		Path:            "/n.txt",
		LocalModifiedAt: models.TimePtr(baseTime),
		PresentLocally:  true,
		PresentRemotely: true,
	})

	f.syncer.onChanged(models.SideLocal, "/n.txt", false)
	if got := f.pending(t)["/n.txt"]; got.Kind != models.ActionUpload {
		t.Errorf("queued %v; want upload when the server mtime is unknown", got)
	}
}

func TestLaterDecisionReplacesEarlier(t *testing.T) {
	f := newFixture(t)
	f.syncer.store.Save(&models.FileRecord{Path: "/q.txt", PresentLocally: true})

	f.syncer.onAdded(models.SideLocal, "/q.txt")
	f.syncer.store.Save(&models.FileRecord{Path: "/q.txt", PresentRemotely: true})
	f.syncer.onAdded(models.SideServer, "/q.txt")

	entries, _ := f.syncer.queue.Pending()
	if len(entries) != 1 || entries[0].Kind != models.ActionDownload {
		t.Errorf("queue = %v; want a single download", entries)
	}
}

func TestOnDeleted(t *testing.T) {
	tests := []struct {
		name   string
		rec    models.FileRecord
		side   models.Side
		want   models.ActionEntry
		action bool
	}{
		{
			name:   "server delete removes local copy",
			rec:    models.FileRecord{Path: "/d", PresentLocally: true},
			side:   models.SideServer,
			want:   models.ActionEntry{Path: "/d", Kind: models.ActionDelete, Target: models.SideLocal},
			action: true,
		},
		{
			name:   "local delete removes server copy",
			rec:    models.FileRecord{Path: "/d", PresentRemotely: true},
			side:   models.SideLocal,
			want:   models.ActionEntry{Path: "/d", Kind: models.ActionDelete, Target: models.SideServer},
			action: true,
		},
		{
			name: "absent everywhere is left to garbage collection",
			rec:  models.FileRecord{Path: "/d"},
			side: models.SideLocal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := tt.rec
			f.syncer.store.Save(&rec)
			f.syncer.onDeleted(tt.side, "/d")

			got, ok := f.pending(t)["/d"]
			if ok != tt.action || (ok && got != tt.want) {
				t.Errorf("queued %v (%v); want %v (%v)", got, ok, tt.want, tt.action)
			}
		})
	}
}

func TestDispatchLocalRaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.settle(t)

	f.server.PutFile("/vanished.txt", []byte("v"), baseTime)
	f.syncer.store.Save(&models.FileRecord{Path: "/vanished.txt", PresentLocally: true, PresentRemotely: true})
	f.syncer.enqueue("/vanished.txt", models.ActionDelete, models.SideLocal)
	f.syncer.store.Save(&models.FileRecord{Path: "/gone-before-upload.txt", PresentLocally: true})
	f.syncer.enqueue("/gone-before-upload.txt", models.ActionUpload, models.SideServer)

	stats, err := f.syncer.SyncNow(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Skipped != 2 {
		t.Errorf("stats = %+v; want two skipped actions", stats)
	}
	if rec := f.record(t, "/vanished.txt"); rec == nil || rec.PresentLocally {
		t.Errorf("record = %+v; want present remotely only", rec)
	}
	if f.server.CountCalls("stor") != 0 {
		t.Error("upload attempted for a missing file")
	}
}

func TestDispatchLocalDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeLocal(t, "/rm.txt", "x", baseTime)
	f.server.PutFile("/rm.txt", []byte("x"), baseTime)
	f.settle(t)

	f.server.Delete("/rm.txt")
	if _, err := f.syncer.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.syncer.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(f.localPath("/rm.txt")); !os.IsNotExist(err) {
		t.Errorf("local copy should be removed: %v", err)
	}
	if rec := f.record(t, "/rm.txt"); rec != nil {
		t.Errorf("record should be purged: %+v", rec)
	}
}

func TestFallbackRederivesFailedUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeLocal(t, "/retry.txt", "r", baseTime)
	f.server.FailOn("stor", "/retry.txt", os.ErrPermission)

	if _, err := f.syncer.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	stats, err := f.syncer.SyncNow(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Failed != 1 {
		t.Fatalf("stats = %+v; want one failed upload", stats)
	}
	if got := f.pending(t)["/retry.txt"]; got.Kind != models.ActionUpload {
		t.Errorf("queued %v; want the upload derived again", got)
	}

	f.server.ClearFailures()
	if _, err := f.syncer.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := f.server.File("/retry.txt"); !ok {
		t.Error("upload should succeed once the server accepts it")
	}
}

func TestGarbageCollection(t *testing.T) {
	f := newFixture(t)
	f.settle(t)
	f.syncer.store.Save(&models.FileRecord{Path: "/ghost"})

	if _, err := f.syncer.SyncNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rec := f.record(t, "/ghost"); rec != nil {
		t.Errorf("absent record survived garbage collection: %+v", rec)
	}
}

func TestAdaptiveInterval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.settle(t)

	if _, err := f.syncer.SyncNow(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.syncer.Interval(); got != f.syncer.cfg.IdleInterval {
		t.Errorf("idle Interval() = %v; want %v", got, f.syncer.cfg.IdleInterval)
	}

	f.server.PutFile("/new.txt", []byte("n"), baseTime)
	f.syncer.SyncNow(ctx)
	if got := f.syncer.Interval(); got != f.syncer.cfg.BusyInterval {
		t.Errorf("busy Interval() = %v; want %v", got, f.syncer.cfg.BusyInterval)
	}

	f.syncer.SyncNow(ctx)
	if got := f.syncer.Interval(); got != f.syncer.cfg.DefaultInterval {
		t.Errorf("Interval() after work = %v; want %v", got, f.syncer.cfg.DefaultInterval)
	}
}

func TestSyncNowGuard(t *testing.T) {
	f := newFixture(t)
	f.syncer.guard.Lock()
	_, err := f.syncer.SyncNow(context.Background())
	f.syncer.guard.Unlock()
	if err != ErrCycleRunning {
		t.Errorf("SyncNow() error = %v; want ErrCycleRunning", err)
	}
}

func TestRunUploadsAndStops(t *testing.T) {
	f := newFixture(t)
	f.writeLocal(t, "/run.txt", "r", baseTime)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.syncer.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, _, ok := f.server.File("/run.txt"); ok {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("file was not uploaded in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

// An editor saving by rename removes the file and creates it again before
// the next cycle. The server copy must never be deleted in between.
func TestSaveByRenameKeepsServerCopy(t *testing.T) {
	tests := []struct {
		name      string
		mtime     time.Time
		content   string
		wantKind  models.ActionKind
		wantFinal string
	}{
		{
			name:      "newer content replaces the queued deletion",
			mtime:     baseTime.Add(time.Minute),
			content:   "new",
			wantKind:  models.ActionUpload,
			wantFinal: "new",
		},
		{
			name:      "same time leaves the server copy alone",
			mtime:     baseTime,
			content:   "old",
			wantKind:  models.ActionDelete,
			wantFinal: "old",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.writeLocal(t, "/x.txt", "old", baseTime)
			f.server.PutFile("/x.txt", []byte("old"), baseTime)
			f.settle(t)

			p := f.localPath("/x.txt")
			if err := os.Remove(p); err != nil {
				t.Fatal(err)
			}
			f.syncer.handleLocal(fsnotify.Event{Name: p, Op: fsnotify.Rename})
			f.writeLocal(t, "/x.txt", tt.content, tt.mtime)
			f.syncer.handleLocal(fsnotify.Event{Name: p, Op: fsnotify.Create})

			if got := f.pending(t)["/x.txt"]; got.Kind != tt.wantKind {
				t.Fatalf("queued %v; want %s", got, tt.wantKind)
			}

			if _, err := f.syncer.SyncNow(ctx); err != nil {
				t.Fatal(err)
			}
			if n := f.server.CountCalls("dele"); n != 0 {
				t.Errorf("server saw %d deletions", n)
			}
			data, _, ok := f.server.File("/x.txt")
			if !ok || string(data) != tt.wantFinal {
				t.Errorf("server copy = %q (%v); want %q", data, ok, tt.wantFinal)
			}
		})
	}
}

// A deletion whose propagation failed is derived again instead of the
// surviving copy being transferred back.
func TestFailedDeletionIsNotUndone(t *testing.T) {
	later := baseTime.Add(time.Minute)
	tests := []struct {
		name   string
		rec    models.FileRecord
		local  *time.Time // local file mtime, nil when absent
		server *time.Time // server file mtime, nil when absent
		want   models.ActionEntry
	}{
		{
			name: "server deletion survives a failed local delete",
			rec: models.FileRecord{
				PresentLocally: true, LocalModifiedAt: models.TimePtr(baseTime),
				RemoteModifiedAt: models.TimePtr(baseTime),
			},
			local: models.TimePtr(baseTime),
			want:  models.ActionEntry{Kind: models.ActionDelete, Target: models.SideLocal},
		},
		{
			name: "local edit after the server deletion is uploaded",
			rec: models.FileRecord{
				PresentLocally: true, LocalModifiedAt: models.TimePtr(later),
				RemoteModifiedAt: models.TimePtr(baseTime),
			},
			local: models.TimePtr(later),
			want:  models.ActionEntry{Kind: models.ActionUpload, Target: models.SideServer},
		},
		{
			name: "local deletion survives a failed server delete",
			rec: models.FileRecord{
				LocalModifiedAt: models.TimePtr(baseTime),
				PresentRemotely: true, RemoteModifiedAt: models.TimePtr(baseTime),
			},
			server: models.TimePtr(baseTime),
			want:   models.ActionEntry{Kind: models.ActionDelete, Target: models.SideServer},
		},
		{
			name: "server edit after the local deletion is downloaded",
			rec: models.FileRecord{
				LocalModifiedAt: models.TimePtr(baseTime),
				PresentRemotely: true, RemoteModifiedAt: models.TimePtr(later),
			},
			server: models.TimePtr(later),
			want:   models.ActionEntry{Kind: models.ActionDownload, Target: models.SideLocal},
		},
		{
			name: "file never seen on the server is uploaded",
			rec: models.FileRecord{
				PresentLocally: true, LocalModifiedAt: models.TimePtr(baseTime),
			},
			local: models.TimePtr(baseTime),
			want:  models.ActionEntry{Kind: models.ActionUpload, Target: models.SideServer},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.settle(t)

			rec := tt.rec
			rec.Path = "/f.txt"
			if err := f.syncer.store.Save(&rec); err != nil {
				t.Fatal(err)
			}
			if tt.local != nil {
				f.writeLocal(t, "/f.txt", "f", *tt.local)
			}
			if tt.server != nil {
				f.server.PutFile("/f.txt", []byte("f"), *tt.server)
			}

			if _, err := f.syncer.SyncNow(context.Background()); err != nil {
				t.Fatal(err)
			}
			want := tt.want
			want.Path = "/f.txt"
			if got := f.pending(t)["/f.txt"]; got != want {
				t.Errorf("queued %v; want %v", got, want)
			}
		})
	}
}
