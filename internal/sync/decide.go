package sync

import (
	"math"
	"os"
	"time"

	"github.com/chmdznr/ftpsync/internal/watcher"
	"github.com/chmdznr/ftpsync/pkg/models"
)

// handle routes scan events through the decision policy.
func (s *Syncer) handle(events []watcher.Event) {
	for _, ev := range events {
		s.log.Debug().Stringer("event", ev).Msg("change detected")
		switch ev.Kind {
		case watcher.Added:
			if s.preemptive {
				s.preemptiveAdded(ev)
			} else {
				s.onAdded(ev.Side, ev.Path)
			}
		case watcher.Changed:
			s.onChanged(ev.Side, ev.Path, ev.SkipTolerance)
		case watcher.Deleted:
			s.onDeleted(ev.Side, ev.Path)
		}
	}
}

func (s *Syncer) record(path string) *models.FileRecord {
	rec, err := s.store.Get(path)
	if err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("failed to load record")
		return nil
	}
	return rec
}

// onAdded transfers a new file when the other replica lacks it. A file that
// reappears while the other replica still holds it, such as a save by
// rename, is compared like a change; this also replaces a deletion queued
// in between.
func (s *Syncer) onAdded(side models.Side, path string) {
	rec := s.record(path)
	if rec == nil {
		return
	}
	switch side {
	case models.SideServer:
		if rec.PresentLocally {
			s.onChanged(side, path, false)
			return
		}
		s.enqueue(path, models.ActionDownload, models.SideLocal)
	case models.SideLocal:
		if rec.PresentRemotely {
			s.onChanged(side, path, false)
			return
		}
		s.enqueue(path, models.ActionUpload, models.SideServer)
	}
}

// onChanged transfers toward the older replica. Differences inside the
// tolerance window are clock noise unless skipTolerance is set. An unknown
// timestamp on the other side always counts as older. A replica that is
// missing after an observed deletion, while this copy is no newer, keeps
// the deletion instead of getting the file back.
func (s *Syncer) onChanged(side models.Side, path string, skipTolerance bool) {
	rec := s.record(path)
	if rec == nil {
		return
	}

	delta, known := rec.TimeDiff()
	if rec.PresentLocally && rec.PresentRemotely && !skipTolerance && known &&
		math.Abs(delta) < s.cfg.Tolerance.Seconds() {
		return
	}

	switch side {
	case models.SideServer:
		if !rec.PresentLocally && s.deletedSince(rec.LocalModifiedAt, rec.RemoteModifiedAt) {
			s.onDeleted(models.SideLocal, path)
			return
		}
		if !rec.PresentLocally || rec.LocalModifiedAt == nil || (known && delta < 0) {
			s.enqueue(path, models.ActionDownload, models.SideLocal)
		}
	case models.SideLocal:
		if !rec.PresentRemotely && !skipTolerance && s.deletedSince(rec.RemoteModifiedAt, rec.LocalModifiedAt) {
			s.onDeleted(models.SideServer, path)
			return
		}
		if !rec.PresentRemotely || rec.RemoteModifiedAt == nil || (known && delta > 0) {
			s.enqueue(path, models.ActionUpload, models.SideServer)
		}
	}
}

// onDeleted propagates a deletion to the replica still holding the file.
func (s *Syncer) onDeleted(side models.Side, path string) {
	rec := s.record(path)
	if rec == nil {
		return
	}
	switch side {
	case models.SideServer:
		if rec.PresentLocally {
			s.enqueue(path, models.ActionDelete, models.SideLocal)
		}
	case models.SideLocal:
		if rec.PresentRemotely {
			s.enqueue(path, models.ActionDelete, models.SideServer)
		}
	}
}

// preemptiveAdded inspects the other replica directly while the store is
// being rebuilt, so a tree that was already in sync yields no actions.
func (s *Syncer) preemptiveAdded(ev watcher.Event) {
	path := ev.Path

	info, statErr := s.local.Stat(path)
	if ev.Side == models.SideServer && statErr != nil {
		s.buffer(path, models.ActionDownload, models.SideLocal)
		return
	}
	if ev.Side == models.SideLocal {
		if statErr != nil {
			// vanished during the bootstrap scan
			return
		}
		if _, err := s.remote.Size(path); err != nil {
			s.buffer(path, models.ActionUpload, models.SideServer)
			return
		}
	}

	remoteTime, err := s.remote.ModTime(path)
	if err != nil {
		if ev.Side == models.SideLocal {
			s.buffer(path, models.ActionUpload, models.SideServer)
		}
		return
	}
	localTime := info.ModTime().UTC().Truncate(time.Second)
	diff := localTime.Sub(remoteTime).Seconds()
	if math.Abs(diff) <= s.cfg.Tolerance.Seconds() {
		return
	}
	if diff > 0 {
		s.buffer(path, models.ActionUpload, models.SideServer)
	} else {
		s.buffer(path, models.ActionDownload, models.SideLocal)
	}
}

func (s *Syncer) enqueue(path string, kind models.ActionKind, target models.Side) {
	entry := models.ActionEntry{Path: path, Kind: kind, Target: target}
	if err := s.queue.Add(entry); err != nil {
		s.log.Error().Err(err).Stringer("action", entry).Msg("failed to queue action")
		return
	}
	s.log.Debug().Stringer("action", entry).Msg("queued")
}

func (s *Syncer) buffer(path string, kind models.ActionKind, target models.Side) {
	entry := models.ActionEntry{Path: path, Kind: kind, Target: target}
	s.preemptiveBuf = append(s.preemptiveBuf, entry)
	s.log.Debug().Stringer("action", entry).Msg("bootstrap action")
}

// dispatch executes one drained action. Transfers and server deletions are
// handed to the remote watcher and run at the start of its next scan.
func (s *Syncer) dispatch(entry models.ActionEntry, stats *CycleStats) {
	switch {
	case entry.Kind == models.ActionUpload:
		if _, err := s.local.Stat(entry.Path); err != nil {
			s.log.Info().Str("path", entry.Path).Msg("skipping upload, local file no longer exists")
			stats.Skipped++
			return
		}
		s.remote.EnqueueUpload(entry.Path)

	case entry.Kind == models.ActionDownload:
		s.remote.EnqueueDownload(entry.Path)

	case entry.Kind == models.ActionDelete && entry.Target == models.SideServer:
		if _, err := s.local.Stat(entry.Path); err == nil {
			// recreated locally since the deletion was seen
			s.log.Info().Str("path", entry.Path).Msg("skipping server delete, file exists locally again")
			stats.Skipped++
			return
		}
		s.remote.EnqueueDelete(entry.Path)

	case entry.Kind == models.ActionDelete && entry.Target == models.SideLocal:
		if _, err := s.local.Stat(entry.Path); os.IsNotExist(err) {
			s.log.Info().Str("path", entry.Path).Msg("skipping local delete, file no longer exists")
			if err := s.local.MarkAbsent(entry.Path); err != nil {
				s.log.Error().Err(err).Str("path", entry.Path).Msg("failed to update record")
			}
			stats.Skipped++
			return
		}
		if err := s.local.Delete(entry.Path); err != nil {
			stats.Failed++
			s.log.Error().Err(err).Str("path", entry.Path).Msg("local delete failed")
			s.bus.IOError("delete", entry.Path, err)
			return
		}
		stats.Deleted++
		s.log.Info().Str("path", entry.Path).Msg("deleted locally")

	default:
		s.log.Error().Stringer("action", entry).Msg("unknown action dropped")
	}
}

// fallback re-offers records present on exactly one side, so intents lost
// to failed transfers or deletions are derived again.
func (s *Syncer) fallback() {
	records, err := s.store.Unsynced()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list unsynced records")
		return
	}
	for _, rec := range records {
		if rec.PresentLocally {
			s.onChanged(models.SideLocal, rec.Path, false)
		} else {
			s.onChanged(models.SideServer, rec.Path, false)
		}
	}
}

// deletedSince reports whether a replica last seen at gone was deleted with
// the surviving copy, modified at kept, no newer than it. Our own deletions
// clear the time, so they never match.
func (s *Syncer) deletedSince(gone, kept *time.Time) bool {
	if gone == nil || kept == nil {
		return false
	}
	return kept.Sub(*gone) <= s.cfg.Tolerance
}
