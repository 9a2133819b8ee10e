// Package sync reconciles the local tree with the server: it turns watcher
// events into queued actions and drains them on a single worker.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/chmdznr/ftpsync/internal/db"
	"github.com/chmdznr/ftpsync/internal/logger"
	"github.com/chmdznr/ftpsync/internal/notify"
	"github.com/chmdznr/ftpsync/internal/remote"
	"github.com/chmdznr/ftpsync/internal/watcher"
	"github.com/chmdznr/ftpsync/pkg/models"
)

// ErrCycleRunning is returned by SyncNow while another cycle holds the worker.
var ErrCycleRunning = errors.New("sync cycle already running")

// SyncerConfig holds configuration for the syncer
type SyncerConfig struct {
	LocalRoot  string
	RemoteRoot string
	Tolerance  time.Duration
	// DefaultInterval separates cycles after work has completed.
	DefaultInterval time.Duration
	// BusyInterval is used while actions are still queued.
	BusyInterval time.Duration
	// IdleInterval is used after a cycle that found nothing to do.
	IdleInterval time.Duration
}

// DefaultSyncerConfig returns default syncer configuration
func DefaultSyncerConfig() SyncerConfig {
	return SyncerConfig{
		RemoteRoot:      "/",
		Tolerance:       10 * time.Second,
		DefaultInterval: 5 * time.Second,
		BusyInterval:    1 * time.Second,
		IdleInterval:    10 * time.Second,
	}
}

// Syncer handles file synchronization operations
type Syncer struct {
	cfg    SyncerConfig
	db     *db.DB
	store  *db.FileStore
	queue  *db.ActionQueue
	client remote.Client
	local  *watcher.LocalWatcher
	remote *watcher.RemoteWatcher
	bus    *notify.Bus
	log    zerolog.Logger

	// guard serializes cycles and event handling.
	guard         sync.Mutex
	bootstrapped  bool
	firstCycle    bool
	preemptive    bool
	preemptiveBuf []models.ActionEntry
	interval      time.Duration
	last          CycleStats
}

// NewSyncer creates a new syncer instance. The syncer owns client and
// closes it in Close.
func NewSyncer(database *db.DB, client remote.Client, cfg SyncerConfig, bus *notify.Bus, log zerolog.Logger) (*Syncer, error) {
	if cfg.LocalRoot == "" {
		return nil, fmt.Errorf("local root is required")
	}
	def := DefaultSyncerConfig()
	if cfg.RemoteRoot == "" {
		cfg.RemoteRoot = def.RemoteRoot
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = def.DefaultInterval
	}
	if cfg.BusyInterval <= 0 {
		cfg.BusyInterval = def.BusyInterval
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = def.IdleInterval
	}

	store := db.NewFileStore(database)
	local := watcher.NewLocalWatcher(cfg.LocalRoot, store, cfg.Tolerance, logger.Component(log, "local"))
	rw := watcher.NewRemoteWatcher(client, cfg.RemoteRoot, store, local, cfg.Tolerance, bus, logger.Component(log, "remote"))

	return &Syncer{
		cfg:        cfg,
		db:         database,
		store:      store,
		queue:      db.NewActionQueue(database),
		client:     client,
		local:      local,
		remote:     rw,
		bus:        bus,
		log:        logger.Component(log, "syncer"),
		firstCycle: true,
		interval:   cfg.DefaultInterval,
	}, nil
}

// Interval returns the wait before the next cycle.
func (s *Syncer) Interval() time.Duration {
	s.guard.Lock()
	defer s.guard.Unlock()
	return s.interval
}

// LastCycle returns the statistics of the most recent cycle.
func (s *Syncer) LastCycle() CycleStats {
	s.guard.Lock()
	defer s.guard.Unlock()
	return s.last
}

// Bootstrap runs the preemptive reconciliation when the state store is
// empty. It returns the number of actions it queued.
func (s *Syncer) Bootstrap(ctx context.Context) (int, error) {
	s.guard.Lock()
	defer s.guard.Unlock()

	if s.bootstrapped {
		return 0, nil
	}
	count, err := s.store.Count()
	if err != nil {
		return 0, fmt.Errorf("failed to inspect state store: %w", err)
	}
	if count > 0 {
		s.bootstrapped = true
		return 0, nil
	}

	s.log.Info().Msg("state store is empty, running preemptive bootstrap")
	s.bus.Status("Comparing local and remote trees")
	s.preemptive = true
	s.preemptiveBuf = nil
	defer func() { s.preemptive = false }()

	events, err := s.local.Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("bootstrap local scan: %w", err)
	}
	s.handle(events)

	events, err = s.remote.Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("bootstrap remote scan: %w", err)
	}
	s.handle(events)

	if err := s.queue.AddBatch(s.preemptiveBuf); err != nil {
		return 0, fmt.Errorf("failed to queue bootstrap actions: %w", err)
	}
	n := len(s.preemptiveBuf)
	s.preemptiveBuf = nil
	s.bootstrapped = true
	s.log.Info().Int("actions", n).Msg("preemptive bootstrap finished")
	return n, nil
}

// SyncNow runs one cycle unless another one is in progress.
func (s *Syncer) SyncNow(ctx context.Context) (CycleStats, error) {
	if !s.guard.TryLock() {
		return CycleStats{}, ErrCycleRunning
	}
	defer s.guard.Unlock()
	return s.cycle(ctx)
}

// cycle drains the action queue, sweeps the server (which runs the queued
// transfers), scans the local tree on the first pass only, collects
// garbage and picks the next interval.
func (s *Syncer) cycle(ctx context.Context) (CycleStats, error) {
	stats := newCycleStats()

	entries, err := s.queue.DrainAll()
	if err != nil {
		return *stats, fmt.Errorf("failed to drain action queue: %w", err)
	}
	stats.Drained = len(entries)
	for _, entry := range entries {
		s.dispatch(entry, stats)
	}

	events, err := s.remote.Scan(ctx)
	stats.addTransfers(s.remote.TakeReport())
	if err != nil {
		return *stats, fmt.Errorf("remote scan: %w", err)
	}
	stats.Events += len(events)
	s.handle(events)

	if s.firstCycle {
		events, err := s.local.Scan(ctx)
		if err != nil {
			return *stats, fmt.Errorf("local scan: %w", err)
		}
		stats.Events += len(events)
		s.handle(events)

		if err := s.local.Arm(); err != nil {
			s.log.Warn().Err(err).Msg("local change notifications unavailable")
		}
		s.firstCycle = false
	}

	queued, err := s.queue.Len()
	if err != nil {
		return *stats, err
	}
	busy := queued > 0
	worked := stats.Worked()

	if queued == 0 {
		s.fallback()
		if queued, err = s.queue.Len(); err != nil {
			return *stats, err
		}
	}
	stats.Queued = queued

	purged, err := s.store.PurgeFullyAbsent()
	if err != nil {
		s.log.Error().Err(err).Msg("garbage collection failed")
	}
	stats.Purged = purged

	switch {
	case busy:
		s.interval = s.cfg.BusyInterval
	case worked:
		s.interval = s.cfg.DefaultInterval
	default:
		s.interval = s.cfg.IdleInterval
	}

	stats.finish()
	stats.log(s.log)
	s.last = *stats
	return *stats, nil
}

// handleLocal feeds one filesystem notification through the decision
// policy. It reports whether any event resulted.
func (s *Syncer) handleLocal(ev fsnotify.Event) bool {
	s.guard.Lock()
	defer s.guard.Unlock()

	events := s.local.Handle(ev)
	s.handle(events)
	return len(events) > 0
}

// Run bootstraps and then cycles until ctx is cancelled, handling local
// notifications between cycles on the same goroutine.
func (s *Syncer) Run(ctx context.Context) error {
	if _, err := s.Bootstrap(ctx); err != nil {
		return err
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-s.local.Events():
			if !ok {
				return nil
			}
			if s.handleLocal(ev) {
				// Debounce bursts of writes into one cycle.
				timer.Reset(s.cfg.BusyInterval)
			}

		case err, ok := <-s.local.Errors():
			if !ok {
				return nil
			}
			s.log.Warn().Err(err).Msg("file watcher error")

		case <-timer.C:
			if _, err := s.SyncNow(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.log.Error().Err(err).Msg("sync cycle failed")
				s.bus.Status("Sync cycle failed: " + err.Error())
			}
			timer.Reset(s.Interval())
		}
	}
}

// Close stops local notifications and closes the remote session.
func (s *Syncer) Close() error {
	s.guard.Lock()
	defer s.guard.Unlock()

	werr := s.local.Close()
	cerr := s.client.Close()
	if werr != nil {
		return werr
	}
	return cerr
}
