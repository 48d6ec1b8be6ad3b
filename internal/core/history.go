package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/metrics"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

// HistoryOptions tunes the history store.
type HistoryOptions struct {
	// Limit is the maximum number of entries kept per room.
	Limit int
	// FlushEvery schedules a snapshot after this many appends to a room.
	FlushEvery int
	// QueueSize bounds pending snapshot jobs.
	QueueSize int
	// IOTimeout bounds a single load or save.
	IOTimeout time.Duration
	// LoadRetry is the minimum wait before reloading a room whose load failed.
	LoadRetry time.Duration
}

// DefaultHistoryOptions returns the production defaults.
func DefaultHistoryOptions() HistoryOptions {
	return HistoryOptions{
		Limit:      100,
		FlushEvery: 10,
		QueueSize:  64,
		IOTimeout:  5 * time.Second,
		LoadRetry:  30 * time.Second,
	}
}

type roomLog struct {
	entries []HistoryEntry
	version uint64 // bumped on every append
	queued  uint64 // highest version handed to the worker
	saved   uint64 // highest version known to be persisted

	// set while the stored log could not be read; such a log is never
	// saved, so the durable copy is not replaced by a partial one
	loadFailed bool
	retryAt    time.Time
}

type snapshotJob struct {
	roomID  string
	version uint64
	entries []HistoryEntry
}

// HistoryStore keeps a bounded, ordered log per room in memory. The memory
// copy is the source of truth; snapshots are written by a background worker
// and may lag behind it.
type HistoryStore struct {
	mu   sync.Mutex
	logs map[string]*roomLog
	opts HistoryOptions
	snap store.HistorySnapshotter
	log  *zerolog.Logger

	jobs chan snapshotJob
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewHistoryStore creates a history store backed by snap.
func NewHistoryStore(snap store.HistorySnapshotter, opts HistoryOptions, logger *zerolog.Logger) *HistoryStore {
	defaults := DefaultHistoryOptions()
	if opts.Limit <= 0 {
		opts.Limit = defaults.Limit
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = defaults.FlushEvery
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaults.QueueSize
	}
	if opts.IOTimeout <= 0 {
		opts.IOTimeout = defaults.IOTimeout
	}
	if opts.LoadRetry <= 0 {
		opts.LoadRetry = defaults.LoadRetry
	}
	if snap == nil {
		snap = store.NewMemory()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &HistoryStore{
		logs: make(map[string]*roomLog),
		opts: opts,
		snap: snap,
		log:  logger,
		jobs: make(chan snapshotJob, opts.QueueSize),
		quit: make(chan struct{}),
	}
}

// Start launches the snapshot worker.
func (h *HistoryStore) Start() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case job := <-h.jobs:
				h.save(job)
			case <-h.quit:
				return
			}
		}
	}()
}

// Create makes an empty log resident for a room that has never existed, so
// its first append does not touch the snapshotter.
func (h *HistoryStore) Create(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.logs[roomID]; !ok {
		h.logs[roomID] = &roomLog{entries: []HistoryEntry{}}
	}
}

// Append adds an entry to the room log, evicting the oldest entry once the
// limit is exceeded.
func (h *HistoryStore) Append(entry HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	lg := h.residentLocked(entry.RoomID)
	lg.entries = append(lg.entries, entry)
	if over := len(lg.entries) - h.opts.Limit; over > 0 {
		lg.entries = append(lg.entries[:0:0], lg.entries[over:]...)
	}
	lg.version++

	if lg.version%uint64(h.opts.FlushEvery) == 0 && !lg.loadFailed {
		h.enqueueLocked(entry.RoomID, lg)
	}
}

// Entries returns a copy of the room log, loading it from the snapshotter if
// it is not resident. Load failures degrade to an empty log.
func (h *HistoryStore) Entries(roomID string) []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	lg := h.residentLocked(roomID)
	return append(make([]HistoryEntry, 0, len(lg.entries)), lg.entries...)
}

// FlushAll schedules a snapshot for every room with unsaved entries.
func (h *HistoryStore) FlushAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID, lg := range h.logs {
		if lg.queued < lg.version && !lg.loadFailed {
			h.enqueueLocked(roomID, lg)
		}
	}
}

// Close stops the worker and synchronously saves every room whose latest
// version has not been persisted.
func (h *HistoryStore) Close() {
	h.once.Do(func() {
		close(h.quit)
		h.wg.Wait()

		h.mu.Lock()
		pending := make([]snapshotJob, 0)
		for roomID, lg := range h.logs {
			if lg.loadFailed {
				h.log.Warn().Str("room_id", roomID).Msg("history never loaded, skipping final save")
				continue
			}
			if lg.saved < lg.version {
				pending = append(pending, snapshotJob{
					roomID:  roomID,
					version: lg.version,
					entries: append([]HistoryEntry(nil), lg.entries...),
				})
			}
		}
		h.mu.Unlock()

		for _, job := range pending {
			h.save(job)
		}
		if err := h.snap.Close(); err != nil {
			h.log.Warn().Err(err).Msg("failed to close history snapshotter")
		}
	})
}

func (h *HistoryStore) residentLocked(roomID string) *roomLog {
	lg, ok := h.logs[roomID]
	if ok && (!lg.loadFailed || time.Now().Before(lg.retryAt)) {
		return lg
	}
	if !ok {
		lg = &roomLog{}
		h.logs[roomID] = lg
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.IOTimeout)
	defer cancel()

	stored, err := h.snap.LoadHistory(ctx, roomID)
	switch {
	case err == nil:
		// entries appended while the store was unreachable go after the stored ones
		lg.entries = append(fromStoreEntries(stored), lg.entries...)
		if over := len(lg.entries) - h.opts.Limit; over > 0 {
			lg.entries = lg.entries[over:]
		}
		lg.loadFailed = false
	case errors.Is(err, store.ErrNotFound):
		lg.loadFailed = false
	default:
		metrics.SnapshotFailures.WithLabelValues("load").Inc()
		h.log.Warn().Err(err).Str("room_id", roomID).Msg("failed to load history, starting empty")
		lg.loadFailed = true
		lg.retryAt = time.Now().Add(h.opts.LoadRetry)
	}
	return lg
}

func (h *HistoryStore) enqueueLocked(roomID string, lg *roomLog) {
	job := snapshotJob{
		roomID:  roomID,
		version: lg.version,
		entries: append([]HistoryEntry(nil), lg.entries...),
	}
	select {
	case h.jobs <- job:
		lg.queued = lg.version
	default:
		h.log.Warn().Str("room_id", roomID).Msg("snapshot queue full, deferring to next flush")
	}
}

func (h *HistoryStore) save(job snapshotJob) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.IOTimeout)
	defer cancel()

	start := time.Now()
	err := h.snap.SaveHistory(ctx, job.roomID, toStoreEntries(job.entries))
	metrics.SnapshotLatency.Observe(time.Since(start).Seconds())

	h.mu.Lock()
	defer h.mu.Unlock()
	lg, ok := h.logs[job.roomID]
	if err != nil {
		metrics.SnapshotFailures.WithLabelValues("save").Inc()
		h.log.Warn().Err(err).Str("room_id", job.roomID).Msg("failed to save history snapshot")
		if ok && lg.queued == job.version {
			// let the next FlushAll retry
			lg.queued = lg.saved
		}
		return
	}
	if ok && job.version > lg.saved {
		lg.saved = job.version
	}
}

func toStoreEntries(entries []HistoryEntry) []store.HistoryEntry {
	out := make([]store.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, store.HistoryEntry{
			Type:      store.EntryType(e.Type),
			RoomID:    e.RoomID,
			Username:  e.Username,
			Message:   e.Message,
			Timestamp: e.Timestamp,
		})
	}
	return out
}

func fromStoreEntries(entries []store.HistoryEntry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			Type:      EntryType(e.Type),
			RoomID:    e.RoomID,
			Username:  e.Username,
			Message:   e.Message,
			Timestamp: e.Timestamp,
		})
	}
	return out
}
