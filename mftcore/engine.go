package mftcore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sandraschi/fastsearch-mcp/internal/cache"
	"github.com/sandraschi/fastsearch-mcp/internal/index"
	"github.com/sandraschi/fastsearch-mcp/internal/journal"
	"github.com/sandraschi/fastsearch-mcp/internal/mft"
	"github.com/sandraschi/fastsearch-mcp/internal/query"
	"github.com/sandraschi/fastsearch-mcp/internal/volume"
	"github.com/sandraschi/fastsearch-mcp/mfterrors"
)

// Config configures one opened Engine.
type Config struct {
	CacheDir         string
	MaxCacheVersions int
	SaveInterval     time.Duration
	Builder          index.BuilderConfig
	Journal          journal.Config
	Metrics          MetricHandle
	Logger           *slog.Logger
	// AutoStartJournal starts the USN watcher after open/rebuild. The zero
	// value (false) leaves it off, for a one-shot query-only engine.
	AutoStartJournal bool
}

// Stats is the CoreAPI stats surface, per spec.md §4.8 and §6, extended
// with Healthy/LastError per SPEC_FULL.md's SUPPLEMENTED FEATURES #2.
type Stats struct {
	FileCount      int
	FilesProcessed uint64
	MemoryBytes    uint64
	LastUpdate     time.Time
	Drive          byte
	LastAppliedUSN int64
	JournalID      uint64
	Healthy        bool
	LastError      *ErrorInfo
}

// ErrorInfo is the last non-recovered error and when it occurred.
type ErrorInfo struct {
	Kind    string
	Message string
	At      time.Time
}

// Engine is one opened volume's CoreAPI: the store, the reader/handle that
// back it, and the optional journal watcher/auto-save loop that keep it
// live. A single RWMutex serializes open/rebuild/close (exclusive) against
// concurrent query calls (shared), per spec.md §4.8's concurrency contract.
type Engine struct {
	mu sync.RWMutex

	drive  byte
	reader volume.Reader
	handle volume.Handle
	store  *index.Store

	journalID      uint64
	lastAppliedUSN int64
	lastUpdate     time.Time
	filesProcessed uint64
	volumeData     volume.VolumeData

	cfg     Config
	metrics MetricHandle
	log     *slog.Logger

	watcher *journal.Watcher

	saveStopCh chan struct{}
	dirty      bool
}

// Open loads the on-disk cache if present and matching, otherwise triggers
// a Builder run; optionally starts the JournalWatcher and an auto-save
// timer, per spec.md §4.8.
func Open(ctx context.Context, reader volume.Reader, drive byte, cfg Config) (*Engine, error) {
	if cfg.Metrics == nil {
		cfg.Metrics = NewNoopMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	handle, err := reader.Open(ctx, drive)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		drive:   drive,
		reader:  reader,
		handle:  handle,
		cfg:     cfg,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
	}

	jd, jdErr := reader.QueryUSNJournal(ctx, handle)
	if jdErr == nil {
		e.journalID = jd.JournalID
	}

	if cfg.CacheDir != "" {
		if store, meta, err := cache.Load(cfg.CacheDir, drive, e.journalID); err == nil {
			e.store = store
			e.lastAppliedUSN = meta.LastAppliedUSN
			e.lastUpdate = time.Unix(meta.Created, 0)
			e.filesProcessed = meta.FileCount
		}
	}

	if e.store == nil {
		if err := e.rebuildLocked(ctx); err != nil {
			handle.Close()
			return nil, err
		}
	}

	if cfg.AutoStartJournal && handle.NtfsMode() {
		e.startWatcherLocked(ctx)
	}
	if cfg.SaveInterval > 0 && cfg.CacheDir != "" {
		e.startAutoSave(ctx)
	}

	return e, nil
}

// Query evaluates spec against the live store. Multiple concurrent Query
// calls are permitted (read-locked).
func (e *Engine) Query(spec query.Spec) (query.Response, error) {
	e.mu.RLock()
	store := e.store
	ntfsMode := e.handle.NtfsMode()
	e.mu.RUnlock()

	if store == nil {
		return query.Response{}, mfterrors.New(mfterrors.KindInvalidArgument, "query", "engine not open")
	}

	start := time.Now()
	resp, err := query.Evaluate(store, spec, ntfsMode)
	e.metrics.RecordQueryLatency(time.Since(start))
	return resp, err
}

// Stats reports the current store/journal position, per spec.md §4.8/§6,
// plus Healthy/LastError.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Stats{
		Drive:          e.drive,
		LastAppliedUSN: e.lastAppliedUSN,
		JournalID:      e.journalID,
		LastUpdate:     e.lastUpdate,
		FilesProcessed: e.filesProcessed,
		Healthy:        true,
	}
	if e.store != nil {
		s.FileCount = e.store.Len()
		s.MemoryBytes = uint64(s.FileCount) * 256
	}
	if e.watcher != nil {
		if err, at := e.watcher.LastError(); err != nil {
			s.Healthy = false
			s.LastError = &ErrorInfo{Kind: mfterrors.KindOf(err).String(), Message: err.Error(), At: at}
		}
	}
	return s
}

// Rebuild forces a fresh MFT scan, exclusive of queries.
func (e *Engine) Rebuild(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watcher != nil {
		e.watcher.Stop()
	}
	if err := e.rebuildLocked(ctx); err != nil {
		return err
	}
	if e.cfg.AutoStartJournal && e.handle.NtfsMode() {
		e.startWatcherLocked(ctx)
	}
	return nil
}

// Close stops watchers, flushes the cache, and releases the volume handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.watcher != nil {
		e.watcher.Stop()
	}
	if e.saveStopCh != nil {
		close(e.saveStopCh)
		e.saveStopCh = nil
	}
	if e.cfg.CacheDir != "" && e.store != nil {
		e.saveLocked()
	}
	return e.handle.Close()
}

func (e *Engine) rebuildLocked(ctx context.Context) error {
	var beforeUSN int64
	if jd, err := e.reader.QueryUSNJournal(ctx, e.handle); err == nil {
		beforeUSN = jd.NextUSN
		e.journalID = jd.JournalID
	}

	entries, err := e.scanEntries(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	store, result, err := index.Build(ctx, entries, e.cfg.Builder, beforeUSN, e.log)
	if err != nil {
		return err
	}
	e.metrics.RecordBuildDuration(time.Since(start))
	e.metrics.IncFilesProcessed(result.FilesProcessed)

	e.store = store
	e.lastAppliedUSN = result.LastAppliedUSN
	e.lastUpdate = result.LastUpdate
	e.filesProcessed = result.FilesProcessed
	e.dirty = true
	return nil
}

func (e *Engine) scanEntries(ctx context.Context) ([]index.FileEntry, error) {
	if !e.handle.NtfsMode() {
		fallbackEntries, err := volume.Walk(ctx, e.handle)
		if err != nil {
			return nil, err
		}
		out := make([]index.FileEntry, 0, len(fallbackEntries))
		for _, fe := range fallbackEntries {
			out = append(out, index.FileEntry{
				ID: fe.ID, ParentID: fe.ParentID, Name: fe.Name, Size: fe.Size,
				IsDir: fe.IsDir, Attributes: fe.Attributes, Modified: fe.Modified,
			})
		}
		return out, nil
	}

	vd, err := retryIoError(func() (volume.VolumeData, error) {
		return e.reader.QueryVolumeData(ctx, e.handle)
	})
	if err != nil {
		return nil, err
	}
	e.volumeData = vd

	buf, err := retryIoError(func() ([]byte, error) {
		return e.reader.ReadMFTBytes(ctx, e.handle, vd)
	})
	if err != nil {
		return nil, err
	}
	entries, dropped, err := mft.Parse(buf, vd.BytesPerFileRecord)
	if err != nil {
		return nil, err
	}
	for _, d := range dropped {
		e.log.Debug("dropped MFT record", "record_number", d.RecordNumber, "reason", d.Reason)
	}
	return entries, nil
}

// retryIoError retries fn once if its error is a KindIoError, per spec §7's
// "retried once at the call site; on second failure, propagated" — other
// error kinds (AccessDenied, NotNtfs, Corrupt, ...) are not transient and
// propagate immediately.
func retryIoError[T any](fn func() (T, error)) (T, error) {
	v, err := fn()
	if err != nil && mfterrors.Is(err, mfterrors.KindIoError) {
		v, err = fn()
	}
	return v, err
}

// refreshSize re-reads a single MFT record to recover the current $DATA
// real size for fileRefID, for journal records (DataExtend/DataTruncate,
// Create) that don't carry size per spec §4.5. Returns ok=false if the
// refresh failed or this engine has no raw-volume access; callers fall back
// to the previously known size and rely on the next full rebuild to
// converge, matching CachePersistence's "log, don't propagate" posture for
// best-effort background work.
func (e *Engine) refreshSize(ctx context.Context, fileRefID uint64) (uint64, bool) {
	if !e.handle.NtfsMode() {
		return 0, false
	}
	buf, err := retryIoError(func() ([]byte, error) {
		return e.reader.ReadFileRecord(ctx, e.handle, fileRefID, e.volumeData.BytesPerFileRecord)
	})
	if err != nil {
		e.log.Warn("size refresh failed", "file_ref_id", fileRefID, "err", err)
		return 0, false
	}
	entry, ok := mft.ParseRecord(buf)
	if !ok {
		return 0, false
	}
	return entry.Size, true
}

func (e *Engine) startWatcherLocked(ctx context.Context) {
	rebuild := func(ctx context.Context) (uint64, int64, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.rebuildLocked(ctx); err != nil {
			return 0, 0, err
		}
		return e.journalID, e.lastAppliedUSN, nil
	}
	persist := func(lastAppliedUSN int64, journalID uint64) {
		e.mu.Lock()
		e.lastAppliedUSN = lastAppliedUSN
		e.dirty = true
		e.mu.Unlock()
	}

	e.watcher = journal.New(e.reader, e.handle, e.store, e.journalID, e.lastAppliedUSN, e.cfg.Journal, rebuild, persist, e.refreshSize, e.metrics, e.log)
	e.watcher.Start(ctx)
}

func (e *Engine) startAutoSave(ctx context.Context) {
	e.saveStopCh = make(chan struct{})
	go func() {
		ticker := time.NewTicker(e.cfg.SaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.mu.Lock()
				if e.dirty {
					e.saveLocked()
				}
				e.mu.Unlock()
			case <-e.saveStopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) saveLocked() {
	now := time.Now()
	if err := cache.Save(e.cfg.CacheDir, e.drive, e.store, e.journalID, e.lastAppliedUSN, now.Unix(), now.UnixNano()); err != nil {
		e.log.Error("cache save failed", "err", err)
		return
	}
	if errs := cache.Prune(e.cfg.CacheDir, e.cfg.MaxCacheVersions); len(errs) > 0 {
		for _, err := range errs {
			e.log.Warn("cache prune error", "err", err)
		}
	}
	e.dirty = false
}
