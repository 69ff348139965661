package index

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandraschi/fastsearch-mcp/mfterrors"
)

// BuilderConfig tunes the parallel build and its memory governor.
type BuilderConfig struct {
	// NumWorkers is the worker-pool size; 0 means max(1, cores-1).
	NumWorkers int
	// MemorySampleEvery is how many processed entries between memory
	// samples; 0 means the default of 100,000.
	MemorySampleEvery uint64
	// MaxMemoryFraction is the warn threshold; 0 means the default 0.8.
	MaxMemoryFraction float64
	Governor          MemoryGovernor
}

func (c BuilderConfig) numWorkers() int {
	if c.NumWorkers > 0 {
		return c.NumWorkers
	}
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

func (c BuilderConfig) memorySampleEvery() uint64 {
	if c.MemorySampleEvery > 0 {
		return c.MemorySampleEvery
	}
	return 100000
}

func (c BuilderConfig) maxMemoryFraction() float64 {
	if c.MaxMemoryFraction > 0 {
		return c.MaxMemoryFraction
	}
	return 0.8
}

// BuildResult reports the outcome of a build alongside the store it
// produced.
type BuildResult struct {
	FilesProcessed uint64
	MemoryBytesEst uint64
	LastUpdate     time.Time
	// LastAppliedUSN is the journal's next_usn observed before MFT reading
	// began — a conservative lower bound so subsequent journal catch-up is
	// a superset, per spec §4.4 step 6.
	LastAppliedUSN int64
}

// estimatedBytesPerEntry is the fixed per-entry byte cost behind
// BuildResult.MemoryBytesEst.
const estimatedBytesPerEntry = 256

// Build constructs a fresh Store from entries. The partition phase (workers
// each owning a disjoint slice of entries) happens in parallel; because a
// full-path key needs the global parent chain, the index-building pass runs
// single-threaded under one exclusive lock acquisition once partitioning
// has produced the complete by_id map — the same "stage into a detached
// container, swap once" shape spec §4.3/§4.4 calls for, just with the
// detached container built incrementally by workers instead of merged from
// N separate partial stores.
func Build(ctx context.Context, entries []FileEntry, cfg BuilderConfig, beforeReadNextUSN int64, log *slog.Logger) (*Store, BuildResult, error) {
	if log == nil {
		log = slog.Default()
	}

	governor := cfg.Governor
	if governor == nil {
		governor = NewMemoryGovernor()
	}

	numWorkers := cfg.numWorkers()
	if numWorkers > len(entries) && len(entries) > 0 {
		numWorkers = len(entries)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	byID := make(map[uint64]FileEntry, len(entries))
	shards := make([]map[uint64]FileEntry, numWorkers)

	g, gctx := errgroup.WithContext(ctx)
	sampleEvery := cfg.memorySampleEvery()
	warnFraction := cfg.maxMemoryFraction()
	abortFraction := 1.1 * warnFraction

	for w := 0; w < numWorkers; w++ {
		w := w
		g.Go(func() error {
			shard := make(map[uint64]FileEntry)
			shards[w] = shard
			var processed uint64
			for i := w; i < len(entries); i += numWorkers {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				entry := entries[i]
				shard[entry.ID] = entry
				processed++
				if processed%sampleEvery == 0 {
					if frac, ok := governor.UsedFraction(); ok {
						if frac >= abortFraction {
							return mfterrors.New(mfterrors.KindOutOfMemory, "build", "memory governor tripped")
						}
						if frac >= warnFraction {
							log.Warn("memory governor approaching limit", "used_fraction", frac, "max_memory_fraction", warnFraction)
						}
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, BuildResult{}, err
	}

	for _, shard := range shards {
		for id, entry := range shard {
			byID[id] = entry
		}
	}

	store := New()
	store.mu.Lock()
	var filesProcessed uint64
	for id, entry := range byID {
		store.byID[id] = entry
	}
	for id, entry := range byID {
		fullPath := store.fullPathLocked(id, &entry)
		store.addToSecondaryLocked(entry, fullPath)
		filesProcessed++
	}
	store.filesProcessed = filesProcessed
	store.mu.Unlock()

	return store, BuildResult{
		FilesProcessed: filesProcessed,
		MemoryBytesEst: filesProcessed * estimatedBytesPerEntry,
		LastUpdate:     time.Now(),
		LastAppliedUSN: beforeReadNextUSN,
	}, nil
}
