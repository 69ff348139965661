package mftcore

import (
	"context"
	"sort"
	"sync"

	"github.com/sandraschi/fastsearch-mcp/internal/query"
	"github.com/sandraschi/fastsearch-mcp/internal/volume"
	"github.com/sandraschi/fastsearch-mcp/mfterrors"
)

// Registry holds one Engine per opened drive letter and fans a query out
// across every open volume when the caller asks for drive:"*", per
// SPEC_FULL.md's SUPPLEMENTED FEATURES #3.
type Registry struct {
	mu      sync.RWMutex
	engines map[byte]*Engine
	reader  volume.Reader
}

// NewRegistry returns an empty registry backed by reader.
func NewRegistry(reader volume.Reader) *Registry {
	return &Registry{engines: make(map[byte]*Engine), reader: reader}
}

// Open opens drive (or re-returns the already-open Engine for it) with cfg.
func (r *Registry) Open(ctx context.Context, drive byte, cfg Config) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[drive]; ok {
		return e, nil
	}
	e, err := Open(ctx, r.reader, drive, cfg)
	if err != nil {
		return nil, err
	}
	r.engines[drive] = e
	return e, nil
}

// Get returns the Engine open for drive, if any.
func (r *Registry) Get(drive byte) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[drive]
	return e, ok
}

// Drives lists every currently open drive letter, sorted.
func (r *Registry) Drives() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]byte, 0, len(r.engines))
	for d := range r.engines {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close closes and forgets every open engine, collecting the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for d, e := range r.engines {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.engines, d)
	}
	return firstErr
}

// driveWildcard is the QuerySpec.Drive sentinel meaning "every open
// volume", per spec.md §4.7.
const driveWildcard byte = '*'

// Query dispatches spec to the engine for spec.Drive, or fans it out across
// every open engine (merging all engines' results, sorting them ascending
// by id across engines, and re-capping at spec.MaxResults) when spec.Drive
// is the wildcard.
func (r *Registry) Query(spec query.Spec) (query.Response, error) {
	if spec.Drive != driveWildcard && spec.Drive != 0 {
		e, ok := r.Get(spec.Drive)
		if !ok {
			return query.Response{}, mfterrors.New(mfterrors.KindNotFound, "registry_query", "drive not open")
		}
		return e.Query(spec)
	}

	drives := r.Drives()
	if len(drives) == 0 {
		return query.Response{}, mfterrors.New(mfterrors.KindNotFound, "registry_query", "no drives open")
	}

	var merged query.Response
	for _, d := range drives {
		e, ok := r.Get(d)
		if !ok {
			continue
		}
		resp, err := e.Query(spec)
		if err != nil {
			continue // one volume's failure doesn't abort the fan-out
		}
		merged.Results = append(merged.Results, resp.Results...)
		merged.Info.IndexSize += resp.Info.IndexSize
		merged.Info.SearchTimeMs += resp.Info.SearchTimeMs
		merged.Info.NtfsMode = merged.Info.NtfsMode || resp.Info.NtfsMode
		merged.Info.MatchType = resp.Info.MatchType
		merged.Info.Pattern = resp.Info.Pattern
		merged.Info.Mode = resp.Info.Mode
	}

	sort.Slice(merged.Results, func(i, j int) bool { return merged.Results[i].ID < merged.Results[j].ID })
	if spec.MaxResults > 0 && len(merged.Results) > spec.MaxResults {
		merged.Results = merged.Results[:spec.MaxResults]
	}
	return merged, nil
}

// StatsAll returns Stats for every open engine, keyed by drive letter.
func (r *Registry) StatsAll() map[byte]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[byte]Stats, len(r.engines))
	for d, e := range r.engines {
		out[d] = e.Stats()
	}
	return out
}
