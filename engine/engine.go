// Package engine ties the source, extractor, store and ranker into one
// session-scoped search engine. An Engine starts uninitialized and
// becomes indexed after its first successful load or build; it owns its
// in-memory index exclusively for the life of the session, with the
// persisted snapshot as the source of truth across sessions.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"

	"imagesearch/feature"
	"imagesearch/logging"
	"imagesearch/similarity"
	"imagesearch/source"
	"imagesearch/store"
	"imagesearch/types"
)

// Default search parameters. The low threshold is deliberate: matching
// is recall-oriented, callers tighten it per query when needed.
const (
	DefaultThreshold = 0.2
	DefaultLimit     = 3
)

// Engine indexes a source's images and answers similarity queries
// against the index. Not safe for concurrent use: one engine, one
// session, one caller at a time. Two sessions sharing a store are
// last-writer-wins.
type Engine struct {
	src   source.Source
	store store.Store

	index   types.Index
	indexed bool

	threshold float64
	limit     int
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultThreshold overrides the default similarity threshold used
// when a search does not supply one.
func WithDefaultThreshold(v float64) Option {
	return func(e *Engine) { e.threshold = v }
}

// WithDefaultLimit overrides the default result limit used when a
// search does not supply one.
func WithDefaultLimit(n int) Option {
	return func(e *Engine) { e.limit = n }
}

// New creates an engine over the given source and store. The engine is
// uninitialized until the first Build or Search.
func New(src source.Source, st store.Store, opts ...Option) *Engine {
	e := &Engine{
		src:       src,
		store:     st,
		threshold: DefaultThreshold,
		limit:     DefaultLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build indexes the source. An incremental build loads the persisted
// snapshot and only processes identifiers not already present; force
// discards everything and reprocesses from scratch. Both converge to
// the same index for the same listing. A fetch or decode failure skips
// that one image with a logged warning and never aborts the batch.
//
// A listing failure or a failed save is an operation-level error. After
// a failed save the in-memory index is still valid and searchable for
// the rest of the session; it just did not durably complete.
func (e *Engine) Build(ctx context.Context, force bool) (types.BuildReport, error) {
	if force {
		e.index = types.Index{}
	} else if !e.indexed {
		e.loadSnapshot()
	}
	if e.index == nil {
		e.index = types.Index{}
	}

	refs, err := e.src.List(ctx)
	if err != nil {
		return types.BuildReport{Total: len(e.index)}, fmt.Errorf("cannot list source images: %v", err)
	}

	added := 0
	for _, ref := range refs {
		if _, ok := e.index[ref.ID]; ok {
			continue
		}

		raw, err := e.src.Fetch(ctx, ref.ID)
		if err != nil {
			logging.LogWarning("Error fetching %s: %v", ref.ID, err)
			logging.LogImageIndexed(ref.ID, false, err.Error())
			continue
		}

		f, err := feature.ExtractBytes(raw)
		if err != nil {
			logging.LogWarning("Error processing %s: %v", ref.ID, err)
			logging.LogImageIndexed(ref.ID, false, err.Error())
			continue
		}

		e.index[ref.ID] = types.IndexEntry{
			Meta:    types.Meta{Name: ref.Name, ContentType: ref.ContentType},
			Feature: f,
		}
		logging.LogImageIndexed(ref.ID, true, "")
		added++
	}

	report := types.BuildReport{Added: added, Total: len(e.index)}
	e.indexed = true

	if err := e.store.Save(e.index); err != nil {
		return report, fmt.Errorf("cannot persist index: %v", err)
	}
	return report, nil
}

// Search extracts a feature from the query image and ranks the index
// against it. A still-uninitialized engine builds first. Undecodable
// query bytes surface as a *feature.DecodeError. No match above the
// threshold is an empty result, not an error.
//
// A non-positive limit and a NaN threshold select the engine defaults.
func (e *Engine) Search(ctx context.Context, query io.Reader, threshold float64, limit int) ([]types.Match, error) {
	q, err := feature.Extract(query)
	if err != nil {
		return nil, err
	}

	if !e.indexed {
		if _, err := e.Build(ctx, false); err != nil {
			return nil, err
		}
	}

	if math.IsNaN(threshold) {
		threshold = e.threshold
	}
	if limit <= 0 {
		limit = e.limit
	}

	return similarity.Rank(q, e.index, threshold, limit), nil
}

// SearchBytes is Search for an in-memory query image.
func (e *Engine) SearchBytes(ctx context.Context, raw []byte, threshold float64, limit int) ([]types.Match, error) {
	return e.Search(ctx, bytes.NewReader(raw), threshold, limit)
}

// Load primes the engine from the persisted snapshot without touching
// the source. Useful for search-only sessions.
func (e *Engine) Load() types.Status {
	if !e.indexed {
		e.loadSnapshot()
		e.indexed = true
	}
	return e.Status()
}

// Status reports whether the engine has an index and how many entries
// it holds.
func (e *Engine) Status() types.Status {
	return types.Status{Indexed: e.indexed, Total: len(e.index)}
}

// loadSnapshot reads the persisted index, degrading an unreadable
// snapshot to an empty index with a warning. Persistence problems never
// crash a build; they just cost a re-extraction.
func (e *Engine) loadSnapshot() {
	idx, err := e.store.Load()
	if err != nil {
		logging.LogWarning("Index snapshot unreadable, starting from empty: %v", err)
		idx = types.Index{}
	}
	e.index = idx
}
