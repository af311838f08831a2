package songs

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MrWong99/dmbot/internal/observe"
)

// Registry is the process-wide song lookup table. It is safe for concurrent
// use: all backend operations are serialised behind a single mutex. Callers
// should perform any slow work (title lookups, network calls) before calling
// into the Registry so the lock is never held across external I/O.
type Registry struct {
	mu      sync.Mutex
	backend Backend
	metrics *observe.Metrics
}

// RegistryOption configures a [Registry].
type RegistryOption func(*Registry)

// WithMetrics records every registry operation on m.
func WithMetrics(m *observe.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry wraps backend in a Registry. The backend must already be
// migrated; see [Open] for the usual construction path.
func NewRegistry(backend Backend, opts ...RegistryOption) *Registry {
	r := &Registry{backend: backend}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Insert registers a new song. It returns [ErrEmptyID] when videoID is empty,
// an error wrapping [ErrDuplicateKey] when videoID is already known, and an
// error wrapping [ErrStorage] for any persistence fault. On success the entry
// is visible to every subsequent read.
func (r *Registry) Insert(ctx context.Context, videoID, title string) error {
	if videoID == "" {
		r.record(ctx, "insert", "invalid")
		return ErrEmptyID
	}

	r.mu.Lock()
	err := r.backend.Insert(ctx, Song{VideoID: videoID, Title: title})
	r.mu.Unlock()

	switch {
	case err == nil:
		r.record(ctx, "insert", "ok")
	case errors.Is(err, ErrDuplicateKey):
		r.record(ctx, "insert", "duplicate")
	default:
		r.record(ctx, "insert", "error")
		if !errors.Is(err, ErrStorage) {
			err = storageErr("insert "+videoID, err)
		}
	}
	return err
}

// FindByTitleContains returns every song whose title contains query, ignoring
// case, in insertion order. An empty query matches every song. A storage
// failure is logged and yields an empty result; this method never fails.
func (r *Registry) FindByTitleContains(ctx context.Context, query string) []Song {
	all, ok := r.scan(ctx, "find")
	if !ok {
		return []Song{}
	}

	needle := strings.ToLower(query)
	matches := make([]Song, 0, len(all))
	for _, s := range all {
		if strings.Contains(strings.ToLower(s.Title), needle) {
			matches = append(matches, s)
		}
	}
	return matches
}

// All returns every registered song in insertion order. Like
// FindByTitleContains it reports storage failures as an empty result.
func (r *Registry) All(ctx context.Context) []Song {
	all, ok := r.scan(ctx, "list")
	if !ok {
		return []Song{}
	}
	return all
}

// Ping checks that the backend is reachable. Used by readiness probes.
func (r *Registry) Ping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.backend.Ping(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// Close closes the backend.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.Close()
}

func (r *Registry) scan(ctx context.Context, op string) ([]Song, bool) {
	r.mu.Lock()
	all, err := r.backend.All(ctx)
	r.mu.Unlock()

	if err != nil {
		observe.Logger(ctx).Warn("songs: full scan failed", "op", op, "err", err)
		r.record(ctx, op, "error")
		return nil, false
	}
	r.record(ctx, op, "ok")
	return all, true
}

func (r *Registry) record(ctx context.Context, op, status string) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordRegistryOp(ctx, op, status)
}
