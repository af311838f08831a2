package songs

import (
	"context"
	"slices"
	"sync"
)

// Compile-time assertion that MemoryBackend satisfies the Backend interface.
var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend is an in-memory [Backend]. Nothing survives a restart.
// The zero value is ready to use.
type MemoryBackend struct {
	mu    sync.Mutex
	order []Song
	index map[string]struct{}

	// FailWith, when non-nil, is returned by every operation. Tests use it
	// to simulate a broken store.
	FailWith error
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{index: make(map[string]struct{})}
}

// Migrate is a no-op.
func (b *MemoryBackend) Migrate(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailWith != nil {
		return storageErr("migrate", b.FailWith)
	}
	return nil
}

// Insert implements [Backend.Insert].
func (b *MemoryBackend) Insert(_ context.Context, s Song) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailWith != nil {
		return storageErr("insert "+s.VideoID, b.FailWith)
	}
	if b.index == nil {
		b.index = make(map[string]struct{})
	}
	if _, exists := b.index[s.VideoID]; exists {
		return duplicateErr(s.VideoID, nil)
	}
	b.index[s.VideoID] = struct{}{}
	b.order = append(b.order, s)
	return nil
}

// All implements [Backend.All].
func (b *MemoryBackend) All(context.Context) ([]Song, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailWith != nil {
		return nil, storageErr("select", b.FailWith)
	}
	return slices.Clone(b.order), nil
}

// Ping implements [Backend.Ping].
func (b *MemoryBackend) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.FailWith
}

// Close is a no-op.
func (b *MemoryBackend) Close() error { return nil }

// SetFailure switches failure injection on (err != nil) or off.
func (b *MemoryBackend) SetFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.FailWith = err
}
