// Package songs implements the song registry: a durable table that maps a
// short video identifier to a human-readable title.
//
// The registry supports two operations. [Registry.Insert] adds a new entry
// and refuses to overwrite an existing one. [Registry.FindByTitleContains]
// performs a case-insensitive substring scan over all titles and never fails
// outwardly: storage faults are logged and reported as "no match".
//
// Persistence is delegated to a [Backend]. Three are provided:
//
//   - [SQLiteBackend]: a single file next to the executable (the default).
//   - [PostgresBackend]: the same schema on a PostgreSQL server.
//   - [MemoryBackend]: non-durable, for tests and throwaway runs.
//
// A single [Registry] is shared by all command handlers. It serialises every
// backend call behind one mutex, so at most one storage operation executes
// at a time regardless of which backend is configured.
package songs

import (
	"context"
	"errors"
)

var (
	// ErrDuplicateKey is returned by Insert when the video ID already exists.
	// The stored title is left unchanged.
	ErrDuplicateKey = errors.New("songs: video id already registered")

	// ErrEmptyID is returned by Insert when the video ID is empty.
	ErrEmptyID = errors.New("songs: video id must not be empty")

	// ErrStorage wraps every underlying persistence fault (I/O, corruption,
	// lost connection). Use errors.Is to test for it; the driver error is
	// still reachable through errors.As.
	ErrStorage = errors.New("songs: storage failure")
)

// Song is a single registry entry. Entries are immutable once stored.
type Song struct {
	// VideoID is the opaque token extracted from a video URL. Unique and non-empty.
	VideoID string

	// Title is the display name reported by the title resolver. Not unique.
	Title string
}

// Backend is the persistence layer behind a [Registry]. Implementations do
// not need to be safe for concurrent use; the Registry never issues two
// calls at once.
type Backend interface {
	// Migrate creates the songs table if it does not exist. It must be safe
	// to run against a store that already has the schema.
	Migrate(ctx context.Context) error

	// Insert stores s. It returns an error wrapping [ErrDuplicateKey] when
	// s.VideoID is already present and must never overwrite.
	Insert(ctx context.Context, s Song) error

	// All returns every stored song in insertion order.
	All(ctx context.Context) ([]Song, error)

	// Ping verifies that the underlying store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the backend.
	Close() error
}

// storageErr wraps err so that it matches both [ErrStorage] and err.
func storageErr(op string, err error) error {
	return &opError{op: op, kind: ErrStorage, err: err}
}

// duplicateErr reports that id already exists.
func duplicateErr(id string, err error) error {
	return &opError{op: "insert " + id, kind: ErrDuplicateKey, err: err}
}

// opError carries a sentinel kind alongside the original driver error.
type opError struct {
	op   string
	kind error
	err  error
}

func (e *opError) Error() string {
	if e.err == nil {
		return e.kind.Error() + ": " + e.op
	}
	return e.kind.Error() + ": " + e.op + ": " + e.err.Error()
}

func (e *opError) Unwrap() []error {
	if e.err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.err}
}
