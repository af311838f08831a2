package songs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Driver selects a [Backend] implementation.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverMemory   Driver = "memory"
)

// IsValid reports whether d is a recognised driver.
func (d Driver) IsValid() bool {
	switch d {
	case DriverSQLite, DriverPostgres, DriverMemory:
		return true
	}
	return false
}

// Config selects and parameterises the registry backend.
type Config struct {
	// Driver picks the backend. Empty means sqlite.
	Driver Driver

	// Path is the SQLite file. Relative paths are resolved against the
	// directory of the running executable.
	Path string

	// DSN is the PostgreSQL connection string.
	DSN string
}

// DefaultFile is the SQLite file name used when Config.Path is empty.
const DefaultFile = "dmbot.db"

// Open builds the configured backend, runs its migration and returns a
// ready Registry. The migration is idempotent, so Open is safe against an
// existing database.
func Open(ctx context.Context, cfg Config, opts ...RegistryOption) (*Registry, error) {
	var (
		backend Backend
		err     error
	)

	switch cfg.Driver {
	case "", DriverSQLite:
		path := cfg.Path
		if path == "" {
			path = DefaultFile
		}
		if path != ":memory:" {
			if path, err = DefaultPath(path); err != nil {
				return nil, err
			}
		}
		backend, err = NewSQLiteBackend(path)
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("songs: postgres driver requires a dsn")
		}
		backend, err = ConnectPostgres(ctx, cfg.DSN)
	case DriverMemory:
		backend = NewMemoryBackend()
	default:
		return nil, fmt.Errorf("songs: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := backend.Migrate(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("songs: migrate: %w", err)
	}
	return NewRegistry(backend, opts...), nil
}

// DefaultPath resolves name against the directory that holds the running
// executable. Absolute paths are returned unchanged.
func DefaultPath(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("songs: locate executable: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), name), nil
}
