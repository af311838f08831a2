package songs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// sqliteSchema matches the table layout of existing dmbot.db files so that
// an old database can be opened without conversion.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS Songs (
    video_id    TEXT PRIMARY KEY,
    video_title TEXT
)`

// Compile-time interface check.
var _ Backend = (*SQLiteBackend)(nil)

// SQLiteBackend stores songs in a single SQLite file.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if needed) the SQLite database at path.
// The path may be ":memory:" for a throwaway database. Call
// [SQLiteBackend.Migrate] before use.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("songs: open sqlite %q: %w", path, err)
	}

	// One connection keeps ":memory:" databases coherent and matches the
	// registry's one-operation-at-a-time discipline.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("songs: ping sqlite %q: %w", path, err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Migrate creates the Songs table if it does not already exist.
func (b *SQLiteBackend) Migrate(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, sqliteSchema); err != nil {
		return storageErr("migrate", err)
	}
	return nil
}

// Insert adds s. A primary key violation is reported as [ErrDuplicateKey].
func (b *SQLiteBackend) Insert(ctx context.Context, s Song) error {
	_, err := b.db.ExecContext(ctx,
		"INSERT INTO Songs (video_id, video_title) VALUES (?, ?)",
		s.VideoID, s.Title,
	)
	if err != nil {
		if isSQLiteConstraint(err) {
			return duplicateErr(s.VideoID, err)
		}
		return storageErr("insert "+s.VideoID, err)
	}
	return nil
}

// All returns every row ordered by rowid, which is insertion order for a
// table that never sees deletes.
func (b *SQLiteBackend) All(ctx context.Context) ([]Song, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT video_id, video_title FROM Songs ORDER BY rowid")
	if err != nil {
		return nil, storageErr("select", err)
	}
	defer rows.Close()

	var out []Song
	for rows.Next() {
		var (
			id    string
			title sql.NullString
		)
		if err := rows.Scan(&id, &title); err != nil {
			return nil, storageErr("scan", err)
		}
		out = append(out, Song{VideoID: id, Title: title.String})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("rows", err)
	}
	return out, nil
}

// Ping checks the database file is still usable.
func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close closes the database handle.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// isSQLiteConstraint reports whether err is a PRIMARY KEY or UNIQUE violation.
func isSQLiteConstraint(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		se.ExtendedCode == sqlite3.ErrConstraintUnique
}
