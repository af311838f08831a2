package songs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema is the DDL for the songs table. seq gives a stable
// insertion order for full scans.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS songs (
    video_id    TEXT PRIMARY KEY,
    video_title TEXT NOT NULL DEFAULT '',
    seq         BIGSERIAL
);
CREATE INDEX IF NOT EXISTS idx_songs_seq ON songs(seq);
`

// DB is the database interface used by [PostgresBackend]. Both
// *pgxpool.Pool and *pgx.Conn satisfy it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Compile-time interface check.
var _ Backend = (*PostgresBackend)(nil)

// PostgresBackend stores songs in a PostgreSQL table.
type PostgresBackend struct {
	db    DB
	ping  func(ctx context.Context) error
	close func()
}

// NewPostgresBackend wraps an existing connection or pool. The caller keeps
// ownership of db; Close is a no-op.
func NewPostgresBackend(db DB) *PostgresBackend {
	return &PostgresBackend{
		db: db,
		ping: func(ctx context.Context) error {
			_, err := db.Exec(ctx, "SELECT 1")
			return err
		},
		close: func() {},
	}
}

// ConnectPostgres opens a connection pool to dsn and returns a backend that
// owns it.
func ConnectPostgres(ctx context.Context, dsn string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("songs: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("songs: ping postgres: %w", err)
	}
	return &PostgresBackend{db: pool, ping: pool.Ping, close: pool.Close}, nil
}

// Migrate executes [PostgresSchema].
func (b *PostgresBackend) Migrate(ctx context.Context) error {
	if _, err := b.db.Exec(ctx, PostgresSchema); err != nil {
		return storageErr("migrate", err)
	}
	return nil
}

// Insert adds s. A unique violation is reported as [ErrDuplicateKey].
func (b *PostgresBackend) Insert(ctx context.Context, s Song) error {
	const query = `INSERT INTO songs (video_id, video_title) VALUES ($1, $2)`
	if _, err := b.db.Exec(ctx, query, s.VideoID, s.Title); err != nil {
		if isDuplicateKeyError(err) {
			return duplicateErr(s.VideoID, err)
		}
		return storageErr("insert "+s.VideoID, err)
	}
	return nil
}

// All returns every song ordered by insertion sequence.
func (b *PostgresBackend) All(ctx context.Context) ([]Song, error) {
	rows, err := b.db.Query(ctx, `SELECT video_id, video_title FROM songs ORDER BY seq`)
	if err != nil {
		return nil, storageErr("select", err)
	}
	defer rows.Close()

	var out []Song
	for rows.Next() {
		var s Song
		if err := rows.Scan(&s.VideoID, &s.Title); err != nil {
			return nil, storageErr("scan", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("rows", err)
	}
	return out, nil
}

// Ping checks connectivity.
func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.ping(ctx)
}

// Close releases the pool when the backend owns one.
func (b *PostgresBackend) Close() error {
	b.close()
	return nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
