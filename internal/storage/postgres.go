package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/dukerupert/botica/internal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage keeps blobs in the session_blobs table.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage wraps an existing pool. The schema must already be migrated.
func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

// NewPostgresStorageFromURL connects, pings and runs migrations.
func NewPostgresStorageFromURL(ctx context.Context, url string) (*PostgresStorage, error) {
	if url == "" {
		return nil, ErrDatabaseURLRequired
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, wrapStorageError(err, codeInvalid, "invalid database URL")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrapStorageError(err, codeUnavailable, "database unreachable")
	}
	if err := internal.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, wrapStorageError(err, codeInternal, "failed to migrate session store")
	}

	return NewPostgresStorage(pool), nil
}

// Put upserts the row for key.
func (s *PostgresStorage) Put(ctx context.Context, key string, content io.Reader, contentType string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", wrapStorageError(err, codeInternal, "failed to read content")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO session_blobs (key, content, content_type, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE
		SET content = EXCLUDED.content,
		    content_type = EXCLUDED.content_type,
		    updated_at = NOW()`,
		key, data, contentType)
	if err != nil {
		return "", wrapStorageError(err, codeUnavailable, "failed to store blob")
	}

	return s.URL(key), nil
}

// Get returns the content stored at key.
func (s *PostgresStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT content FROM session_blobs WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFileNotFound(key)
	}
	if err != nil {
		return nil, wrapStorageError(err, codeUnavailable, "failed to load blob")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the row for key.
func (s *PostgresStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM session_blobs WHERE key = $1`, key); err != nil {
		return wrapStorageError(err, codeUnavailable, "failed to delete blob")
	}
	return nil
}

// URL returns a pseudo URL; rows are not publicly served.
func (s *PostgresStorage) URL(key string) string {
	return "postgres://session_blobs/" + key
}

// Exists checks for a row with key.
func (s *PostgresStorage) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM session_blobs WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, wrapStorageError(err, codeUnavailable, "failed to check blob")
	}
	return exists, nil
}

// List returns keys starting with prefix, sorted.
func (s *PostgresStorage) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key FROM session_blobs WHERE starts_with(key, $1) ORDER BY key`, prefix)
	if err != nil {
		return nil, wrapStorageError(err, codeUnavailable, "failed to list blobs")
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapStorageError(err, codeUnavailable, "failed to list blobs")
	}
	return keys, nil
}

// Close closes the pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
