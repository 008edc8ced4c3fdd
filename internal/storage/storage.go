package storage

import (
	"context"
	"io"
	"strings"

	"github.com/dukerupert/botica/internal"
)

// Storage is a key/value blob store for session state and prescription documents.
// Keys are slash-separated (e.g. "sessions/<id>/cart.json",
// "documents/<session>/<draft>/receta.pdf").
type Storage interface {
	// Put stores content under key, replacing any previous value, and
	// returns its URL/path for retrieval.
	Put(ctx context.Context, key string, content io.Reader, contentType string) (string, error)

	// Get retrieves a blob by key.
	// Returns an io.ReadCloser that must be closed by the caller.
	// Missing keys fail with a not_found StorageError.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a blob by key.
	// Returns nil if the blob doesn't exist (idempotent).
	Delete(ctx context.Context, key string) error

	// URL returns the address of a stored blob.
	URL(key string) string

	// Exists checks if a blob exists at the given key.
	Exists(ctx context.Context, key string) (bool, error)
}

// Lister is implemented by backends that can enumerate keys under a prefix.
// Session cleanup uses it to remove every key of a session at logout.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// NewStorage creates a Storage implementation based on configuration.
// Backends holding network connections implement io.Closer.
func NewStorage(ctx context.Context, cfg internal.StorageConfig) (Storage, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocalStorage(cfg.LocalPath, cfg.LocalURL)
	case "r2":
		return NewR2Storage(ctx, R2Config{
			AccountID:   cfg.R2AccountID,
			AccessKeyID: cfg.R2AccessKeyID,
			SecretKey:   cfg.R2SecretKey,
			BucketName:  cfg.R2BucketName,
			PublicURL:   cfg.R2PublicURL,
		})
	case "redis":
		return NewRedisStorageFromURL(cfg.RedisURL, cfg.SessionTTL)
	case "postgres":
		return NewPostgresStorageFromURL(ctx, cfg.DatabaseURL)
	default:
		return nil, ErrUnknownProvider(cfg.Provider)
	}
}

// validKey rejects empty keys and keys escaping their prefix.
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return ErrInvalidKey(key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "" {
			return ErrInvalidKey(key)
		}
	}
	return nil
}
