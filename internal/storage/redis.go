package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisContentField = "content"
	redisTypeField    = "content_type"
)

// RedisStorage keeps blobs in Redis hashes with a sliding TTL, so
// abandoned sessions expire without a sweeper.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStorage wraps an existing client. A zero ttl keeps keys forever.
func NewRedisStorage(client *redis.Client, ttl time.Duration) *RedisStorage {
	return &RedisStorage{
		client: client,
		prefix: "botica:",
		ttl:    ttl,
	}
}

// NewRedisStorageFromURL parses a redis:// URL and connects.
func NewRedisStorageFromURL(url string, ttl time.Duration) (*RedisStorage, error) {
	if url == "" {
		return nil, ErrRedisURLRequired
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, wrapStorageError(err, codeInvalid, "invalid Redis URL")
	}
	return NewRedisStorage(redis.NewClient(opts), ttl), nil
}

func (s *RedisStorage) key(key string) string {
	return s.prefix + key
}

// Put replaces the hash at key and refreshes its TTL.
func (s *RedisStorage) Put(ctx context.Context, key string, content io.Reader, contentType string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", wrapStorageError(err, codeInternal, "failed to read content")
	}

	k := s.key(key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, redisContentField, data, redisTypeField, contentType)
		if s.ttl > 0 {
			pipe.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	if err != nil {
		return "", wrapStorageError(err, codeUnavailable, "redis put failed")
	}

	return s.URL(key), nil
}

// Get returns the blob at key.
func (s *RedisStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := s.client.HGet(ctx, s.key(key), redisContentField).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrFileNotFound(key)
	}
	if err != nil {
		return nil, wrapStorageError(err, codeUnavailable, "redis get failed")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the hash at key.
func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return wrapStorageError(err, codeUnavailable, "redis delete failed")
	}
	return nil
}

// URL returns a redis:// style reference; blobs are not publicly served.
func (s *RedisStorage) URL(key string) string {
	return "redis://" + s.key(key)
}

// Exists checks if key is present.
func (s *RedisStorage) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, wrapStorageError(err, codeUnavailable, "redis exists failed")
	}
	return n > 0, nil
}

// List scans for keys under prefix.
func (s *RedisStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.key(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(s.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, wrapStorageError(err, codeUnavailable, "redis scan failed")
	}
	return keys, nil
}

// Close releases the client's connections.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
