// Package cache keeps decoded record buffers so a source file that was
// decoded once loads without decoding again. The cache is an accelerator
// only: every failure degrades to a miss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/gekko3d/gsplat"
)

// ErrCacheMiss is returned by helpers when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores opaque byte values under string keys.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Hash computes a SHA-256 hash of data as 64 hex characters.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DecodedKey is the key a decoded buffer of source is stored under.
func DecodedKey(source []byte) string {
	return "splat:decoded:" + Hash(source)
}

// New builds the backend named by cfg.Backend.
func New(cfg gsplat.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "", "none":
		return NewNullCache(), nil
	case "file":
		return NewFileCache(cfg.Dir)
	case "redis":
		return NewRedisCache(RedisOptions{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	default:
		return nil, gsplat.NewError(gsplat.ErrCodeInvalidConfig, "unknown cache backend %q", cfg.Backend)
	}
}

// Lookup returns the value for key, or ErrCacheMiss.
func Lookup(ctx context.Context, c Cache, key string) ([]byte, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil {
		return nil, gsplat.WrapError(gsplat.ErrCodeCache, err, "get %s", key)
	}
	if !ok {
		return nil, ErrCacheMiss
	}
	return data, nil
}

// Decoder wraps decode so repeated sources come from c. Cache errors are
// logged and otherwise ignored.
func Decoder(c Cache, ttl time.Duration, logger gsplat.Logger, decode func([]byte) ([]byte, error)) func([]byte) ([]byte, error) {
	logger = gsplat.OrNop(logger)
	return func(raw []byte) ([]byte, error) {
		ctx := context.Background()
		key := DecodedKey(raw)

		data, err := Lookup(ctx, c, key)
		switch {
		case err == nil:
			logger.Debugf("cache: hit %s (%d bytes)", key, len(data))
			return data, nil
		case !errors.Is(err, ErrCacheMiss):
			logger.Warnf("cache: %v", err)
		}

		out, err := decode(raw)
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, key, out, ttl); err != nil {
			logger.Warnf("cache: set %s: %v", key, err)
		}
		return out, nil
	}
}
