// Package cache stores synthesized audio under a content-addressed key so repeated
// requests for the same text and voice are served without inference.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/sovits-service/internal/audio"
	"github.com/book-expert/sovits-service/internal/core"
	"github.com/book-expert/sovits-service/internal/text"
)

// EntryExtension is appended to a key to form the stored object name.
const EntryExtension = ".wav"

// Key returns the cache key for text spoken by voice: the lowercase hex SHA-256 of the
// canonical text followed by the voice name.
func Key(input, voice string) string {
	sum := sha256.Sum256([]byte(text.Canonical(input) + voice))

	return hex.EncodeToString(sum[:])
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the time source used by Sweep.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache reads and writes WAV entries in a blob store. It holds no lock of its own;
// concurrent writers of one key each replace the entry with identical content.
type Cache struct {
	store core.BlobStore
	log   *logger.Logger
	now   func() time.Time
}

// New creates a Cache over store.
func New(store core.BlobStore, log *logger.Logger, opts ...Option) *Cache {
	c := &Cache{
		store: store,
		log:   log,
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Lookup returns the cached samples for key. Read and decode failures are logged and
// reported as a miss.
func (c *Cache) Lookup(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Download(ctx, objectName(key))
	if err != nil {
		if !errors.Is(err, core.ErrObjectNotFound) {
			c.log.Warn("Cache read failed for %s, treating as miss: %v", key, err)
		}

		return nil, false
	}

	samples, _, err := audio.Decode(data)
	if err != nil {
		c.log.Warn("Cache entry %s is corrupt, treating as miss: %v", key, err)

		return nil, false
	}

	return samples, true
}

// Store writes samples as a 32 kHz 16-bit WAV entry under key.
func (c *Cache) Store(ctx context.Context, key string, samples []float32) error {
	data, err := audio.Encode(samples, audio.OutputSampleRate)
	if err != nil {
		return fmt.Errorf("%w: failed to encode entry %s: %w", core.ErrCache, key, err)
	}

	err = c.store.Upload(ctx, objectName(key), data)
	if err != nil {
		return fmt.Errorf("%w: failed to write entry %s: %w", core.ErrCache, key, err)
	}

	return nil
}

// Sweep removes every entry whose age exceeds maxAge and returns how many were removed.
// Entries that vanish concurrently are ignored; other delete failures are collected and
// the sweep continues.
func (c *Cache) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	infos, err := c.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to list entries: %w", core.ErrCache, err)
	}

	now := c.now()
	removed := 0

	var errs []error

	for _, info := range infos {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())

			break
		}

		if now.Sub(info.ModTime) <= maxAge {
			continue
		}

		deleteErr := c.store.Delete(ctx, info.Key)
		if deleteErr != nil {
			if !errors.Is(deleteErr, core.ErrObjectNotFound) {
				errs = append(errs, deleteErr)
			}

			continue
		}

		removed++
	}

	if len(errs) > 0 {
		return removed, fmt.Errorf("%w: sweep incomplete: %w", core.ErrCache, errors.Join(errs...))
	}

	return removed, nil
}

func objectName(key string) string {
	if strings.HasSuffix(key, EntryExtension) {
		return key
	}

	return key + EntryExtension
}
