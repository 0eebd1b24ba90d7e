package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Store persists descriptors across restarts.
type Store interface {
	GetDescriptor(ctx context.Context, path string, modTime time.Time) (*Descriptor, error)
	PutDescriptor(ctx context.Context, d *Descriptor) error
}

// probeTimeout bounds a shared probe once it no longer follows its caller.
const probeTimeout = 2 * time.Minute

type cacheKey struct {
	path    string
	modTime int64
}

// Cache is an insert-once descriptor cache keyed by path and mtime.
// Concurrent lookups of the same file share one probe.
type Cache struct {
	prober Prober
	store  Store
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[cacheKey]*Descriptor
	group   singleflight.Group
}

// NewCache wraps prober with an in-memory cache. store may be nil.
func NewCache(prober Prober, store Store, logger *slog.Logger) *Cache {
	return &Cache{
		prober:  prober,
		store:   store,
		logger:  logger,
		entries: make(map[cacheKey]*Descriptor),
	}
}

// Describe returns the descriptor for path, probing only on a miss.
func (c *Cache) Describe(ctx context.Context, path string) (*Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}
	key := cacheKey{path: path, modTime: info.ModTime().UTC().UnixNano()}

	if d := c.lookup(key); d != nil {
		return d, nil
	}

	ch := c.group.DoChan(fmt.Sprintf("%s@%d", key.path, key.modTime), func() (any, error) {
		if d := c.lookup(key); d != nil {
			return d, nil
		}
		// the probe outlives any single waiting caller
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
		defer cancel()

		if c.store != nil {
			d, err := c.store.GetDescriptor(ctx, path, info.ModTime().UTC())
			if err != nil && c.logger != nil {
				c.logger.Warn("descriptor store lookup failed", "path", path, "error", err)
			}
			if d != nil {
				return c.insert(key, d), nil
			}
		}

		d, err := c.prober.Probe(ctx, path)
		if err != nil {
			return nil, err
		}
		d = c.insert(key, d)

		if c.store != nil {
			if err := c.store.PutDescriptor(ctx, d); err != nil && c.logger != nil {
				c.logger.Warn("failed to persist descriptor", "path", path, "error", err)
			}
		}
		if c.logger != nil {
			c.logger.Debug("probed media", "path", path, "duration", d.Duration, "resolution", d.Resolution())
		}
		return d, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Descriptor), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Probe makes Cache usable wherever a Prober is expected.
func (c *Cache) Probe(ctx context.Context, path string) (*Descriptor, error) {
	return c.Describe(ctx, path)
}

// Len returns the number of cached descriptors.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(key cacheKey) *Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[key]
}

// insert keeps the first descriptor stored for key.
func (c *Cache) insert(key cacheKey, d *Descriptor) *Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing
	}
	c.entries[key] = d
	return d
}
