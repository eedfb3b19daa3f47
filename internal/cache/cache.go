// Package cache fronts the storage assets family with an in-memory
// read-through layer for large blobs (images, 3D payloads).
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"MonaChat/internal/storage"
)

// CachedAsset is one in-memory entry.
type CachedAsset struct {
	Data      []byte
	Timestamp time.Time
}

// Key derives a stable cache key from an asset locator.
func Key(url string) string {
	h := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%x", h[:])
}

// AssetCache is a read-through cache over the assets record family.
type AssetCache struct {
	store  *storage.Store
	logger *slog.Logger
	mem    sync.Map // Key(url) -> CachedAsset
}

// New creates an asset cache over the given store.
func New(store *storage.Store, logger *slog.Logger) *AssetCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetCache{store: store, logger: logger}
}

// Fetch returns the asset for url, serving from memory when possible
// and falling back to the durable assets family.
func (c *AssetCache) Fetch(ctx context.Context, url string) ([]byte, error) {
	key := Key(url)
	if val, ok := c.mem.Load(key); ok {
		return val.(CachedAsset).Data, nil
	}
	data, err := c.store.GetAsset(ctx, url)
	if err != nil {
		return nil, err
	}
	c.mem.Store(key, CachedAsset{Data: data, Timestamp: time.Now()})
	return data, nil
}

// Put writes the asset through to durable storage and the memory layer.
func (c *AssetCache) Put(ctx context.Context, url string, data []byte) error {
	if err := c.store.PutAsset(ctx, url, data); err != nil {
		return err
	}
	c.mem.Store(Key(url), CachedAsset{Data: data, Timestamp: time.Now()})
	c.logger.Info("cached asset", "url", url, "bytes", len(data))
	return nil
}
