package cache_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"MonaChat/internal/cache"
	"MonaChat/internal/storage"
)

func TestFetchMissAndReadThrough(t *testing.T) {
	ctx := context.Background()
	store := storage.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err := store.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer store.Close()
	assets := cache.New(store, nil)

	if _, err := assets.Fetch(ctx, "https://example.com/hero.png"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// A blob written straight to the durable family is served through
	// the cache.
	if err := store.PutAsset(ctx, "https://example.com/hero.png", []byte("png-bytes")); err != nil {
		t.Fatalf("PutAsset failed: %v", err)
	}
	data, err := assets.Fetch(ctx, "https://example.com/hero.png")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected data: %q", data)
	}
}

func TestPutWritesThrough(t *testing.T) {
	ctx := context.Background()
	store := storage.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err := store.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer store.Close()
	assets := cache.New(store, nil)

	if err := assets.Put(ctx, "https://example.com/a.glb", []byte("model")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	// Durable copy exists independently of the memory layer.
	data, err := store.GetAsset(ctx, "https://example.com/a.glb")
	if err != nil {
		t.Fatalf("GetAsset failed: %v", err)
	}
	if string(data) != "model" {
		t.Fatalf("unexpected durable copy: %q", data)
	}
}

func TestKeyIsStable(t *testing.T) {
	if cache.Key("u") != cache.Key("u") {
		t.Fatal("same locator must produce the same key")
	}
	if cache.Key("u") == cache.Key("v") {
		t.Fatal("different locators must not collide")
	}
}
