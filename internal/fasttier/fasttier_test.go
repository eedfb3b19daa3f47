package fasttier_test

import (
	"path/filepath"
	"testing"

	"MonaChat/internal/fasttier"
)

func TestSlotRoundTrip(t *testing.T) {
	slot := fasttier.New(filepath.Join(t.TempDir(), "session_id"))

	if _, ok := slot.Get(); ok {
		t.Fatal("expected empty slot before first Put")
	}

	if err := slot.Put("abc-123"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	value, ok := slot.Get()
	if !ok || value != "abc-123" {
		t.Fatalf("Get returned %q, %v", value, ok)
	}

	// Overwrite wins.
	if err := slot.Put("def-456"); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	if value, _ := slot.Get(); value != "def-456" {
		t.Fatalf("expected overwritten value, got %q", value)
	}
}

func TestSlotClear(t *testing.T) {
	slot := fasttier.New(filepath.Join(t.TempDir(), "session_id"))

	if err := slot.Clear(); err != nil {
		t.Fatalf("clearing an empty slot must not fail: %v", err)
	}
	if err := slot.Put("abc"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := slot.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := slot.Get(); ok {
		t.Fatal("expected empty slot after Clear")
	}
}
