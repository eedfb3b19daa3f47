package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"MonaChat/internal/session"
	"MonaChat/internal/storage"
)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	store := storage.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err := store.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestConnectIdempotentUnderConcurrency(t *testing.T) {
	store := storage.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	defer store.Close()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Connect(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent Connect %d failed: %v", i, err)
		}
	}

	// The families must be usable after the race.
	if err := store.PutMessage(context.Background(), session.Message{
		ID: "m1", SessionID: "s1", Text: "hi", Sender: session.SenderUser,
		Type: session.TypeText, Timestamp: 1, Status: session.StatusSent,
	}); err != nil {
		t.Fatalf("PutMessage after concurrent connect: %v", err)
	}
}

func TestConnectFailsWhenPathUnusable(t *testing.T) {
	store := storage.Open(filepath.Join(t.TempDir(), "no\x00pe", "test.db"), nil)
	err := store.Connect(context.Background())
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestHistoryResortsByTimestamp(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	// Insert out of timestamp order; History must hand them back
	// ascending regardless of physical order.
	stamps := []int64{500, 100, 300}
	for i, ts := range stamps {
		msg := session.Message{
			ID:        []string{"m-a", "m-b", "m-c"}[i],
			SessionID: "s1",
			Text:      "msg",
			Sender:    session.SenderUser,
			Type:      session.TypeText,
			Timestamp: ts,
			Status:    session.StatusSent,
		}
		if err := store.PutMessage(ctx, msg); err != nil {
			t.Fatalf("PutMessage failed: %v", err)
		}
	}
	// A message for another session must not leak in.
	if err := store.PutMessage(ctx, session.Message{
		ID: "other", SessionID: "s2", Text: "noise", Sender: session.SenderBot,
		Type: session.TypeText, Timestamp: 200, Status: session.StatusSent,
	}); err != nil {
		t.Fatalf("PutMessage failed: %v", err)
	}

	msgs, err := store.History(ctx, "s1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i-1].Timestamp > msgs[i].Timestamp {
			t.Fatalf("history not ascending: %v", msgs)
		}
	}
}

func TestHistoryTieBreakFollowsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	// Equal timestamps with ids deliberately reverse-sorted, so only
	// insertion order can explain the result.
	for _, id := range []string{"z-first", "m-second", "a-third"} {
		if err := store.PutMessage(ctx, session.Message{
			ID: id, SessionID: "s1", Text: id, Sender: session.SenderUser,
			Type: session.TypeText, Timestamp: 100, Status: session.StatusSent,
		}); err != nil {
			t.Fatalf("PutMessage(%s) failed: %v", id, err)
		}
	}

	msgs, err := store.History(ctx, "s1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"z-first", "m-second", "a-third"} {
		if msgs[i].ID != want {
			t.Fatalf("equal-stamp order diverged from insertion order: %v", msgs)
		}
	}
}

func TestMessageRoundTripKeepsOpenTypeAndMetadata(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	in := session.Message{
		ID:        "m1",
		SessionID: "s1",
		Text:      "please verify",
		Sender:    session.SenderBot,
		Type:      session.TypeBiometricRequest,
		Timestamp: 42,
		Metadata:  map[string]any{"prompt": "fingerprint", "attempts": float64(2)},
		Status:    session.StatusSent,
	}
	if err := store.PutMessage(ctx, in); err != nil {
		t.Fatalf("PutMessage failed: %v", err)
	}

	msgs, err := store.History(ctx, "s1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	got := msgs[0]
	if got.Type != session.TypeBiometricRequest || got.Status != session.StatusSent {
		t.Fatalf("type/status did not round-trip: %+v", got)
	}
	if got.Metadata["prompt"] != "fingerprint" || got.Metadata["attempts"] != float64(2) {
		t.Fatalf("metadata did not round-trip: %v", got.Metadata)
	}
}

func TestSessionRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rec := storage.SessionRecord{
		ID:              "s1",
		UserValues:      map[string]any{"tier": "gold"},
		IsAuthenticated: true,
	}
	if err := store.PutSession(ctx, rec); err != nil {
		t.Fatalf("PutSession failed: %v", err)
	}
	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !got.IsAuthenticated || got.UserValues["tier"] != "gold" {
		t.Fatalf("session record did not round-trip: %+v", got)
	}

	// Upsert by id.
	rec.UserValues["tier"] = "platinum"
	if err := store.PutSession(ctx, rec); err != nil {
		t.Fatalf("PutSession upsert failed: %v", err)
	}
	got, err = store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.UserValues["tier"] != "platinum" {
		t.Fatalf("upsert did not take: %+v", got)
	}
}

func TestAssetFamily(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if _, err := store.GetAsset(ctx, "https://example.com/x.glb"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.PutAsset(ctx, "https://example.com/x.glb", []byte{1, 2, 3}); err != nil {
		t.Fatalf("PutAsset failed: %v", err)
	}
	data, err := store.GetAsset(ctx, "https://example.com/x.glb")
	if err != nil {
		t.Fatalf("GetAsset failed: %v", err)
	}
	if len(data) != 3 || data[0] != 1 {
		t.Fatalf("asset did not round-trip: %v", data)
	}
}
