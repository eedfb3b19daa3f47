package session_test

import (
	"testing"

	"MonaChat/internal/session"
)

func TestCloneIsolatesNestedValues(t *testing.T) {
	state := session.AppState{
		Session: session.Session{
			ID: "s1",
			UserValues: map[string]any{
				"profile": map[string]any{"tier": "gold"},
				"tags":    []any{"vip"},
			},
		},
	}

	snap := state.Clone()
	snap.Session.UserValues["profile"].(map[string]any)["tier"] = "mutated"
	snap.Session.UserValues["tags"].([]any)[0] = "mutated"

	orig := state.Session.UserValues
	if orig["profile"].(map[string]any)["tier"] != "gold" {
		t.Fatalf("nested map mutation reached the original: %v", orig)
	}
	if orig["tags"].([]any)[0] != "vip" {
		t.Fatalf("nested slice mutation reached the original: %v", orig)
	}
}

func TestMessageCloneIsolatesNestedMetadata(t *testing.T) {
	msg := session.Message{
		ID:       "m1",
		Metadata: map[string]any{"geo": map[string]any{"lat": 40.4}},
	}

	clone := msg.Clone()
	clone.Metadata["geo"].(map[string]any)["lat"] = 0.0

	if msg.Metadata["geo"].(map[string]any)["lat"] != 40.4 {
		t.Fatalf("nested metadata mutation reached the original: %v", msg.Metadata)
	}
}
