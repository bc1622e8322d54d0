package testutil

import (
	"path/filepath"
	"testing"

	"github.com/RolandSherwin/rekal/internal"
)

// CreateStore opens a store backed by a throwaway file. FTS5 triggers need
// a real database file shared across the connection pool, so :memory: is
// not used here.
func CreateStore(t *testing.T) *internal.Store {
	t.Helper()
	store, err := internal.OpenStore(filepath.Join(t.TempDir(), "rekal-test.sqlite"))
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// SeedSession creates a session or fails the test.
func SeedSession(t *testing.T, store *internal.Store, id string, source internal.Source, workspace string) {
	t.Helper()
	if err := store.EnsureSession(id, source, workspace, "haiku"); err != nil {
		t.Fatalf("Failed to seed session %s: %v", id, err)
	}
}

// SeedTurn inserts a completed turn with summary fields, returning its id.
func SeedTurn(t *testing.T, store *internal.Store, sessionID string, number int, title, description string, tags []string, userMessage string) int64 {
	t.Helper()
	id, _, _, err := store.UpsertTurnSkeleton(sessionID, number, userMessage, "", "haiku")
	if err != nil {
		t.Fatalf("Failed to seed turn %d for session %s: %v", number, sessionID, err)
	}
	sum := &internal.TurnSummary{Title: title, Description: description, Tags: tags}
	if err := store.CompleteTurn(id, sum); err != nil {
		t.Fatalf("Failed to complete seeded turn: %v", err)
	}
	return id
}
