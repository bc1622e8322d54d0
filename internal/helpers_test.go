package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// newTestStore opens a store backed by a throwaway file. The FTS5 triggers
// need a real database file shared across the connection pool, so :memory:
// is not used here.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "rekal-test.sqlite"))
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedSession(t *testing.T, s *Store, id string, source Source, workspace string) {
	t.Helper()
	if err := s.EnsureSession(id, source, workspace, "haiku"); err != nil {
		t.Fatalf("Failed to seed session %s: %v", id, err)
	}
}

// seedDoneTurn inserts a summarized turn created at the given time.
func seedDoneTurn(t *testing.T, s *Store, sessionID string, number int, at time.Time, sum *TurnSummary, userMsg string) int64 {
	t.Helper()
	old := s.now
	s.now = func() time.Time { return at }
	defer func() { s.now = old }()

	id, _, _, err := s.UpsertTurnSkeleton(sessionID, number, userMsg, "", "haiku")
	if err != nil {
		t.Fatalf("Failed to seed turn %d for session %s: %v", number, sessionID, err)
	}
	if err := s.CompleteTurn(id, sum); err != nil {
		t.Fatalf("Failed to complete seeded turn: %v", err)
	}
	return id
}

// writeTranscript writes JSONL lines to a temp file and returns its path.
func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("Failed to write transcript fixture: %v", err)
	}
	return path
}

// staticSummarizer returns fixed results and counts invocations.
type staticSummarizer struct {
	turn      *TurnSummary
	session   *SessionSummary
	title     string
	turnCalls int
}

func (m *staticSummarizer) SummarizeTurn(ctx context.Context, excerpt *TurnExcerpt) (*TurnSummary, error) {
	m.turnCalls++
	if m.turn == nil {
		return CreateTestTurnSummary("Static summary"), nil
	}
	return m.turn, nil
}

func (m *staticSummarizer) SummarizeSession(ctx context.Context, turns []Turn) (*SessionSummary, error) {
	if m.session == nil {
		return &SessionSummary{Title: "Static session", Summary: "Did things."}, nil
	}
	return m.session, nil
}

func (m *staticSummarizer) GenerateTitle(ctx context.Context, openingPrompt string) (string, error) {
	return m.title, nil
}

// failingSummarizer fails every call, like a provider CLI that keeps
// timing out.
type failingSummarizer struct {
	turnCalls int
}

func (m *failingSummarizer) SummarizeTurn(ctx context.Context, excerpt *TurnExcerpt) (*TurnSummary, error) {
	m.turnCalls++
	return nil, &SummarizeError{Provider: "claude", Err: fmt.Errorf("simulated timeout")}
}

func (m *failingSummarizer) SummarizeSession(ctx context.Context, turns []Turn) (*SessionSummary, error) {
	return nil, &SummarizeError{Provider: "claude", Err: fmt.Errorf("simulated timeout")}
}

func (m *failingSummarizer) GenerateTitle(ctx context.Context, openingPrompt string) (string, error) {
	return "", &SummarizeError{Provider: "claude", Err: fmt.Errorf("simulated timeout")}
}
