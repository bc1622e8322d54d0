package internal

import (
	"errors"
	"math"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, store *Store, now time.Time) *Engine {
	t.Helper()
	engine := NewEngine(store, DefaultConfig())
	engine.now = func() time.Time { return now }
	return engine
}

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "plain terms", query: "auth middleware", want: `"auth" "middleware"`},
		{name: "fts operators quoted", query: "auth OR NOT", want: `"auth" "OR" "NOT"`},
		{name: "embedded quotes stripped", query: `say "hello"`, want: `"say" "hello"`},
		{name: "empty", query: "", want: ""},
		{name: "whitespace only", query: "   ", want: ""},
		{name: "only quotes", query: `"" ""`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeQuery(tt.query); got != tt.want {
				t.Errorf("sanitizeQuery(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestDecayHalfLife(t *testing.T) {
	engine := newTestEngine(t, newTestStore(t), time.Now().UTC())

	if got := engine.decay(0); got != 1.0 {
		t.Errorf("decay(0) = %v, want 1.0", got)
	}
	if got := engine.decay(engine.cfg.HalfLifeDays); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("decay(half-life) = %v, want 0.5", got)
	}
	if got := engine.decay(-3); got != 1.0 {
		t.Errorf("decay(negative) = %v, want 1.0", got)
	}
	if engine.decay(100) <= 0 {
		t.Error("decay must stay positive, old turns are deprioritized not excluded")
	}
}

func TestSearch_EmptyQueryIsUsageError(t *testing.T) {
	store := newTestStore(t)
	engine := newTestEngine(t, store, time.Now().UTC())

	for _, query := range []string{"", "   ", `""`} {
		_, err := engine.Search(query, "", Filters{}, 10)
		var usage *UsageError
		if !errors.As(err, &usage) {
			t.Errorf("Search(%q) error = %v, want UsageError", query, err)
		}
	}
}

func TestSearch_RecencyOrdersEqualMatches(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	seedSession(t, store, "old-sess", SourceClaude, "")
	seedSession(t, store, "new-sess", SourceClaude, "")

	sum := &TurnSummary{Title: "Debug flaky websocket test", Tags: []string{"websocket", "debug"}}
	seedDoneTurn(t, store, "old-sess", 1, now.AddDate(0, 0, -30), sum, "websocket test")
	seedDoneTurn(t, store, "new-sess", 1, now.AddDate(0, 0, -1), sum, "websocket test")

	engine := newTestEngine(t, store, now)
	results, err := engine.Search("websocket", "", Filters{}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].SessionID != "new-sess" {
		t.Errorf("first result session = %q, want new-sess (recency decay)", results[0].SessionID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not decreasing: %v then %v", results[0].Score, results[1].Score)
	}
}

func TestSearch_WorkspaceBoost(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	seedSession(t, store, "here-sess", SourceClaude, "/proj/a")
	seedSession(t, store, "there-sess", SourceClaude, "/proj/b")

	at := now.AddDate(0, 0, -2)
	sum := &TurnSummary{Title: "Add postgres migration", Tags: []string{"postgres"}}
	seedDoneTurn(t, store, "there-sess", 1, at, sum, "postgres migration")
	seedDoneTurn(t, store, "here-sess", 1, at, sum, "postgres migration")

	engine := newTestEngine(t, store, now)
	results, err := engine.Search("postgres", "/proj/a", Filters{}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].SessionID != "here-sess" {
		t.Errorf("first result session = %q, want here-sess (workspace boost)", results[0].SessionID)
	}

	// A subdirectory of the stored workspace gets the same boost.
	results, err = engine.Search("postgres", "/proj/a/internal", Filters{}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if results[0].SessionID != "here-sess" {
		t.Errorf("containment boost: first result session = %q, want here-sess", results[0].SessionID)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	seedSession(t, store, "sess-1", SourceClaude, "/proj/a")

	at := now.AddDate(0, 0, -1)
	for i := 1; i <= 4; i++ {
		seedDoneTurn(t, store, "sess-1", i, at,
			&TurnSummary{Title: "Tune cache eviction", Tags: []string{"cache"}}, "cache eviction")
	}

	engine := newTestEngine(t, store, now)
	first, err := engine.Search("cache", "/proj/a", Filters{}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	second, err := engine.Search("cache", "/proj/a", Filters{}, 10)
	if err != nil {
		t.Fatalf("Search() second run error = %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("result counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("position %d: %d vs %d, ordering is not stable", i, first[i].ID, second[i].ID)
		}
	}
	// Ties on score and timestamp fall back to newest id first.
	for i := 1; i < len(first); i++ {
		if first[i-1].ID < first[i].ID {
			t.Errorf("tie-break not id-descending at position %d", i)
		}
	}
}

func TestSearch_LimitTruncates(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	seedSession(t, store, "sess-1", SourceClaude, "/proj/a")
	for i := 1; i <= 6; i++ {
		seedDoneTurn(t, store, "sess-1", i, now.AddDate(0, 0, -i),
			&TurnSummary{Title: "Deploy staging", Tags: []string{"deployment"}}, "deploy")
	}

	engine := newTestEngine(t, store, now)
	results, err := engine.Search("deploy", "", Filters{}, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 3 {
		t.Errorf("Search() returned %d results, want 3", len(results))
	}
}

func TestSearch_RelevanceScenario(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	seedSession(t, store, "recent-here", SourceClaude, "/proj/a")
	seedSession(t, store, "old-elsewhere", SourceCodex, "/proj/b")

	seedDoneTurn(t, store, "recent-here", 1, now.AddDate(0, 0, -1),
		&TurnSummary{
			Title:       "Add auth middleware to API router",
			Description: "- new middleware in api/auth.go",
			Tags:        []string{"auth", "middleware", "golang"},
		}, "add auth middleware")
	seedDoneTurn(t, store, "old-elsewhere", 1, now.AddDate(0, 0, -60),
		&TurnSummary{
			Title:       "Reorder auth middleware chain",
			Description: "- moved auth before logging",
			Tags:        []string{"auth", "middleware"},
		}, "middleware ordering bug")
	seedDoneTurn(t, store, "recent-here", 2, now.AddDate(0, 0, -1),
		CreateTestTurnSummary("Update README badges"), "readme polish")

	engine := newTestEngine(t, store, now)
	results, err := engine.Search("auth middleware", "/proj/a", Filters{}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2 (README turn must not match)", len(results))
	}
	if results[0].Title != "Add auth middleware to API router" {
		t.Errorf("first result = %q, want the recent in-workspace turn", results[0].Title)
	}

	// The source filter narrows the candidate set before ranking.
	results, err = engine.Search("auth middleware", "/proj/a", Filters{Source: SourceCodex}, 10)
	if err != nil {
		t.Fatalf("Search() with source filter error = %v", err)
	}
	if len(results) != 1 || results[0].SessionID != "old-elsewhere" {
		t.Errorf("source filter results = %v, want only the codex turn", results)
	}
}

func TestSearch_FindsDegradedTurnByRawText(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	seedSession(t, store, "sess-1", SourceClaude, "/proj/a")

	store.now = func() time.Time { return now.AddDate(0, 0, -1) }
	id, _, _, err := store.UpsertTurnSkeleton("sess-1", 1,
		"fix the kafka consumer rebalance loop", "", "haiku")
	if err != nil {
		t.Fatalf("UpsertTurnSkeleton() error = %v", err)
	}
	if err := store.MarkTurnFailed(id); err != nil {
		t.Fatalf("MarkTurnFailed() error = %v", err)
	}

	engine := newTestEngine(t, store, now)
	results, err := engine.Search("kafka rebalance", "", Filters{}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search() returned %d results, want the failed turn by raw prompt", len(results))
	}
	if results[0].Status != StatusFailed {
		t.Errorf("Status = %q, want %q", results[0].Status, StatusFailed)
	}
}

func TestRecent_DefaultsAndOrder(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	seedSession(t, store, "sess-1", SourceClaude, "/proj/a")
	for i := 1; i <= 5; i++ {
		seedDoneTurn(t, store, "sess-1", i, now.Add(time.Duration(i)*time.Minute),
			CreateTestTurnSummary("Turn"), "prompt")
	}

	engine := newTestEngine(t, store, now)
	turns, err := engine.Recent(Filters{}, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("Recent(2) returned %d turns", len(turns))
	}
	if turns[0].Number != 5 || turns[1].Number != 4 {
		t.Errorf("order = turn %d, turn %d, want 5, 4", turns[0].Number, turns[1].Number)
	}

	turns, err = engine.Recent(Filters{}, 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(turns) != 5 {
		t.Errorf("Recent(0) returned %d turns, want all 5 under default limit", len(turns))
	}
}

func TestSessionDetail(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	seedSession(t, store, "abcdef00", SourceClaude, "/proj/a")
	seedDoneTurn(t, store, "abcdef00", 2, now, CreateTestTurnSummary("Second"), "p2")
	seedDoneTurn(t, store, "abcdef00", 1, now, CreateTestTurnSummary("First"), "p1")

	engine := newTestEngine(t, store, now)
	sess, turns, err := engine.SessionDetail("abc")
	if err != nil {
		t.Fatalf("SessionDetail() error = %v", err)
	}
	if sess.ID != "abcdef00" {
		t.Errorf("session = %q, want abcdef00", sess.ID)
	}
	if len(turns) != 2 || turns[0].Number != 1 || turns[1].Number != 2 {
		t.Errorf("turns not in sequence order: %v", turns)
	}

	_, _, err = engine.SessionDetail("nope")
	var nf *SessionNotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("SessionDetail(nope) error = %v, want SessionNotFoundError", err)
	}
}

func TestSearch_LogsQueries(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	engine := newTestEngine(t, store, now)

	if _, err := engine.Search("anything", "/proj/a", Filters{}, 10); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalSearches != 1 {
		t.Errorf("TotalSearches = %d, want 1", stats.TotalSearches)
	}
}
