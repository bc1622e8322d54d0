package internal

import (
	"math"
	"sort"
	"strings"
	"time"
)

// ScoredTurn is a search result with its combined relevance score.
type ScoredTurn struct {
	Turn
	Score   float64
	AgeDays float64
}

// Engine ranks stored turns against free-text queries. It is a pure
// function of (query, filters, current time, store contents): identical
// inputs always produce identical ordering.
type Engine struct {
	store *Store
	cfg   Config
	now   func() time.Time
}

// NewEngine creates a query engine over the store.
func NewEngine(store *Store, cfg Config) *Engine {
	return &Engine{store: store, cfg: cfg, now: time.Now}
}

// sanitizeQuery quotes every token so raw user input cannot trip FTS5
// query syntax.
func sanitizeQuery(query string) string {
	tokens := strings.Fields(query)
	quoted := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.ReplaceAll(t, `"`, "")
		if t != "" {
			quoted = append(quoted, `"`+t+`"`)
		}
	}
	return strings.Join(quoted, " ")
}

// decay is the recency factor: an exponential half-life so old turns are
// deprioritized but never excluded.
func (e *Engine) decay(ageDays float64) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-math.Ln2 * ageDays / e.cfg.HalfLifeDays)
}

// Search retrieves lexical candidates from the inverted index and re-ranks
// them: score = bm25 x recency x workspace affinity. currentWorkspace is
// the querying context's workspace used for the affinity boost; filters
// constrain the candidate set.
func (e *Engine) Search(query, currentWorkspace string, f Filters, limit int) ([]ScoredTurn, error) {
	match := sanitizeQuery(query)
	if match == "" {
		return nil, &UsageError{Msg: "empty query: provide search terms, or use --recent or --session"}
	}
	if limit <= 0 {
		limit = 15
	}

	// Over-fetch so re-ranking has room to reorder.
	candidates, err := e.store.searchCandidates(match, f, limit*3)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	scored := make([]ScoredTurn, 0, len(candidates))
	for _, c := range candidates {
		ageDays := now.Sub(c.Timestamp).Hours() / 24
		if c.Timestamp.IsZero() {
			ageDays = 365
		}

		// BM25 ranks are negative, closer to zero is better.
		lexical := -c.rank

		factor := 1.0
		if WorkspaceMatches(c.Workspace, currentWorkspace) {
			factor = e.cfg.WorkspaceBoost
		}

		scored = append(scored, ScoredTurn{
			Turn:    c.Turn,
			Score:   lexical * e.decay(ageDays) * factor,
			AgeDays: ageDays,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].Timestamp.Equal(scored[j].Timestamp) {
			return scored[i].Timestamp.After(scored[j].Timestamp)
		}
		return scored[i].ID > scored[j].ID
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}

	e.store.LogSearch(query, len(scored), currentWorkspace)
	return scored, nil
}

// Recent returns the N most recently created turns, newest first,
// bypassing lexical scoring entirely.
func (e *Engine) Recent(f Filters, n int) ([]Turn, error) {
	if n <= 0 {
		n = 10
	}
	return e.store.RecentTurns(f, n)
}

// SessionDetail resolves a session id or prefix and returns the session
// with its turns in sequence order.
func (e *Engine) SessionDetail(ref string) (*Session, []Turn, error) {
	id, err := e.store.ResolveSession(ref)
	if err != nil {
		return nil, nil, err
	}
	sess, err := e.store.GetSession(id)
	if err != nil {
		return nil, nil, err
	}
	turns, err := e.store.SessionTurns(id)
	if err != nil {
		return nil, nil, err
	}
	return sess, turns, nil
}
