package internal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is RFC3339 with fixed-width nanoseconds so stored timestamps
// sort chronologically as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// TurnStatus tracks the summarization state of a turn.
type TurnStatus string

const (
	StatusPending TurnStatus = "pending"
	StatusDone    TurnStatus = "done"
	StatusFailed  TurnStatus = "failed"
	StatusSkipped TurnStatus = "skipped"
)

// Session represents one continuous interaction with an assistant platform.
type Session struct {
	ID        string
	Source    Source
	Workspace string
	Model     string
	Title     string
	Summary   string
	StartedAt time.Time
	EndedAt   *time.Time
	TurnCount int
}

// Turn represents one user/assistant exchange within a session. Workspace
// and Source are denormalized from the owning session on reads that join.
type Turn struct {
	ID          int64
	SessionID   string
	Number      int
	UserMessage string
	AgentOutput string
	Title       string
	Description string
	Tags        string
	Status      TurnStatus
	Retries     int
	Model       string
	Timestamp   time.Time
	Workspace   string
	Source      Source
}

// Filters optionally constrain queries over stored turns.
type Filters struct {
	Workspace string // substring match on the session workspace path
	Session   string // session id prefix
	Source    Source // platform tag
}

// StoreStats is the read-only usage report.
type StoreStats struct {
	TotalSessions    int
	ClaudeSessions   int
	CodexSessions    int
	TotalTurns       int
	TurnsByStatus    map[TurnStatus]int
	LastIndexed      string
	TotalSearches    int
	SearchesWithHits int
	AvgResults       float64
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    source TEXT NOT NULL DEFAULT 'claude',
    workspace_path TEXT,
    model TEXT,
    title TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    ended_at TEXT,
    turn_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS turns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(session_id),
    turn_number INTEGER NOT NULL,
    user_message TEXT NOT NULL DEFAULT '',
    agent_output TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    retries INTEGER NOT NULL DEFAULT 0,
    model_name TEXT,
    timestamp TEXT NOT NULL,
    UNIQUE(session_id, turn_number)
);

CREATE TABLE IF NOT EXISTS search_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    query TEXT NOT NULL,
    result_count INTEGER NOT NULL DEFAULT 0,
    workspace TEXT,
    searched_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
CREATE INDEX IF NOT EXISTS idx_turns_timestamp ON turns(timestamp);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
CREATE INDEX IF NOT EXISTS idx_sessions_workspace ON sessions(workspace_path);

CREATE VIRTUAL TABLE IF NOT EXISTS turns_fts USING fts5(
    title,
    description,
    tags,
    user_message,
    content='turns',
    content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS turns_ai AFTER INSERT ON turns BEGIN
    INSERT INTO turns_fts(rowid, title, description, tags, user_message)
    VALUES (new.id, new.title, new.description, new.tags, new.user_message);
END;

CREATE TRIGGER IF NOT EXISTS turns_ad AFTER DELETE ON turns BEGIN
    INSERT INTO turns_fts(turns_fts, rowid, title, description, tags, user_message)
    VALUES ('delete', old.id, old.title, old.description, old.tags, old.user_message);
END;

CREATE TRIGGER IF NOT EXISTS turns_au AFTER UPDATE ON turns BEGIN
    INSERT INTO turns_fts(turns_fts, rowid, title, description, tags, user_message)
    VALUES ('delete', old.id, old.title, old.description, old.tags, old.user_message);
    INSERT INTO turns_fts(rowid, title, description, tags, user_message)
    VALUES (new.id, new.title, new.description, new.tags, new.user_message);
END;
`

// Store is the durable shared repository of sessions, turns, and the
// lexical index. The FTS triggers keep index updates inside the same
// transaction as the turn write.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenStore opens (and initializes) the store file, creating parent
// directories as needed. WAL mode lets the query engine read while an
// ingestion write is in flight.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &StoreError{Op: "open", Err: err}
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StoreError{Op: "open", Err: err}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("failed to initialize schema: %w", err)}
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) nowString() string {
	return s.now().UTC().Format(timeLayout)
}

func parseStoredTime(v string) time.Time {
	if t, err := time.Parse(timeLayout, v); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", v)
	return t
}

// EnsureSession creates the session row if it does not exist yet.
func (s *Store) EnsureSession(id string, source Source, workspace, model string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sessions (session_id, source, workspace_path, model, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, string(source), workspace, model, s.nowString(),
	)
	if err != nil {
		return &StoreError{Op: "write", Err: fmt.Errorf("failed to ensure session: %w", err)}
	}
	return nil
}

// UpsertTurnSkeleton writes the pending turn row before any summarization
// is attempted, which guarantees the turn is searchable by raw text even
// if summarization never completes. A non-positive number allocates the
// next sequence index inside the transaction. Turns already summarized
// (status done) are immutable: the row is returned unchanged with
// alreadyDone set so callers know not to summarize it again.
func (s *Store) UpsertTurnSkeleton(sessionID string, number int, userMsg, agentOut, model string) (id int64, turnNumber int, alreadyDone bool, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, false, &StoreError{Op: "write", Err: err}
	}
	defer tx.Rollback()

	if number <= 0 {
		row := tx.QueryRow(
			"SELECT COALESCE(MAX(turn_number), 0) + 1 FROM turns WHERE session_id = ?",
			sessionID,
		)
		if err := row.Scan(&number); err != nil {
			return 0, 0, false, &StoreError{Op: "write", Err: err}
		}
	}

	var existingID int64
	var existingStatus string
	err = tx.QueryRow(
		"SELECT id, status FROM turns WHERE session_id = ? AND turn_number = ?",
		sessionID, number,
	).Scan(&existingID, &existingStatus)

	switch {
	case err == nil && TurnStatus(existingStatus) == StatusDone:
		// Already summarized, leave it alone.
		if err := tx.Commit(); err != nil {
			return 0, 0, false, &StoreError{Op: "write", Err: err}
		}
		return existingID, number, true, nil

	case err == nil:
		_, err = tx.Exec(
			`UPDATE turns SET user_message = ?, agent_output = ?, status = ?, model_name = ?, timestamp = ?
			 WHERE id = ?`,
			userMsg, agentOut, string(StatusPending), model, s.nowString(), existingID,
		)
		if err != nil {
			return 0, 0, false, &StoreError{Op: "write", Err: err}
		}
		if err := tx.Commit(); err != nil {
			return 0, 0, false, &StoreError{Op: "write", Err: err}
		}
		return existingID, number, false, nil

	case err == sql.ErrNoRows:
		res, err := tx.Exec(
			`INSERT INTO turns (session_id, turn_number, user_message, agent_output, status, model_name, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionID, number, userMsg, agentOut, string(StatusPending), model, s.nowString(),
		)
		if err != nil {
			return 0, 0, false, &StoreError{Op: "write", Err: err}
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return 0, 0, false, &StoreError{Op: "write", Err: err}
		}
		if _, err := tx.Exec(
			"UPDATE sessions SET turn_count = turn_count + 1 WHERE session_id = ?",
			sessionID,
		); err != nil {
			return 0, 0, false, &StoreError{Op: "write", Err: err}
		}
		if err := tx.Commit(); err != nil {
			return 0, 0, false, &StoreError{Op: "write", Err: err}
		}
		return newID, number, false, nil

	default:
		return 0, 0, false, &StoreError{Op: "write", Err: err}
	}
}

// CompleteTurn stores the summarizer output and marks the turn done.
func (s *Store) CompleteTurn(id int64, sum *TurnSummary) error {
	_, err := s.db.Exec(
		"UPDATE turns SET title = ?, description = ?, tags = ?, status = ? WHERE id = ?",
		sum.Title, sum.Description, strings.Join(sum.Tags, ", "), string(StatusDone), id,
	)
	if err != nil {
		return &StoreError{Op: "write", Err: err}
	}
	return nil
}

// MarkTurnFailed records a failed summarization. The raw text stays in
// place so the turn remains findable, degraded rather than lost.
func (s *Store) MarkTurnFailed(id int64) error {
	_, err := s.db.Exec(
		"UPDATE turns SET status = ? WHERE id = ?", string(StatusFailed), id,
	)
	if err != nil {
		return &StoreError{Op: "write", Err: err}
	}
	return nil
}

// MarkTurnSkipped records an extraction failure, storing whatever raw
// excerpt is available as the fallback description.
func (s *Store) MarkTurnSkipped(id int64, fallback string) error {
	_, err := s.db.Exec(
		"UPDATE turns SET status = ?, description = ? WHERE id = ?",
		string(StatusSkipped), fallback, id,
	)
	if err != nil {
		return &StoreError{Op: "write", Err: err}
	}
	return nil
}

// IncrementTurnRetries bumps the retry counter of a failed turn.
func (s *Store) IncrementTurnRetries(id int64) error {
	_, err := s.db.Exec("UPDATE turns SET retries = retries + 1 WHERE id = ?", id)
	if err != nil {
		return &StoreError{Op: "write", Err: err}
	}
	return nil
}

// RetryCandidate returns the earliest failed turn of a session that has
// never been retried, or nil when there is nothing to retry.
func (s *Store) RetryCandidate(sessionID string) (*Turn, error) {
	row := s.db.QueryRow(
		turnSelect+`WHERE t.session_id = ? AND t.status = ? AND t.retries = 0
		 ORDER BY t.turn_number LIMIT 1`,
		sessionID, string(StatusFailed),
	)
	turn, err := scanTurn(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}
	return turn, nil
}

// GetTurn loads one turn by id.
func (s *Store) GetTurn(id int64) (*Turn, error) {
	row := s.db.QueryRow(turnSelect+"WHERE t.id = ?", id)
	turn, err := scanTurn(row)
	if err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}
	return turn, nil
}

// SessionTurns returns all turns of a session ordered by sequence index.
func (s *Store) SessionTurns(sessionID string) ([]Turn, error) {
	rows, err := s.db.Query(
		turnSelect+"WHERE t.session_id = ? ORDER BY t.turn_number", sessionID,
	)
	if err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}
	defer rows.Close()
	return collectTurns(rows)
}

// ResolveSession resolves an exact session id or an unambiguous prefix.
// Zero matches and multiple matches are reported as distinct conditions.
func (s *Store) ResolveSession(ref string) (string, error) {
	var id string
	err := s.db.QueryRow(
		"SELECT session_id FROM sessions WHERE session_id = ?", ref,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", &StoreError{Op: "query", Err: err}
	}

	rows, err := s.db.Query(
		`SELECT session_id FROM sessions WHERE session_id LIKE ? ESCAPE '\' ORDER BY session_id`,
		escapeLike(ref)+"%",
	)
	if err != nil {
		return "", &StoreError{Op: "query", Err: err}
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return "", &StoreError{Op: "query", Err: err}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return "", &StoreError{Op: "query", Err: err}
	}

	switch len(matches) {
	case 0:
		return "", &SessionNotFoundError{Ref: ref}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousSessionError{Ref: ref, Candidates: matches}
	}
}

// GetSession loads one session row.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT session_id, source, workspace_path, model, title, summary,
		        started_at, ended_at, turn_count
		 FROM sessions WHERE session_id = ?`, id,
	)

	var sess Session
	var source, startedAt string
	var workspace, model, endedAt sql.NullString
	err := row.Scan(&sess.ID, &source, &workspace, &model, &sess.Title,
		&sess.Summary, &startedAt, &endedAt, &sess.TurnCount)
	if err == sql.ErrNoRows {
		return nil, &SessionNotFoundError{Ref: id}
	}
	if err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}

	sess.Source = Source(source)
	sess.Workspace = workspace.String
	sess.Model = model.String
	sess.StartedAt = parseStoredTime(startedAt)
	if endedAt.Valid && endedAt.String != "" {
		t := parseStoredTime(endedAt.String)
		sess.EndedAt = &t
	}
	return &sess, nil
}

// SessionTitle returns the current title of a session.
func (s *Store) SessionTitle(id string) (string, error) {
	var title string
	err := s.db.QueryRow(
		"SELECT title FROM sessions WHERE session_id = ?", id,
	).Scan(&title)
	if err == sql.ErrNoRows {
		return "", &SessionNotFoundError{Ref: id}
	}
	if err != nil {
		return "", &StoreError{Op: "query", Err: err}
	}
	return title, nil
}

// SetSessionTitleIfEmpty stores an early title unless one already exists.
func (s *Store) SetSessionTitleIfEmpty(id, title string) error {
	_, err := s.db.Exec(
		"UPDATE sessions SET title = ? WHERE session_id = ? AND title = ''",
		title, id,
	)
	if err != nil {
		return &StoreError{Op: "write", Err: err}
	}
	return nil
}

// EndSession records the session recap and sets the end time. An end time,
// once set, never regresses.
func (s *Store) EndSession(id, title, summary string) error {
	now := s.nowString()
	_, err := s.db.Exec(
		`UPDATE sessions SET
		    title = CASE WHEN ? != '' THEN ? ELSE title END,
		    summary = CASE WHEN ? != '' THEN ? ELSE summary END,
		    ended_at = CASE WHEN ended_at IS NULL OR ended_at < ? THEN ? ELSE ended_at END
		 WHERE session_id = ?`,
		title, title, summary, summary, now, now, id,
	)
	if err != nil {
		return &StoreError{Op: "write", Err: err}
	}
	return nil
}

const turnSelect = `
SELECT t.id, t.session_id, t.turn_number, t.user_message, t.agent_output,
       t.title, t.description, t.tags, t.status, t.retries, t.model_name,
       t.timestamp, s.workspace_path, s.source
FROM turns t
JOIN sessions s ON s.session_id = t.session_id
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTurn(row rowScanner) (*Turn, error) {
	var t Turn
	var status, timestamp, source string
	var model, workspace sql.NullString
	err := row.Scan(&t.ID, &t.SessionID, &t.Number, &t.UserMessage,
		&t.AgentOutput, &t.Title, &t.Description, &t.Tags, &status,
		&t.Retries, &model, &timestamp, &workspace, &source)
	if err != nil {
		return nil, err
	}
	t.Status = TurnStatus(status)
	t.Model = model.String
	t.Timestamp = parseStoredTime(timestamp)
	t.Workspace = workspace.String
	t.Source = Source(source)
	return &t, nil
}

func collectTurns(rows *sql.Rows) ([]Turn, error) {
	var turns []Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, &StoreError{Op: "query", Err: err}
		}
		turns = append(turns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}
	return turns, nil
}

func filterClauses(f Filters, args *[]interface{}) string {
	clause := ""
	if f.Workspace != "" {
		clause += ` AND s.workspace_path LIKE ? ESCAPE '\'`
		*args = append(*args, "%"+escapeLike(f.Workspace)+"%")
	}
	if f.Session != "" {
		clause += ` AND t.session_id LIKE ? ESCAPE '\'`
		*args = append(*args, escapeLike(f.Session)+"%")
	}
	if f.Source != "" {
		clause += " AND s.source = ?"
		*args = append(*args, string(f.Source))
	}
	return clause
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// RecentTurns returns the most recently created turns, newest first.
func (s *Store) RecentTurns(f Filters, limit int) ([]Turn, error) {
	args := []interface{}{}
	clause := filterClauses(f, &args)
	args = append(args, limit)

	rows, err := s.db.Query(
		turnSelect+"WHERE 1=1"+clause+" ORDER BY t.timestamp DESC, t.id DESC LIMIT ?",
		args...,
	)
	if err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}
	defer rows.Close()
	return collectTurns(rows)
}

// candidate pairs a turn with its raw BM25 rank from FTS5.
type candidate struct {
	Turn
	rank float64
}

// searchCandidates runs the sanitized match expression against the
// inverted index. Title and tags outweigh the description and the raw
// user message. BM25 ranks are negative, closer to zero is better.
func (s *Store) searchCandidates(match string, f Filters, limit int) ([]candidate, error) {
	args := []interface{}{match}
	clause := filterClauses(f, &args)
	args = append(args, limit)

	rows, err := s.db.Query(`
SELECT t.id, t.session_id, t.turn_number, t.user_message, t.agent_output,
       t.title, t.description, t.tags, t.status, t.retries, t.model_name,
       t.timestamp, s.workspace_path, s.source,
       bm25(turns_fts, 5.0, 2.0, 4.0, 1.0) AS rank
FROM turns_fts
JOIN turns t ON t.id = turns_fts.rowid
JOIN sessions s ON s.session_id = t.session_id
WHERE turns_fts MATCH ?`+clause+`
ORDER BY rank
LIMIT ?`, args...)
	if err != nil {
		// Malformed FTS expressions surface as query errors; treat as no match.
		LogDebug("fts query failed: %v", err)
		return nil, nil
	}
	defer rows.Close()

	var candidates []candidate
	for rows.Next() {
		var c candidate
		var status, timestamp, source string
		var model, workspace sql.NullString
		err := rows.Scan(&c.ID, &c.SessionID, &c.Number, &c.UserMessage,
			&c.AgentOutput, &c.Title, &c.Description, &c.Tags, &status,
			&c.Retries, &model, &timestamp, &workspace, &source, &c.rank)
		if err != nil {
			return nil, &StoreError{Op: "query", Err: err}
		}
		c.Status = TurnStatus(status)
		c.Model = model.String
		c.Timestamp = parseStoredTime(timestamp)
		c.Workspace = workspace.String
		c.Source = Source(source)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}
	return candidates, nil
}

// LogSearch records a query in the search log, best-effort.
func (s *Store) LogSearch(query string, results int, workspace string) {
	_, err := s.db.Exec(
		"INSERT INTO search_log (query, result_count, workspace, searched_at) VALUES (?, ?, ?, ?)",
		query, results, workspace, s.nowString(),
	)
	if err != nil {
		LogDebug("search_log insert failed: %v", err)
	}
}

// Stats returns the usage report.
func (s *Store) Stats() (*StoreStats, error) {
	stats := &StoreStats{TurnsByStatus: make(map[TurnStatus]int)}

	var lastIndexed sql.NullString
	var avgResults sql.NullFloat64
	err := s.db.QueryRow(`
SELECT
    (SELECT COUNT(*) FROM sessions),
    (SELECT COUNT(*) FROM sessions WHERE source = 'claude'),
    (SELECT COUNT(*) FROM sessions WHERE source = 'codex'),
    (SELECT COUNT(*) FROM turns),
    (SELECT MAX(timestamp) FROM turns),
    (SELECT COUNT(*) FROM search_log),
    (SELECT COUNT(*) FROM search_log WHERE result_count > 0),
    (SELECT AVG(result_count) FROM search_log)`,
	).Scan(&stats.TotalSessions, &stats.ClaudeSessions, &stats.CodexSessions,
		&stats.TotalTurns, &lastIndexed, &stats.TotalSearches,
		&stats.SearchesWithHits, &avgResults)
	if err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}
	stats.LastIndexed = lastIndexed.String
	stats.AvgResults = avgResults.Float64

	rows, err := s.db.Query("SELECT status, COUNT(*) FROM turns GROUP BY status")
	if err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, &StoreError{Op: "query", Err: err}
		}
		stats.TurnsByStatus[TurnStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}

	return stats, nil
}

// Reindex rebuilds the lexical index from the turns table alone. The index
// holds nothing that is not derivable from turns, so a corrupted or stale
// index is recoverable rather than fatal.
func (s *Store) Reindex() error {
	_, err := s.db.Exec("INSERT INTO turns_fts(turns_fts) VALUES('rebuild')")
	if err != nil {
		return &StoreError{Op: "write", Err: err}
	}
	return nil
}
