package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Prompts sent to the provider CLI. The payload contracts are strict: the
// model must return a single JSON object and nothing else.
const turnSummaryPrompt = `Index one coding turn for future search retrieval.

Return ONLY this JSON (no markdown, no explanation):
{"title": "...", "description": "...", "tags": ["..."]}

title: Outcome headline, max 80 chars. Be specific.
  YES: "Fix null pointer in JWT refresh flow"
  YES: "Add FTS5 index to turns table"
  NO:  "Update code" / "Work on auth improvements"

description: 2-5 bullet points with file paths, function names, errors, or decisions that would help a future agent judge relevance.

tags: 5-10 search terms across four dimensions:
  domain (auth, payments, rendering, deployment)
  action (debug, implement, refactor, configure, test)
  stack  (react, golang, postgres, redis, docker)
  detail (jwt-refresh, rate-limiter, fts5-index)
  SKIP generic words: code, fix, update, change, work, file.`

const sessionRecapPrompt = `Summarize a completed coding session for future recall.

Return ONLY this JSON (no markdown, no explanation):
{"session_title": "...", "session_summary": "..."}

session_title: Overall goal or theme, max 80 chars.
session_summary: 2-4 sentences covering outcomes, key decisions, and unresolved issues. Focus on what was accomplished, not a turn-by-turn retelling.`

const quickTitlePrompt = `Write a short title (max 60 chars) describing the intent of this coding session.

Return ONLY this JSON: {"title": "..."}`

// TurnSummary is the structured output of a turn summarization.
type TurnSummary struct {
	Title       string
	Description string
	Tags        []string
}

// SessionSummary is the structured output of a session recap.
type SessionSummary struct {
	Title   string
	Summary string
}

// Summarizer is the narrow interface in front of the external summarization
// command, so the pipeline can be tested without invoking any process.
type Summarizer interface {
	SummarizeTurn(ctx context.Context, excerpt *TurnExcerpt) (*TurnSummary, error)
	SummarizeSession(ctx context.Context, turns []Turn) (*SessionSummary, error)
	GenerateTitle(ctx context.Context, openingPrompt string) (string, error)
}

// CLISummarizer invokes the configured provider CLI (claude or codex) as a
// subprocess with a hard timeout. A late result after timeout is discarded
// by the process kill that CommandContext performs.
type CLISummarizer struct {
	cfg Config
}

// NewCLISummarizer creates a summarizer for the configured provider.
func NewCLISummarizer(cfg Config) *CLISummarizer {
	return &CLISummarizer{cfg: cfg}
}

// SummarizeTurn generates title, description, and tags for one turn.
func (s *CLISummarizer) SummarizeTurn(ctx context.Context, excerpt *TurnExcerpt) (*TurnSummary, error) {
	edits := excerpt.Edits
	if strings.TrimSpace(edits) == "" {
		edits = "(none)"
	}
	userInput := fmt.Sprintf("USER ASKED:\n%s\n\nAGENT OUTPUT:\n%s\n\nFILES CHANGED:\n%s",
		excerpt.Prompt, excerpt.Response, edits)

	payload, err := s.call(ctx, turnSummaryPrompt, userInput)
	if err != nil {
		return nil, err
	}
	return parseTurnSummary(payload)
}

// SummarizeSession generates a session title and recap from stored turns.
func (s *CLISummarizer) SummarizeSession(ctx context.Context, turns []Turn) (*SessionSummary, error) {
	var b strings.Builder
	b.WriteString("SESSION TURNS:\n")
	for i, t := range turns {
		title := t.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "\nTurn %d: %s\n%s\n", i+1, title, t.Description)
	}

	payload, err := s.call(ctx, sessionRecapPrompt, b.String())
	if err != nil {
		return nil, err
	}

	var out struct {
		Title   string `json:"session_title"`
		Summary string `json:"session_summary"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, &SummarizeError{Provider: s.cfg.Provider, Err: err}
	}
	return &SessionSummary{Title: out.Title, Summary: out.Summary}, nil
}

// GenerateTitle produces an early session title from the opening prompt.
func (s *CLISummarizer) GenerateTitle(ctx context.Context, openingPrompt string) (string, error) {
	payload, err := s.call(ctx, quickTitlePrompt, clampString(openingPrompt, 500))
	if err != nil {
		return "", err
	}

	var out struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", &SummarizeError{Provider: s.cfg.Provider, Err: err}
	}
	return out.Title, nil
}

func (s *CLISummarizer) call(ctx context.Context, system, user string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout())
	defer cancel()

	if s.cfg.Provider == "codex" {
		return s.callCodex(ctx, system, user)
	}
	return s.callClaude(ctx, system, user)
}

func (s *CLISummarizer) callClaude(ctx context.Context, system, user string) (json.RawMessage, error) {
	cmd := exec.CommandContext(ctx, "claude", "-p",
		"--model", s.cfg.Model,
		"--tools", "",
		"--output-format", "json",
		"--no-session-persistence",
		"--system-prompt", system,
		user,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &SummarizeError{Provider: "claude",
			Err: fmt.Errorf("claude CLI failed: %v: %s", err, clampString(stderr.String(), 200))}
	}

	// --output-format json wraps the reply in {"type":"result","result":"..."}
	var wrapper struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &wrapper); err != nil {
		return nil, &SummarizeError{Provider: "claude", Err: err}
	}
	if wrapper.Result == "" {
		return nil, &SummarizeError{Provider: "claude", Err: fmt.Errorf("empty result payload")}
	}
	return json.RawMessage(wrapper.Result), nil
}

func (s *CLISummarizer) callCodex(ctx context.Context, system, user string) (json.RawMessage, error) {
	cmd := exec.CommandContext(ctx, "codex", "exec",
		"--model", s.cfg.Model,
		"--json",
		system+"\n\n"+user,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &SummarizeError{Provider: "codex",
			Err: fmt.Errorf("codex CLI failed: %v: %s", err, clampString(stderr.String(), 200))}
	}

	text := lastCodexMessage(stdout.String())
	if text == "" {
		text = strings.TrimSpace(stdout.String())
	}
	if text == "" {
		return nil, &SummarizeError{Provider: "codex", Err: fmt.Errorf("empty output")}
	}
	return json.RawMessage(text), nil
}

// lastCodexMessage scans codex --json JSONL events for the final assistant
// message text.
func lastCodexMessage(out string) string {
	last := ""
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var event struct {
			Type    string          `json:"type"`
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if event.Type == "message" && event.Role == "assistant" {
			if text := textContent(event.Content); text != "" {
				last = text
			}
		}
	}
	return last
}

// parseTurnSummary decodes the turn summary payload, tolerating tags
// delivered as either a list or a comma-separated string.
func parseTurnSummary(payload json.RawMessage) (*TurnSummary, error) {
	var out struct {
		Title       string          `json:"title"`
		Description string          `json:"description"`
		Tags        json.RawMessage `json:"tags"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, &SummarizeError{Provider: "summarizer", Err: err}
	}
	if out.Title == "" {
		return nil, &SummarizeError{Provider: "summarizer", Err: fmt.Errorf("payload missing title")}
	}

	summary := &TurnSummary{Title: out.Title, Description: out.Description}
	if len(out.Tags) > 0 {
		var list []string
		if err := json.Unmarshal(out.Tags, &list); err == nil {
			summary.Tags = list
		} else {
			var joined string
			if err := json.Unmarshal(out.Tags, &joined); err == nil && joined != "" {
				for _, tag := range strings.Split(joined, ",") {
					if tag = strings.TrimSpace(tag); tag != "" {
						summary.Tags = append(summary.Tags, tag)
					}
				}
			}
		}
	}
	return summary, nil
}
