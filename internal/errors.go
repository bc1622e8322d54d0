package internal

import (
	"fmt"
	"strings"
)

// StoreError represents errors accessing the session store
type StoreError struct {
	Op  string // "open", "write", "query"
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ParseError represents errors parsing hook input or transcripts
type ParseError struct {
	Source string // "claude", "codex", "transcript"
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [%s]: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SummarizeError represents a failed summarizer invocation
type SummarizeError struct {
	Provider string
	Err      error
}

func (e *SummarizeError) Error() string {
	return fmt.Sprintf("summarize error [%s]: %v", e.Provider, e.Err)
}

func (e *SummarizeError) Unwrap() error {
	return e.Err
}

// SessionNotFoundError indicates no session matched the given id or prefix
type SessionNotFoundError struct {
	Ref string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("no session matches %q", e.Ref)
}

// AmbiguousSessionError indicates a prefix matched more than one session
type AmbiguousSessionError struct {
	Ref        string
	Candidates []string
}

func (e *AmbiguousSessionError) Error() string {
	return fmt.Sprintf("session prefix %q is ambiguous, matches: %s",
		e.Ref, strings.Join(e.Candidates, ", "))
}

// UsageError indicates an invalid query invocation, surfaced to the user
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}
