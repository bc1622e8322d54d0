package internal

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// EventKind identifies the lifecycle notification that produced an event.
type EventKind string

const (
	EventTurnComplete    EventKind = "turn-complete"
	EventSessionEnd      EventKind = "session-end"
	EventPromptSubmitted EventKind = "prompt-submitted"
)

// Source identifies the assistant platform an event came from.
type Source string

const (
	SourceClaude Source = "claude"
	SourceCodex  Source = "codex"
)

// Event is the platform-neutral capture event. Claude turn events carry a
// transcript path; Codex turn events carry the message pair inline.
type Event struct {
	ID             string // correlation id for log lines
	Kind           EventKind
	Source         Source
	SessionID      string
	Workspace      string
	TranscriptPath string
	Prompt         string // prompt-submitted only
	UserMessage    string // codex turn-complete only
	AgentOutput    string // codex turn-complete only
}

// claudeHookInput mirrors the JSON Claude Code writes to hook stdin.
type claudeHookInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd"`
	Prompt         string `json:"prompt"`
	StopHookActive bool   `json:"stop_hook_active"`
}

// codexHookInput mirrors the JSON Codex notify writes to hook stdin.
type codexHookInput struct {
	Type                 string          `json:"type"`
	ThreadID             string          `json:"thread-id"`
	Cwd                  string          `json:"cwd"`
	InputMessages        []codexMessage  `json:"input-messages"`
	LastAssistantMessage json.RawMessage `json:"last-assistant-message"`
}

type codexMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ParseClaudeEvent normalizes a Claude Code hook payload into an Event.
// Returns (nil, nil) for payloads that should be silently ignored, such
// as stop events fired while a stop hook is already active.
func ParseClaudeEvent(kind EventKind, r io.Reader) (*Event, error) {
	var in claudeHookInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, &ParseError{Source: "claude", Err: err}
	}

	if in.SessionID == "" {
		return nil, &ParseError{Source: "claude", Err: fmt.Errorf("missing session_id")}
	}

	switch kind {
	case EventTurnComplete:
		if in.StopHookActive {
			return nil, nil
		}
		if in.TranscriptPath == "" {
			return nil, &ParseError{Source: "claude", Err: fmt.Errorf("missing transcript_path")}
		}
	case EventPromptSubmitted:
		if in.Prompt == "" {
			return nil, nil
		}
	case EventSessionEnd:
		// session id is enough
	default:
		return nil, &ParseError{Source: "claude", Err: fmt.Errorf("unknown event kind %q", kind)}
	}

	return &Event{
		ID:             uuid.NewString(),
		Kind:           kind,
		Source:         SourceClaude,
		SessionID:      in.SessionID,
		Workspace:      in.Cwd,
		TranscriptPath: in.TranscriptPath,
		Prompt:         in.Prompt,
	}, nil
}

// ParseCodexEvent normalizes a Codex notify payload into a turn-complete
// Event. Notifications other than agent-turn-complete are ignored. Codex
// session ids are namespaced with a codex- prefix so they never collide
// with Claude session ids; a thread without an id gets a generated one.
func ParseCodexEvent(r io.Reader) (*Event, error) {
	var in codexHookInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, &ParseError{Source: "codex", Err: err}
	}

	if in.Type != "agent-turn-complete" {
		return nil, nil
	}

	threadID := in.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
		LogWarn("codex event missing thread-id, generated %s", threadID)
	}

	userMessage := ""
	for i := len(in.InputMessages) - 1; i >= 0; i-- {
		if in.InputMessages[i].Role == "user" {
			userMessage = textContent(in.InputMessages[i].Content)
			if userMessage != "" {
				break
			}
		}
	}

	agentOutput := assistantText(in.LastAssistantMessage)

	if userMessage == "" && agentOutput == "" {
		return nil, nil
	}

	return &Event{
		ID:          uuid.NewString(),
		Kind:        EventTurnComplete,
		Source:      SourceCodex,
		SessionID:   "codex-" + threadID,
		Workspace:   in.Cwd,
		UserMessage: userMessage,
		AgentOutput: agentOutput,
	}, nil
}

// textContent extracts plain text from a message content field that may be
// a bare string or a list of typed blocks.
func textContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}

	out := ""
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			if out != "" {
				out += " "
			}
			out += b.Text
		}
	}
	return out
}

// assistantText extracts the assistant reply, which Codex delivers either
// as a string or as a message object with a content field.
func assistantText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var msg struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ""
	}
	return textContent(msg.Content)
}
