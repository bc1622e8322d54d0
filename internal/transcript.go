package internal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// skipTools are tool calls excluded from excerpts: they carry bulk data
// (file contents, search results) that is useless for summaries.
var skipTools = map[string]bool{
	"Read":      true,
	"Grep":      true,
	"Glob":      true,
	"WebFetch":  true,
	"WebSearch": true,
}

// TurnExcerpt is the bounded structured form of a single turn, fed to the
// summarizer and stored as the raw-text search fallback.
type TurnExcerpt struct {
	Prompt     string
	Response   string
	Edits      string
	TurnNumber int
}

// TranscriptDigest aggregates a whole transcript, used for session recaps.
type TranscriptDigest struct {
	Prompts   string
	Responses string
	Edits     string
	TurnCount int
}

// transcriptEntry is one line of a Claude Code JSONL transcript.
type transcriptEntry struct {
	Type    string `json:"type"`
	Message struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Name  string `json:"name"`
	Input struct {
		FilePath string `json:"file_path"`
	} `json:"input"`
}

// readTranscript loads and decodes all entries, skipping blank and
// malformed lines the way the transcripts actually contain them.
func readTranscript(path string) ([]transcriptEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Source: "transcript", Err: err}
	}
	defer f.Close()

	var entries []transcriptEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry transcriptEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Source: "transcript", Err: err}
	}

	return entries, nil
}

// userText returns the text of a user entry, or "" when the entry is not a
// real user message (tool_result entries decode as user type but carry no
// text blocks).
func userText(entry transcriptEntry) string {
	var s string
	if err := json.Unmarshal(entry.Message.Content, &s); err == nil {
		return s
	}

	var blocks []contentBlock
	if err := json.Unmarshal(entry.Message.Content, &blocks); err != nil {
		return ""
	}
	var texts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, " ")
}

// collectAssistant appends assistant text and noteworthy tool uses from an
// entry into the output and edit accumulators.
func collectAssistant(entry transcriptEntry, output, edits *[]string) {
	var s string
	if err := json.Unmarshal(entry.Message.Content, &s); err == nil {
		if s != "" {
			*output = append(*output, s)
		}
		return
	}

	var blocks []contentBlock
	if err := json.Unmarshal(entry.Message.Content, &blocks); err != nil {
		return
	}
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Text != "" {
				*output = append(*output, b.Text)
			}
		case "tool_use":
			if skipTools[b.Name] {
				continue
			}
			if (b.Name == "Write" || b.Name == "Edit") && b.Input.FilePath != "" {
				*edits = append(*edits, fmt.Sprintf("[%s: %s]", b.Name, b.Input.FilePath))
			}
		}
	}
}

// ExtractLatestTurn walks a transcript backwards to the last real user
// message and gathers all assistant output after it. The returned turn
// number is the 1-based count of user messages, which gives each turn a
// stable, monotonically increasing index within its session.
func ExtractLatestTurn(path string) (*TurnExcerpt, error) {
	entries, err := readTranscript(path)
	if err != nil {
		return nil, err
	}

	userTurns := 0
	lastUserIdx := -1
	lastPrompt := ""
	for i, entry := range entries {
		if entry.Type != "user" {
			continue
		}
		if text := userText(entry); text != "" {
			userTurns++
			lastUserIdx = i
			lastPrompt = text
		}
	}

	if lastUserIdx < 0 {
		return &TurnExcerpt{}, nil
	}

	var output, edits []string
	for _, entry := range entries[lastUserIdx+1:] {
		if entry.Type != "assistant" {
			continue
		}
		collectAssistant(entry, &output, &edits)
	}

	return &TurnExcerpt{
		Prompt:     lastPrompt,
		Response:   strings.Join(output, "\n\n"),
		Edits:      strings.Join(edits, "\n"),
		TurnNumber: userTurns,
	}, nil
}

// ParseTranscript aggregates every turn of a transcript.
func ParseTranscript(path string) (*TranscriptDigest, error) {
	entries, err := readTranscript(path)
	if err != nil {
		return nil, err
	}

	var prompts, output, edits []string
	turnCount := 0
	for _, entry := range entries {
		switch entry.Type {
		case "user":
			if text := userText(entry); text != "" {
				prompts = append(prompts, text)
				turnCount++
			}
		case "assistant":
			collectAssistant(entry, &output, &edits)
		}
	}

	return &TranscriptDigest{
		Prompts:   strings.Join(prompts, "\n\n"),
		Responses: strings.Join(output, "\n\n"),
		Edits:     strings.Join(edits, "\n"),
		TurnCount: turnCount,
	}, nil
}

// Clamp bounds the excerpt to the configured character limits so the
// summarizer invocation has a predictable cost.
func (e *TurnExcerpt) Clamp(cfg Config) {
	e.Prompt = clampString(e.Prompt, cfg.MaxPromptChars)
	e.Response = clampString(e.Response, cfg.MaxResponseChars)
	e.Edits = clampString(e.Edits, cfg.MaxEditChars)
}

// Empty reports whether the excerpt has no content worth storing.
func (e *TurnExcerpt) Empty() bool {
	return e.Prompt == "" && e.Response == ""
}

func clampString(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	// Back off to a rune boundary so the cut never produces invalid UTF-8.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
