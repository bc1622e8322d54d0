package internal

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExtractLatestTurn(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"user","message":{"content":"first question"}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"first answer"}]}}`,
		`{"type":"user","message":{"content":"second question"}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"working on it"},{"type":"tool_use","name":"Write","input":{"file_path":"api/auth.go"}},{"type":"tool_use","name":"Read","input":{"file_path":"api/router.go"}}]}}`,
		`{"type":"user","message":{"content":[{"type":"tool_result","content":"file written"}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"done"}]}}`,
	)

	excerpt, err := ExtractLatestTurn(path)
	if err != nil {
		t.Fatalf("ExtractLatestTurn() error = %v", err)
	}
	if excerpt.Prompt != "second question" {
		t.Errorf("Prompt = %q, want the last real user message", excerpt.Prompt)
	}
	if excerpt.TurnNumber != 2 {
		t.Errorf("TurnNumber = %d, want 2 (tool_result entries are not turns)", excerpt.TurnNumber)
	}
	if !strings.Contains(excerpt.Response, "working on it") || !strings.Contains(excerpt.Response, "done") {
		t.Errorf("Response = %q, want all assistant text after the last prompt", excerpt.Response)
	}
	if excerpt.Edits != "[Write: api/auth.go]" {
		t.Errorf("Edits = %q, want the Write recorded and the Read skipped", excerpt.Edits)
	}
}

func TestExtractLatestTurn_SkipsMalformedLines(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"user","message":{"content":"the question"}}`,
		`this line is not json`,
		``,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"the answer"}]}}`,
	)

	excerpt, err := ExtractLatestTurn(path)
	if err != nil {
		t.Fatalf("ExtractLatestTurn() error = %v", err)
	}
	if excerpt.Prompt != "the question" || excerpt.Response != "the answer" {
		t.Errorf("excerpt = %q / %q", excerpt.Prompt, excerpt.Response)
	}
}

func TestExtractLatestTurn_NoUserMessages(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"orphan output"}]}}`,
	)

	excerpt, err := ExtractLatestTurn(path)
	if err != nil {
		t.Fatalf("ExtractLatestTurn() error = %v", err)
	}
	if !excerpt.Empty() {
		t.Errorf("excerpt = %+v, want empty when there is no user message", excerpt)
	}
}

func TestExtractLatestTurn_MissingFile(t *testing.T) {
	_, err := ExtractLatestTurn("/nonexistent/transcript.jsonl")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Errorf("ExtractLatestTurn() error = %v, want ParseError", err)
	}
}

func TestParseTranscript(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"user","message":{"content":"question one"}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"answer one"},{"type":"tool_use","name":"Edit","input":{"file_path":"main.go"}}]}}`,
		`{"type":"user","message":{"content":"question two"}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"answer two"}]}}`,
	)

	digest, err := ParseTranscript(path)
	if err != nil {
		t.Fatalf("ParseTranscript() error = %v", err)
	}
	if digest.TurnCount != 2 {
		t.Errorf("TurnCount = %d, want 2", digest.TurnCount)
	}
	if !strings.Contains(digest.Prompts, "question one") || !strings.Contains(digest.Prompts, "question two") {
		t.Errorf("Prompts = %q", digest.Prompts)
	}
	if digest.Edits != "[Edit: main.go]" {
		t.Errorf("Edits = %q", digest.Edits)
	}
}

func TestTurnExcerptClamp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPromptChars = 10
	cfg.MaxResponseChars = 5
	cfg.MaxEditChars = 0 // unlimited

	excerpt := &TurnExcerpt{
		Prompt:   "a prompt that is far too long",
		Response: "lengthy response",
		Edits:    strings.Repeat("[Write: x]\n", 50),
	}
	excerpt.Clamp(cfg)

	if len(excerpt.Prompt) != 10 {
		t.Errorf("Prompt length = %d, want 10", len(excerpt.Prompt))
	}
	if len(excerpt.Response) != 5 {
		t.Errorf("Response length = %d, want 5", len(excerpt.Response))
	}
	if len(excerpt.Edits) != len(strings.Repeat("[Write: x]\n", 50)) {
		t.Errorf("Edits clamped with a zero limit")
	}
}

func TestClampString_RuneBoundary(t *testing.T) {
	// A cut inside a multi-byte rune must back off to the boundary
	// instead of emitting invalid UTF-8.
	s := "héllo wörld" // é and ö are two bytes each
	for max := 1; max <= len(s); max++ {
		got := clampString(s, max)
		if !utf8.ValidString(got) {
			t.Errorf("clampString(%q, %d) = %q, invalid UTF-8", s, max, got)
		}
		if len(got) > max {
			t.Errorf("clampString(%q, %d) returned %d bytes", s, max, len(got))
		}
	}

	if got := clampString("héllo", 2); got != "h" {
		t.Errorf("clampString(héllo, 2) = %q, want %q", got, "h")
	}
	if got := clampString("héllo", 3); got != "hé" {
		t.Errorf("clampString(héllo, 3) = %q, want %q", got, "hé")
	}
}

func TestTurnExcerptEmpty(t *testing.T) {
	tests := []struct {
		name    string
		excerpt TurnExcerpt
		want    bool
	}{
		{name: "both empty", excerpt: TurnExcerpt{}, want: true},
		{name: "prompt only", excerpt: TurnExcerpt{Prompt: "p"}, want: false},
		{name: "response only", excerpt: TurnExcerpt{Response: "r"}, want: false},
		{name: "edits only", excerpt: TurnExcerpt{Edits: "[Write: x]"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.excerpt.Empty(); got != tt.want {
				t.Errorf("Empty() = %v, want %v", got, tt.want)
			}
		})
	}
}
