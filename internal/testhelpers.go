package internal

// CreateTestExcerpt creates a turn excerpt with sample data
func CreateTestExcerpt(prompt string) *TurnExcerpt {
	return &TurnExcerpt{
		Prompt:     prompt,
		Response:   "Implemented the requested change.",
		Edits:      "[Write: internal/example.go]",
		TurnNumber: 1,
	}
}

// CreateTestTurnSummary creates a turn summary with sample data
func CreateTestTurnSummary(title string) *TurnSummary {
	return &TurnSummary{
		Title:       title,
		Description: "- Added handler\n- Wired route",
		Tags:        []string{"golang", "implement"},
	}
}

// CreateTestEvent creates a turn-complete capture event
func CreateTestEvent(sessionID, workspace, transcriptPath string) *Event {
	return &Event{
		ID:             "test-event-" + sessionID,
		Kind:           EventTurnComplete,
		Source:         SourceClaude,
		SessionID:      sessionID,
		Workspace:      workspace,
		TranscriptPath: transcriptPath,
	}
}
