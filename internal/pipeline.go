package internal

import (
	"context"
)

// Pipeline turns capture events into summarized, indexed turns. Capture is
// fire-and-forget: events go onto a channel and a single worker does the
// extract/summarize/index work, so the interactive caller never waits on
// the summarizer. The single worker also serializes writes, which keeps
// sequence indexes monotone within every session.
type Pipeline struct {
	store      *Store
	summarizer Summarizer
	cfg        Config
	events     chan *Event
	done       chan struct{}
}

// NewPipeline creates the pipeline and starts its worker.
func NewPipeline(store *Store, summarizer Summarizer, cfg Config) *Pipeline {
	p := &Pipeline{
		store:      store,
		summarizer: summarizer,
		cfg:        cfg,
		events:     make(chan *Event, 64),
		done:       make(chan struct{}),
	}
	go p.run()
	return p
}

// Capture enqueues an event without blocking. A nil event (an ignored hook
// payload) is a no-op; a full queue drops the event with a log line rather
// than stalling the caller. No error ever reaches the interactive session.
func (p *Pipeline) Capture(ev *Event) {
	if ev == nil {
		return
	}
	select {
	case p.events <- ev:
	default:
		LogWarn("event queue full, dropping %s event %s for session %s",
			ev.Kind, ev.ID, shortID(ev.SessionID))
	}
}

// Close stops accepting events and waits for the worker to drain.
func (p *Pipeline) Close() {
	close(p.events)
	<-p.done
}

func (p *Pipeline) run() {
	defer close(p.done)
	for ev := range p.events {
		p.handle(ev)
	}
}

// handle processes one event. Every failure is logged and swallowed; the
// ingestion path never propagates errors upward.
func (p *Pipeline) handle(ev *Event) {
	// A previous summarization failure gets one retry, piggybacked on the
	// next event for the same session.
	p.retryFailed(ev.SessionID)

	switch ev.Kind {
	case EventTurnComplete:
		p.handleTurnComplete(ev)
	case EventPromptSubmitted:
		p.handlePromptSubmitted(ev)
	case EventSessionEnd:
		p.handleSessionEnd(ev)
	default:
		LogWarn("dropping event %s with unknown kind %q", ev.ID, ev.Kind)
	}
}

func (p *Pipeline) handleTurnComplete(ev *Event) {
	if err := p.store.EnsureSession(ev.SessionID, ev.Source, ev.Workspace, p.cfg.Model); err != nil {
		LogError("event %s: %v", ev.ID, err)
		return
	}

	excerpt, extractErr := p.extract(ev)
	if excerpt.Empty() && extractErr == nil {
		LogInfo("event %s: no user prompt in latest turn, skipping", ev.ID)
		return
	}
	excerpt.Clamp(p.cfg)

	// The skeleton goes in before any summarization so the turn is
	// searchable by raw text even if the summarizer never completes.
	id, number, alreadyDone, err := p.store.UpsertTurnSkeleton(
		ev.SessionID, excerpt.TurnNumber, excerpt.Prompt, excerpt.Response, p.cfg.Model)
	if err != nil {
		LogError("event %s: %v", ev.ID, err)
		return
	}
	if alreadyDone {
		// A replayed event for a summarized turn. The row is immutable,
		// so don't pay for a second summarizer invocation.
		LogInfo("event %s: turn %d already summarized, skipping", ev.ID, number)
		return
	}

	if extractErr != nil {
		LogWarn("event %s: transcript extraction failed: %v", ev.ID, extractErr)
		if err := p.store.MarkTurnSkipped(id, excerpt.Prompt); err != nil {
			LogError("event %s: %v", ev.ID, err)
		}
		return
	}

	sum, err := p.summarizer.SummarizeTurn(context.Background(), excerpt)
	if err != nil {
		LogWarn("event %s: summarization failed for turn %d: %v", ev.ID, number, err)
		if err := p.store.MarkTurnFailed(id); err != nil {
			LogError("event %s: %v", ev.ID, err)
		}
		return
	}

	if err := p.store.CompleteTurn(id, sum); err != nil {
		LogError("event %s: %v", ev.ID, err)
		return
	}
	LogInfo("stored turn %d for session %s: %s", number, shortID(ev.SessionID), sum.Title)
}

// extract builds the turn excerpt. Claude events reference a transcript
// file; Codex events carry the message pair inline.
func (p *Pipeline) extract(ev *Event) (*TurnExcerpt, error) {
	if ev.Source == SourceCodex {
		return &TurnExcerpt{
			Prompt:   ev.UserMessage,
			Response: ev.AgentOutput,
		}, nil
	}

	excerpt, err := ExtractLatestTurn(ev.TranscriptPath)
	if err != nil {
		return &TurnExcerpt{Prompt: ev.Prompt}, err
	}
	return excerpt, nil
}

func (p *Pipeline) handlePromptSubmitted(ev *Event) {
	if err := p.store.EnsureSession(ev.SessionID, ev.Source, ev.Workspace, p.cfg.Model); err != nil {
		LogError("event %s: %v", ev.ID, err)
		return
	}

	title, err := p.store.SessionTitle(ev.SessionID)
	if err != nil || title != "" {
		return
	}

	generated, err := p.summarizer.GenerateTitle(context.Background(), ev.Prompt)
	if err != nil {
		LogWarn("event %s: title generation failed: %v", ev.ID, err)
		return
	}
	if generated == "" {
		return
	}
	if err := p.store.SetSessionTitleIfEmpty(ev.SessionID, generated); err != nil {
		LogError("event %s: %v", ev.ID, err)
		return
	}
	LogInfo("early title for session %s: %s", shortID(ev.SessionID), generated)
}

func (p *Pipeline) handleSessionEnd(ev *Event) {
	turns, err := p.store.SessionTurns(ev.SessionID)
	if err != nil {
		LogError("event %s: %v", ev.ID, err)
		return
	}
	if len(turns) == 0 {
		LogInfo("event %s: no turns for session %s, skipping recap", ev.ID, shortID(ev.SessionID))
		return
	}

	title, summary := "", ""
	recap, err := p.summarizer.SummarizeSession(context.Background(), turns)
	if err != nil {
		LogWarn("event %s: session recap failed: %v", ev.ID, err)
	} else {
		title, summary = recap.Title, recap.Summary
	}

	// The end time is recorded even when the recap fails.
	if err := p.store.EndSession(ev.SessionID, title, summary); err != nil {
		LogError("event %s: %v", ev.ID, err)
		return
	}
	LogInfo("closed session %s: %s", shortID(ev.SessionID), title)
}

// retryFailed re-summarizes at most one previously failed turn of the
// session. The retry counter guarantees a turn is never retried twice.
func (p *Pipeline) retryFailed(sessionID string) {
	turn, err := p.store.RetryCandidate(sessionID)
	if err != nil {
		LogError("retry lookup for session %s: %v", shortID(sessionID), err)
		return
	}
	if turn == nil {
		return
	}

	if err := p.store.IncrementTurnRetries(turn.ID); err != nil {
		LogError("retry bookkeeping for turn %d: %v", turn.ID, err)
		return
	}

	excerpt := &TurnExcerpt{
		Prompt:     turn.UserMessage,
		Response:   turn.AgentOutput,
		TurnNumber: turn.Number,
	}
	excerpt.Clamp(p.cfg)

	sum, err := p.summarizer.SummarizeTurn(context.Background(), excerpt)
	if err != nil {
		LogWarn("retry failed for turn %d of session %s: %v",
			turn.Number, shortID(sessionID), err)
		return
	}
	if err := p.store.CompleteTurn(turn.ID, sum); err != nil {
		LogError("retry store for turn %d: %v", turn.ID, err)
		return
	}
	LogInfo("retry summarized turn %d for session %s: %s",
		turn.Number, shortID(sessionID), sum.Title)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
