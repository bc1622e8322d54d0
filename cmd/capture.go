package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/RolandSherwin/rekal/internal"
	"github.com/spf13/cobra"
)

var (
	captureSource string
	captureEvent  string
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture a session event from hook input on stdin",
	Long: `Capture is the hook entry point. Claude Code and Codex hooks pipe
their JSON payload to stdin:

  rekal capture --source claude --event turn-complete
  rekal capture --source claude --event session-end
  rekal capture --source claude --event prompt-submitted
  rekal capture --source codex

Capture never fails the hook: malformed input, a missing store, or a
summarizer error are logged to ~/.rekal/rekal.log and swallowed, so the
interactive session is never disturbed.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Hooks must stay quiet on stderr.
		logPath := filepath.Join(internal.DefaultConfigDir(), "rekal.log")
		if err := internal.SetLogFile(logPath); err != nil {
			internal.LogWarn("failed to open log file: %v", err)
		}

		runCapture()
		return nil
	},
}

// runCapture does all the work and swallows every error at this boundary.
func runCapture() {
	cfg, err := loadConfig()
	if err != nil {
		internal.LogError("capture: %v", err)
		return
	}
	if !cfg.Enabled {
		return
	}

	var ev *internal.Event
	switch internal.Source(captureSource) {
	case internal.SourceCodex:
		ev, err = internal.ParseCodexEvent(os.Stdin)
	case internal.SourceClaude:
		ev, err = internal.ParseClaudeEvent(internal.EventKind(captureEvent), os.Stdin)
	default:
		err = fmt.Errorf("unknown source %q", captureSource)
	}
	if err != nil {
		internal.LogError("capture: dropping event: %v", err)
		return
	}
	if ev == nil {
		return
	}

	store, err := internal.OpenStore(cfg.DBPathResolved())
	if err != nil {
		internal.LogError("capture: %v", err)
		return
	}
	defer store.Close()

	pipeline := internal.NewPipeline(store, internal.NewCLISummarizer(cfg), cfg)
	pipeline.Capture(ev)
	pipeline.Close()
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().StringVar(&captureSource, "source", "claude", "Event source platform (claude|codex)")
	captureCmd.Flags().StringVar(&captureEvent, "event", "turn-complete", "Event kind (turn-complete|session-end|prompt-submitted)")
}
