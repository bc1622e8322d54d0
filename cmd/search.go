package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/RolandSherwin/rekal/internal"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	searchRecent    int
	searchSession   string
	searchWorkspace string
	searchSource    string
	searchLimit     int
)

var (
	searchHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("62"))

	searchHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Search your coding session history",
	Long: `Search stored turns by free text, ranked by lexical relevance,
recency, and workspace affinity.

Modes:
  rekal search <terms>          Ranked free-text search
  rekal search --recent [N]     N most recent turns, newest first
  rekal search --session <id>   All turns of a session (id prefix ok)

Free text composes with the filters: --workspace constrains results to
sessions under a path, --source to one platform. A filter without a
query lists recent turns matching the filter. Without any flag the
current directory is still used for the workspace-affinity boost.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := internal.OpenStore(cfg.DBPathResolved())
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		engine := internal.NewEngine(store, cfg)
		query := strings.Join(args, " ")

		filters := internal.Filters{
			Workspace: searchWorkspace,
			Source:    internal.Source(searchSource),
		}

		switch {
		case searchSession != "" && query == "":
			return runSessionDetail(engine, searchSession)

		case cmd.Flags().Changed("recent"):
			filters.Session = searchSession
			return runRecent(engine, filters, searchRecent)

		case query != "":
			filters.Session = searchSession
			return runSearch(engine, query, filters, cfg)

		default:
			// Filter-only invocations list recent turns under the filters.
			if searchWorkspace != "" || searchSource != "" {
				return runRecent(engine, filters, searchRecent)
			}
			return &internal.UsageError{
				Msg: "nothing to do: provide a query, or use --recent or --session"}
		}
	},
}

func runSearch(engine *internal.Engine, query string, f internal.Filters, cfg internal.Config) error {
	// The affinity boost uses the explicit --workspace when given,
	// otherwise the directory the query runs from.
	current := f.Workspace
	if current == "" {
		if cwd, err := os.Getwd(); err == nil {
			current = cwd
		}
	}

	results, err := engine.Search(query, current, f, searchLimit)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println(searchHintStyle.Render("No results found."))
		return nil
	}

	fmt.Println(searchHeaderStyle.Render(fmt.Sprintf("Found %d result(s)", len(results))))
	fmt.Println()
	fmt.Println(internal.FormatResults(results))
	return nil
}

func timeNow() time.Time {
	return time.Now().UTC()
}

func runRecent(engine *internal.Engine, f internal.Filters, n int) error {
	turns, err := engine.Recent(f, n)
	if err != nil {
		return err
	}
	fmt.Println(internal.FormatRecent(turns, timeNow()))
	return nil
}

func runSessionDetail(engine *internal.Engine, ref string) error {
	sess, turns, err := engine.SessionDetail(ref)
	if err != nil {
		var ambiguous *internal.AmbiguousSessionError
		if errors.As(err, &ambiguous) {
			fmt.Println(searchHintStyle.Render("Ambiguous session prefix. Candidates:"))
			for _, c := range ambiguous.Candidates {
				fmt.Printf("  %s\n", c)
			}
			return fmt.Errorf("session prefix %q matches %d sessions", ref, len(ambiguous.Candidates))
		}
		return err
	}
	fmt.Println(internal.FormatSessionDetail(sess, turns))
	return nil
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchRecent, "recent", 10, "Show N recent turns")
	searchCmd.Flags().Lookup("recent").NoOptDefVal = "10"
	searchCmd.Flags().StringVar(&searchSession, "session", "", "Session id or unambiguous prefix")
	searchCmd.Flags().StringVar(&searchWorkspace, "workspace", "", "Constrain to a workspace path")
	searchCmd.Flags().StringVar(&searchSource, "source", "", "Constrain to one platform (claude|codex)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 15, "Max results")
}
