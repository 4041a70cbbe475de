package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factloop/internal/pipeline"
	"github.com/ppiankov/factloop/internal/store"
)

var (
	historyLimit int
	historyJSON  bool
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "List archived sessions or show one",
	Long: `History reads the session archive configured under archive.driver
and archive.dsn.

Example:
  factloop history
  factloop history --limit 50
  factloop history 5f0c7c1e-... --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of sessions to list")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print the session as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Archive.Driver == "" {
		return fmt.Errorf("no archive configured (set archive.driver and archive.dsn)")
	}

	st, err := store.Open(ctx, cfg.Archive)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if len(args) == 1 {
		result, err := st.Get(ctx, args[0])
		if err != nil {
			return err
		}
		renderer := pipeline.NewRenderer(true)
		if historyJSON {
			data, err := renderer.JSON(result)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		}
		fmt.Print(renderMarkdown(renderer.Markdown(result)))
		return nil
	}

	entries, err := st.List(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "No archived sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FINISHED\tSESSION\tVERDICT\tROUNDS\tENDED BY\tCLAIM")
	for _, e := range entries {
		verdict := e.Verdict
		if e.Failed {
			verdict = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.FinishedAt.Local().Format("2006-01-02 15:04"), e.ID, verdict, e.Rounds, e.TerminatedBy, truncate(e.Claim, 50))
	}
	return w.Flush()
}
