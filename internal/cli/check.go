package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ppiankov/factloop/internal/model"
	"github.com/ppiankov/factloop/internal/pipeline"
	"github.com/ppiankov/factloop/internal/refine"
)

var (
	claimSource  string
	autoMode     bool
	outJSON      string
	outMD        string
	checkTimeout time.Duration
	maxRounds    int
	policyName   string
	noCache      bool
	noTrail      bool
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check [claim]",
	Short: "Fact-check a single claim",
	Long: `Check runs one fact-check session:
- Identify the claim's check points
- Retrieve evidence from the configured backends
- Draft a verdict and score it on five dimensions
- Let you accept the evaluator's follow-up question, ask your own, or stop
- Write a final report whose citations point at the evidence

Without --auto the session is interactive. With --auto every suggested
question is accepted until the policy finalizes the session.

Example:
  factloop check "Tap water in Taipei contains lead"
  factloop check --auto --json report.json "Tap water in Taipei contains lead"
  factloop check --policy strict --max-rounds 5`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&claimSource, "source", "", "where the claim was seen (passed to the check-point identifier)")
	checkCmd.Flags().BoolVar(&autoMode, "auto", false, "accept every suggested question without prompting")
	checkCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (optional)")
	checkCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 30*time.Minute, "overall session timeout")
	checkCmd.Flags().IntVar(&maxRounds, "max-rounds", 0, "maximum refinement rounds (default from config)")
	checkCmd.Flags().StringVar(&policyName, "policy", "", "termination policy: threshold or strict (default from config)")
	checkCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the retrieval cache")
	checkCmd.Flags().BoolVar(&noTrail, "no-trail", false, "omit the round-by-round trail from Markdown output")
}

// applyCheckFlags overrides configuration with flags that were set
func applyCheckFlags(cfg *model.Config) {
	if maxRounds > 0 {
		cfg.Refine.MaxRounds = maxRounds
	}
	if policyName != "" {
		cfg.Refine.Policy = policyName
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	claimText := strings.TrimSpace(strings.Join(args, " "))
	if claimText == "" {
		if autoMode {
			return fmt.Errorf("a claim is required with --auto")
		}
		var err error
		claimText, err = promptClaim()
		if err != nil {
			return fmt.Errorf("read claim: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	deps, err := setup(ctx, applyCheckFlags)
	if err != nil {
		return err
	}
	defer deps.Close()

	if !deps.cfg.Output.Color {
		color.NoColor = true
	}

	var decider refine.Decider = refine.AutoDecider{}
	if !autoMode {
		decider = &promptDecider{out: os.Stderr, policy: deps.pipeline.Controller().Policy()}
	}

	fmt.Fprintf(os.Stderr, "⚙️  Identifying check points and retrieving evidence...\n")
	session, err := deps.pipeline.Prepare(ctx, model.Claim{Text: claimText, Source: claimSource})
	if err != nil {
		return err
	}
	reportInputs(session)

	if deps.cfg.LLM.Stream {
		session.Observe(*streamObserver(os.Stderr))
	}

	fmt.Fprintf(os.Stderr, "⚙️  Drafting verdict...\n")
	result, runErr := deps.pipeline.Controller().Run(ctx, session, decider)
	deps.pipeline.Save(ctx, result)
	fmt.Fprintln(os.Stderr)

	renderer := pipeline.NewRenderer(!noTrail)
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "✗ Session %s failed\n", session.ID)
		renderer.Summary(os.Stderr, result)
		return fmt.Errorf("check failed: %w", runErr)
	}

	fmt.Print(renderMarkdown(renderer.Markdown(result)))

	if outJSON != "" {
		if err := renderer.WriteJSON(result, outJSON); err != nil {
			return fmt.Errorf("write JSON: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", outJSON)
	}
	if outMD != "" {
		if err := renderer.WriteMarkdown(result, outMD); err != nil {
			return fmt.Errorf("write Markdown: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", outMD)
	}
	return nil
}

func reportInputs(s *refine.Session) {
	switch s.CheckPointStatus {
	case model.CheckPointsOK:
		fmt.Fprintf(os.Stderr, "✓ %d check points\n", len(s.CheckPoints))
	case model.CheckPointsEmpty:
		fmt.Fprintf(os.Stderr, "✓ No check points found, verifying the claim as a whole\n")
	default:
		fmt.Fprintf(os.Stderr, "✗ Check points unavailable, verifying the claim as a whole\n")
	}
	switch s.EvidenceStatus {
	case model.EvidenceOK:
		fmt.Fprintf(os.Stderr, "✓ %d evidence records\n", len(s.Evidence))
	case model.EvidenceEmpty:
		fmt.Fprintf(os.Stderr, "✓ No evidence found\n")
	default:
		fmt.Fprintf(os.Stderr, "✗ Evidence unavailable\n")
	}
}
