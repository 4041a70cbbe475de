package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factloop/internal/model"
	"github.com/ppiankov/factloop/internal/pipeline"
	"github.com/ppiankov/factloop/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Fact-check multiple claims from a file in parallel",
	Long: `Batch checks many claims without prompting:
- Read claims from the input file (one per line, # starts a comment,
  or one JSON object per line: {"text": "...", "source": "..."})
- Run sessions in parallel with a configurable worker count
- Accept every suggested question until the policy finalizes a session
- Write a JSON and a Markdown report per claim

Example:
  factloop batch claims.txt
  factloop batch claims.txt --concurrency 8 --output-dir ./reports
  factloop batch claims.jsonl --timeout 2h --max-rounds 2`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent sessions (default from config)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./factloop-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", time.Hour, "total timeout for batch processing")
	batchCmd.Flags().IntVar(&maxRounds, "max-rounds", 0, "maximum refinement rounds (default from config)")
	batchCmd.Flags().StringVar(&policyName, "policy", "", "termination policy: threshold or strict (default from config)")
	batchCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the retrieval cache")
	batchCmd.Flags().BoolVar(&noTrail, "no-trail", false, "omit the round-by-round trail from Markdown reports")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	claims, err := worker.ReadClaimsFromFile(file)
	if err != nil {
		return fmt.Errorf("read claims: %w", err)
	}

	deps, err := setup(ctx, applyCheckFlags)
	if err != nil {
		return err
	}
	defer deps.Close()

	workers := concurrency
	if workers <= 0 {
		workers = deps.cfg.Concurrency.Workers
	}

	banner(os.Stderr, "Factloop batch")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Claims:       %d\n", len(claims))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", workers)
	fmt.Fprintf(os.Stderr, "  Max rounds:   %d (%s)\n", deps.cfg.Refine.MaxRounds, deps.cfg.Refine.Policy)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	renderer := pipeline.NewRenderer(!noTrail)
	processor := worker.NewBatchProcessor(deps.pipeline, workers)
	processor.OnProgress(func(done, total int, r *worker.ClaimResult) {
		if r.Error != nil {
			fmt.Fprintf(os.Stderr, "✗ [%d/%d] %s: %v\n", done, total, truncate(r.Claim.Text, 60), r.Error)
			return
		}
		fmt.Fprintf(os.Stderr, "✓ [%d/%d] %s: %s\n", done, total, truncate(r.Claim.Text, 60), verdictOf(r.Result))
	})

	fmt.Fprintf(os.Stderr, "⚙️  Checking claims with %d workers...\n\n", workers)
	results := processor.ProcessClaims(ctx, claims)

	successCount, failureCount := 0, 0
	for i, r := range results {
		if r == nil || r.Result == nil {
			failureCount++
			continue
		}
		if r.Error != nil {
			failureCount++
		} else {
			successCount++
		}

		// Failed sessions still get a report so the trail is kept
		base := filepath.Join(outputDir, fmt.Sprintf("%03d-%s", i+1, sanitizeFilename(r.Claim.Text)))
		if err := renderer.WriteJSON(r.Result, base+".json"); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", base, err)
			continue
		}
		if err := renderer.WriteMarkdown(r.Result, base+".md"); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", base, err)
		}
	}

	banner(os.Stderr, "Batch complete")
	fmt.Fprintf(os.Stderr, "  Total:     %d claims\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	if ctx.Err() != nil {
		return fmt.Errorf("batch interrupted: %w", ctx.Err())
	}
	return nil
}

func verdictOf(r *model.Result) string {
	if r == nil || r.Report == nil {
		return "no verdict"
	}
	return fmt.Sprintf("%s after %d rounds", r.Report.Tag.Label(), r.TotalRounds())
}

// sanitizeFilename turns claim text into a short, portable file name
func sanitizeFilename(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 60 {
			break
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "claim"
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
