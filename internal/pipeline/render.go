package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/factloop/internal/model"
)

// Renderer writes session results as JSON or Markdown
type Renderer struct {
	includeTrail bool
}

// NewRenderer creates a renderer. includeTrail adds the round-by-round audit trail to Markdown.
func NewRenderer(includeTrail bool) *Renderer {
	return &Renderer{includeTrail: includeTrail}
}

// JSON encodes the result
func (r *Renderer) JSON(result *model.Result) ([]byte, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return append(data, '\n'), nil
}

// Markdown renders the final report followed by the session context
func (r *Renderer) Markdown(result *model.Result) string {
	var b strings.Builder

	b.WriteString("# Fact check\n\n")
	fmt.Fprintf(&b, "**Claim:** %s\n\n", result.Claim.Text)

	if result.Report != nil {
		fmt.Fprintf(&b, "**Verdict:** %s (%s)\n\n", result.Report.Tag.Label(), result.Report.Tag)
		for _, p := range result.Report.Paragraphs {
			b.WriteString(p.Text)
			b.WriteString("\n\n")
		}
		if len(result.Report.References) > 0 {
			b.WriteString("## References\n\n")
			for _, ref := range result.Report.References {
				fmt.Fprintf(&b, "[%d]: %s\n", ref.Index, ref.URL)
			}
			b.WriteString("\n")
		}
	} else if result.Error != "" {
		fmt.Fprintf(&b, "**Failed:** %s\n\n", result.Error)
	}

	if r.includeTrail {
		r.writeTrail(&b, result)
	}

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "Session `%s`", result.SessionID)
	if result.TerminatedBy != "" {
		fmt.Fprintf(&b, " · finished by %s", result.TerminatedBy)
	}
	fmt.Fprintf(&b, " · %d rounds · check points %s · evidence %s\n",
		result.TotalRounds(), result.CheckPointStatus, result.EvidenceStatus)

	return b.String()
}

func (r *Renderer) writeTrail(b *strings.Builder, result *model.Result) {
	b.WriteString("## Check points\n\n")
	b.WriteString(result.CheckPoints.String())
	b.WriteString("\n\n")

	if len(result.Rounds) > 0 || result.LastEvaluation != nil {
		b.WriteString("## Rounds\n\n")
		b.WriteString("| Round | Verdict | Average | Weakest | Question | Source |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, round := range result.Rounds {
			fmt.Fprintf(b, "| %d | %s | %.1f | %s | %s | %s |\n",
				round.Round, round.Draft.Tag, round.Evaluation.Average, round.Evaluation.Weakest,
				escapeCell(round.Question), round.Source)
		}
		if e := result.LastEvaluation; e != nil && result.FinalDraft != nil {
			fmt.Fprintf(b, "| final | %s | %.1f | %s | | |\n", result.FinalDraft.Tag, e.Average, e.Weakest)
		}
		b.WriteString("\n")
	}

	if len(result.Evidence) > 0 {
		b.WriteString("## Evidence\n\n")
		for _, e := range result.Evidence {
			title := e.Title
			if title == "" {
				title = e.URL
			}
			fmt.Fprintf(b, "- [%s](%s) %s", title, e.URL, e.SourceType)
			if e.Date != "" {
				fmt.Fprintf(b, ", %s", e.Date)
			}
			if e.Label != "" {
				fmt.Fprintf(b, ", rated %s", e.Label)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
}

// Summary prints a short plain-text summary
func (r *Renderer) Summary(w io.Writer, result *model.Result) {
	verdict := "none"
	if result.Report != nil {
		verdict = fmt.Sprintf("%s (%s)", result.Report.Tag.Label(), result.Report.Tag)
	}
	fmt.Fprintf(w, "  Verdict:       %s\n", verdict)
	fmt.Fprintf(w, "  Rounds:        %d\n", result.TotalRounds())
	if result.LastEvaluation != nil {
		fmt.Fprintf(w, "  Last average:  %.1f\n", result.LastEvaluation.Average)
	}
	fmt.Fprintf(w, "  Check points:  %d (%s)\n", len(result.CheckPoints), result.CheckPointStatus)
	fmt.Fprintf(w, "  Evidence:      %d (%s)\n", len(result.Evidence), result.EvidenceStatus)
}

// WriteJSON renders the result to path
func (r *Renderer) WriteJSON(result *model.Result, path string) error {
	data, err := r.JSON(result)
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// WriteMarkdown renders the result to path
func (r *Renderer) WriteMarkdown(result *model.Result, path string) error {
	return writeFile(path, []byte(r.Markdown(result)))
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}
