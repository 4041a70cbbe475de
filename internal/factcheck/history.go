package factcheck

import (
	"fmt"
	"strings"

	"github.com/ppiankov/factloop/internal/model"
)

// RenderHistory renders the interaction history handed to the synthesizer:
// the initial draft, every closed round, then the latest draft.
func RenderHistory(initial *model.Draft, rounds []model.RoundRecord, latest *model.Draft) string {
	var b strings.Builder

	if initial != nil {
		fmt.Fprintf(&b, "Initial draft:\n%s\n", initial.Text)
	}

	for _, r := range rounds {
		e := r.Evaluation
		fmt.Fprintf(&b, "\nRound %d\n", r.Round)
		fmt.Fprintf(&b, "Evaluated draft:\n%s\n", r.Draft.Text)
		fmt.Fprintf(&b, "Scores: persuasiveness=%d logical_correctness=%d completeness=%d conciseness=%d agreement=%d average=%.1f weakest=%s\n",
			e.Scores.Persuasiveness, e.Scores.LogicalCorrectness, e.Scores.Completeness,
			e.Scores.Conciseness, e.Scores.Agreement, e.Average, e.Weakest)
		fmt.Fprintf(&b, "Question (%s): %s\n", r.Source, r.Question)
	}

	if latest != nil && (len(rounds) > 0 || initial == nil) {
		fmt.Fprintf(&b, "\nLatest draft:\n%s\n", latest.Text)
	}

	return strings.TrimSpace(b.String())
}

// AskedQuestions lists the questions already used, oldest first
func AskedQuestions(rounds []model.RoundRecord) []string {
	out := make([]string, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, r.Question)
	}
	return out
}
