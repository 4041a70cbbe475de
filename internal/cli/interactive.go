package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/manifoldco/promptui"

	"github.com/ppiankov/factloop/internal/factcheck"
	"github.com/ppiankov/factloop/internal/model"
	"github.com/ppiankov/factloop/internal/refine"
)

var (
	goodScore = color.New(color.FgGreen, color.Bold)
	fairScore = color.New(color.FgYellow)
	poorScore = color.New(color.FgRed)
	dimText   = color.New(color.Faint)
	heading   = color.New(color.FgCyan, color.Bold)
)

// promptDecider asks the user for each decision on the terminal
type promptDecider struct {
	out    io.Writer
	policy refine.Policy
}

// Decide shows the latest draft and evaluation, then offers the three choices
func (p *promptDecider) Decide(ctx context.Context, s *refine.Session) (refine.Decision, error) {
	if err := ctx.Err(); err != nil {
		return refine.Decision{}, err
	}
	eval := s.Pending()
	if eval == nil {
		return refine.Decision{Action: refine.ActionStop}, nil
	}

	p.showRound(s, eval)

	accept := fmt.Sprintf("Accept the suggested question: %s", eval.Question)
	if eval.DuplicateQuestion {
		accept = "Accept the suggested question (repeats an earlier one, unavailable)"
	}
	items := []string{
		accept,
		"Ask my own question",
		"Stop and write the final report",
	}

	for {
		sel := promptui.Select{
			Label: fmt.Sprintf("Round %d of %d", s.CompletedRounds()+1, p.policy.MaxRounds),
			Items: items,
			Size:  len(items),
		}
		idx, _, err := sel.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return refine.Decision{Action: refine.ActionStop}, nil
			}
			return refine.Decision{}, fmt.Errorf("read choice: %w", err)
		}

		switch idx {
		case 0:
			if eval.DuplicateQuestion {
				_, _ = poorScore.Fprintln(p.out, "✗ The suggested question repeats an earlier one. Ask your own or stop.")
				continue
			}
			return refine.Decision{Action: refine.ActionAccept}, nil
		case 1:
			question, err := promptQuestion()
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				continue
			}
			if err != nil {
				return refine.Decision{}, fmt.Errorf("read question: %w", err)
			}
			return refine.Decision{Action: refine.ActionCustom, Question: question}, nil
		default:
			return refine.Decision{Action: refine.ActionStop}, nil
		}
	}
}

func (p *promptDecider) showRound(s *refine.Session, eval *model.Evaluation) {
	fmt.Fprintln(p.out)
	if draft := s.CurrentDraft(); draft != nil {
		_, _ = heading.Fprintf(p.out, "Draft verdict: %s\n", draft.Tag.Label())
		fmt.Fprintln(p.out, draft.Explanation)
		fmt.Fprintln(p.out)
	}

	_, _ = heading.Fprintln(p.out, "Evaluation")
	for _, d := range model.Dimensions {
		fmt.Fprintf(p.out, "  %-20s ", d)
		_, _ = scoreColor(float64(eval.Scores.Get(d))).Fprintf(p.out, "%d/5\n", eval.Scores.Get(d))
	}
	fmt.Fprintf(p.out, "  %-20s ", "average")
	_, _ = scoreColor(eval.Average).Fprintf(p.out, "%.1f\n", eval.Average)
	fmt.Fprintf(p.out, "  %-20s %s\n", "weakest", eval.Weakest)

	if p.policy.Strict && p.policy.MeetsThreshold(eval) {
		_, _ = goodScore.Fprintf(p.out, "\n✓ The draft scores %.1f. Stopping now is recommended.\n", eval.Average)
	}
	fmt.Fprintln(p.out)
}

func promptQuestion() (string, error) {
	prompt := promptui.Prompt{
		Label: "Your question",
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return refine.ErrEmptyQuestion
			}
			return nil
		},
	}
	answer, err := prompt.Run()
	return strings.TrimSpace(answer), err
}

func promptClaim() (string, error) {
	prompt := promptui.Prompt{
		Label: "Claim",
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("claim is empty")
			}
			return nil
		},
	}
	answer, err := prompt.Run()
	return strings.TrimSpace(answer), err
}

func scoreColor(v float64) *color.Color {
	switch {
	case v >= 4:
		return goodScore
	case v >= 3:
		return fairScore
	default:
		return poorScore
	}
}

// streamObserver echoes oracle deltas so long generations show progress
func streamObserver(w io.Writer) *refine.Observer {
	var last factcheck.Stage
	return &refine.Observer{
		OnState: func(_ *refine.Session, st refine.State) {
			switch st {
			case refine.StateEvaluating:
				fmt.Fprintln(w)
				_, _ = dimText.Fprintln(w, "⚙️  Evaluating draft...")
			case refine.StateFinalizing:
				_, _ = dimText.Fprintln(w, "⚙️  Writing final report...")
			}
		},
		OnDelta: func(stage factcheck.Stage, delta string) {
			if stage != last {
				last = stage
				fmt.Fprintln(w)
			}
			_, _ = dimText.Fprint(w, delta)
		},
	}
}

// renderMarkdown styles markdown for the terminal, falling back to the raw text
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
