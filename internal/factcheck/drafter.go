package factcheck

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ppiankov/factloop/internal/llm"
	"github.com/ppiankov/factloop/internal/model"
)

// verdictLine matches "Verdict: false" and the Chinese labels used by fact-check centers,
// with optional markdown emphasis around it
var verdictLine = regexp.MustCompile(`(?mi)^[\s*#>]*(?:verdict|查核結果|查證結果)\s*[:：]\s*(.+?)\s*$`)

// DraftRequest is the input for one draft generation
type DraftRequest struct {
	Claim       model.Claim
	CheckPoints model.CheckPoints
	Evidence    []model.EvidenceRecord
	Question    string       // Empty for the initial draft
	Previous    *model.Draft // Draft being revised, if any
	OnDelta     func(string) // Optional streaming observer
}

// Drafter produces tagged verdict drafts
type Drafter struct {
	oracle *oracle
	opts   Options
}

// NewDrafter creates a drafter backed by provider
func NewDrafter(provider llm.Provider, opts Options) *Drafter {
	opts = opts.withDefaults()
	return &Drafter{
		oracle: &oracle{provider: provider, logger: opts.Logger, metrics: opts.Metrics},
		opts:   opts,
	}
}

// Draft generates a draft. The returned draft always carries one of the four tags.
func (d *Drafter) Draft(ctx context.Context, req DraftRequest) (*model.Draft, error) {
	evidence, err := SerializeEvidence(req.Evidence, d.opts.MaxBodyChars)
	if err != nil {
		return nil, err
	}

	system := directive(d.opts.Prompts.Draft, d.opts.Language, d.opts.Now()) +
		lengthTarget(d.opts.DraftMinChars, d.opts.DraftMaxChars)

	text, err := d.oracle.call(ctx, StageDraft, llm.CompletionRequest{
		System:    system,
		Prompt:    draftPrompt(req, evidence),
		Model:     d.opts.DraftModel,
		MaxTokens: d.opts.MaxTokens,
		OnDelta:   req.OnDelta,
	})
	if err != nil {
		return nil, err
	}

	draft, err := ParseDraft(text)
	if err != nil {
		d.opts.Logger.Error("draft rejected", zap.Error(err))
		return nil, err
	}

	n := utf8.RuneCountInString(draft.Explanation)
	if (d.opts.DraftMinChars > 0 && n < d.opts.DraftMinChars) || (d.opts.DraftMaxChars > 0 && n > d.opts.DraftMaxChars) {
		d.opts.Logger.Debug("draft outside length target",
			zap.Int("chars", n),
			zap.Int("min", d.opts.DraftMinChars),
			zap.Int("max", d.opts.DraftMaxChars))
	}

	return draft, nil
}

// ParseDraft extracts the verdict tag and explanation from raw draft text
func ParseDraft(text string) (*model.Draft, error) {
	loc := verdictLine.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil, invalid(StageDraft, text, "missing verdict line")
	}

	label := text[loc[2]:loc[3]]
	tag, ok := model.ParseTag(label)
	if !ok {
		return nil, invalid(StageDraft, text, "tag %q outside the allowed set", label)
	}

	explanation := strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	if explanation == "" {
		return nil, invalid(StageDraft, text, "empty explanation")
	}

	return &model.Draft{
		Tag:         tag,
		Explanation: explanation,
		Text:        strings.TrimSpace(text),
	}, nil
}
