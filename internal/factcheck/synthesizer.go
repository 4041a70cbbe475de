package factcheck

import (
	"context"

	"go.uber.org/zap"

	"github.com/ppiankov/factloop/internal/llm"
	"github.com/ppiankov/factloop/internal/model"
)

// SynthesizeRequest is the input for the final report
type SynthesizeRequest struct {
	Claim       model.Claim
	CheckPoints model.CheckPoints
	Evidence    []model.EvidenceRecord
	History     string // Rendered interaction history, see RenderHistory
	OnDelta     func(string)
}

// Synthesizer compiles the final citation-annotated report
type Synthesizer struct {
	oracle *oracle
	opts   Options
}

// NewSynthesizer creates a synthesizer backed by provider
func NewSynthesizer(provider llm.Provider, opts Options) *Synthesizer {
	opts = opts.withDefaults()
	return &Synthesizer{
		oracle: &oracle{provider: provider, logger: opts.Logger, metrics: opts.Metrics},
		opts:   opts,
	}
}

// Synthesize produces the final report. A report citing outside req.Evidence is never returned.
func (s *Synthesizer) Synthesize(ctx context.Context, req SynthesizeRequest) (*model.FinalReport, error) {
	evidence, err := SerializeEvidence(req.Evidence, s.opts.MaxBodyChars)
	if err != nil {
		return nil, err
	}

	text, err := s.oracle.call(ctx, StageSynthesize, llm.CompletionRequest{
		System:    directive(s.opts.Prompts.Synthesize, s.opts.Language, s.opts.Now()),
		Prompt:    synthesizePrompt(req, evidence),
		Model:     s.opts.SynthesizeModel,
		MaxTokens: s.opts.MaxTokens,
		OnDelta:   req.OnDelta,
	})
	if err != nil {
		return nil, err
	}

	report, err := ParseReport(text, model.EvidenceURLs(req.Evidence))
	if err != nil {
		s.opts.Logger.Error("final report rejected", zap.Error(err))
		return nil, err
	}
	for _, w := range report.Warnings {
		s.opts.Logger.Warn("final report", zap.String("warning", w))
	}

	return report, nil
}
