package factcheck

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/factloop/internal/llm"
	"github.com/ppiankov/factloop/internal/metrics"
	"github.com/ppiankov/factloop/internal/model"
)

// Options configures the drafter, evaluator and synthesizer
type Options struct {
	DraftModel      string
	EvaluateModel   string
	SynthesizeModel string
	MaxTokens       int

	DraftMinChars       int
	DraftMaxChars       int
	Language            string
	MaxBodyChars        int
	DuplicateSimilarity float64

	Prompts Prompts
	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// OptionsFromConfig builds Options from the application config
func OptionsFromConfig(cfg *model.Config, logger *zap.Logger, m *metrics.Metrics) Options {
	return Options{
		DraftModel:          cfg.LLM.DraftModel,
		EvaluateModel:       cfg.LLM.EvaluateModel,
		SynthesizeModel:     cfg.LLM.SynthesizeModel,
		MaxTokens:           cfg.LLM.MaxTokens,
		DraftMinChars:       cfg.Refine.DraftMinChars,
		DraftMaxChars:       cfg.Refine.DraftMaxChars,
		Language:            cfg.Refine.Language,
		MaxBodyChars:        cfg.Retrieval.MaxBodyChars,
		DuplicateSimilarity: cfg.Refine.DuplicateSimilarity,
		Prompts:             DefaultPrompts(),
		Logger:              logger,
		Metrics:             m,
	}
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Prompts == (Prompts{}) {
		o.Prompts = DefaultPrompts()
	}
	if o.DuplicateSimilarity <= 0 {
		o.DuplicateSimilarity = 0.8
	}
	return o
}

// oracle wraps a provider with timing, metrics and error typing
type oracle struct {
	provider llm.Provider
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func (o *oracle) call(ctx context.Context, stage Stage, req llm.CompletionRequest) (string, error) {
	start := time.Now()
	resp, err := o.provider.Complete(ctx, req)
	elapsed := time.Since(start)
	o.metrics.ObserveOracleCall(string(stage), elapsed, err)

	if err != nil {
		o.logger.Error("oracle call failed",
			zap.String("stage", string(stage)),
			zap.String("provider", o.provider.Name()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return "", &OracleCallError{Stage: stage, Err: err}
	}

	o.logger.Debug("oracle call complete",
		zap.String("stage", string(stage)),
		zap.String("model", resp.Model),
		zap.Int("tokens", resp.TokensUsed),
		zap.Duration("elapsed", elapsed))

	return resp.Text, nil
}
