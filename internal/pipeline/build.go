package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/factloop/internal/cache"
	"github.com/ppiankov/factloop/internal/checkpoint"
	"github.com/ppiankov/factloop/internal/factcheck"
	"github.com/ppiankov/factloop/internal/llm"
	"github.com/ppiankov/factloop/internal/metrics"
	"github.com/ppiankov/factloop/internal/model"
	"github.com/ppiankov/factloop/internal/refine"
	"github.com/ppiankov/factloop/internal/retrieve"
	"github.com/ppiankov/factloop/internal/util"
	"github.com/ppiankov/factloop/internal/worker"
)

// Build assembles a pipeline from configuration
func Build(ctx context.Context, cfg *model.Config, logger *zap.Logger, m *metrics.Metrics, archive Archive) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
	for host, rps := range cfg.RateLimiting.Hosts {
		limiter.SetHostRate(host, rps, 0)
	}
	httpClient := util.NewHTTPClient(cfg.HTTP, limiter)
	store := cache.New(cfg.Cache)
	cacheTTL := time.Duration(cfg.Cache.TTL) * time.Second

	identifier := checkpoint.NewClient(cfg.CheckPoints, httpClient,
		checkpoint.WithCache(store, cacheTTL),
		checkpoint.WithLogger(logger.Named("checkpoint")),
		checkpoint.WithMetrics(m))

	gatherer, err := retrieve.FromConfig(ctx, cfg.Retrieval, retrieve.Deps{
		HTTPClient: httpClient,
		Cache:      store,
		CacheTTL:   cacheTTL,
		Logger:     logger.Named("retrieve"),
		Metrics:    m,
	})
	if err != nil {
		return nil, fmt.Errorf("build retrieval: %w", err)
	}

	controller, err := NewController(cfg, util.WrapTransport(util.NewTransport(cfg.HTTP), cfg.HTTP.UserAgent, nil), logger, m)
	if err != nil {
		return nil, err
	}

	return NewPipeline(identifier, gatherer, controller, archive, logger.Named("pipeline")), nil
}

// NewController builds the oracle stages and the refinement controller
func NewController(cfg *model.Config, transport http.RoundTripper, logger *zap.Logger, m *metrics.Metrics) (*refine.Controller, error) {
	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM, transport))
	if err != nil {
		return nil, fmt.Errorf("build LLM provider: %w", err)
	}

	policy, err := refine.PolicyFromConfig(cfg.Refine)
	if err != nil {
		return nil, err
	}

	opts := factcheck.OptionsFromConfig(cfg, logger.Named("factcheck"), m)
	return refine.NewController(
		factcheck.NewDrafter(provider, opts),
		factcheck.NewEvaluator(provider, opts),
		factcheck.NewSynthesizer(provider, opts),
		policy,
		refine.WithLogger(logger.Named("refine")),
		refine.WithMetrics(m),
	), nil
}
