// Package checkpoint calls the external check-point identifier, which splits a
// claim into the sub-claims worth verifying.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/factloop/internal/cache"
	"github.com/ppiankov/factloop/internal/factcheck"
	"github.com/ppiankov/factloop/internal/metrics"
	"github.com/ppiankov/factloop/internal/model"
)

// Result is the identifier's answer for one claim
type Result struct {
	Status      model.CheckPointStatus `json:"status"`
	CheckPoints model.CheckPoints      `json:"check_points"`
	Message     string                 `json:"message,omitempty"`
}

// Identifier finds check points for a claim
type Identifier interface {
	Identify(ctx context.Context, claim model.Claim) (*Result, error)
}

type request struct {
	Text      string  `json:"text"`
	MediaName *string `json:"media_name"`
}

type response struct {
	Result     string `json:"Result"`
	ResultData struct {
		CheckPoints []string `json:"check_points"`
	} `json:"ResultData"`
	Message string `json:"Message"`
}

// Client is the HTTP implementation of Identifier
type Client struct {
	endpoint    string
	sourceLabel string
	httpClient  *http.Client
	cache       cache.Cache
	cacheTTL    time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// Option configures a Client
type Option func(*Client)

// WithCache caches ok and empty answers for ttl
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(cl *Client) {
		cl.cache = c
		cl.cacheTTL = ttl
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// NewClient creates a client for cfg.Endpoint. The http client's own timeout
// is overridden by cfg.Timeout when set.
func NewClient(cfg model.CheckPointConfig, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout > 0 {
		c := *httpClient
		c.Timeout = time.Duration(cfg.Timeout) * time.Second
		httpClient = &c
	}

	c := &Client{
		endpoint:    cfg.Endpoint,
		sourceLabel: cfg.SourceLabel,
		httpClient:  httpClient,
		cache:       cache.Nop{},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Identify asks the identifier for check points. When the service cannot be
// used the result has status failed and the error wraps
// factcheck.ErrUpstreamUnavailable; callers continue without check points.
func (c *Client) Identify(ctx context.Context, claim model.Claim) (*Result, error) {
	source := claim.Source
	if source == "" {
		source = c.sourceLabel
	}

	key := cache.Key("checkpoints", claim.Text, source)
	if cached, ok := cache.GetJSON[Result](c.cache, key); ok {
		c.logger.Debug("check points cache hit", zap.Int("count", len(cached.CheckPoints)))
		return &cached, nil
	}

	start := time.Now()
	res, err := c.identify(ctx, claim.Text, source)
	if err != nil {
		c.metrics.IncDegradation("checkpoints")
		c.logger.Warn("check-point identifier unavailable, continuing without check points",
			zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return &Result{Status: model.CheckPointsFailed, Message: err.Error()}, err
	}

	c.logger.Info("check points identified",
		zap.String("status", string(res.Status)),
		zap.Int("count", len(res.CheckPoints)),
		zap.Duration("elapsed", time.Since(start)))

	if err := cache.SetJSON(c.cache, key, res, c.cacheTTL); err != nil {
		c.logger.Debug("check points not cached", zap.Error(err))
	}
	return res, nil
}

func (c *Client) identify(ctx context.Context, text, source string) (*Result, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("%w: check-point endpoint not configured", factcheck.ErrUpstreamUnavailable)
	}

	body := request{Text: text}
	if source != "" {
		body.MediaName = &source
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", factcheck.ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", factcheck.ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", factcheck.ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", factcheck.ErrUpstreamUnavailable, err)
	}

	return interpret(out), nil
}

// interpret maps the identifier's envelope to a Result. Blank entries are dropped.
func interpret(out response) *Result {
	var points model.CheckPoints
	for _, cp := range out.ResultData.CheckPoints {
		if cp = strings.TrimSpace(cp); cp != "" {
			points = append(points, cp)
		}
	}

	if strings.EqualFold(out.Result, "Y") && len(points) > 0 {
		return &Result{Status: model.CheckPointsOK, CheckPoints: points, Message: out.Message}
	}
	return &Result{Status: model.CheckPointsEmpty, Message: out.Message}
}
