// Package retrieve gathers evidence records for a claim from the configured
// search backends. Ranking is the backends' own; records keep their order.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/factloop/internal/factcheck"
	"github.com/ppiankov/factloop/internal/metrics"
	"github.com/ppiankov/factloop/internal/model"
)

// Retriever fetches evidence for a claim from one backend
type Retriever interface {
	Name() string
	Retrieve(ctx context.Context, claim model.Claim) ([]model.EvidenceRecord, error)
}

// Multi queries several retrievers in order and merges their records
type Multi struct {
	backends   []Retriever
	maxRecords int
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewMulti combines backends. maxRecords <= 0 keeps everything.
func NewMulti(backends []Retriever, maxRecords int, logger *zap.Logger, m *metrics.Metrics) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multi{backends: backends, maxRecords: maxRecords, logger: logger, metrics: m}
}

// Gather returns the merged evidence and how retrieval went. A failing backend
// is logged and skipped; only when every backend fails is the status failed and
// the error returned, wrapping factcheck.ErrUpstreamUnavailable.
func (m *Multi) Gather(ctx context.Context, claim model.Claim) ([]model.EvidenceRecord, model.EvidenceStatus, error) {
	if len(m.backends) == 0 {
		m.metrics.IncDegradation("retrieval")
		err := fmt.Errorf("%w: no retrieval backends configured", factcheck.ErrUpstreamUnavailable)
		m.logger.Warn("evidence retrieval skipped", zap.Error(err))
		return nil, model.EvidenceFailed, err
	}

	var (
		records []model.EvidenceRecord
		errs    []error
		seen    = make(map[string]bool)
	)

	for _, b := range m.backends {
		start := time.Now()
		got, err := b.Retrieve(ctx, claim)
		if err != nil {
			m.metrics.IncDegradation(b.Name())
			m.logger.Warn("evidence backend unavailable",
				zap.String("backend", b.Name()),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}

		added := 0
		for _, r := range got {
			r = Normalize(r)
			if r.URL != "" {
				if seen[r.URL] {
					continue
				}
				seen[r.URL] = true
			}
			records = append(records, r)
			added++
		}
		m.logger.Debug("evidence retrieved",
			zap.String("backend", b.Name()),
			zap.Int("records", added),
			zap.Duration("elapsed", time.Since(start)))
	}

	if len(errs) == len(m.backends) {
		err := fmt.Errorf("%w: %w", factcheck.ErrUpstreamUnavailable, errors.Join(errs...))
		return nil, model.EvidenceFailed, err
	}

	if m.maxRecords > 0 && len(records) > m.maxRecords {
		records = records[:m.maxRecords]
	}
	m.metrics.ObserveEvidence(len(records))

	if len(records) == 0 {
		return nil, model.EvidenceEmpty, nil
	}
	return records, model.EvidenceOK, nil
}
