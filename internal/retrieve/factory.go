package retrieve

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/factloop/internal/cache"
	"github.com/ppiankov/factloop/internal/metrics"
	"github.com/ppiankov/factloop/internal/model"
)

// Deps are the shared collaborators handed to every backend
type Deps struct {
	HTTPClient *http.Client
	Cache      cache.Cache
	CacheTTL   time.Duration
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// FromConfig builds the backends named in cfg.Backends, in order
func FromConfig(ctx context.Context, cfg model.RetrievalConfig, deps Deps) (*Multi, error) {
	if deps.Cache == nil {
		deps.Cache = cache.Nop{}
	}

	var (
		embedder Embedder
		backends []Retriever
	)
	getEmbedder := func() (Embedder, error) {
		if embedder != nil {
			return embedder, nil
		}
		e, err := NewEmbedder(ctx, cfg.Embedding, deps.HTTPClient)
		if err != nil {
			return nil, err
		}
		embedder = e
		return e, nil
	}

	for _, name := range cfg.Backends {
		var (
			r   Retriever
			err error
		)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "elastic", "elasticsearch":
			var e Embedder
			if e, err = getEmbedder(); err == nil {
				r, err = NewElasticRetriever(cfg.Elastic, e, deps.HTTPClient)
			}
		case "tfc":
			r, err = NewTFCRetriever(cfg.TFC, deps.HTTPClient)
		case "local":
			var (
				e       Embedder
				records []model.EvidenceRecord
			)
			if e, err = getEmbedder(); err == nil {
				if records, err = LoadCorpus(cfg.Local.CorpusPath); err == nil {
					r, err = NewLocalRetriever(ctx, records, e, cfg.Local.PersistPath, cfg.MaxRecords)
				}
			}
		default:
			err = fmt.Errorf("unknown backend (supported: elastic, tfc, local)")
		}
		if err != nil {
			return nil, fmt.Errorf("retrieval backend %s: %w", name, err)
		}
		backends = append(backends, NewCached(r, deps.Cache, deps.CacheTTL))
	}

	return NewMulti(backends, cfg.MaxRecords, deps.Logger, deps.Metrics), nil
}
