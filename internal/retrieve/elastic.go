package retrieve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/factloop/internal/model"
)

// fieldName guards the embedding field interpolated into the scoring script
var fieldName = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// ElasticRetriever runs cosine vector search over the wire and fact-check
// report indices through the Elasticsearch REST API
type ElasticRetriever struct {
	cfg        model.ElasticConfig
	embedder   Embedder
	httpClient *http.Client
}

// NewElasticRetriever creates an Elasticsearch retriever
func NewElasticRetriever(cfg model.ElasticConfig, embedder Embedder, httpClient *http.Client) (*ElasticRetriever, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("elastic url is required")
	}
	if cfg.WireIndex == "" && cfg.ReportIndex == "" {
		return nil, fmt.Errorf("elastic needs a wire or report index")
	}
	if cfg.EmbeddingField == "" {
		cfg.EmbeddingField = "embeddings"
	}
	if !fieldName.MatchString(cfg.EmbeddingField) {
		return nil, fmt.Errorf("invalid embedding field %q", cfg.EmbeddingField)
	}
	if cfg.RecallSize <= 0 {
		cfg.RecallSize = 10
	}
	if embedder == nil {
		return nil, fmt.Errorf("elastic retrieval needs an embedder")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ElasticRetriever{cfg: cfg, embedder: embedder, httpClient: httpClient}, nil
}

// Name implements Retriever
func (e *ElasticRetriever) Name() string { return "elastic" }

// Retrieve embeds the claim once and searches the wire index, then the report index
func (e *ElasticRetriever) Retrieve(ctx context.Context, claim model.Claim) ([]model.EvidenceRecord, error) {
	vector, err := e.embedder.Embed(ctx, claim.Text)
	if err != nil {
		return nil, fmt.Errorf("embed claim: %w", err)
	}

	var records []model.EvidenceRecord

	if e.cfg.WireIndex != "" {
		hits, err := e.search(ctx, e.cfg.WireIndex, vector)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", e.cfg.WireIndex, err)
		}
		for _, h := range hits {
			records = append(records, e.wireRecord(h.Source))
		}
	}

	if e.cfg.ReportIndex != "" {
		hits, err := e.search(ctx, e.cfg.ReportIndex, vector)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", e.cfg.ReportIndex, err)
		}
		for _, h := range hits {
			records = append(records, reportRecord(h.Source))
		}
	}

	return records, nil
}

type searchHit struct {
	ID     string         `json:"_id"`
	Score  float64        `json:"_score"`
	Source map[string]any `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

func (e *ElasticRetriever) search(ctx context.Context, index string, vector []float32) ([]searchHit, error) {
	query := map[string]any{
		"size": e.cfg.RecallSize,
		"_source": map[string]any{
			"excludes": []string{e.cfg.EmbeddingField},
		},
		"query": map[string]any{
			"script_score": map[string]any{
				"query": map[string]any{"match_all": map[string]any{}},
				"script": map[string]any{
					"source": fmt.Sprintf("cosineSimilarity(params.query_vector, '%s') + 1.0", e.cfg.EmbeddingField),
					"params": map[string]any{"query_vector": vector},
				},
			},
		},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	endpoint := strings.TrimRight(e.cfg.URL, "/") + "/" + index + "/_search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.Username != "" {
		req.SetBasicAuth(e.cfg.Username, e.cfg.Password)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("elastic error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Hits.Hits, nil
}

// wireRecord maps a wire article document (h1, dt, article, whatHappen200, pid)
func (e *ElasticRetriever) wireRecord(src map[string]any) model.EvidenceRecord {
	r := model.EvidenceRecord{
		SourceType: model.SourceWire,
		Title:      stringField(src, "h1"),
		Date:       stringField(src, "dt"),
		Body:       stringField(src, "article"),
		Summary:    stringField(src, "whatHappen200"),
	}
	if pid := stringField(src, "pid"); pid != "" && e.cfg.WireURLPattern != "" {
		r.URL = fmt.Sprintf(e.cfg.WireURLPattern, pid)
	}
	return r
}

// reportRecord maps a fact-check report document (title, date, full_content, summary, label, link)
func reportRecord(src map[string]any) model.EvidenceRecord {
	return model.EvidenceRecord{
		SourceType: model.SourceFactCheckReport,
		Title:      stringField(src, "title"),
		Date:       stringField(src, "date"),
		Body:       stringField(src, "full_content"),
		Summary:    stringField(src, "summary"),
		Label:      stringField(src, "label"),
		URL:        stringField(src, "link"),
	}
}

func stringField(src map[string]any, key string) string {
	switch v := src[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
