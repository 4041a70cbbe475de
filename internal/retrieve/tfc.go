package retrieve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/ppiankov/factloop/internal/model"
)

// documentTag is the dataset marker the search API prefixes to each document
var documentTag = regexp.MustCompile(`^\s*[A-Za-z0-9_]+>>`)

// TFCRetriever queries the fact-check center's text search API
type TFCRetriever struct {
	cfg        model.TFCConfig
	httpClient *http.Client
}

type tfcRequest struct {
	Project  string `json:"project"`
	Category string `json:"category"`
	Key      string `json:"copytoaster_key"`
	Input    string `json:"input_str"`
	Count    int    `json:"count"`
}

type tfcResponse struct {
	ResultList []struct {
		Document string `json:"document"`
		Title    string `json:"title"` // title|date|url
	} `json:"result_list"`
}

// NewTFCRetriever creates a TFC search retriever
func NewTFCRetriever(cfg model.TFCConfig, httpClient *http.Client) (*TFCRetriever, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("tfc endpoint is required")
	}
	if cfg.Count <= 0 {
		cfg.Count = 5
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &TFCRetriever{cfg: cfg, httpClient: httpClient}, nil
}

// Name implements Retriever
func (t *TFCRetriever) Name() string { return "tfc" }

// Retrieve implements Retriever
func (t *TFCRetriever) Retrieve(ctx context.Context, claim model.Claim) ([]model.EvidenceRecord, error) {
	body, err := json.Marshal(tfcRequest{
		Project:  t.cfg.Project,
		Category: t.cfg.Category,
		Key:      t.cfg.Key,
		Input:    claim.Text,
		Count:    t.cfg.Count,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tfc error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out tfcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	records := make([]model.EvidenceRecord, 0, len(out.ResultList))
	for _, item := range out.ResultList {
		parts := strings.SplitN(item.Title, "|", 3)
		r := model.EvidenceRecord{
			SourceType: model.SourceFactCheckReport,
			Title:      part(parts, 0),
			Date:       part(parts, 1),
			URL:        part(parts, 2),
			Body:       strings.ReplaceAll(documentTag.ReplaceAllString(item.Document, ""), "\n", ""),
		}
		records = append(records, r)
	}
	return records, nil
}

func part(parts []string, i int) string {
	if i < len(parts) {
		return strings.TrimSpace(parts[i])
	}
	return ""
}
