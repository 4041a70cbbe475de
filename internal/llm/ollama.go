package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaProvider runs prompts against a local Ollama server
type OllamaProvider struct {
	baseURL string
	client  *http.Client
	config  Config
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Format  json.RawMessage `json:"format,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// generateChunk is one NDJSON line; the final one has Done set and the counts
type generateChunk struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	Error           string `json:"error,omitempty"`
}

// NewOllamaProvider defaults to the local daemon
func NewOllamaProvider(config Config) (*OllamaProvider, error) {
	base := config.BaseURL
	if base == "" {
		base = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL: strings.TrimSuffix(base, "/"),
		client:  config.httpClient(120), // first load of a model is slow
		config:  config,
	}, nil
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

// IsAvailable lists local models
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Complete calls /api/generate. A schema is passed as the format so the
// model is constrained to it. With req.OnDelta set every chunk is forwarded.
func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := p.config.resolveModel(req.Model, "")
	if model == "" {
		return nil, errors.New("ollama: model must be set (e.g. llama3.1:8b, qwen2.5)")
	}

	body := generateRequest{
		Model:  model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: req.OnDelta != nil,
		Options: generateOptions{
			Temperature: resolveTemperature(req.Temperature),
			NumPredict:  p.config.resolveMaxTokens(req.MaxTokens),
		},
	}
	if req.Schema != nil {
		format, err := json.Marshal(req.Schema.Definition)
		if err != nil {
			return nil, fmt.Errorf("ollama: marshal schema: %w", err)
		}
		body.Format = format
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var chunk generateChunk
		if json.Unmarshal(raw, &chunk) == nil && chunk.Error != "" {
			return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, chunk.Error)
		}
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	out, err := readGenerate(resp.Body, req.OnDelta)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	if out.Text == "" {
		return nil, errors.New("ollama: empty response")
	}
	return out, nil
}

// readGenerate decodes one object or a stream of them until Done
func readGenerate(r io.Reader, onDelta func(string)) (*CompletionResponse, error) {
	dec := json.NewDecoder(r)
	var text strings.Builder
	for {
		var chunk generateChunk
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if chunk.Error != "" {
			return nil, errors.New(chunk.Error)
		}
		if chunk.Response != "" {
			text.WriteString(chunk.Response)
			if onDelta != nil {
				onDelta(chunk.Response)
			}
		}
		if chunk.Done {
			return &CompletionResponse{
				Text:       strings.TrimSpace(text.String()),
				Model:      chunk.Model,
				TokensUsed: chunk.PromptEvalCount + chunk.EvalCount,
			}, nil
		}
	}
}
