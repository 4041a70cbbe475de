package retrieve

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/ppiankov/factloop/internal/model"
)

// Embedder turns text into a vector for similarity search
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder builds the embedder selected by cfg.Provider
func NewEmbedder(ctx context.Context, cfg model.EmbeddingConfig, httpClient *http.Client) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return NewOpenAIEmbedder(cfg, httpClient)
	case "gemini", "genai":
		return NewGeminiEmbedder(ctx, cfg, httpClient)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, gemini)", cfg.Provider)
	}
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates an OpenAI embedder
func NewOpenAIEmbedder(cfg model.EmbeddingConfig, httpClient *http.Client) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required for embeddings")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		clientConfig.HTTPClient = httpClient
	}

	m := cfg.Model
	if m == "" {
		m = string(openai.LargeEmbedding3)
	}

	return &OpenAIEmbedder{client: openai.NewClientWithConfig(clientConfig), model: m}, nil
}

// Embed implements Embedder
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("OpenAI embeddings: empty response")
	}
	return resp.Data[0].Embedding, nil
}

// GeminiEmbedder calls the Gemini embedding API
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGeminiEmbedder creates a Gemini embedder
func NewGeminiEmbedder(ctx context.Context, cfg model.EmbeddingConfig, httpClient *http.Client) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required for embeddings")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	m := cfg.Model
	if m == "" || strings.HasPrefix(m, "text-embedding-3") {
		m = "gemini-embedding-001"
	}

	return &GeminiEmbedder{client: client, model: m}, nil
}

// Embed implements Embedder
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{TaskType: "RETRIEVAL_QUERY"},
	)
	if err != nil {
		return nil, fmt.Errorf("Gemini embeddings: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("Gemini embeddings: empty response")
	}
	return result.Embeddings[0].Values, nil
}
