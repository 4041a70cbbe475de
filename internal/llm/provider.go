package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends one prompt and returns the full response text.
	// When req.OnDelta is set, partial text is reported as it arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Schema constrains the response to a JSON document
type Schema struct {
	Name       string
	Definition jsonschema.Definition
}

// CompletionRequest contains the input for one oracle call
type CompletionRequest struct {
	// System carries the role instructions
	System string

	// Prompt carries the serialized context and task
	Prompt string

	// Model overrides the provider default
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// Temperature for sampling; zero uses the provider default
	Temperature float32

	// Schema, when set, requests a JSON response matching the definition
	Schema *Schema

	// OnDelta receives streamed text fragments in order
	OnDelta func(delta string)
}

// CompletionResponse contains the oracle output
type CompletionResponse struct {
	// Text is the complete response text
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name used when a request does not name one
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Transport overrides the HTTP transport (proxies, throttling)
	Transport http.RoundTripper
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "openai",
		Timeout:   60,
		MaxTokens: 1500,
	}
}

const defaultTemperature = 0.3

// schemaInstruction renders a JSON-only directive for providers without native schema support
func schemaInstruction(s *Schema) (string, error) {
	raw, err := json.Marshal(s.Definition)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	return fmt.Sprintf("\n\nRespond with a single JSON object only, no prose and no code fences. It must match this JSON schema exactly:\n%s", raw), nil
}

func (c Config) resolveModel(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	if c.Model != "" {
		return c.Model
	}
	return fallback
}

func (c Config) resolveMaxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 1000
}

func resolveTemperature(t float32) float32 {
	if t > 0 {
		return t
	}
	return defaultTemperature
}
