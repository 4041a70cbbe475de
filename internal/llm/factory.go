package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/factloop/internal/model"
)

var constructors = map[string]func(Config) (Provider, error){
	"openai":    erase(NewOpenAIProvider),
	"anthropic": erase(NewAnthropicProvider),
	"claude":    erase(NewAnthropicProvider),
	"ollama":    erase(NewOllamaProvider),
}

// erase keeps a failed constructor from yielding a non-nil interface
func erase[P Provider](build func(Config) (P, error)) func(Config) (Provider, error) {
	return func(c Config) (Provider, error) {
		p, err := build(c)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// NewProvider builds the provider named by config.Provider
func NewProvider(config Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(config.Provider))
	if name == "" {
		return nil, errors.New("no LLM provider configured (set llm.provider to openai, anthropic or ollama)")
	}
	build, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q (supported: openai, anthropic, ollama)", config.Provider)
	}
	return build(config)
}

// ConfigFromModel maps the file configuration onto a provider config.
// transport may be nil.
func ConfigFromModel(m model.LLMConfig, transport http.RoundTripper) Config {
	return Config{
		Provider:  m.Provider,
		APIKey:    m.APIKey,
		BaseURL:   m.BaseURL,
		Timeout:   m.Timeout,
		MaxTokens: m.MaxTokens,
		Transport: transport,
	}
}

func (c Config) httpClient(fallbackSeconds int) *http.Client {
	secs := c.Timeout
	if secs <= 0 {
		secs = fallbackSeconds
	}
	return &http.Client{
		Timeout:   time.Duration(secs) * time.Second,
		Transport: c.Transport,
	}
}
