package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	anthropicVersion      = "2023-06-01"
	anthropicDefaultModel = "claude-3-5-sonnet-20241022"
	anthropicPingModel    = "claude-3-5-haiku-20241022"
)

// AnthropicProvider talks to the Messages API
type AnthropicProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	config  Config
}

type messagesRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Messages    []messagesEntry `json:"messages"`
	Temperature float32         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type messagesEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type messagesBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	Model   string          `json:"model"`
	Content []messagesBlock `json:"content"`
	Usage   messagesUsage   `json:"usage"`
}

type messagesFailure struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// messagesEvent is the union of the server-sent events we read
type messagesEvent struct {
	Type    string            `json:"type"`
	Message *messagesResponse `json:"message,omitempty"`
	Delta   *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta,omitempty"`
	Usage *messagesUsage   `json:"usage,omitempty"`
	Error *messagesFailure `json:"error,omitempty"`
}

// NewAnthropicProvider requires an API key
func NewAnthropicProvider(config Config) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	base := config.BaseURL
	if base == "" {
		base = "https://api.anthropic.com"
	}
	return &AnthropicProvider{
		apiKey:  config.APIKey,
		baseURL: strings.TrimSuffix(base, "/"),
		client:  config.httpClient(60),
		config:  config,
	}, nil
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// IsAvailable sends a tiny request with the cheapest model
func (p *AnthropicProvider) IsAvailable(ctx context.Context) bool {
	resp, err := p.post(ctx, messagesRequest{
		Model:     p.config.resolveModel("", anthropicPingModel),
		MaxTokens: 10,
		Messages:  []messagesEntry{{Role: "user", Content: "Hi"}},
	})
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

// Complete sends one user turn. With req.OnDelta set the response is
// streamed and each text delta is forwarded in order.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	system := req.System
	if req.Schema != nil {
		instr, err := schemaInstruction(req.Schema)
		if err != nil {
			return nil, err
		}
		system += instr
	}

	body := messagesRequest{
		Model:       p.config.resolveModel(req.Model, anthropicDefaultModel),
		MaxTokens:   p.config.resolveMaxTokens(req.MaxTokens),
		System:      system,
		Messages:    []messagesEntry{{Role: "user", Content: req.Prompt}},
		Temperature: resolveTemperature(req.Temperature),
		Stream:      req.OnDelta != nil,
	}

	resp, err := p.post(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out *CompletionResponse
	if body.Stream {
		out, err = readMessagesStream(resp.Body, req.OnDelta)
	} else {
		out, err = readMessagesBody(resp.Body)
	}
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	if out.Text == "" {
		return nil, errors.New("anthropic: empty response")
	}
	return out, nil
}

// post returns the open response on 200 and a decoded error otherwise
func (p *AnthropicProvider) post(ctx context.Context, body messagesRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var failure struct {
		Error messagesFailure `json:"error"`
	}
	if json.Unmarshal(raw, &failure) == nil && failure.Error.Message != "" {
		return nil, fmt.Errorf("status %d: %s: %s", resp.StatusCode, failure.Error.Type, failure.Error.Message)
	}
	return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

func readMessagesBody(r io.Reader) (*CompletionResponse, error) {
	var msg messagesResponse
	if err := json.NewDecoder(r).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &CompletionResponse{
		Text:       strings.TrimSpace(text.String()),
		Model:      msg.Model,
		TokensUsed: msg.Usage.InputTokens + msg.Usage.OutputTokens,
	}, nil
}

// readMessagesStream consumes "data:" lines until message_stop
func readMessagesStream(r io.Reader, onDelta func(string)) (*CompletionResponse, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	out := &CompletionResponse{}
	var text strings.Builder
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		var ev messagesEvent
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}

		switch ev.Type {
		case "message_start":
			if ev.Message != nil {
				out.Model = ev.Message.Model
				out.TokensUsed += ev.Message.Usage.InputTokens
			}
		case "content_block_delta":
			if ev.Delta != nil && ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
				text.WriteString(ev.Delta.Text)
				onDelta(ev.Delta.Text)
			}
		case "message_delta":
			if ev.Usage != nil {
				out.TokensUsed += ev.Usage.OutputTokens
			}
		case "error":
			if ev.Error != nil {
				return nil, fmt.Errorf("stream error: %s: %s", ev.Error.Type, ev.Error.Message)
			}
			return nil, errors.New("stream error")
		case "message_stop":
			out.Text = strings.TrimSpace(text.String())
			return out, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return nil, io.ErrUnexpectedEOF
}
