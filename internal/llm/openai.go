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
	"time"
)

// openAIModels lists commonly available OpenAI chat models.
var openAIModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4-turbo",
	"o1",
	"o3-mini",
}

// OpenAIProvider speaks the OpenAI Chat Completions wire format. The
// same shape also serves Azure OpenAI and compatible proxies via
// WithOpenAIBaseURL.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// OpenAIOption configures the OpenAI provider.
type OpenAIOption func(*OpenAIProvider)

// WithOpenAIBaseURL sets a custom base URL.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(p *OpenAIProvider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithOpenAIModel sets the default model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) { p.model = model }
}

// WithOpenAIHTTPClient sets a custom HTTP client.
func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) { p.client = client }
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fatal(ErrNoAPIKey)
	}
	p := &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1",
		model:   "gpt-4o",
		client:  &http.Client{Timeout: 180 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *OpenAIProvider) Name() string     { return ProviderOpenAI }
func (p *OpenAIProvider) Models() []string { return openAIModels }

// Ping verifies the API key by listing models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	resp, err := p.client.Do(req)
	if err != nil {
		return transportErr("openai", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fatal(fmt.Errorf("%w: key rejected", ErrNoAPIKey))
	case resp.StatusCode != http.StatusOK:
		return transient(fmt.Errorf("openai: ping status %d", resp.StatusCode))
	}
	return nil
}

// Chat sends one chat-completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, tools []Tool, opts *ChatOptions) (*Response, error) {
	start := time.Now()
	model := p.model
	if opts != nil && opts.Model != "" {
		model = opts.Model
	}

	payload := openAIChatRequest{Model: model, Messages: toOpenAIMessages(messages)}
	for _, t := range tools {
		payload.Tools = append(payload.Tools, openAITool{Type: "function", Function: openAIFunctionDef{
			Name: t.Name, Description: t.Description, Parameters: t.Parameters,
		}})
	}
	if opts != nil {
		if opts.Temperature > 0 {
			payload.Temperature = &opts.Temperature
		}
		if opts.MaxTokens > 0 {
			payload.MaxTokens = &opts.MaxTokens
		}
		if opts.TopP > 0 {
			payload.TopP = &opts.TopP
		}
		payload.Stop = opts.Stop
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fatal(fmt.Errorf("openai: marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transportErr("openai", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp)
	}

	var raw openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, malformed(fmt.Errorf("openai: decode response: %w", err))
	}
	if len(raw.Choices) == 0 {
		return nil, malformed(fmt.Errorf("openai: %w", ErrEmptyResponse))
	}

	choice := raw.Choices[0]
	out := &Response{
		Content:      choice.Message.Content,
		FinishReason: FinishReason(choice.FinishReason),
		Model:        raw.Model,
		Provider:     ProviderOpenAI,
		Latency:      time.Since(start),
		Usage: Usage{
			PromptTokens:     raw.Usage.PromptTokens,
			CompletionTokens: raw.Usage.CompletionTokens,
			TotalTokens:      raw.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	if out.HasToolCalls() {
		out.FinishReason = FinishToolCalls
	}
	return out, nil
}

// statusError classifies a non-200 completion response. 401 means the
// key is dead, 429/529 mean back off longer, 408/504 are timeouts and
// other 5xx are the vendor's problem, all worth a retry; everything else
// under 500 is a request we built wrong and repeating it verbatim cannot
// fix.
func (p *OpenAIProvider) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	detail := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		detail = apiErr.Error.Message
	}

	err := fmt.Errorf("openai: HTTP %d: %s", resp.StatusCode, detail)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fatal(fmt.Errorf("%w: %s", ErrNoAPIKey, detail))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 529:
		return rateLimited(err)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return timedOut(err)
	case resp.StatusCode >= 500:
		return transient(err)
	}
	return fatal(err)
}

// transportErr classifies a round-trip failure: a deadline hit is a
// timeout, anything else on the wire is transient.
func transportErr(backend string, err error) error {
	wrapped := fmt.Errorf("%s: %w", backend, err)
	if errors.Is(err, context.DeadlineExceeded) {
		return timedOut(wrapped)
	}
	return transient(wrapped)
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openAITool struct {
	Type     string            `json:"type"`
	Function openAIFunctionDef `json:"function"`
}

type openAIFunctionDef struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  *JSONSchema `json:"parameters"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIResponseMessage `json:"message"`
		FinishReason string                `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIResponseMessage struct {
	Content   string           `json:"content"`
	ToolCalls []openAIToolCall `json:"tool_calls"`
}

func toOpenAIMessages(messages []Message) []openAIMessage {
	out := make([]openAIMessage, len(messages))
	for i, m := range messages {
		msg := openAIMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			oc := openAIToolCall{ID: tc.ID, Type: "function"}
			oc.Function.Name = tc.Name
			oc.Function.Arguments = string(tc.Arguments)
			msg.ToolCalls = append(msg.ToolCalls, oc)
		}
		out[i] = msg
	}
	return out
}
