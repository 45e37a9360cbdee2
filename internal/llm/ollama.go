package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ollamaModels lists commonly pulled local models.
var ollamaModels = []string{
	"qwen2.5:32b",
	"qwen2.5:14b",
	"qwen2.5:7b",
	"llama3.1:8b",
	"deepseek-r1:14b",
}

// OllamaProvider talks to a local Ollama server over /api/chat. No API
// key is needed, which makes it the natural last-resort fallback in a
// Router chain.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

// OllamaOption configures the Ollama provider.
type OllamaOption func(*OllamaProvider)

// WithOllamaModel sets the default model.
func WithOllamaModel(model string) OllamaOption {
	return func(p *OllamaProvider) { p.model = model }
}

// WithOllamaHTTPClient sets a custom HTTP client.
func WithOllamaHTTPClient(client *http.Client) OllamaOption {
	return func(p *OllamaProvider) { p.client = client }
}

// NewOllamaProvider creates an Ollama provider against baseURL
// (defaults to http://localhost:11434).
func NewOllamaProvider(baseURL string, opts ...OllamaOption) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	p := &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   "qwen2.5:7b",
		// Local models generate slowly; give them room.
		client: &http.Client{Timeout: 300 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *OllamaProvider) Name() string     { return ProviderOllama }
func (p *OllamaProvider) Models() []string { return ollamaModels }

// Ping checks that the server answers /api/tags.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return transportErr("ollama", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return transient(fmt.Errorf("ollama: ping status %d", resp.StatusCode))
	}
	return nil
}

// Chat sends one non-streaming chat request.
func (p *OllamaProvider) Chat(ctx context.Context, messages []Message, tools []Tool, opts *ChatOptions) (*Response, error) {
	start := time.Now()
	model := p.model
	if opts != nil && opts.Model != "" {
		model = opts.Model
	}

	payload := ollamaChatRequest{Model: model, Messages: toOllamaMessages(messages), Stream: false}
	for _, t := range tools {
		payload.Tools = append(payload.Tools, ollamaTool{Type: "function", Function: ollamaFunctionDef{
			Name: t.Name, Description: t.Description, Parameters: t.Parameters,
		}})
	}
	if opts != nil && (opts.Temperature > 0 || opts.MaxTokens > 0 || opts.TopP > 0 || len(opts.Stop) > 0) {
		payload.Options = &ollamaOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
			TopP:        opts.TopP,
			Stop:        opts.Stop,
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fatal(fmt.Errorf("ollama: marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transportErr("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("ollama: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 500 {
			return nil, transient(err)
		}
		return nil, fatal(err)
	}

	var raw ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, malformed(fmt.Errorf("ollama: decode response: %w", err))
	}

	out := &Response{
		Content:      raw.Message.Content,
		FinishReason: FinishStop,
		Model:        raw.Model,
		Provider:     ProviderOllama,
		Latency:      time.Since(start),
		Usage: Usage{
			PromptTokens:     raw.PromptEvalCount,
			CompletionTokens: raw.EvalCount,
			TotalTokens:      raw.PromptEvalCount + raw.EvalCount,
		},
	}
	// Ollama does not assign call ids; synthesize stable per-turn ids so
	// every tool answer can still reference its call.
	for i, tc := range raw.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if out.HasToolCalls() {
		out.FinishReason = FinishToolCalls
	}
	return out, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string            `json:"type"`
	Function ollamaFunctionDef `json:"function"`
}

type ollamaFunctionDef struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  *JSONSchema `json:"parameters"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

func toOllamaMessages(messages []Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		msg := ollamaMessage{Role: string(m.Role), Content: m.Content}
		for _, tc := range m.ToolCalls {
			var oc ollamaToolCall
			oc.Function.Name = tc.Name
			oc.Function.Arguments = tc.Arguments
			msg.ToolCalls = append(msg.ToolCalls, oc)
		}
		out = append(out, msg)
	}
	return out
}
