// Package llm is the model-client boundary of the pipeline: a chat
// completion contract with JSON-schema tool binding, concrete OpenAI and
// Ollama backends, and a Router that fails over between registered
// backends. Callers hold an LLMProvider (usually the Router) and either
// call Chat directly or Bind a toolset once and invoke the returned
// handle for every subsequent turn.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seenimoa/tradingagents/internal/resilience"
)

// Provider names for routing and configuration.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Sentinel errors shared by all backends.
var (
	ErrNoAPIKey      = errors.New("llm: API key not configured")
	ErrNoProviders   = errors.New("llm: no providers registered")
	ErrEmptyResponse = errors.New("llm: response carried no choices")
)

// The error-kind helpers below tag backend failures with the taxonomy
// the retry layer keys on. Rate limits, transient faults, and timeouts
// are retriable; fatal errors (bad key, unknown model) and malformed
// responses are not worth repeating against the same backend.

func rateLimited(err error) error { return resilience.WithKind(err, resilience.KindRateLimit) }
func transient(err error) error   { return resilience.WithKind(err, resilience.KindTransient) }
func timedOut(err error) error    { return resilience.WithKind(err, resilience.KindTimeout) }
func fatal(err error) error       { return resilience.WithKind(err, resilience.KindFatal) }
func malformed(err error) error {
	return resilience.WithKind(err, resilience.KindInvalidResponse)
}

// Retriable reports whether err is worth re-sending to the same backend:
// rate limits, transient faults, and timeouts are; everything else
// (fatal configuration errors, malformed responses) is not.
func Retriable(err error) bool {
	switch resilience.Kind(err) {
	case resilience.KindRateLimit, resilience.KindTransient, resilience.KindTimeout:
		return true
	}
	return false
}

// Role identifies a message's sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FinishReason indicates why the model stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
)

// Message is one entry of a conversation transcript.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a model-emitted request to run a named tool. Arguments is
// raw JSON; the dispatcher that answers the call owns decoding and
// validation.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Response is one complete model turn.
type Response struct {
	Content      string        `json:"content"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	FinishReason FinishReason  `json:"finish_reason"`
	Usage        Usage         `json:"usage"`
	Model        string        `json:"model"`
	Provider     string        `json:"provider"`
	Latency      time.Duration `json:"latency"`
}

// HasToolCalls reports whether the turn requested tool execution.
func (r *Response) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// Usage tracks token consumption for a request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatOptions overrides per-request generation settings. A nil
// ChatOptions means the backend's defaults.
type ChatOptions struct {
	Model       string   `json:"model,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// LLMProvider is the contract every model backend (and the Router)
// satisfies. Implementations must be safe for concurrent Chat calls.
type LLMProvider interface {
	// Name returns the backend identifier ("openai", "ollama", ...).
	Name() string

	// Chat sends a conversation, optionally binding a toolset, and
	// returns one complete turn. tools may be nil.
	Chat(ctx context.Context, messages []Message, tools []Tool, opts *ChatOptions) (*Response, error)

	// Models lists the model identifiers the backend serves.
	Models() []string

	// Ping verifies the backend is reachable and credentials are valid.
	Ping(ctx context.Context) error
}

// BoundModel pairs a provider with a fixed toolset and options, so a
// caller binds once and invokes repeatedly without re-stating the
// toolset on every turn. The handle is pure: constructing it performs
// no I/O, and distinct handles over the same provider never share
// binding state.
type BoundModel struct {
	provider LLMProvider
	tools    []Tool
	opts     *ChatOptions
}

// Bind returns a handle over provider with tools attached to every
// subsequent Invoke.
func Bind(provider LLMProvider, tools []Tool, opts *ChatOptions) *BoundModel {
	return &BoundModel{provider: provider, tools: tools, opts: opts}
}

// Invoke sends messages through the bound provider with the handle's
// toolset.
func (b *BoundModel) Invoke(ctx context.Context, messages []Message) (*Response, error) {
	return b.provider.Chat(ctx, messages, b.tools, b.opts)
}

// NewMessage creates a message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// SystemMessage creates a system prompt message.
func SystemMessage(content string) Message { return NewMessage(RoleSystem, content) }

// UserMessage creates a user message.
func UserMessage(content string) Message { return NewMessage(RoleUser, content) }

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message { return NewMessage(RoleAssistant, content) }

// ToolResultMessage creates the tool-role answer to one tool call.
func ToolResultMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID, Name: name}
}

// AssistantToolCallMessage creates an assistant message carrying tool
// calls and no content.
func AssistantToolCallMessage(toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: toolCalls}
}

// String summarizes a response for log lines.
func (r *Response) String() string {
	if r.HasToolCalls() {
		return fmt.Sprintf("[%s/%s] %d tool call(s), %d tokens",
			r.Provider, r.Model, len(r.ToolCalls), r.Usage.TotalTokens)
	}
	content := r.Content
	if len(content) > 100 {
		content = content[:100] + "..."
	}
	return fmt.Sprintf("[%s/%s] %q, %d tokens", r.Provider, r.Model, content, r.Usage.TotalTokens)
}
