package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seenimoa/tradingagents/internal/resilience"
)

// fakeProvider scripts Chat behavior for router tests.
type fakeProvider struct {
	name  string
	calls int
	fn    func(call int, messages []Message, tools []Tool, opts *ChatOptions) (*Response, error)
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Models() []string { return []string{f.name + "-model"} }
func (f *fakeProvider) Ping(ctx context.Context) error {
	return nil
}
func (f *fakeProvider) Chat(ctx context.Context, messages []Message, tools []Tool, opts *ChatOptions) (*Response, error) {
	f.calls++
	return f.fn(f.calls, messages, tools, opts)
}

func fastPolicy(attempts int) resilience.Policy {
	return resilience.Policy{
		MaxAttempts: attempts,
		Strategy:    resilience.StrategyFixed,
		BaseDelay:   time.Millisecond,
		RetriableKinds: []resilience.ErrorKind{
			resilience.KindTransient, resilience.KindTimeout, resilience.KindRateLimit,
		},
	}
}

func TestMessageConstructors(t *testing.T) {
	sys := SystemMessage("be terse")
	if sys.Role != RoleSystem || sys.Content != "be terse" {
		t.Fatalf("SystemMessage: %+v", sys)
	}
	tool := ToolResultMessage("call-1", "get_historical_prices", "42 rows")
	if tool.Role != RoleTool || tool.ToolCallID != "call-1" || tool.Name != "get_historical_prices" {
		t.Fatalf("ToolResultMessage: %+v", tool)
	}
	tc := AssistantToolCallMessage([]ToolCall{{ID: "c1", Name: "fn"}})
	if tc.Role != RoleAssistant || len(tc.ToolCalls) != 1 || tc.Content != "" {
		t.Fatalf("AssistantToolCallMessage: %+v", tc)
	}
}

func TestRetriableByKind(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{rateLimited(errors.New("429")), true},
		{transient(errors.New("502")), true},
		{timedOut(errors.New("deadline")), true},
		{fatal(errors.New("bad key")), false},
		{malformed(errors.New("no choices")), false},
	}
	for _, c := range cases {
		if got := Retriable(c.err); got != c.want {
			t.Errorf("Retriable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestBindInvokeCarriesToolset(t *testing.T) {
	var seenTools [][]Tool
	p := &fakeProvider{name: "fake", fn: func(call int, messages []Message, tools []Tool, opts *ChatOptions) (*Response, error) {
		seenTools = append(seenTools, tools)
		return &Response{Content: "ok"}, nil
	}}

	toolset := []Tool{{Name: "get_news", Parameters: ObjectSchema("", nil)}}
	bound := Bind(p, toolset, nil)

	for i := 0; i < 3; i++ {
		if _, err := bound.Invoke(context.Background(), []Message{UserMessage("go")}); err != nil {
			t.Fatalf("invoke %d: %v", i, err)
		}
	}
	if len(seenTools) != 3 {
		t.Fatalf("expected 3 invocations, got %d", len(seenTools))
	}
	for i, tools := range seenTools {
		if len(tools) != 1 || tools[0].Name != "get_news" {
			t.Fatalf("invocation %d lost the bound toolset: %+v", i, tools)
		}
	}
}

func TestRouterFallsBackAfterRetriesExhausted(t *testing.T) {
	primary := &fakeProvider{name: "openai", fn: func(call int, _ []Message, _ []Tool, _ *ChatOptions) (*Response, error) {
		return nil, transient(errors.New("connection reset"))
	}}
	backup := &fakeProvider{name: "ollama", fn: func(call int, _ []Message, _ []Tool, _ *ChatOptions) (*Response, error) {
		return &Response{Content: "from backup", Provider: "ollama"}, nil
	}}

	r := NewRouter("openai", WithFallbacks("ollama"), WithRetryPolicy(fastPolicy(2)))
	r.RegisterProvider(primary)
	r.RegisterProvider(backup)

	resp, err := r.Chat(context.Background(), []Message{UserMessage("hi")}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from backup" {
		t.Fatalf("expected fallback response, got %q", resp.Content)
	}
	if primary.calls != 2 {
		t.Fatalf("expected primary tried MaxAttempts=2 times, got %d", primary.calls)
	}
	if backup.calls != 1 {
		t.Fatalf("expected backup tried once, got %d", backup.calls)
	}
}

func TestRouterStopsChainOnFatal(t *testing.T) {
	primary := &fakeProvider{name: "openai", fn: func(call int, _ []Message, _ []Tool, _ *ChatOptions) (*Response, error) {
		return nil, fatal(ErrNoAPIKey)
	}}
	backup := &fakeProvider{name: "ollama", fn: func(call int, _ []Message, _ []Tool, _ *ChatOptions) (*Response, error) {
		return &Response{Content: "should never run"}, nil
	}}

	r := NewRouter("openai", WithFallbacks("ollama"), WithRetryPolicy(fastPolicy(3)))
	r.RegisterProvider(primary)
	r.RegisterProvider(backup)

	_, err := r.Chat(context.Background(), []Message{UserMessage("hi")}, nil, nil)
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
	if primary.calls != 1 {
		t.Fatalf("fatal error must not be retried, primary called %d times", primary.calls)
	}
	if backup.calls != 0 {
		t.Fatalf("fatal error must stop the chain, backup called %d times", backup.calls)
	}
}

func TestRouterRetriesTransientThenSucceeds(t *testing.T) {
	p := &fakeProvider{name: "openai", fn: func(call int, _ []Message, _ []Tool, _ *ChatOptions) (*Response, error) {
		if call == 1 {
			return nil, transient(errors.New("503"))
		}
		return &Response{Content: "second try"}, nil
	}}

	r := NewRouter("openai", WithRetryPolicy(fastPolicy(3)))
	r.RegisterProvider(p)

	resp, err := r.Chat(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "second try" || p.calls != 2 {
		t.Fatalf("expected success on attempt 2, got %q after %d calls", resp.Content, p.calls)
	}
}

func TestRouterNoProviders(t *testing.T) {
	r := NewRouter("openai")
	if _, err := r.Chat(context.Background(), nil, nil, nil); err == nil {
		t.Fatal("expected an error with an empty chain")
	}
	if _, err := r.Primary(); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders, got %v", err)
	}
}

func TestChatWithComplexityModelOverride(t *testing.T) {
	var seenModels []string
	p := &fakeProvider{name: "openai", fn: func(call int, _ []Message, _ []Tool, opts *ChatOptions) (*Response, error) {
		model := ""
		if opts != nil {
			model = opts.Model
		}
		seenModels = append(seenModels, model)
		return &Response{Content: "ok"}, nil
	}}

	r := NewRouter("openai", WithModelMap(map[TaskComplexity]string{
		TaskSimple:  "gpt-4o-mini",
		TaskComplex: "gpt-4o",
	}))
	r.RegisterProvider(p)

	ctx := context.Background()
	if _, err := r.ChatWithComplexity(ctx, TaskSimple, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ChatWithComplexity(ctx, TaskComplex, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	// A caller-pinned model wins over the complexity map.
	if _, err := r.ChatWithComplexity(ctx, TaskSimple, nil, nil, &ChatOptions{Model: "pinned"}); err != nil {
		t.Fatal(err)
	}

	want := []string{"gpt-4o-mini", "gpt-4o", "pinned"}
	for i, m := range want {
		if seenModels[i] != m {
			t.Fatalf("call %d used model %q, want %q", i, seenModels[i], m)
		}
	}
}

func TestOpenAIChatParsesToolCalls(t *testing.T) {
	var gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"model": "gpt-4o",
			"choices": [{
				"message": {
					"content": "",
					"tool_calls": [{
						"id": "call_abc",
						"type": "function",
						"function": {"name": "get_historical_prices", "arguments": "{\"ticker\":\"AAPL\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("test-key", WithOpenAIBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	tools := []Tool{{Name: "get_historical_prices", Description: "bars", Parameters: ObjectSchema("bars", map[string]*JSONSchema{
		"ticker": StringProp("ticker symbol"),
	}, "ticker")}}

	resp, err := p.Chat(context.Background(), []Message{UserMessage("analyze AAPL")}, tools, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Fatalf("missing bearer auth, got %q", gotAuth)
	}
	if !strings.Contains(string(gotBody), `"get_historical_prices"`) {
		t.Fatal("request body did not carry the bound toolset")
	}

	if !resp.HasToolCalls() || resp.FinishReason != FinishToolCalls {
		t.Fatalf("expected a tool-call turn, got %+v", resp)
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_abc" || tc.Name != "get_historical_prices" {
		t.Fatalf("unexpected tool call: %+v", tc)
	}
	var args map[string]string
	if err := json.Unmarshal(tc.Arguments, &args); err != nil || args["ticker"] != "AAPL" {
		t.Fatalf("arguments did not round-trip: %s", tc.Arguments)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("usage lost: %+v", resp.Usage)
	}
}

func TestOpenAIStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		retriable bool
		isNoKey   bool
	}{
		{http.StatusTooManyRequests, true, false},
		{http.StatusInternalServerError, true, false},
		{http.StatusBadGateway, true, false},
		{http.StatusGatewayTimeout, true, false},
		{http.StatusUnauthorized, false, true},
		{http.StatusBadRequest, false, false},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
			io.WriteString(w, `{"error": {"message": "boom"}}`)
		}))
		p, _ := NewOpenAIProvider("k", WithOpenAIBaseURL(srv.URL))
		_, err := p.Chat(context.Background(), []Message{UserMessage("x")}, nil, nil)
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", c.status)
		}
		if Retriable(err) != c.retriable {
			t.Errorf("status %d: Retriable = %v, want %v", c.status, Retriable(err), c.retriable)
		}
		if errors.Is(err, ErrNoAPIKey) != c.isNoKey {
			t.Errorf("status %d: ErrNoAPIKey mismatch: %v", c.status, err)
		}
	}
}

func TestOpenAIEmptyChoicesIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"model": "gpt-4o", "choices": []}`)
	}))
	defer srv.Close()

	p, _ := NewOpenAIProvider("k", WithOpenAIBaseURL(srv.URL))
	_, err := p.Chat(context.Background(), []Message{UserMessage("x")}, nil, nil)
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
	if Retriable(err) {
		t.Fatal("a malformed response must not be retried against the same backend")
	}
}

func TestOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(""); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestOllamaChatSynthesizesCallIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{
			"model": "qwen2.5:7b",
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [
					{"function": {"name": "get_news", "arguments": {"ticker": "0700.HK"}}},
					{"function": {"name": "get_fundamentals", "arguments": {"ticker": "0700.HK"}}}
				]
			},
			"done": true,
			"prompt_eval_count": 8,
			"eval_count": 4
		}`)
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Chat(context.Background(), []Message{UserMessage("news for 0700.HK")}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID != "call_0" || resp.ToolCalls[1].ID != "call_1" {
		t.Fatalf("expected synthesized ids call_0/call_1, got %q/%q", resp.ToolCalls[0].ID, resp.ToolCalls[1].ID)
	}
	if resp.FinishReason != FinishToolCalls {
		t.Fatalf("expected FinishToolCalls, got %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 12 {
		t.Fatalf("usage lost: %+v", resp.Usage)
	}
}

func TestOllamaServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := NewOllamaProvider(srv.URL)
	_, err := p.Chat(context.Background(), []Message{UserMessage("x")}, nil, nil)
	if err == nil || !Retriable(err) {
		t.Fatalf("expected a retriable error, got %v", err)
	}
}

func TestToolMessageRoundTripThroughOpenAIWire(t *testing.T) {
	msgs := []Message{
		SystemMessage("analyst"),
		AssistantToolCallMessage([]ToolCall{{ID: "c1", Name: "fn", Arguments: json.RawMessage(`{"a":1}`)}}),
		ToolResultMessage("c1", "fn", "result text"),
	}
	wire := toOpenAIMessages(msgs)
	if len(wire) != 3 {
		t.Fatalf("expected 3 wire messages, got %d", len(wire))
	}
	if len(wire[1].ToolCalls) != 1 || wire[1].ToolCalls[0].Function.Arguments != `{"a":1}` {
		t.Fatalf("tool call lost on the wire: %+v", wire[1])
	}
	if wire[2].Role != "tool" || wire[2].ToolCallID != "c1" {
		t.Fatalf("tool result lost its call id: %+v", wire[2])
	}
}
