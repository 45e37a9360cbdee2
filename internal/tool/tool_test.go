package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seenimoa/tradingagents/internal/llm"
)

func call(id, name, argsJSON string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: []byte(argsJSON)}
}

func TestDispatchUnknownToolAnswersDiagnostic(t *testing.T) {
	reg := NewRegistry()
	msgs := Dispatch(context.Background(), reg, []llm.ToolCall{call("c1", "nope", "{}")})
	if len(msgs) != 1 || msgs[0].ToolCallID != "c1" {
		t.Fatalf("expected one tool message for c1, got %+v", msgs)
	}
	if msgs[0].Role != llm.RoleTool {
		t.Fatalf("expected tool-role message, got %v", msgs[0].Role)
	}
}

func TestDispatchValidatesRequiredArgs(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Descriptor{
		Name:    "get_data",
		ArgSpec: []ArgSpec{{Name: "ticker", Type: TypeString, Required: true}},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "ok", nil
		},
	})
	msgs := Dispatch(context.Background(), reg, []llm.ToolCall{call("c1", "get_data", "{}")})
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	if msgs[0].Content == "ok" {
		t.Fatal("expected a missing-argument diagnostic, not a handler result")
	}
}

func TestDispatchRejectsInvalidTicker(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Descriptor{
		Name:    "get_quote",
		ArgSpec: []ArgSpec{{Name: "ticker", Type: TypeString, Required: true, IsTicker: true}},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "quote", nil
		},
	})
	msgs := Dispatch(context.Background(), reg, []llm.ToolCall{call("c1", "get_quote", `{"ticker":"7"}`)})
	if msgs[0].Content == "quote" {
		t.Fatal("expected an invalid-ticker diagnostic, not a handler result")
	}
}

func TestDispatchPreservesOrderAndClosesEachCall(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Descriptor{
		Name: "slot",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return args["n"].(string), nil
		},
	})
	calls := []llm.ToolCall{
		call("c1", "slot", `{"n":"one"}`),
		call("c2", "slot", `{"n":"two"}`),
		call("c3", "slot", `{"n":"three"}`),
	}
	msgs := Dispatch(context.Background(), reg, calls)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 tool messages for 3 calls, got %d", len(msgs))
	}
	want := []string{"c1", "c2", "c3"}
	for i, m := range msgs {
		if m.ToolCallID != want[i] {
			t.Fatalf("message %d: expected tool_call_id %q, got %q", i, want[i], m.ToolCallID)
		}
	}
	if msgs[1].Content != "two" {
		t.Fatalf("expected second call's result to be 'two', got %q", msgs[1].Content)
	}
}

func TestDispatchHandlerTimeout(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Descriptor{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			select {
			case <-time.After(time.Second):
				return "too late", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	})
	msgs := Dispatch(context.Background(), reg, []llm.ToolCall{call("c1", "slow", "{}")})
	if msgs[0].Content == "too late" {
		t.Fatal("expected a timeout diagnostic")
	}
}

func TestDispatchHandlerErrorBecomesDiagnostic(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Descriptor{
		Name: "fails",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("boom")
		},
	})
	msgs := Dispatch(context.Background(), reg, []llm.ToolCall{call("c1", "fails", "{}")})
	if msgs[0].ToolCallID != "c1" {
		t.Fatalf("expected diagnostic still addressed to c1, got %q", msgs[0].ToolCallID)
	}
}

func TestDispatchRunsConcurrentHandlersButPreservesOutputOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Descriptor{
		Name:       "par",
		Concurrent: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			time.Sleep(5 * time.Millisecond)
			return args["n"].(string), nil
		},
	})
	calls := []llm.ToolCall{
		call("c1", "par", `{"n":"a"}`),
		call("c2", "par", `{"n":"b"}`),
		call("c3", "par", `{"n":"c"}`),
	}
	msgs := Dispatch(context.Background(), reg, calls)
	for i, id := range []string{"c1", "c2", "c3"} {
		if msgs[i].ToolCallID != id {
			t.Fatalf("expected message %d addressed to %s, got %s", i, id, msgs[i].ToolCallID)
		}
	}
}
