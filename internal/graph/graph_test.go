package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/seenimoa/tradingagents/internal/llm"
	"github.com/seenimoa/tradingagents/internal/state"
)

func passthroughNode(name string) Node {
	return func(ctx context.Context, s *state.AgentState) (Update, error) {
		return Update{Sender: name, AppendMessages: []llm.Message{llm.AssistantMessage(name)}}, nil
	}
}

// TestGraphRunsToEnd exercises a trivial linear graph START->a->b->END.
func TestGraphRunsToEnd(t *testing.T) {
	g := New()
	g.AddNode("a", passthroughNode("a"))
	g.AddNode("b", passthroughNode("b"))
	g.AddEdge(START, "a")
	g.AddEdge("a", "b")
	g.AddEdge("b", END)

	s := state.New("AAPL", "2024-05-10")
	out, err := g.Run(context.Background(), s, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Sender != "b" {
		t.Fatalf("expected last sender 'b', got %q", out.Sender)
	}
	if len(out.Messages) != 2 {
		t.Fatalf("expected 2 appended messages, got %d", len(out.Messages))
	}
}

// TestGraphStuckOnUnboundedLoop: a run exceeding the recursion cap
// must fail fatally with no partial output.
func TestGraphStuckOnUnboundedLoop(t *testing.T) {
	g := New()
	g.AddNode("loop", passthroughNode("loop"))
	g.AddEdge(START, "loop")
	g.AddEdge("loop", "loop")

	s := state.New("AAPL", "2024-05-10")
	out, err := g.Run(context.Background(), s, 5)
	if err == nil {
		t.Fatal("expected ErrGraphStuck")
	}
	var stuck *ErrGraphStuck
	if !errors.As(err, &stuck) {
		t.Fatalf("expected ErrGraphStuck, got %T: %v", err, err)
	}
	if out != nil {
		t.Fatal("expected no partial output on GraphStuck")
	}
}

// TestConditionalEdgeRoutesByKey verifies a conditional edge follows the
// selector's key instead of any unconditional edge registered for the
// same source node.
func TestConditionalEdgeRoutesByKey(t *testing.T) {
	g := New()
	g.AddNode("branch", passthroughNode("branch"))
	g.AddNode("left", passthroughNode("left"))
	g.AddNode("right", passthroughNode("right"))
	g.AddEdge(START, "branch")
	g.AddConditionalEdge("branch", func(s *state.AgentState) string { return "right" }, map[string]string{
		"left":  "left",
		"right": "right",
	})
	g.AddEdge("left", END)
	g.AddEdge("right", END)

	s := state.New("AAPL", "2024-05-10")
	out, err := g.Run(context.Background(), s, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Sender != "right" {
		t.Fatalf("expected selector to route to 'right', got %q", out.Sender)
	}
}

// TestMergeReportSlotOverwritesOnlyWhenSet confirms a node's Update only
// touches report slots it actually sets, and debate deltas only append.
func TestMergeReportSlotOverwritesOnlyWhenSet(t *testing.T) {
	s := state.New("AAPL", "2024-05-10")
	s.MarketReport = "stale"

	merge(s, Update{})
	if s.MarketReport != "stale" {
		t.Fatalf("expected untouched slot to survive an empty update, got %q", s.MarketReport)
	}

	merge(s, Update{MarketReport: Str("fresh")})
	if s.MarketReport != "fresh" {
		t.Fatalf("expected slot overwritten when update sets it, got %q", s.MarketReport)
	}

	merge(s, Update{InvestmentDebate: &DebateDelta{AppendBull: "bull turn 1", IncrementCount: true}})
	merge(s, Update{InvestmentDebate: &DebateDelta{AppendBear: "bear turn 1", IncrementCount: true}})
	if s.InvestmentDebate.Count != 2 {
		t.Fatalf("expected monotonic count of 2, got %d", s.InvestmentDebate.Count)
	}
	if s.InvestmentDebate.BullHistory != "bull turn 1" || s.InvestmentDebate.BearHistory != "bear turn 1" {
		t.Fatalf("expected both per-speaker histories preserved, got bull=%q bear=%q", s.InvestmentDebate.BullHistory, s.InvestmentDebate.BearHistory)
	}
}

// TestDebateSelectorRespectsRoundCap checks the bull/bear alternation
// stops exactly at twice the configured round count.
func TestDebateSelectorRespectsRoundCap(t *testing.T) {
	cfg := DebateConfig{MaxDebateRounds: 2}
	sel := InvestmentDebateSelector(cfg)

	s := state.New("AAPL", "2024-05-10")
	s.InvestmentDebate.Count = 3
	if got := sel(s); got != "continue" {
		t.Fatalf("expected 'continue' below cap of 4, got %q", got)
	}
	s.InvestmentDebate.Count = 4
	if got := sel(s); got != "done" {
		t.Fatalf("expected 'done' at cap, got %q", got)
	}
}
