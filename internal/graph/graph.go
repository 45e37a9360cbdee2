// Package graph implements the Workflow Graph: a declarative DAG
// of named nodes joined by unconditional or conditional edges, driven by
// a loop that invokes the current node, folds its Update into the shared
// AgentState by fixed per-field merge rules, and follows the outgoing
// edge until it reaches END or exceeds the recursion cap.
package graph

import (
	"context"
	"fmt"

	"github.com/seenimoa/tradingagents/internal/llm"
	"github.com/seenimoa/tradingagents/internal/state"
)

// START and END are the graph's two sentinel node names.
const (
	START = "__start__"
	END   = "__end__"
)

// DebateDelta is the part of an Update that advances an investment or
// risk debate: it appends to the shared and per-speaker transcripts and
// optionally bumps the turn counter or records a judge decision. The
// driver never overwrites DebateState.History/BullHistory/etc — it only
// appends, which keeps Count monotonically non-decreasing and means a
// debate re-entry can never clobber a report slot.
type DebateDelta struct {
	AppendHistory  string
	AppendBull     string
	AppendBear     string
	AppendRisky    string
	AppendSafe     string
	AppendNeutral  string
	IncrementCount bool
	LatestSpeaker  string
	JudgeDecision  string
}

// Update is the partial result a node returns; the driver merges it into
// the run's AgentState. A nil/zero field means "this node did not touch
// that slot" — report-slot pointers distinguish "unset" from "set to the
// empty string".
type Update struct {
	AppendMessages []llm.Message
	// ReplaceMessages, when set, replaces the entire message log instead
	// of appending — used by the sequential topology's message-cleaning
	// node to drop a completed analyst's final report message and its
	// tool-call/tool-result scratch exchange (the report text stays in
	// its report slot). Mutually exclusive with AppendMessages in
	// practice: a node sets one or the other.
	ReplaceMessages *[]llm.Message
	Sender          string

	MarketReport       *string
	SentimentReport    *string
	NewsReport         *string
	FundamentalsReport *string
	InvestmentPlan     *string
	TraderPlan         *string
	FinalTradeDecision *string
	RiskAssessment     *string

	InvestmentDebate *DebateDelta
	RiskDebate       *DebateDelta

	ParallelPerformance *state.ParallelPerformance
}

// Str is a convenience for building the *string report-slot fields of an
// Update literal.
func Str(s string) *string { return &s }

// Node is one callable step of the graph: read state, do work (model
// invocation, tool dispatch, debate contribution, ...), return an Update.
// Nodes never mutate the AgentState passed to them.
type Node func(ctx context.Context, s *state.AgentState) (Update, error)

// Selector picks the next node name for a conditional edge.
type Selector func(s *state.AgentState) string

// ErrGraphStuck is returned when a run exceeds its recursion cap without reaching END.
type ErrGraphStuck struct{ Limit int }

func (e *ErrGraphStuck) Error() string {
	return fmt.Sprintf("graph: exceeded recursion limit of %d node transitions", e.Limit)
}

// Graph is a directed set of named nodes and edges, built once per
// topology (sequential or parallel analysts) and then driven per run.
type Graph struct {
	nodes       map[string]Node
	edges       map[string]string
	conditional map[string]map[string]string // fromNode -> {selectorKey -> toNode}
	selectors   map[string]Selector
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:       make(map[string]Node),
		edges:       make(map[string]string),
		conditional: make(map[string]map[string]string),
		selectors:   make(map[string]Selector),
	}
}

// AddNode registers a node under name.
func (g *Graph) AddNode(name string, n Node) {
	g.nodes[name] = n
}

// AddEdge adds an unconditional edge: after from runs, to runs next.
func (g *Graph) AddEdge(from, to string) {
	g.edges[from] = to
}

// AddConditionalEdge adds a conditional edge: after from runs, sel picks
// a key into routes, and the graph transitions to routes[key].
func (g *Graph) AddConditionalEdge(from string, sel Selector, routes map[string]string) {
	g.selectors[from] = sel
	g.conditional[from] = routes
}

// Run drives s from START to END, merging each node's Update in turn.
// maxRecur bounds the number of node transitions; exceeding it returns
// *ErrGraphStuck with no partial output. ctx
// cancellation is checked between node transitions.
func (g *Graph) Run(ctx context.Context, s *state.AgentState, maxRecur int) (*state.AgentState, error) {
	if maxRecur <= 0 {
		maxRecur = 100
	}

	current := g.edges[START]
	if _, ok := g.conditional[START]; ok {
		current = g.next(START, s)
	}

	for transitions := 0; ; transitions++ {
		if current == END {
			return s, nil
		}
		if transitions >= maxRecur {
			return nil, &ErrGraphStuck{Limit: maxRecur}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		node, ok := g.nodes[current]
		if !ok {
			return nil, fmt.Errorf("graph: no node registered for %q", current)
		}

		update, err := node(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("graph: node %q: %w", current, err)
		}
		merge(s, update)

		current = g.next(current, s)
	}
}

func (g *Graph) next(from string, s *state.AgentState) string {
	if sel, ok := g.selectors[from]; ok {
		key := sel(s)
		if to, ok := g.conditional[from][key]; ok {
			return to
		}
	}
	if to, ok := g.edges[from]; ok {
		return to
	}
	return END
}

// merge folds update into s using fixed per-field rules: messages
// are appended, report slots overwrite only when the update sets them,
// and debate deltas append to history/append-only sub-transcripts and
// advance the counter.
func merge(s *state.AgentState, u Update) {
	if u.ReplaceMessages != nil {
		s.Messages = *u.ReplaceMessages
	} else {
		s.AppendMessages(u.AppendMessages...)
	}
	if u.Sender != "" {
		s.Sender = u.Sender
	}
	if u.MarketReport != nil {
		s.MarketReport = *u.MarketReport
	}
	if u.SentimentReport != nil {
		s.SentimentReport = *u.SentimentReport
	}
	if u.NewsReport != nil {
		s.NewsReport = *u.NewsReport
	}
	if u.FundamentalsReport != nil {
		s.FundamentalsReport = *u.FundamentalsReport
	}
	if u.InvestmentPlan != nil {
		s.InvestmentPlan = *u.InvestmentPlan
	}
	if u.TraderPlan != nil {
		s.TraderInvestmentPlan = *u.TraderPlan
	}
	if u.FinalTradeDecision != nil {
		s.FinalTradeDecision = *u.FinalTradeDecision
	}
	if u.RiskAssessment != nil {
		s.RiskAssessment = *u.RiskAssessment
	}
	if u.InvestmentDebate != nil {
		applyDebateDelta(&s.InvestmentDebate, u.InvestmentDebate)
	}
	if u.RiskDebate != nil {
		applyDebateDelta(&s.RiskDebate, u.RiskDebate)
	}
	if u.ParallelPerformance != nil {
		s.ParallelPerformance = u.ParallelPerformance
	}
}

func applyDebateDelta(d *state.DebateState, delta *DebateDelta) {
	d.History = appendTranscript(d.History, delta.AppendHistory)
	d.BullHistory = appendTranscript(d.BullHistory, delta.AppendBull)
	d.BearHistory = appendTranscript(d.BearHistory, delta.AppendBear)
	d.RiskyHistory = appendTranscript(d.RiskyHistory, delta.AppendRisky)
	d.SafeHistory = appendTranscript(d.SafeHistory, delta.AppendSafe)
	d.NeutralHistory = appendTranscript(d.NeutralHistory, delta.AppendNeutral)
	if delta.IncrementCount {
		d.Count++
	}
	if delta.LatestSpeaker != "" {
		d.LatestSpeaker = delta.LatestSpeaker
	}
	if delta.JudgeDecision != "" {
		d.JudgeDecision = delta.JudgeDecision
	}
}

func appendTranscript(existing, addition string) string {
	if addition == "" {
		return existing
	}
	if existing == "" {
		return addition
	}
	return existing + "\n" + addition
}
