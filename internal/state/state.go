// Package state defines AgentState, the shared mutable record threaded
// through every node of a single analysis run: the
// ticker under study, the append-only message log, the per-role report
// slots, and the investment/risk debate sub-records. Nodes never mutate
// AgentState directly — they return an Update, and the graph driver
// (internal/graph) folds it into the run's state via the merge rules
// documented on Update.
package state

import (
	"time"

	"github.com/seenimoa/tradingagents/internal/llm"
)

// AnalystRole identifies one of the four analyst node roles.
type AnalystRole string

const (
	RoleMarket       AnalystRole = "market"
	RoleSocial       AnalystRole = "social"
	RoleNews         AnalystRole = "news"
	RoleFundamentals AnalystRole = "fundamentals"
)

// Ticker identifies the company under analysis plus its resolved market.
type Ticker struct {
	Symbol   string
	Market   string // "CN-A", "HK", "US"
	Currency string
}

// DebateState tracks one side of an alternating debate: a concatenated
// transcript, the per-speaker sub-transcripts, and a monotonically
// non-decreasing turn counter. Used for both the bull/bear investment
// debate and the risky/safe/neutral risk debate.
type DebateState struct {
	History        string
	BullHistory    string // investment debate only
	BearHistory    string // investment debate only
	RiskyHistory   string // risk debate only
	SafeHistory    string // risk debate only
	NeutralHistory string // risk debate only
	Count          int
	LatestSpeaker  string // risk debate only
	JudgeDecision  string
}

// AgentState is the mutable record threaded through every node of a run.
// Nodes read it and return an Update (internal/graph.Update); the driver
// merges updates field-by-field. AgentState itself is never shared
// between concurrently-running branches — Clone produces an isolated
// copy for the parallel executor.
type AgentState struct {
	CompanyOfInterest string
	TradeDate         string
	Market            string
	Currency          string

	// Messages is the single, ordered, append-only conversation log
	// shared across the whole run.
	Messages []llm.Message

	// Sender names the last node to have written to this state.
	Sender string

	// Report slots. Exactly one node writes each slot per run; debate
	// re-entries append to DebateState.History instead of overwriting
	// these.
	MarketReport          string
	SentimentReport       string
	NewsReport            string
	FundamentalsReport    string
	InvestmentPlan        string
	TraderInvestmentPlan  string
	FinalTradeDecision    string
	RiskAssessment        string

	InvestmentDebate DebateState
	RiskDebate       DebateState

	// ParallelAnalysts records which topology built this run's graph.
	// Diagnostic only: routing is decided once at graph-build time and
	// never reads this back.
	ParallelAnalysts bool

	// ParallelPerformance is populated only when the run used the
	// parallel-analysts topology.
	ParallelPerformance *ParallelPerformance

	StartedAt time.Time
}

// ParallelPerformance is the diagnostic block the parallel executor
// attaches after merging analyst branches.
type ParallelPerformance struct {
	PerRole map[AnalystRole]RolePerformance
	Overall OverallPerformance
}

// RolePerformance records one analyst branch's outcome.
type RolePerformance struct {
	Duration     time.Duration
	Success      bool
	Error        string
	ReportLength int
}

// OverallPerformance summarizes all branches of one parallel run.
type OverallPerformance struct {
	Duration    time.Duration
	SuccessRate float64
}

// New creates the initial state for a run. ticker is the raw,
// not-yet-classified symbol as supplied by the caller; callers should
// set Market/Currency/CompanyOfInterest from a market.Info after
// classification.
func New(ticker, tradeDate string) *AgentState {
	return &AgentState{
		CompanyOfInterest: ticker,
		TradeDate:         tradeDate,
		StartedAt:         time.Now(),
	}
}

// Clone returns a deep copy suitable for an isolated parallel branch:
// independent backing arrays for Messages and every debate-history
// field so concurrent branches never share memory.
func (s *AgentState) Clone() *AgentState {
	clone := *s
	clone.Messages = append([]llm.Message(nil), s.Messages...)
	if s.ParallelPerformance != nil {
		pp := *s.ParallelPerformance
		pp.PerRole = make(map[AnalystRole]RolePerformance, len(s.ParallelPerformance.PerRole))
		for k, v := range s.ParallelPerformance.PerRole {
			pp.PerRole[k] = v
		}
		clone.ParallelPerformance = &pp
	}
	return &clone
}

// AppendMessages appends msgs to the log in order, preserving the
// append-only invariant.
func (s *AgentState) AppendMessages(msgs ...llm.Message) {
	s.Messages = append(s.Messages, msgs...)
}

// ReportSlot reads a role's report slot.
func (s *AgentState) ReportSlot(role AnalystRole) string {
	switch role {
	case RoleMarket:
		return s.MarketReport
	case RoleSocial:
		return s.SentimentReport
	case RoleNews:
		return s.NewsReport
	case RoleFundamentals:
		return s.FundamentalsReport
	default:
		return ""
	}
}

// SetReportSlot writes a role's report slot.
func (s *AgentState) SetReportSlot(role AnalystRole, report string) {
	switch role {
	case RoleMarket:
		s.MarketReport = report
	case RoleSocial:
		s.SentimentReport = report
	case RoleNews:
		s.NewsReport = report
	case RoleFundamentals:
		s.FundamentalsReport = report
	}
}
