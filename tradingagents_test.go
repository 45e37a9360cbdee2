package tradingagents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/seenimoa/tradingagents/internal/config"
	"github.com/seenimoa/tradingagents/internal/decision"
	"github.com/seenimoa/tradingagents/internal/graph"
	"github.com/seenimoa/tradingagents/internal/llm"
	"github.com/seenimoa/tradingagents/internal/market"
	"github.com/seenimoa/tradingagents/internal/state"
)

// stubModel is a scripted LLMProvider safe for concurrent branches. When
// emitToolCall is set it answers the first turn of each analyst exchange
// with one call to the first bound tool, then (once the transcript ends
// on a tool result) returns finalContent; otherwise it always returns
// finalContent. Debate/trader turns bind no tools and so always receive
// finalContent.
type stubModel struct {
	mu           sync.Mutex
	calls        int
	emitToolCall bool
	finalContent string
}

func (m *stubModel) Name() string                   { return "stub" }
func (m *stubModel) Models() []string               { return []string{"stub-model"} }
func (m *stubModel) Ping(ctx context.Context) error { return nil }

func (m *stubModel) Chat(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts *llm.ChatOptions) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.emitToolCall && len(tools) > 0 && len(messages) > 0 &&
		messages[len(messages)-1].Role != llm.RoleTool {
		args, _ := json.Marshal(map[string]string{"ticker": "002115"})
		return &llm.Response{
			ToolCalls: []llm.ToolCall{{
				ID:        fmt.Sprintf("call-%d", m.calls),
				Name:      tools[0].Name,
				Arguments: args,
			}},
			FinishReason: llm.FinishToolCalls,
		}, nil
	}
	return &llm.Response{Content: m.finalContent, FinishReason: llm.FinishStop}, nil
}

// newVendorServer serves a minimal JSON document for every CN-vendor
// endpoint so provider dispatch succeeds without a live upstream.
func newVendorServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"rows": [{"date": "2025-05-09", "close": 12.3, "volume": 100}]}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, vendorURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Cache: config.CacheConfig{Dir: t.TempDir(), MemoryMaxItems: 128},
		DataSources: config.DataSourcesConfig{
			DefaultChina: "tushare",
			CNBaseURL:    vendorURL,
			HKBaseURL:    vendorURL,
		},
		Run: config.RunConfig{
			MaxParallelWorkers: 4,
			AnalystTimeoutSec:  60,
			MaxGraphRecursion:  100,
			MaxToolIterations:  10,
			OnlineToolsEnabled: true,
		},
	}
}

func TestSequentialSingleAnalystRun(t *testing.T) {
	srv := newVendorServer(t)
	content := "FINAL TRANSACTION PROPOSAL: **HOLD**\nObserve market."
	model := &stubModel{finalContent: content}

	s, env, err := RunWithProvider(context.Background(), model, "002115", "2025-05-10",
		[]state.AnalystRole{state.RoleMarket}, 1, testConfig(t, srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.Action != decision.Hold {
		t.Fatalf("expected HOLD, got %s", env.Action)
	}
	if env.Reasoning == "" {
		t.Fatal("expected non-empty reasoning")
	}
	if s.MarketReport != content {
		t.Fatalf("unexpected market report: %q", s.MarketReport)
	}
	if s.InvestmentDebate.Count > 2 {
		t.Fatalf("investment debate exceeded its bound: %d", s.InvestmentDebate.Count)
	}
	if s.RiskDebate.Count > 3 {
		t.Fatalf("risk debate exceeded its bound: %d", s.RiskDebate.Count)
	}
	if s.InvestmentPlan == "" || s.TraderInvestmentPlan == "" || s.FinalTradeDecision == "" {
		t.Fatal("expected every post-analyst stage to have written its field")
	}

	// The sequential topology's cleaning node strips each analyst's
	// tool-call/tool-result scratch before the next stage, so none of it
	// survives into the final transcript.
	for _, msg := range s.Messages {
		if msg.Role == llm.RoleTool || len(msg.ToolCalls) > 0 {
			t.Fatalf("expected no tool scratch in the final transcript, found %+v", msg)
		}
	}
}

func TestParallelAnalystsWithToolCalls(t *testing.T) {
	srv := newVendorServer(t)
	model := &stubModel{emitToolCall: true, finalContent: "FINAL TRANSACTION PROPOSAL: **BUY**"}

	cfg := testConfig(t, srv.URL)
	cfg.Run.ParallelAnalysts = true

	s, env, err := RunWithProvider(context.Background(), model, "002115", "2025-05-10",
		[]state.AnalystRole{state.RoleMarket, state.RoleFundamentals}, 3, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.Action != decision.Buy {
		t.Fatalf("expected BUY, got %s", env.Action)
	}
	if s.MarketReport != "FINAL TRANSACTION PROPOSAL: **BUY**" {
		t.Fatalf("unexpected market report: %q", s.MarketReport)
	}
	if s.FundamentalsReport != "FINAL TRANSACTION PROPOSAL: **BUY**" {
		t.Fatalf("unexpected fundamentals report: %q", s.FundamentalsReport)
	}

	// Every emitted tool call must have been answered before its branch's
	// next model turn; the merged transcript therefore carries one tool
	// result per analyst role, each referencing the id it answers.
	toolResults := 0
	for _, msg := range s.Messages {
		if msg.Role == llm.RoleTool {
			if msg.ToolCallID == "" {
				t.Fatalf("tool result without a call id: %+v", msg)
			}
			toolResults++
		}
	}
	if toolResults != 2 {
		t.Fatalf("expected 2 tool results (one per role), got %d", toolResults)
	}

	pp := s.ParallelPerformance
	if pp == nil {
		t.Fatal("expected a parallel-performance diagnostic block")
	}
	if len(pp.PerRole) != 2 || pp.Overall.SuccessRate != 1.0 {
		t.Fatalf("unexpected diagnostics: %+v", pp)
	}
	for role, perf := range pp.PerRole {
		if !perf.Success || perf.ReportLength == 0 {
			t.Fatalf("role %s did not complete cleanly: %+v", role, perf)
		}
	}
}

func TestNewsRunDegradesWhenProvidersFail(t *testing.T) {
	// No vendor server: the HK vendor is unreachable and the RSS
	// sweep finds nothing for the ticker, so the tool answers with a
	// no-data notice and the run must still conclude.
	content := "FINAL TRANSACTION PROPOSAL: **HOLD**\nnews coverage was unavailable for this ticker."
	model := &stubModel{finalContent: content}

	cfg := testConfig(t, "http://127.0.0.1:0")
	s, env, err := RunWithProvider(context.Background(), model, "0700.HK", "2024-05-10",
		[]state.AnalystRole{state.RoleNews}, 3, cfg)
	if err != nil {
		t.Fatalf("a degraded data path must not fail the run: %v", err)
	}

	if env.Action != decision.Hold {
		t.Fatalf("expected HOLD, got %s", env.Action)
	}
	if !strings.Contains(strings.ToLower(s.NewsReport), "news") {
		t.Fatalf("expected the news report to mention news, got %q", s.NewsReport)
	}
}

func TestRunRejectsInvalidTicker(t *testing.T) {
	model := &stubModel{finalContent: "irrelevant"}
	_, _, err := RunWithProvider(context.Background(), model, "700", "2024-05-10",
		[]state.AnalystRole{state.RoleMarket}, 1, testConfig(t, "http://127.0.0.1:0"))
	if !errors.Is(err, market.ErrInvalidTicker) {
		t.Fatalf("expected ErrInvalidTicker, got %v", err)
	}
}

func TestRunFailsFatallyOnRecursionCap(t *testing.T) {
	srv := newVendorServer(t)
	model := &stubModel{finalContent: "FINAL TRANSACTION PROPOSAL: **HOLD**"}

	cfg := testConfig(t, srv.URL)
	cfg.Run.MaxGraphRecursion = 1

	s, _, err := RunWithProvider(context.Background(), model, "002115", "2025-05-10",
		[]state.AnalystRole{state.RoleMarket}, 1, cfg)
	var stuck *graph.ErrGraphStuck
	if !errors.As(err, &stuck) {
		t.Fatalf("expected ErrGraphStuck, got %v", err)
	}
	if s != nil {
		t.Fatal("a stuck run must not return partial output")
	}
}

func TestProfileForDepth(t *testing.T) {
	cases := []struct {
		depth      int
		debate     int
		risk       int
		complexity llm.TaskComplexity
	}{
		{0, 1, 1, llm.TaskSimple},
		{1, 1, 1, llm.TaskSimple},
		{2, 1, 1, llm.TaskSimple},
		{3, 2, 1, llm.TaskModerate},
		{4, 3, 2, llm.TaskComplex},
		{5, 4, 2, llm.TaskComplex},
		{9, 4, 2, llm.TaskComplex},
	}
	for _, c := range cases {
		p := ProfileForDepth(c.depth)
		if p.MaxDebateRounds != c.debate || p.MaxRiskDiscussRounds != c.risk || p.Complexity != c.complexity {
			t.Errorf("depth %d: got %+v", c.depth, p)
		}
	}
}
