// Package tradingagents wires the cache layer, data provider registry,
// tool dispatcher, analyst nodes, parallel executor, and workflow graph
// into the two runnable topologies: a sequential analyst/tools/clean
// chain, and a single parallel-analysts node. This is the assembly
// point the package layout forces: internal/agent imports internal/graph
// (an analyst NodeConfig builds a graph.Node), so topology-construction
// code that needs both agent.NodeConfig and the debate nodes in
// internal/graph cannot live inside internal/graph itself without an
// import cycle.
package tradingagents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seenimoa/tradingagents/internal/agent"
	"github.com/seenimoa/tradingagents/internal/cache"
	"github.com/seenimoa/tradingagents/internal/config"
	"github.com/seenimoa/tradingagents/internal/dataprovider"
	"github.com/seenimoa/tradingagents/internal/dataprovider/cnvendor"
	"github.com/seenimoa/tradingagents/internal/dataprovider/globalvendor"
	"github.com/seenimoa/tradingagents/internal/dataprovider/hkvendor"
	"github.com/seenimoa/tradingagents/internal/dataprovider/usvendor"
	"github.com/seenimoa/tradingagents/internal/decision"
	"github.com/seenimoa/tradingagents/internal/graph"
	"github.com/seenimoa/tradingagents/internal/llm"
	"github.com/seenimoa/tradingagents/internal/market"
	"github.com/seenimoa/tradingagents/internal/parallel"
	"github.com/seenimoa/tradingagents/internal/state"
	"github.com/seenimoa/tradingagents/internal/tool"
)

// ResearchDepthProfile resolves research depth 1-5 into debate-round
// caps and a model complexity hint.
type ResearchDepthProfile struct {
	MaxDebateRounds      int
	MaxRiskDiscussRounds int
	Complexity           llm.TaskComplexity
}

// ProfileForDepth maps a 1-5 research_depth value onto its profile,
// clamping out-of-range values to the nearest valid depth.
func ProfileForDepth(depth int) ResearchDepthProfile {
	switch {
	case depth <= 1:
		return ResearchDepthProfile{MaxDebateRounds: 1, MaxRiskDiscussRounds: 1, Complexity: llm.TaskSimple}
	case depth == 2:
		return ResearchDepthProfile{MaxDebateRounds: 1, MaxRiskDiscussRounds: 1, Complexity: llm.TaskSimple}
	case depth == 3:
		return ResearchDepthProfile{MaxDebateRounds: 2, MaxRiskDiscussRounds: 1, Complexity: llm.TaskModerate}
	case depth == 4:
		return ResearchDepthProfile{MaxDebateRounds: 3, MaxRiskDiscussRounds: 2, Complexity: llm.TaskComplex}
	default:
		return ResearchDepthProfile{MaxDebateRounds: 4, MaxRiskDiscussRounds: 2, Complexity: llm.TaskComplex}
	}
}

// BuildProviderRegistry wires the CN-A/HK/US vendor adapters plus the
// market-agnostic news fallback onto a fresh dataprovider.Registry, per
// data_sources.default.
func BuildProviderRegistry(cfg *config.Config, cm cache.Manager, logger *slog.Logger) *dataprovider.Registry {
	reg := dataprovider.NewRegistry(cm, logger)

	cn := cnvendor.New(cnvendor.Source(cfg.DataSources.DefaultChina), cfg.DataSources.CNBaseURL)
	hk := hkvendor.New(cfg.DataSources.HKBaseURL)
	us := usvendor.New()
	news := globalvendor.New()

	for _, cap := range []dataprovider.Capability{
		dataprovider.CapQuote, dataprovider.CapHistorical, dataprovider.CapFundamentals,
		dataprovider.CapProfile, dataprovider.CapNews,
		dataprovider.CapCapitalFlowRealtime, dataprovider.CapCapitalFlowDaily,
		dataprovider.CapConceptList, dataprovider.CapConceptStocks, dataprovider.CapConceptCapitalFlow,
		dataprovider.CapDividendHistory,
	} {
		reg.Register(cap, cn)
	}
	for _, cap := range []dataprovider.Capability{
		dataprovider.CapQuote, dataprovider.CapHistorical, dataprovider.CapFundamentals,
		dataprovider.CapProfile, dataprovider.CapNews,
	} {
		reg.Register(cap, hk)
	}
	for _, cap := range []dataprovider.Capability{
		dataprovider.CapQuote, dataprovider.CapHistorical, dataprovider.CapProfile,
	} {
		reg.Register(cap, us)
	}
	reg.Register(dataprovider.CapNews, news)
	reg.Register(dataprovider.CapSocial, news)

	return reg
}

// BuildCacheManager builds the Cache Layer's memory+file backend chain
// from cfg.
func BuildCacheManager(cfg *config.Config) (*cache.UnifiedManager, error) {
	mem := cache.NewMemoryBackend(cfg.Cache.MemoryMaxItems)
	file, err := cache.NewFileBackend(cfg.Cache.Dir)
	if err != nil {
		return nil, fmt.Errorf("tradingagents: building file cache backend: %w", err)
	}
	// Hot keys keep live data around longer; the floors stop a cold key
	// from expiring faster than one refresh interval.
	policy := cache.NewSmartTTLPolicy(
		cache.TTLRule{Pattern: "quote:*", BaseTTL: 5 * time.Minute, AccessFactor: 4.0, TimeDecay: 0.8, MinTTL: time.Minute, MaxTTL: 15 * time.Minute},
		cache.TTLRule{Pattern: "capital_flow_*", BaseTTL: 5 * time.Minute, AccessFactor: 4.0, TimeDecay: 0.8, MinTTL: time.Minute, MaxTTL: 15 * time.Minute},
		cache.TTLRule{Pattern: "historical:*", BaseTTL: 30 * time.Minute, AccessFactor: 3.0, MinTTL: 10 * time.Minute, MaxTTL: 90 * time.Minute},
		cache.TTLRule{Pattern: "news:*", BaseTTL: 15 * time.Minute, AccessFactor: 3.0, MinTTL: 5 * time.Minute, MaxTTL: 45 * time.Minute},
	)
	return cache.NewUnifiedManager(mem, []cache.Backend{file}, policy), nil
}

// registerAnalystTools binds every role's tools onto reg in one pass —
// toolsets are fixed per role, not configurable per run.
func registerAnalystTools(reg *tool.Registry, dp *dataprovider.Registry) {
	agent.RegisterMarketTools(reg, dp)
	agent.RegisterSocialTools(reg, dp)
	agent.RegisterNewsTools(reg, dp)
	agent.RegisterFundamentalsTools(reg, dp)
}

// analystNodeConfigs builds the four analyst NodeConfigs bound against
// reg/provider, keyed by role.
func analystNodeConfigs(reg *tool.Registry, provider llm.LLMProvider, maxToolIterations int) map[state.AnalystRole]agent.NodeConfig {
	return map[state.AnalystRole]agent.NodeConfig{
		state.RoleMarket:       agent.MarketNodeConfig(reg, provider, maxToolIterations),
		state.RoleSocial:       agent.SocialNodeConfig(reg, provider, maxToolIterations),
		state.RoleNews:         agent.NewsNodeConfig(reg, provider, maxToolIterations),
		state.RoleFundamentals: agent.FundamentalsNodeConfig(reg, provider, maxToolIterations),
	}
}

// analystOrder is the canonical sequential-topology walk order.
var analystOrder = []state.AnalystRole{
	state.RoleMarket, state.RoleSocial, state.RoleNews, state.RoleFundamentals,
}

// buildSequentialGraph assembles topology 1: for each selected role, an
// M_i (BuildStepNode) → conditional edge → T_i (ToolsNode) → back to M_i,
// or on no-tool-calls → C_i (CleanNode) → next role's M_i. After the
// last analyst, the graph continues into the bull/bear debate, research
// manager, trader, risk debate, and risk judge.
func buildSequentialGraph(roles []state.AnalystRole, configs map[state.AnalystRole]agent.NodeConfig, reg *tool.Registry, dcfg graph.DebateConfig) *graph.Graph {
	g := graph.New()

	prev := graph.START
	for _, role := range roles {
		cfg := configs[role]
		mName := "analyst_" + string(role)
		tName := "tools_" + string(role)
		cName := "clean_" + string(role)

		g.AddNode(mName, cfg.BuildStepNode())
		g.AddNode(tName, agent.ToolsNode(reg))
		g.AddNode(cName, agent.CleanNode(role))

		g.AddConditionalEdge(mName, toolCallSelector, map[string]string{
			"tools": tName,
			"done":  cName,
		})
		g.AddEdge(tName, mName)
		g.AddEdge(prev, mName)
		prev = cName
	}

	wireDebateStages(g, prev, dcfg)
	return g
}

// buildParallelGraph assembles topology 2: a single ParallelAnalysts node
// (wrapping the bounded parallel executor over the selected roles) feeds
// directly into the debate stages.
func buildParallelGraph(roles []state.AnalystRole, configs map[state.AnalystRole]agent.NodeConfig, opts parallel.Options, dcfg graph.DebateConfig) *graph.Graph {
	g := graph.New()

	nodes := make(map[state.AnalystRole]graph.Node, len(roles))
	for _, role := range roles {
		nodes[role] = configs[role].BuildNode()
	}

	g.AddNode("parallel_analysts", func(ctx context.Context, s *state.AgentState) (graph.Update, error) {
		return parallel.Run(ctx, s, nodes, opts), nil
	})
	g.AddEdge(graph.START, "parallel_analysts")

	wireDebateStages(g, "parallel_analysts", dcfg)
	return g
}

// wireDebateStages appends the shared post-analyst stage chain (bull/bear
// alternation, research manager, trader, risky/safe/neutral alternation,
// risk judge, END) after fromNode, identically for both topologies.
func wireDebateStages(g *graph.Graph, fromNode string, dcfg graph.DebateConfig) {
	g.AddNode("bull_researcher", graph.BullResearcherNode(dcfg))
	g.AddNode("bear_researcher", graph.BearResearcherNode(dcfg))
	g.AddNode("research_manager", graph.ResearchManagerNode(dcfg))
	g.AddNode("trader", graph.TraderNode(dcfg))
	g.AddNode("risky_debator", graph.RiskyDebatorNode(dcfg))
	g.AddNode("safe_debator", graph.SafeDebatorNode(dcfg))
	g.AddNode("neutral_debator", graph.NeutralDebatorNode(dcfg))
	g.AddNode("risk_judge", graph.RiskJudgeNode(dcfg))

	g.AddEdge(fromNode, "bull_researcher")
	g.AddConditionalEdge("bull_researcher", graph.InvestmentDebateSelector(dcfg), map[string]string{
		"continue": "bear_researcher",
		"done":     "research_manager",
	})
	g.AddConditionalEdge("bear_researcher", graph.InvestmentDebateSelector(dcfg), map[string]string{
		"continue": "bull_researcher",
		"done":     "research_manager",
	})
	g.AddEdge("research_manager", "trader")
	g.AddEdge("trader", "risky_debator")

	g.AddConditionalEdge("risky_debator", graph.RiskDebateSelector(dcfg), map[string]string{
		"continue": "safe_debator",
		"done":     "risk_judge",
	})
	g.AddConditionalEdge("safe_debator", graph.RiskDebateSelector(dcfg), map[string]string{
		"continue": "neutral_debator",
		"done":     "risk_judge",
	})
	g.AddConditionalEdge("neutral_debator", graph.RiskDebateSelector(dcfg), map[string]string{
		"continue": "risky_debator",
		"done":     "risk_judge",
	})
	g.AddEdge("risk_judge", graph.END)
}

// toolCallSelector routes an analyst step node to its tools node when its
// latest message carries tool calls, else to its clean node.
func toolCallSelector(s *state.AgentState) string {
	if len(s.Messages) == 0 {
		return "done"
	}
	last := s.Messages[len(s.Messages)-1]
	if len(last.ToolCalls) > 0 {
		return "tools"
	}
	return "done"
}

// Run executes one full analysis for ticker as of tradeDate, using the
// analyst roles selected, at the given research depth, against cfg. It
// builds the model router from cfg.LLM via llm.NewRouterFromConfig, then
// delegates to RunWithProvider.
func Run(ctx context.Context, ticker, tradeDate string, roles []state.AnalystRole, researchDepth int, cfg *config.Config) (*state.AgentState, *decision.Envelope, error) {
	router, err := llm.NewRouterFromConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("tradingagents: %w", err)
	}
	return RunWithProvider(ctx, router, ticker, tradeDate, roles, researchDepth, cfg)
}

// RunWithProvider is Run with an explicit model client — the entry point
// cmd/tradingagents and Run itself use, and the one integration tests
// drive directly against a stub llm.LLMProvider so a test run never
// depends on a live model endpoint. It classifies the ticker's market,
// builds the cache/provider/tool registries, constructs either the
// sequential or parallel topology per cfg.Run.ParallelAnalysts, drives
// the graph to completion, and parses the final decision envelope.
// RunWithProvider never panics on a degraded analyst or debate turn —
// see the never-raise contracts on internal/agent, internal/dataprovider,
// and internal/tool — but it does return an error for ticker
// classification failure, cache backend construction failure, and
// *graph.ErrGraphStuck.
func RunWithProvider(ctx context.Context, provider llm.LLMProvider, ticker, tradeDate string, roles []state.AnalystRole, researchDepth int, cfg *config.Config) (*state.AgentState, *decision.Envelope, error) {
	info, err := market.Classify(ticker)
	if err != nil {
		return nil, nil, fmt.Errorf("tradingagents: %w", err)
	}

	cm, err := BuildCacheManager(cfg)
	if err != nil {
		return nil, nil, err
	}
	defer cm.Close()

	dp := BuildProviderRegistry(cfg, cm, slog.Default())

	reg := tool.NewRegistry()
	registerAnalystTools(reg, dp)

	if len(roles) == 0 {
		roles = analystOrder
	}

	maxToolIterations := cfg.Run.MaxToolIterations
	if maxToolIterations <= 0 {
		maxToolIterations = 10
	}
	configs := analystNodeConfigs(reg, provider, maxToolIterations)

	profile := ProfileForDepth(researchDepth)
	dcfg := graph.DebateConfig{
		Provider:             provider,
		MaxDebateRounds:      profile.MaxDebateRounds,
		MaxRiskDiscussRounds: profile.MaxRiskDiscussRounds,
	}

	var g *graph.Graph
	if cfg.Run.ParallelAnalysts {
		opts := parallel.Options{
			MaxWorkers:     cfg.Run.MaxParallelWorkers,
			AnalystTimeout: time.Duration(cfg.Run.AnalystTimeoutSec) * time.Second,
		}
		g = buildParallelGraph(roles, configs, opts, dcfg)
	} else {
		g = buildSequentialGraph(roles, configs, reg, dcfg)
	}

	s := state.New(info.Symbol, tradeDate)
	s.Market = info.Market
	s.Currency = info.Currency
	s.ParallelAnalysts = cfg.Run.ParallelAnalysts

	maxRecur := cfg.Run.MaxGraphRecursion
	final, err := g.Run(ctx, s, maxRecur)
	if err != nil {
		return nil, nil, fmt.Errorf("tradingagents: %w", err)
	}

	envelope := decision.Parse(final.FinalTradeDecision)
	return final, &envelope, nil
}
