// Debate/research/trading/risk nodes: the
// bull/bear investment debate, the research manager's synthesis, the
// trader, and the risky/safe/neutral risk debate through the risk judge.
// These consume accumulated report slots and debate transcripts directly
// from state.AgentState rather than driving a tool loop, so — unlike the
// Analyst Node (internal/agent) — they call the model client once per
// turn with no bound toolset. Prompt text is supplied by
// internal/agent/prompts (kept import-cycle-free: prompts depends on
// neither graph nor agent).
package graph

import (
	"context"
	"fmt"

	"github.com/seenimoa/tradingagents/internal/agent/prompts"
	"github.com/seenimoa/tradingagents/internal/llm"
	"github.com/seenimoa/tradingagents/internal/state"
)

// DebateConfig configures the post-analyst stage nodes: the model handle
// they call through and the round caps that bound the investment and
// risk debates.
type DebateConfig struct {
	Provider             llm.LLMProvider
	MaxDebateRounds      int
	MaxRiskDiscussRounds int
	ChatOptions          *llm.ChatOptions
}

func (c DebateConfig) debateRounds() int {
	if c.MaxDebateRounds <= 0 {
		return 1
	}
	return c.MaxDebateRounds
}

func (c DebateConfig) riskRounds() int {
	if c.MaxRiskDiscussRounds <= 0 {
		return 1
	}
	return c.MaxRiskDiscussRounds
}

// reportsBlock concatenates every populated analyst report slot into one
// labeled block for the research debate's prompts.
func reportsBlock(s *state.AgentState) string {
	out := ""
	add := func(label, body string) {
		if body == "" {
			return
		}
		if out != "" {
			out += "\n\n"
		}
		out += "### " + label + "\n" + body
	}
	add("Market Analyst", s.MarketReport)
	add("Social Media Analyst", s.SentimentReport)
	add("News Analyst", s.NewsReport)
	add("Fundamentals Analyst", s.FundamentalsReport)
	if out == "" {
		return "(no analyst reports available)"
	}
	return out
}

// callOnce sends a single user-role prompt through provider with no bound
// tools, returning the response content or a short failure notice — the
// same never-raise contract the analyst nodes apply to model errors,
// extended to the debate/trader/risk stages so a transient model
// failure degrades one turn's content instead of failing the whole run.
func callOnce(ctx context.Context, provider llm.LLMProvider, label, prompt string, opts *llm.ChatOptions) string {
	resp, err := provider.Chat(ctx, []llm.Message{llm.UserMessage(prompt)}, nil, opts)
	if err != nil {
		return fmt.Sprintf("%s failed: %v", label, err)
	}
	return resp.Content
}

// BullResearcherNode returns the Bull Researcher's turn.
func BullResearcherNode(cfg DebateConfig) Node {
	return func(ctx context.Context, s *state.AgentState) (Update, error) {
		prompt := prompts.BullResearcherPrompt(reportsBlock(s), s.InvestmentDebate.History)
		content := callOnce(ctx, cfg.Provider, prompts.AgentBullResearcher, prompt, cfg.ChatOptions)
		return Update{
			Sender:         prompts.AgentBullResearcher,
			AppendMessages: []llm.Message{llm.AssistantMessage(content)},
			InvestmentDebate: &DebateDelta{
				AppendBull:     content,
				AppendHistory:  "Bull: " + content,
				IncrementCount: true,
			},
		}, nil
	}
}

// BearResearcherNode returns the Bear Researcher's turn.
func BearResearcherNode(cfg DebateConfig) Node {
	return func(ctx context.Context, s *state.AgentState) (Update, error) {
		prompt := prompts.BearResearcherPrompt(reportsBlock(s), s.InvestmentDebate.History)
		content := callOnce(ctx, cfg.Provider, prompts.AgentBearResearcher, prompt, cfg.ChatOptions)
		return Update{
			Sender:         prompts.AgentBearResearcher,
			AppendMessages: []llm.Message{llm.AssistantMessage(content)},
			InvestmentDebate: &DebateDelta{
				AppendBear:     content,
				AppendHistory:  "Bear: " + content,
				IncrementCount: true,
			},
		}, nil
	}
}

// ResearchManagerNode synthesizes the bull/bear debate into the
// investment plan. It runs exactly once per run — the
// sequential/parallel topology builders wire it with only unconditional
// edges in and out, never under the debate selector.
func ResearchManagerNode(cfg DebateConfig) Node {
	return func(ctx context.Context, s *state.AgentState) (Update, error) {
		prompt := prompts.ResearchManagerPrompt(reportsBlock(s), s.InvestmentDebate.History)
		content := callOnce(ctx, cfg.Provider, prompts.AgentResearchMgr, prompt, cfg.ChatOptions)
		return Update{
			Sender:           prompts.AgentResearchMgr,
			AppendMessages:   []llm.Message{llm.AssistantMessage(content)},
			InvestmentPlan:   Str(content),
			InvestmentDebate: &DebateDelta{JudgeDecision: content},
		}, nil
	}
}

// TraderNode translates the investment plan into a trading stance.
func TraderNode(cfg DebateConfig) Node {
	return func(ctx context.Context, s *state.AgentState) (Update, error) {
		prompt := prompts.TraderPrompt(s.CompanyOfInterest, s.Currency, s.InvestmentPlan)
		content := callOnce(ctx, cfg.Provider, prompts.AgentTrader, prompt, cfg.ChatOptions)
		return Update{
			Sender:         prompts.AgentTrader,
			AppendMessages: []llm.Message{llm.AssistantMessage(content)},
			TraderPlan:     Str(content),
		}, nil
	}
}

// RiskyDebatorNode argues the aggressive risk stance.
func RiskyDebatorNode(cfg DebateConfig) Node {
	return func(ctx context.Context, s *state.AgentState) (Update, error) {
		prompt := prompts.RiskyDebatorPrompt(s.TraderInvestmentPlan, s.RiskDebate.History)
		content := callOnce(ctx, cfg.Provider, prompts.AgentRiskyDebator, prompt, cfg.ChatOptions)
		return Update{
			Sender:         prompts.AgentRiskyDebator,
			AppendMessages: []llm.Message{llm.AssistantMessage(content)},
			RiskDebate: &DebateDelta{
				AppendRisky:    content,
				AppendHistory:  "Risky: " + content,
				IncrementCount: true,
				LatestSpeaker:  prompts.AgentRiskyDebator,
			},
		}, nil
	}
}

// SafeDebatorNode argues the conservative risk stance.
func SafeDebatorNode(cfg DebateConfig) Node {
	return func(ctx context.Context, s *state.AgentState) (Update, error) {
		prompt := prompts.SafeDebatorPrompt(s.TraderInvestmentPlan, s.RiskDebate.History)
		content := callOnce(ctx, cfg.Provider, prompts.AgentSafeDebator, prompt, cfg.ChatOptions)
		return Update{
			Sender:         prompts.AgentSafeDebator,
			AppendMessages: []llm.Message{llm.AssistantMessage(content)},
			RiskDebate: &DebateDelta{
				AppendSafe:     content,
				AppendHistory:  "Safe: " + content,
				IncrementCount: true,
				LatestSpeaker:  prompts.AgentSafeDebator,
			},
		}, nil
	}
}

// NeutralDebatorNode argues the balanced risk stance.
func NeutralDebatorNode(cfg DebateConfig) Node {
	return func(ctx context.Context, s *state.AgentState) (Update, error) {
		prompt := prompts.NeutralDebatorPrompt(s.TraderInvestmentPlan, s.RiskDebate.History)
		content := callOnce(ctx, cfg.Provider, prompts.AgentNeutralDebator, prompt, cfg.ChatOptions)
		return Update{
			Sender:         prompts.AgentNeutralDebator,
			AppendMessages: []llm.Message{llm.AssistantMessage(content)},
			RiskDebate: &DebateDelta{
				AppendNeutral:  content,
				AppendHistory:  "Neutral: " + content,
				IncrementCount: true,
				LatestSpeaker:  prompts.AgentNeutralDebator,
			},
		}, nil
	}
}

// RiskJudgeNode is the sole writer of FinalTradeDecision and
// RiskAssessment. It runs exactly once, immediately before END.
func RiskJudgeNode(cfg DebateConfig) Node {
	return func(ctx context.Context, s *state.AgentState) (Update, error) {
		prompt := prompts.RiskJudgePrompt(s.TraderInvestmentPlan, s.RiskDebate.History)
		content := callOnce(ctx, cfg.Provider, prompts.AgentRiskJudge, prompt, cfg.ChatOptions)
		return Update{
			Sender:             prompts.AgentRiskJudge,
			AppendMessages:     []llm.Message{llm.AssistantMessage(content)},
			FinalTradeDecision: Str(content),
			RiskAssessment:     Str(content),
			RiskDebate:         &DebateDelta{JudgeDecision: content},
		}, nil
	}
}

// InvestmentDebateSelector routes Bull/Bear alternation: "continue" while
// the cap isn't reached, "done" once investment_debate_state.count
// reaches 2×maxDebateRounds.
func InvestmentDebateSelector(cfg DebateConfig) Selector {
	cap := 2 * cfg.debateRounds()
	return func(s *state.AgentState) string {
		if s.InvestmentDebate.Count < cap {
			return "continue"
		}
		return "done"
	}
}

// RiskDebateSelector routes the risky/safe/neutral alternation: "continue"
// while the cap isn't reached, "done" once risk_debate_state.count
// reaches 3×maxRiskDiscussRounds.
func RiskDebateSelector(cfg DebateConfig) Selector {
	cap := 3 * cfg.riskRounds()
	return func(s *state.AgentState) string {
		if s.RiskDebate.Count < cap {
			return "continue"
		}
		return "done"
	}
}
