package agent

import (
	"context"
	"fmt"

	"github.com/seenimoa/tradingagents/internal/agent/prompts"
	"github.com/seenimoa/tradingagents/internal/dataprovider"
	"github.com/seenimoa/tradingagents/internal/llm"
	"github.com/seenimoa/tradingagents/internal/state"
	"github.com/seenimoa/tradingagents/internal/tool"
)

// RegisterSocialTools binds the Social Media Analyst's data-fetch tool
// against the provider registry's social-sentiment capability.
func RegisterSocialTools(reg *tool.Registry, dp *dataprovider.Registry) {
	reg.Register(tool.Descriptor{
		Name:        "get_social_sentiment",
		Description: "Fetch recent social/retail sentiment mentions and scoring inputs for a ticker.",
		ArgSpec: []tool.ArgSpec{
			{Name: "ticker", Type: tool.TypeString, Required: true, IsTicker: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			ticker := args["ticker"].(string)
			res := dp.Fetch(ctx, dataprovider.CapSocial, ticker)
			if len(res.Payload) == 0 {
				return fmt.Sprintf("no social sentiment data available for %s", ticker), nil
			}
			return truncate(string(res.Payload)), nil
		},
	})
}

// SocialNodeConfig returns the analyst-node configuration for the Social
// Media Analyst role.
func SocialNodeConfig(reg *tool.Registry, provider llm.LLMProvider, maxIterations int) NodeConfig {
	toolNames := []string{"get_social_sentiment"}
	return NodeConfig{
		Role:          state.RoleSocial,
		Registry:      reg,
		ToolNames:     toolNames,
		Provider:      provider,
		MaxIterations: maxIterations,
		SystemPrompt: func(t state.Ticker, tradeDate string, tools []string) string {
			return prompts.SocialSystemPrompt(t.Symbol, t.Market, t.Currency, tradeDate, tools)
		},
		PrimaryTool: "get_social_sentiment",
		PrimaryArgs: func(t state.Ticker, tradeDate string) map[string]any {
			return map[string]any{"ticker": t.Symbol}
		},
	}
}
