// Package agent builds analyst nodes: per role, a prompt-build,
// model-invoke, tool-loop, report-emit function shaped as a graph.Node.
// Each role binds its toolset once per node entry, answers every
// model-emitted tool call through tool.Dispatch, and writes exactly one
// report slot on the shared state. A role that cannot produce a report
// (model outage, exhausted providers) still writes a short failure
// notice into its slot so sibling analysts and downstream stages keep
// running.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/seenimoa/tradingagents/internal/graph"
	"github.com/seenimoa/tradingagents/internal/llm"
	"github.com/seenimoa/tradingagents/internal/state"
	"github.com/seenimoa/tradingagents/internal/tool"
)

// NodeConfig configures one analyst role's node construction.
type NodeConfig struct {
	Role     state.AnalystRole
	Registry *tool.Registry
	// ToolNames is the role's toolset, a subset of the names registered
	// in Registry.
	ToolNames []string
	Provider  llm.LLMProvider
	// FreshHandle, when set, is called once each time the node runs
	// instead of reusing Provider, for model families known to share
	// tool-binding state across calls; every model turn within that run
	// goes through the handle it returned.
	FreshHandle func() llm.LLMProvider
	// SystemPrompt builds the role's system prompt from the classified
	// ticker, trade date, and bound tool names.
	SystemPrompt func(t state.Ticker, tradeDate string, toolNames []string) string
	// PrimaryTool/PrimaryArgs implement forced tool invocation: when
	// the first model turn returns no tool calls but the role mandates
	// data acquisition, the node calls PrimaryTool itself.
	PrimaryTool string
	PrimaryArgs func(t state.Ticker, tradeDate string) map[string]any
	// MaxIterations caps the tool-calling loop.
	MaxIterations int
	ChatOptions   *llm.ChatOptions
}

func (c NodeConfig) handle() llm.LLMProvider {
	if c.FreshHandle != nil {
		return c.FreshHandle()
	}
	return c.Provider
}

func (c NodeConfig) tools() []llm.Tool {
	return tool.LLMTools(c.Registry.Toolset(c.ToolNames...))
}

func (c NodeConfig) ticker(s *state.AgentState) state.Ticker {
	return state.Ticker{Symbol: s.CompanyOfInterest, Market: s.Market, Currency: s.Currency}
}

func (c NodeConfig) maxIter() int {
	if c.MaxIterations <= 0 {
		return 10
	}
	return c.MaxIterations
}

// BuildNode returns a self-contained analyst node: it drives the full
// tool loop (dispatch, re-invoke, repeat) internally before returning.
// Used directly by the parallel-analysts topology. The sequential
// topology instead uses BuildStepNode/ToolsNode/CleanNode, which spread
// the same loop across three graph nodes and a conditional edge.
func (c NodeConfig) BuildNode() graph.Node {
	return func(ctx context.Context, s *state.AgentState) (graph.Update, error) {
		t := c.ticker(s)
		sys := llm.SystemMessage(c.SystemPrompt(t, s.TradeDate, c.ToolNames))
		msgs := append([]llm.Message{sys}, s.Messages...)
		bound := llm.Bind(c.handle(), c.tools(), c.ChatOptions)

		resp, err := bound.Invoke(ctx, msgs)
		if err != nil {
			return c.failureUpdate(err), nil
		}

		var appended []llm.Message
		maxIter := c.maxIter()
		for iter := 0; ; iter++ {
			if !resp.HasToolCalls() {
				if iter == 0 && c.PrimaryTool != "" {
					assistantMsg, toolMsgs := c.forcedTurn(ctx, t, s.TradeDate)
					msgs = append(msgs, assistantMsg)
					msgs = append(msgs, toolMsgs...)
					appended = append(appended, assistantMsg)
					appended = append(appended, toolMsgs...)
					resp, err = bound.Invoke(ctx, msgs)
					if err != nil {
						return c.failureUpdate(err), nil
					}
					continue
				}
				break
			}
			if iter >= maxIter {
				break
			}
			assistantMsg := llm.AssistantToolCallMessage(resp.ToolCalls)
			toolMsgs := tool.Dispatch(ctx, c.Registry, resp.ToolCalls)
			msgs = append(msgs, assistantMsg)
			msgs = append(msgs, toolMsgs...)
			appended = append(appended, assistantMsg)
			appended = append(appended, toolMsgs...)
			resp, err = bound.Invoke(ctx, msgs)
			if err != nil {
				return c.failureUpdate(err), nil
			}
		}

		final := llm.AssistantMessage(resp.Content)
		appended = append(appended, final)
		return c.reportUpdate(resp.Content, appended), nil
	}
}

// BuildStepNode returns M_i: a single model invocation, including the
// forced-invocation check on the role's first turn, with no internal
// loop — the sequential topology's conditional edge plus ToolsNode/
// CleanNode drive re-invocation instead.
func (c NodeConfig) BuildStepNode() graph.Node {
	return func(ctx context.Context, s *state.AgentState) (graph.Update, error) {
		t := c.ticker(s)
		sys := llm.SystemMessage(c.SystemPrompt(t, s.TradeDate, c.ToolNames))
		msgs := append([]llm.Message{sys}, s.Messages...)
		bound := llm.Bind(c.handle(), c.tools(), c.ChatOptions)

		resp, err := bound.Invoke(ctx, msgs)
		if err != nil {
			return c.failureUpdate(err), nil
		}

		if resp.HasToolCalls() {
			assistantMsg := llm.AssistantToolCallMessage(resp.ToolCalls)
			return graph.Update{Sender: string(c.Role), AppendMessages: []llm.Message{assistantMsg}}, nil
		}

		if isFirstEntry(s) && c.PrimaryTool != "" {
			// Emit only the forced tool-*call* here — never dispatch it
			// directly. The message this returns carries ToolCalls, so
			// toolCallSelector routes to T_i, which dispatches it and
			// routes back to this node for the re-invocation that
			// actually writes the report. Dispatching
			// inline here would leave the driver's last message a
			// ToolMessage with no ToolCalls, which toolCallSelector reads
			// as "done" — skipping straight to C_i with no report ever
			// written.
			assistantMsg := c.buildForcedToolCall(t, s.TradeDate)
			return graph.Update{Sender: string(c.Role), AppendMessages: []llm.Message{assistantMsg}}, nil
		}

		return c.reportUpdate(resp.Content, []llm.Message{llm.AssistantMessage(resp.Content)}), nil
	}
}

// isFirstEntry reports whether s.Messages has not just received tool
// results — i.e. this is the role's opening turn rather than a
// T_i → M_i loop re-entry. The message log itself carries this
// distinction: a loop re-entry's most recent message is always a
// ToolMessage appended by T_i.
func isFirstEntry(s *state.AgentState) bool {
	if len(s.Messages) == 0 {
		return true
	}
	return s.Messages[len(s.Messages)-1].Role != llm.RoleTool
}

// buildForcedToolCall synthesizes the role's primary-tool call as a bare
// assistant tool-call message, without dispatching it. BuildStepNode uses
// this directly so the sequential topology's own T_i node performs the
// dispatch; BuildNode dispatches it itself (via forcedTurn, below) since the parallel
// topology has no separate tools node to hand it to.
func (c NodeConfig) buildForcedToolCall(t state.Ticker, tradeDate string) llm.Message {
	args := c.PrimaryArgs(t, tradeDate)
	raw, _ := json.Marshal(args)
	call := llm.ToolCall{ID: uuid.NewString(), Name: c.PrimaryTool, Arguments: raw}
	return llm.AssistantToolCallMessage([]llm.ToolCall{call})
}

// forcedTurn synthesizes and immediately dispatches the role's primary
// tool call, for BuildNode's self-contained loop.
func (c NodeConfig) forcedTurn(ctx context.Context, t state.Ticker, tradeDate string) (llm.Message, []llm.Message) {
	assistantMsg := c.buildForcedToolCall(t, tradeDate)
	toolMsgs := tool.Dispatch(ctx, c.Registry, assistantMsg.ToolCalls)
	return assistantMsg, toolMsgs
}

func (c NodeConfig) reportUpdate(content string, appended []llm.Message) graph.Update {
	u := graph.Update{Sender: string(c.Role), AppendMessages: appended}
	switch c.Role {
	case state.RoleMarket:
		u.MarketReport = graph.Str(content)
	case state.RoleSocial:
		u.SentimentReport = graph.Str(content)
	case state.RoleNews:
		u.NewsReport = graph.Str(content)
	case state.RoleFundamentals:
		u.FundamentalsReport = graph.Str(content)
	}
	return u
}

// failureUpdate handles the degraded path: any unhandled model error
// writes a short failure notice into the report slot instead of
// propagating, so other analysts and downstream nodes proceed.
func (c NodeConfig) failureUpdate(err error) graph.Update {
	msg := fmt.Sprintf("%s analysis failed: %v", c.Role, err)
	return c.reportUpdate(msg, []llm.Message{llm.AssistantMessage(msg)})
}

// ToolsNode returns T_i: executes the tool calls carried by the most
// recent assistant message and appends the resulting ToolMessages in
// order.
func ToolsNode(reg *tool.Registry) graph.Node {
	return func(ctx context.Context, s *state.AgentState) (graph.Update, error) {
		if len(s.Messages) == 0 {
			return graph.Update{}, nil
		}
		last := s.Messages[len(s.Messages)-1]
		toolMsgs := tool.Dispatch(ctx, reg, last.ToolCalls)
		return graph.Update{AppendMessages: toolMsgs}, nil
	}
}

// CleanNode returns C_i: strips the scratch this analyst's M_i/T_i loop
// produced — its final report message (the newest entry, whose text is
// already durable in the role's report slot) plus the tool-call/
// tool-result exchange beneath it — and appends one neutral placeholder
// so the next analyst's first model turn never opens on a dangling tool
// message.
func CleanNode(role state.AnalystRole) graph.Node {
	return func(ctx context.Context, s *state.AgentState) (graph.Update, error) {
		kept := make([]llm.Message, len(s.Messages))
		copy(kept, s.Messages)

		// The newest message is this role's final report text. Drop it
		// first; a plain assistant message deeper in the log belongs to an
		// earlier stage (a previous role's placeholder) and must survive,
		// so only this one comes off.
		if n := len(kept); n > 0 {
			if last := kept[n-1]; last.Role == llm.RoleAssistant && len(last.ToolCalls) == 0 {
				kept = kept[:n-1]
			}
		}

		for len(kept) > 0 {
			last := kept[len(kept)-1]
			if last.Role == llm.RoleTool || (last.Role == llm.RoleAssistant && len(last.ToolCalls) > 0) {
				kept = kept[:len(kept)-1]
				continue
			}
			break
		}
		kept = append(kept, llm.AssistantMessage(fmt.Sprintf("%s analysis complete.", role)))
		return graph.Update{ReplaceMessages: &kept}, nil
	}
}
