// TradingAgents — multi-agent LLM stock-analysis pipeline.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/seenimoa/tradingagents"
	"github.com/seenimoa/tradingagents/internal/config"
	"github.com/seenimoa/tradingagents/internal/decision"
	"github.com/seenimoa/tradingagents/internal/state"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tradingagents",
	Short: "TradingAgents — multi-agent LLM stock-analysis pipeline",
	Long: `TradingAgents
A Go-based multi-agent LLM system for stock analysis across CN-A, HK,
and US markets: parallel or sequential analyst nodes, bull/bear
research debate, and a risk-management committee that settle on a
final trade decision.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tradingagents %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Analyze Command ---

var analystRoleOrder = []state.AnalystRole{
	state.RoleMarket,
	state.RoleSocial,
	state.RoleNews,
	state.RoleFundamentals,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [ticker]",
	Short: "Run the multi-agent analysis pipeline on a stock",
	Long:  "Run the analyst/debate/risk-management pipeline on a ticker and print the resulting decision envelope.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticker := strings.ToUpper(strings.TrimSpace(args[0]))
		tradeDate, _ := cmd.Flags().GetString("date")
		if tradeDate == "" {
			return fmt.Errorf("--date is required (YYYY-MM-DD)")
		}
		depth, _ := cmd.Flags().GetInt("depth")
		analystsFlag, _ := cmd.Flags().GetStringSlice("analysts")
		outputJSON, _ := cmd.Flags().GetBool("json")

		roles, err := parseRoles(analystsFlag)
		if err != nil {
			return err
		}
		if depth <= 0 {
			depth = cfg.Run.DefaultResearchDepth
		}

		fmt.Printf("Analyzing %s for %s (research depth %d)\n", ticker, tradeDate, depth)
		fmt.Println()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		final, envelope, err := tradingagents.Run(ctx, ticker, tradeDate, roles, depth, cfg)
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}

		if outputJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Decision *tradingDecision  `json:"decision"`
				State    *state.AgentState `json:"state"`
			}{toTradingDecision(envelope), final})
		}

		printDecision(ticker, envelope)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("date", "", "trade date, YYYY-MM-DD (required)")
	analyzeCmd.Flags().Int("depth", 0, "research depth 1-5 (default from config)")
	analyzeCmd.Flags().StringSlice("analysts", nil, "analyst roles to run: market,social,news,fundamentals (default: all four)")
	analyzeCmd.Flags().Bool("json", false, "output result as JSON")
}

func parseRoles(flag []string) ([]state.AnalystRole, error) {
	if len(flag) == 0 {
		return analystRoleOrder, nil
	}
	roles := make([]state.AnalystRole, 0, len(flag))
	for _, raw := range flag {
		role := state.AnalystRole(strings.ToLower(strings.TrimSpace(raw)))
		switch role {
		case state.RoleMarket, state.RoleSocial, state.RoleNews, state.RoleFundamentals:
			roles = append(roles, role)
		default:
			return nil, fmt.Errorf("unknown analyst role %q (want one of market, social, news, fundamentals)", raw)
		}
	}
	return roles, nil
}

// tradingDecision is the JSON-friendly projection of a decision.Envelope.
type tradingDecision struct {
	Action      string  `json:"action"`
	Confidence  float64 `json:"confidence"`
	TargetPrice string  `json:"target_price,omitempty"`
	Reasoning   string  `json:"reasoning"`
}

func toTradingDecision(e *decision.Envelope) *tradingDecision {
	if e == nil {
		return nil
	}
	td := &tradingDecision{
		Action:     string(e.Action),
		Confidence: e.Confidence,
		Reasoning:  e.Reasoning,
	}
	if e.TargetPrice != nil {
		td.TargetPrice = e.TargetPrice.String()
	}
	return td
}

func printDecision(ticker string, e *decision.Envelope) {
	fmt.Println("=======================================")
	fmt.Printf("  Decision: %s\n", ticker)
	fmt.Println("=======================================")
	if e == nil {
		fmt.Println("  (no decision envelope produced)")
		return
	}
	fmt.Printf("  Action:       %s\n", e.Action)
	fmt.Printf("  Confidence:   %.0f%%\n", e.Confidence*100)
	if e.TargetPrice != nil {
		fmt.Printf("  Target Price: %s\n", e.TargetPrice.String())
	}
	fmt.Println()
	fmt.Println(e.Reasoning)
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("=======================================")
		fmt.Println("  TradingAgents -- System Status")
		fmt.Println("=======================================")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    LLM Provider:       %s (model: %s)\n", cfg.LLM.Primary, cfg.LLM.Model)
		fmt.Printf("    Default China Src:  %s\n", cfg.DataSources.DefaultChina)
		fmt.Printf("    Parallel Analysts:  %t (max workers %d)\n", cfg.Run.ParallelAnalysts, cfg.Run.MaxParallelWorkers)
		fmt.Printf("    Online Tools:       %t\n", cfg.Run.OnlineToolsEnabled)
		fmt.Printf("    Default Depth:      %d\n", cfg.Run.DefaultResearchDepth)
		fmt.Printf("    Cache Dir:          %s\n", cfg.Cache.Dir)
		fmt.Printf("    Results Dir:        %s\n", cfg.Run.ResultsDir)
		fmt.Println()

		fmt.Println("  API Keys:")
		keys := config.CheckAPIKeys(cfg)
		for _, k := range keys {
			status := "not set"
			if k.IsSet {
				status = fmt.Sprintf("set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-20s %s\n", k.Name+":", status)
		}

		fmt.Println("=======================================")
		return nil
	},
}
