// Package config handles configuration loading for the trading-agents
// pipeline: LLM provider selection, cache backend, per-market data-source
// defaults, and per-run settings, loaded from YAML with
// environment-variable overrides via viper. Generalized from the
// teacher's internal/config (which carries this same viper+yaml+env-
// override idiom for its own Broker/Trading/FinanceQL/API/Web sections)
// for this pipeline's own sections.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the complete run configuration.
type Config struct {
	LLM         LLMConfig         `mapstructure:"llm"          yaml:"llm"          json:"llm"`
	Cache       CacheConfig       `mapstructure:"cache"        yaml:"cache"        json:"cache"`
	DataSources DataSourcesConfig `mapstructure:"data_sources" yaml:"data_sources" json:"data_sources"`
	Run         RunConfig         `mapstructure:"run"          yaml:"run"          json:"run"`
	Logging     LoggingConfig     `mapstructure:"logging"      yaml:"logging"      json:"logging"`
}

// LLMConfig holds LLM provider configuration. Field names and shape are
// load-bearing: internal/llm.NewRouterFromConfig reads Primary/Model/
// OpenAIKey/OllamaURL directly off this struct.
type LLMConfig struct {
	Primary       string  `mapstructure:"primary"        yaml:"primary"        json:"primary"` // "openai", "ollama"
	OpenAIKey     string  `mapstructure:"openai_key"     yaml:"openai_key"     json:"-"`
	OllamaURL     string  `mapstructure:"ollama_url"     yaml:"ollama_url"     json:"ollama_url"`
	Model         string  `mapstructure:"model"          yaml:"model"          json:"model"`
	FallbackModel string  `mapstructure:"fallback_model" yaml:"fallback_model" json:"fallback_model"`
	Temperature   float64 `mapstructure:"temperature"    yaml:"temperature"    json:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"     yaml:"max_tokens"     json:"max_tokens"`
}

// CacheConfig configures the Cache Layer's backend chain.
type CacheConfig struct {
	Dir            string `mapstructure:"dir"             yaml:"dir"             json:"dir"`
	MemoryMaxItems int    `mapstructure:"memory_max_items" yaml:"memory_max_items" json:"memory_max_items"`
}

// DataSourcesConfig names the default vendor per market.
type DataSourcesConfig struct {
	DefaultChina string `mapstructure:"default_china" yaml:"default_china" json:"default_china"` // "tushare", "akshare", "baostock", "tdx"
	HKBaseURL    string `mapstructure:"hk_base_url"   yaml:"hk_base_url"   json:"hk_base_url"`
	CNBaseURL    string `mapstructure:"cn_base_url"   yaml:"cn_base_url"   json:"cn_base_url"`
}

// RunConfig configures one analysis run: parallelism, timeouts, the
// default research depth, and the online-tools toggle.
type RunConfig struct {
	ResultsDir           string `mapstructure:"results_dir"             yaml:"results_dir"             json:"results_dir"`
	DataDir              string `mapstructure:"data_dir"                yaml:"data_dir"                json:"data_dir"`
	ParallelAnalysts     bool   `mapstructure:"parallel_analysts"       yaml:"parallel_analysts"       json:"parallel_analysts"`
	MaxParallelWorkers   int    `mapstructure:"max_parallel_workers"    yaml:"max_parallel_workers"    json:"max_parallel_workers"`
	AnalystTimeoutSec    int    `mapstructure:"analyst_timeout_sec"     yaml:"analyst_timeout_sec"     json:"analyst_timeout_sec"`
	OnlineToolsEnabled   bool   `mapstructure:"online_tools_enabled"    yaml:"online_tools_enabled"    json:"online_tools_enabled"`
	MaxGraphRecursion    int    `mapstructure:"max_graph_recursion"     yaml:"max_graph_recursion"     json:"max_graph_recursion"`
	MaxToolIterations    int    `mapstructure:"max_tool_iterations"     yaml:"max_tool_iterations"     json:"max_tool_iterations"`
	DefaultResearchDepth int    `mapstructure:"default_research_depth"  yaml:"default_research_depth"  json:"default_research_depth"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  json:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format" json:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.tradingagents/config.yaml (home directory)
//  3. /etc/tradingagents/config.yaml (system)
//
// Environment variables override config file values. Format:
// TRADINGAGENTS_<SECTION>_<KEY>, plus a handful of standalone vars
// (TRADINGAGENTS_CACHE_DIR, TRADINGAGENTS_RESULTS_DIR,
// TRADINGAGENTS_DATA_DIR, DEFAULT_CHINA_DATA_SOURCE,
// PARALLEL_ANALYSTS_ENABLED, MAX_PARALLEL_WORKERS, ANALYST_TIMEOUT,
// ONLINE_TOOLS_ENABLED), handled in overrideFromEnv.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".tradingagents"))
	v.AddConfigPath("/etc/tradingagents")

	v.SetEnvPrefix("TRADINGAGENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("TRADINGAGENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.primary", "openai")
	v.SetDefault("llm.ollama_url", "http://localhost:11434")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 4096)

	v.SetDefault("cache.dir", filepath.Join(homeDir(), ".tradingagents", "cache"))
	v.SetDefault("cache.memory_max_items", 2048)

	v.SetDefault("data_sources.default_china", "tushare")
	v.SetDefault("data_sources.hk_base_url", "https://hk-aggregator.example.invalid")
	v.SetDefault("data_sources.cn_base_url", "https://cn-aggregator.example.invalid")

	v.SetDefault("run.results_dir", filepath.Join(homeDir(), ".tradingagents", "results"))
	v.SetDefault("run.data_dir", filepath.Join(homeDir(), ".tradingagents", "data"))
	v.SetDefault("run.parallel_analysts", false)
	v.SetDefault("run.max_parallel_workers", 4)
	v.SetDefault("run.analyst_timeout_sec", 300)
	v.SetDefault("run.online_tools_enabled", true)
	v.SetDefault("run.max_graph_recursion", 100)
	v.SetDefault("run.max_tool_iterations", 10)
	v.SetDefault("run.default_research_depth", 3)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv applies the standalone environment variables
// plus the sensitive LLM key overrides, after viper's own AutomaticEnv
// pass over the TRADINGAGENTS_<SECTION>_<KEY> namespace.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("TRADINGAGENTS_LLM_OPENAI_KEY"); key != "" {
		cfg.LLM.OpenAIKey = key
	}

	if v := os.Getenv("TRADINGAGENTS_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("TRADINGAGENTS_RESULTS_DIR"); v != "" {
		cfg.Run.ResultsDir = v
	}
	if v := os.Getenv("TRADINGAGENTS_DATA_DIR"); v != "" {
		cfg.Run.DataDir = v
	}
	if v := os.Getenv("DEFAULT_CHINA_DATA_SOURCE"); v != "" {
		cfg.DataSources.DefaultChina = v
	}
	if v := os.Getenv("PARALLEL_ANALYSTS_ENABLED"); v != "" {
		cfg.Run.ParallelAnalysts = parseBool(v, cfg.Run.ParallelAnalysts)
	}
	if v := os.Getenv("MAX_PARALLEL_WORKERS"); v != "" {
		cfg.Run.MaxParallelWorkers = parseInt(v, cfg.Run.MaxParallelWorkers)
	}
	if v := os.Getenv("ANALYST_TIMEOUT"); v != "" {
		cfg.Run.AnalystTimeoutSec = parseInt(v, cfg.Run.AnalystTimeoutSec)
	}
	if v := os.Getenv("ONLINE_TOOLS_ENABLED"); v != "" {
		cfg.Run.OnlineToolsEnabled = parseBool(v, cfg.Run.OnlineToolsEnabled)
	}
}

func parseBool(s string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(s string, fallback int) int {
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return fallback
	}
	return n
}

// SaveToFile writes the current configuration to a YAML file. If path is
// empty, it writes to ./config/config.yaml.
func SaveToFile(cfg *Config, path string) error {
	if path == "" {
		path = filepath.Join(".", "config", "config.yaml")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// ConfigFilePath returns the path to the active config file, or "" if none found.
func ConfigFilePath() string {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".tradingagents"))
	v.AddConfigPath("/etc/tradingagents")

	if err := v.ReadInConfig(); err != nil {
		return ""
	}
	return v.ConfigFileUsed()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
