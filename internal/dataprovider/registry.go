// Package dataprovider implements the capability-keyed provider registry:
// ordered primary/fallback vendor chains per market, filtered by
// capability and market scope, wrapped in cache + retry/circuit-breaker,
// and never raising — a total failure across a chain yields an empty
// result plus a logged warning.
package dataprovider

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/seenimoa/tradingagents/internal/cache"
	"github.com/seenimoa/tradingagents/internal/market"
	"github.com/seenimoa/tradingagents/internal/resilience"
)

// Capability enumerates the data operations providers can serve:
// quotes, historical candles, fundamentals, news, social sentiment,
// capital flow, concept boards, dividends.
type Capability string

const (
	CapQuote        Capability = "quote"
	CapHistorical   Capability = "historical"
	CapFundamentals Capability = "fundamentals"
	CapNews         Capability = "news"
	CapSocial       Capability = "social"
	CapProfile      Capability = "profile"
	CapBalanceSheet Capability = "balance_sheet"

	CapCapitalFlowRealtime Capability = "capital_flow_realtime"
	CapCapitalFlowDaily    Capability = "capital_flow_daily"
	CapConceptList         Capability = "concept_list"
	CapConceptStocks       Capability = "concept_stocks"
	CapConceptCapitalFlow  Capability = "concept_capital_flow"
	CapDividendHistory     Capability = "dividend_history"
)

// QueryParams carries the request parameters for a Fetch call.
type QueryParams struct {
	Ticker string
	From   string
	To     string
	Extra  map[string]string
}

// FetchResult is the raw payload plus provenance returned by a provider.
type FetchResult struct {
	Provider string
	Payload  json.RawMessage
}

// Provider is a single vendor adapter.
type Provider interface {
	Name() string
	// MarketScope returns the markets this provider can serve, or nil
	// for "all markets".
	MarketScope() []string
	Fetch(ctx context.Context, cap Capability, params QueryParams) (json.RawMessage, error)
}

// Registry dispatches capability requests across ordered provider chains,
// filtered to the ticker's classified market, through cache and
// retry/breaker wrapping, never propagating a total-chain failure as an
// error.
type Registry struct {
	mu      sync.RWMutex
	chains  map[Capability][]Provider
	cache   cache.Manager
	monitor *resilience.ErrorMonitor
	breaker map[string]*resilience.Breaker
	policy  resilience.Policy
	logger  *slog.Logger
}

// NewRegistry builds an empty registry. Register providers with Register.
func NewRegistry(c cache.Manager, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		chains:  make(map[Capability][]Provider),
		cache:   c,
		monitor: resilience.NewErrorMonitor(500),
		breaker: make(map[string]*resilience.Breaker),
		policy:  resilience.RetryNetworkHeavy,
		logger:  logger,
	}
}

// SetRetryPolicy replaces the retry policy applied to every provider
// call.
func (r *Registry) SetRetryPolicy(p resilience.Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policy = p
}

// Register appends provider to the chain for cap, in the order given —
// first registered is primary, later registrations are fallbacks.
func (r *Registry) Register(cap Capability, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[cap] = append(r.chains[cap], p)
	if _, ok := r.breaker[p.Name()]; !ok {
		r.breaker[p.Name()] = resilience.NewBreaker(resilience.BreakerStandard)
	}
}

// Fetch resolves ticker's market, walks the capability's provider chain
// filtered to that market, and returns the first successful result. On
// total failure it logs a warning and returns an empty payload with a nil
// error; capability-dispatch failures never propagate as Go errors.
func (r *Registry) Fetch(ctx context.Context, cap Capability, ticker string) FetchResult {
	info, err := market.Classify(ticker)
	if err != nil {
		r.logger.Warn("dataprovider: invalid ticker", "ticker", ticker, "error", err)
		return FetchResult{}
	}

	return r.dispatch(ctx, cap, info.Market, info.Symbol, QueryParams{Ticker: info.Symbol},
		map[string]string{"market": info.Market})
}

// FetchByKey serves the capabilities that have no ticker to classify:
// concept_list, concept_stocks, and concept_capital_flow key on a
// concept code (or, for concept_list, no identifying argument at all),
// so mkt must be supplied by the caller instead. key is used both as the
// cache key and as the provider-facing argument; extra carries anything
// else, such as concept_capital_flow's days_type.
func (r *Registry) FetchByKey(ctx context.Context, cap Capability, mkt, key string, extra map[string]string) FetchResult {
	cacheExtra := map[string]string{"market": mkt}
	for k, v := range extra {
		cacheExtra[k] = v
	}
	return r.dispatch(ctx, cap, mkt, key, QueryParams{Ticker: key, Extra: extra}, cacheExtra)
}

func (r *Registry) dispatch(ctx context.Context, cap Capability, mkt, cacheKey string, params QueryParams, cacheExtra map[string]string) FetchResult {
	if r.cache != nil {
		if cached, ok := r.cache.Get(string(cap), cacheKey, cacheExtra); ok {
			return FetchResult{Provider: "cache", Payload: cached}
		}
	}

	r.mu.RLock()
	chain := r.chains[cap]
	r.mu.RUnlock()

	for _, p := range chain {
		if !scopeIncludes(p.MarketScope(), mkt) {
			continue
		}

		breaker := r.breakerFor(p.Name())
		result, err := resilience.RobustCall(ctx, breaker, r.policy, r.monitor, p.Name(),
			func(ctx context.Context) (json.RawMessage, error) {
				return p.Fetch(ctx, cap, params)
			},
			func() json.RawMessage { return nil },
		)
		if err != nil || result == nil {
			continue
		}

		if r.cache != nil {
			r.cache.Set(string(cap), cacheKey, cacheExtra, result, dataTypeFor(cap))
		}
		return FetchResult{Provider: p.Name(), Payload: result}
	}

	r.logger.Warn("dataprovider: all providers exhausted", "capability", cap, "key", cacheKey)
	return FetchResult{}
}

func (r *Registry) breakerFor(name string) *resilience.Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breaker[name]
	if !ok {
		b = resilience.NewBreaker(resilience.BreakerStandard)
		r.breaker[name] = b
	}
	return b
}

func scopeIncludes(scope []string, mkt string) bool {
	if len(scope) == 0 {
		return true
	}
	for _, s := range scope {
		if s == mkt {
			return true
		}
	}
	return false
}

func dataTypeFor(cap Capability) cache.DataType {
	switch cap {
	case CapQuote, CapCapitalFlowRealtime:
		return cache.DataTypeMarket
	case CapCapitalFlowDaily:
		return cache.DataTypeCapitalFlow
	case CapNews, CapSocial:
		return cache.DataTypeNews
	case CapFundamentals, CapBalanceSheet:
		return cache.DataTypeFundamentals
	case CapConceptList, CapConceptStocks, CapConceptCapitalFlow:
		return cache.DataTypeConcept
	case CapDividendHistory:
		return cache.DataTypeDividend
	default:
		return cache.DataTypeStock
	}
}
