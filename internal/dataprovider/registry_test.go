package dataprovider

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/seenimoa/tradingagents/internal/cache"
	"github.com/seenimoa/tradingagents/internal/resilience"
)

type fakeProvider struct {
	name   string
	scope  []string
	result json.RawMessage
	err    error
	calls  int
}

func (f *fakeProvider) Name() string          { return f.name }
func (f *fakeProvider) MarketScope() []string { return f.scope }
func (f *fakeProvider) Fetch(ctx context.Context, cap Capability, params QueryParams) (json.RawMessage, error) {
	f.calls++
	return f.result, f.err
}

func newTestCache() cache.Manager {
	return cache.NewUnifiedManager(cache.NewMemoryBackend(0), nil, nil)
}

// newTestRegistry returns a registry whose retry policy sleeps for
// microseconds instead of the default network backoff, so failure-path
// tests finish quickly.
func newTestRegistry() *Registry {
	r := NewRegistry(newTestCache(), nil)
	r.SetRetryPolicy(resilience.Policy{
		MaxAttempts: 2, Strategy: resilience.StrategyFixed, BaseDelay: time.Microsecond,
	})
	return r
}

func TestRegistryFallsBackOnFailure(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("down")}
	fallback := &fakeProvider{name: "fallback", result: json.RawMessage(`{"ok":true}`)}

	r := newTestRegistry()
	r.Register(CapQuote, primary)
	r.Register(CapQuote, fallback)

	res := r.Fetch(context.Background(), CapQuote, "AAPL")
	if res.Provider != "fallback" {
		t.Fatalf("expected fallback provider to serve the request, got %q", res.Provider)
	}
}

func TestRegistryFiltersByMarketScope(t *testing.T) {
	cn := &fakeProvider{name: "cn", scope: []string{"CN-A"}, result: json.RawMessage(`{}`)}
	r := NewRegistry(newTestCache(), nil)
	r.Register(CapQuote, cn)

	res := r.Fetch(context.Background(), CapQuote, "AAPL") // US ticker, CN-only provider
	if res.Provider != "" {
		t.Fatalf("expected no provider to serve an out-of-scope market, got %q", res.Provider)
	}
}

func TestRegistryNeverReturnsErrorOnTotalFailure(t *testing.T) {
	p := &fakeProvider{name: "p", err: errors.New("down")}
	r := newTestRegistry()
	r.Register(CapQuote, p)

	res := r.Fetch(context.Background(), CapQuote, "AAPL")
	if res.Payload != nil {
		t.Fatalf("expected empty payload on total failure, got %v", res.Payload)
	}
}

func TestRegistryCachesSuccessfulFetch(t *testing.T) {
	p := &fakeProvider{name: "p", result: json.RawMessage(`{"v":1}`)}
	r := NewRegistry(newTestCache(), nil)
	r.Register(CapQuote, p)

	r.Fetch(context.Background(), CapQuote, "AAPL")
	r.Fetch(context.Background(), CapQuote, "AAPL")

	if p.calls != 1 {
		t.Fatalf("expected second fetch to hit cache, provider called %d times", p.calls)
	}
}

// TestRegistryFetchByKeyServesConceptCapabilities: the concept
// capabilities key on a concept code, not a ticker, and must dispatch
// without ticker classification (a concept code fails market.Classify).
func TestRegistryFetchByKeyServesConceptCapabilities(t *testing.T) {
	p := &fakeProvider{name: "cn", scope: []string{"CN-A"}, result: json.RawMessage(`["a","b"]`)}
	r := NewRegistry(newTestCache(), nil)
	r.Register(CapConceptStocks, p)

	res := r.FetchByKey(context.Background(), CapConceptStocks, "CN-A", "BK0428", nil)
	if res.Provider != "cn" {
		t.Fatalf("expected cn provider to serve concept_stocks, got %q", res.Provider)
	}

	// Second call with the same key should hit the cache, not the provider.
	r.FetchByKey(context.Background(), CapConceptStocks, "CN-A", "BK0428", nil)
	if p.calls != 1 {
		t.Fatalf("expected second FetchByKey call to hit cache, provider called %d times", p.calls)
	}
}

func TestRegistryFetchByKeyWithNoIdentifyingArg(t *testing.T) {
	p := &fakeProvider{name: "cn", result: json.RawMessage(`["concept-a","concept-b"]`)}
	r := NewRegistry(newTestCache(), nil)
	r.Register(CapConceptList, p)

	res := r.FetchByKey(context.Background(), CapConceptList, "CN-A", "", nil)
	if res.Provider != "cn" || string(res.Payload) != `["concept-a","concept-b"]` {
		t.Fatalf("expected concept_list to dispatch with an empty key, got %+v", res)
	}
}
