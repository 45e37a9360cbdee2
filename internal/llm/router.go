package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seenimoa/tradingagents/internal/config"
	"github.com/seenimoa/tradingagents/internal/resilience"
)

// TaskComplexity buckets a request for model selection: cheap lookups go
// to a small model, multi-stage synthesis to the strongest one
// configured.
type TaskComplexity int

const (
	TaskSimple TaskComplexity = iota
	TaskModerate
	TaskComplex
)

// Router is an LLMProvider over an ordered backend chain: the primary
// first, then each fallback. Per backend it retries retriable failures
// under its retry policy before moving on; a fatal error stops the
// chain immediately since every backend would be handed the same
// doomed request.
type Router struct {
	mu        sync.RWMutex
	providers map[string]LLMProvider
	primary   string
	fallbacks []string
	modelMap  map[TaskComplexity]string
	policy    resilience.Policy
	logger    *slog.Logger
}

// RouterOption configures the router.
type RouterOption func(*Router)

// WithFallbacks sets the fallback provider chain, tried in order after
// the primary.
func WithFallbacks(providers ...string) RouterOption {
	return func(r *Router) { r.fallbacks = providers }
}

// WithModelMap configures model selection by task complexity.
func WithModelMap(m map[TaskComplexity]string) RouterOption {
	return func(r *Router) { r.modelMap = m }
}

// WithRetryPolicy replaces the per-backend retry policy.
func WithRetryPolicy(p resilience.Policy) RouterOption {
	return func(r *Router) { r.policy = p }
}

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a router whose primary backend is named primary.
// Backends are attached afterwards via RegisterProvider.
func NewRouter(primary string, opts ...RouterOption) *Router {
	r := &Router{
		providers: make(map[string]LLMProvider),
		primary:   primary,
		modelMap:  make(map[TaskComplexity]string),
		policy: resilience.Policy{
			MaxAttempts: 3,
			Strategy:    resilience.StrategyExponential,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			RetriableKinds: []resilience.ErrorKind{
				resilience.KindTransient, resilience.KindTimeout, resilience.KindRateLimit,
			},
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterProvider adds a backend to the router.
func (r *Router) RegisterProvider(provider LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = provider
}

// GetProvider returns a registered backend by name.
func (r *Router) GetProvider(name string) (LLMProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Primary returns the primary backend.
func (r *Router) Primary() (LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[r.primary]
	if !ok {
		return nil, fmt.Errorf("%w: primary %q not registered", ErrNoProviders, r.primary)
	}
	return p, nil
}

// Chat walks the backend chain until one turn succeeds.
func (r *Router) Chat(ctx context.Context, messages []Message, tools []Tool, opts *ChatOptions) (*Response, error) {
	chain := r.chain()
	if len(chain) == 0 {
		return nil, ErrNoProviders
	}

	var lastErr error
	for _, name := range chain {
		provider, ok := r.GetProvider(name)
		if !ok {
			continue
		}

		resp, err := r.chatWithRetry(ctx, provider, messages, tools, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if resilience.Kind(err) == resilience.KindFatal {
			return nil, err
		}
		r.logger.Warn("model backend failed, trying next",
			"backend", name, "error", err)
	}

	return nil, fmt.Errorf("llm: all backends failed: %w", lastErr)
}

// chatWithRetry drives one backend under the router's retry policy.
func (r *Router) chatWithRetry(ctx context.Context, provider LLMProvider, messages []Message, tools []Tool, opts *ChatOptions) (*Response, error) {
	var lastErr error
	attempts := r.policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(resilience.Delay(r.policy, attempt-1)):
			}
		}

		resp, err := provider.Chat(ctx, messages, tools, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !r.policy.IsRetriable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// ChatWithComplexity is Chat with the complexity bucket's model override
// applied when the caller did not pin a model.
func (r *Router) ChatWithComplexity(ctx context.Context, complexity TaskComplexity, messages []Message, tools []Tool, opts *ChatOptions) (*Response, error) {
	if model, ok := r.modelMap[complexity]; ok && model != "" {
		if opts == nil {
			opts = &ChatOptions{}
		}
		if opts.Model == "" {
			o := *opts
			o.Model = model
			opts = &o
		}
	}
	return r.Chat(ctx, messages, tools, opts)
}

// HealthCheck pings every registered backend concurrently.
func (r *Router) HealthCheck(ctx context.Context) map[string]error {
	r.mu.RLock()
	providers := make(map[string]LLMProvider, len(r.providers))
	for k, v := range r.providers {
		providers[k] = v
	}
	r.mu.RUnlock()

	results := make(map[string]error, len(providers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, provider := range providers {
		wg.Add(1)
		go func(n string, p LLMProvider) {
			defer wg.Done()
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			err := p.Ping(pingCtx)
			mu.Lock()
			results[n] = err
			mu.Unlock()
		}(name, provider)
	}
	wg.Wait()
	return results
}

// Name identifies the router by its primary backend.
func (r *Router) Name() string { return "router/" + r.primary }

// Models returns the union of models across all backends.
func (r *Router) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []string
	seen := make(map[string]bool)
	for _, p := range r.providers {
		for _, m := range p.Models() {
			if !seen[m] {
				seen[m] = true
				all = append(all, m)
			}
		}
	}
	return all
}

// Ping checks the primary backend.
func (r *Router) Ping(ctx context.Context) error {
	p, err := r.Primary()
	if err != nil {
		return err
	}
	return p.Ping(ctx)
}

// ProviderNames returns the names of all registered backends.
func (r *Router) ProviderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

func (r *Router) chain() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := []string{r.primary}
	for _, fb := range r.fallbacks {
		if fb != r.primary {
			chain = append(chain, fb)
		}
	}
	return chain
}

// NewRouterFromConfig builds a router from the loaded configuration,
// registering every backend whose credentials (or URL, for Ollama) are
// present. Backends other than the configured primary become its
// fallbacks in registration order.
func NewRouterFromConfig(cfg *config.Config) (*Router, error) {
	router := NewRouter(cfg.LLM.Primary)

	router.modelMap = map[TaskComplexity]string{
		TaskSimple:   simpleModelFor(cfg.LLM.Primary),
		TaskModerate: cfg.LLM.Model,
		TaskComplex:  cfg.LLM.Model,
	}

	var fallbacks []string
	registered := 0

	if cfg.LLM.OpenAIKey != "" {
		p, err := NewOpenAIProvider(cfg.LLM.OpenAIKey, WithOpenAIModel(cfg.LLM.Model))
		if err == nil {
			router.RegisterProvider(p)
			registered++
			if cfg.LLM.Primary != ProviderOpenAI {
				fallbacks = append(fallbacks, ProviderOpenAI)
			}
		}
	}

	if cfg.LLM.OllamaURL != "" {
		model := cfg.LLM.Model
		if cfg.LLM.Primary != ProviderOllama {
			model = "qwen2.5:7b"
		}
		p, err := NewOllamaProvider(cfg.LLM.OllamaURL, WithOllamaModel(model))
		if err == nil {
			router.RegisterProvider(p)
			registered++
			if cfg.LLM.Primary != ProviderOllama {
				fallbacks = append(fallbacks, ProviderOllama)
			}
		}
	}

	if registered == 0 {
		return nil, ErrNoProviders
	}
	router.fallbacks = fallbacks
	return router, nil
}

// simpleModelFor returns a cheaper model variant for low-complexity
// turns, where the primary backend offers one.
func simpleModelFor(provider string) string {
	if provider == ProviderOpenAI {
		return "gpt-4o-mini"
	}
	return ""
}
