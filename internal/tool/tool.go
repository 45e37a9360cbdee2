// Package tool implements the Tool Registry & Dispatcher: binds
// named ToolDescriptors with an ordered, typed arg spec to handlers, and
// executes a model's batch of tool calls, always answering each call with
// exactly one ToolMessage — never raising, even on an unknown tool,
// invalid arguments, a ticker that fails classification, or a handler
// timeout. Handlers run sequentially unless a descriptor opts into the
// bounded concurrent lane, and every handler runs under a per-tool
// deadline.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/seenimoa/tradingagents/internal/llm"
	"github.com/seenimoa/tradingagents/internal/market"
)

// ArgType enumerates the scalar/collection shapes an argument may take.
type ArgType string

const (
	TypeString  ArgType = "string"
	TypeNumber  ArgType = "number"
	TypeInteger ArgType = "integer"
	TypeBool    ArgType = "boolean"
	TypeArray   ArgType = "array"
	TypeObject  ArgType = "object"
)

// ArgSpec describes one named argument of a tool descriptor.
type ArgSpec struct {
	Name        string
	Type        ArgType
	Required    bool
	Description string
	// IsTicker marks this argument as ticker-shaped: the dispatcher runs
	// it through the market classifier before invoking the handler and
	// answers a diagnostic ToolMessage on classification failure.
	IsTicker bool
}

// Handler executes a validated tool call and returns its string result.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Descriptor is a single callable tool exposed to the model.
type Descriptor struct {
	Name        string
	Description string
	ArgSpec     []ArgSpec
	Handler     Handler
	// Concurrent marks the handler as side-effect-free: dispatch may run
	// it concurrently with other Concurrent-flagged calls in the same
	// batch. Defaults to false (sequential).
	Concurrent bool
	// Timeout overrides the per-tool default (60s) for this descriptor.
	Timeout time.Duration
}

// Registry holds the process's named tool descriptors.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Descriptor
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Descriptor)}
}

// Register adds or replaces a descriptor.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[d.Name] = d
}

// Get retrieves a descriptor by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// Toolset resolves a list of names to a slice of descriptors, skipping
// any name not registered.
func (r *Registry) Toolset(names ...string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(names))
	for _, n := range names {
		if d, ok := r.tools[n]; ok {
			out = append(out, d)
		}
	}
	return out
}

// LLMTools converts descriptors into the llm package's model-facing
// JSON-Schema Tool shape.
func LLMTools(descs []Descriptor) []llm.Tool {
	out := make([]llm.Tool, 0, len(descs))
	for _, d := range descs {
		props := make(map[string]*llm.JSONSchema, len(d.ArgSpec))
		var required []string
		for _, a := range d.ArgSpec {
			props[a.Name] = &llm.JSONSchema{Type: string(a.Type), Description: a.Description}
			if a.Required {
				required = append(required, a.Name)
			}
		}
		out = append(out, llm.Tool{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  llm.ObjectSchema(d.Description, props, required...),
		})
	}
	return out
}

const defaultToolTimeout = 60 * time.Second

// maxConcurrentHandlers bounds the per-analyst-run pool used for
// Concurrent-flagged handlers within one dispatch batch.
const maxConcurrentHandlers = 4

// Dispatch answers a model turn's batch of tool calls. Every call in
// calls receives exactly one ToolMessage, appended in the same order the
// calls arrived, regardless of whether any individual call ran
// concurrently. Dispatch never returns an
// error: unknown tools, validation failures, handler panics/timeouts, and
// handler errors are all converted into diagnostic ToolMessage content.
func Dispatch(ctx context.Context, reg *Registry, calls []llm.ToolCall) []llm.Message {
	results := make([]llm.Message, len(calls))

	sequential := make([]int, 0, len(calls))
	concurrent := make([]int, 0, len(calls))
	for i, c := range calls {
		d, ok := reg.Get(c.Name)
		if ok && d.Concurrent {
			concurrent = append(concurrent, i)
		} else {
			sequential = append(sequential, i)
		}
	}

	for _, i := range sequential {
		results[i] = dispatchOne(ctx, reg, calls[i])
	}

	if len(concurrent) > 0 {
		sem := make(chan struct{}, maxConcurrentHandlers)
		var wg sync.WaitGroup
		for _, i := range concurrent {
			wg.Add(1)
			sem <- struct{}{}
			go func(idx int, call llm.ToolCall) {
				defer wg.Done()
				defer func() { <-sem }()
				results[idx] = dispatchOne(ctx, reg, call)
			}(i, calls[i])
		}
		wg.Wait()
	}

	return results
}

func dispatchOne(ctx context.Context, reg *Registry, call llm.ToolCall) llm.Message {
	d, ok := reg.Get(call.Name)
	if !ok {
		return diagnostic(call, fmt.Sprintf("unknown tool: %s", call.Name))
	}

	args, err := decodeArgs(call.Arguments)
	if err != nil {
		return diagnostic(call, fmt.Sprintf("invalid arguments for %s: %v", call.Name, err))
	}

	if msg := validate(d, call, args); msg != nil {
		return *msg
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		content, err := d.Handler(callCtx, args)
		done <- outcome{content, err}
	}()

	select {
	case <-callCtx.Done():
		return diagnostic(call, fmt.Sprintf("tool %s timed out after %s", call.Name, timeout))
	case o := <-done:
		if o.err != nil {
			return diagnostic(call, fmt.Sprintf("tool %s failed: %v", call.Name, o.err))
		}
		return llm.ToolResultMessage(call.ID, call.Name, o.content)
	}
}

func decodeArgs(raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// validate checks args against d.ArgSpec (required presence, rough type
// match) and runs ticker-shaped args through the market classifier. It
// returns a diagnostic ToolMessage on the first failure, or nil when
// args pass.
func validate(d Descriptor, call llm.ToolCall, args map[string]any) *llm.Message {
	for _, a := range d.ArgSpec {
		v, present := args[a.Name]
		if !present {
			if a.Required {
				msg := diagnostic(call, fmt.Sprintf("missing required argument %q for tool %s", a.Name, d.Name))
				return &msg
			}
			continue
		}
		if !typeMatches(a.Type, v) {
			msg := diagnostic(call, fmt.Sprintf("argument %q for tool %s must be of type %s", a.Name, d.Name, a.Type))
			return &msg
		}
		if a.IsTicker {
			s, ok := v.(string)
			if !ok {
				msg := diagnostic(call, fmt.Sprintf("argument %q for tool %s must be a ticker string", a.Name, d.Name))
				return &msg
			}
			if _, err := market.Classify(s); err != nil {
				msg := diagnostic(call, fmt.Sprintf("argument %q: invalid ticker %q: %v", a.Name, s, err))
				return &msg
			}
		}
	}
	return nil
}

func typeMatches(t ArgType, v any) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeNumber:
		_, ok := v.(float64)
		return ok
	case TypeInteger:
		f, ok := v.(float64)
		return ok && f == float64(int64(f))
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

func diagnostic(call llm.ToolCall, content string) llm.Message {
	return llm.ToolResultMessage(call.ID, call.Name, content)
}
