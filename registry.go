package reactor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog"
)

// Registry holds tools and dispatches calls to them with a timeout, a concurrency
// semaphore and optional panic recovery. Dispatch never returns an error; every
// outcome is an Observation.
type Registry struct {
	tools       map[string]Tool // wrapped with middlewares, used by Dispatch
	rawTools    map[string]Tool // unwrapped, used by Use to rewrap from scratch
	gate        *gate
	opts        registryOptions
	mu          sync.RWMutex
	middlewares []Middleware
}

// gate is the part of a registry its per-run clones share: the concurrency
// semaphore, the shutdown flag and the count of in-flight dispatches.
type gate struct {
	sem     chan struct{}
	mu      sync.Mutex
	closed  bool
	running sync.WaitGroup
}

func (g *gate) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.running.Add(1)
	return true
}

func (g *gate) leave() { g.running.Done() }

// NewRegistry creates a Registry with the given options.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{
		timeout:        5 * time.Second,
		maxConcurrency: 10,
		recoverPanics:  true,
		maxSuggestion:  2,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	var sem chan struct{}
	if o.maxConcurrency > 0 {
		sem = make(chan struct{}, o.maxConcurrency)
	}
	return &Registry{
		tools:    make(map[string]Tool),
		rawTools: make(map[string]Tool),
		gate:     &gate{sem: sem},
		opts:     o,
	}
}

// Register adds a tool. Stored middlewares (see Use) are applied before registration.
// A second tool with an existing name is rejected with ErrDuplicateToolName.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return errors.New("tool must not be nil")
	}
	name := t.Name()
	if err := checkToolName(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rawTools[name]; exists {
		return fmt.Errorf("%w: %q already registered", ErrDuplicateToolName, name)
	}
	r.rawTools[name] = t
	r.tools[name] = r.wrap(t)
	return nil
}

// MustRegister is Register for setup code; it panics on error.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Tools returns all registered tools sorted by name.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, name := range r.namesLocked() {
		out = append(out, r.tools[name])
	}
	return out
}

// Tool returns the tool with the given name (after middlewares are applied).
func (r *Registry) Tool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Schemas describes every registered tool for the model, sorted by name.
func (r *Registry) Schemas() []ToolSchema {
	tools := r.Tools()
	out := make([]ToolSchema, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolSchema{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}
	return out
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Dispatch resolves call.ToolName, binds positional arguments, validates them against
// the tool's schema and runs the handler. Unknown tools, malformed arguments, handler
// errors, panics and timeouts all come back as a failed Observation.
// The after-dispatch hook is always invoked with the final Observation.
func (r *Registry) Dispatch(ctx context.Context, call ToolCall) (obs Observation) {
	obs = Observation{CallID: call.ID, ToolName: call.ToolName}
	start := time.Now()
	defer func() {
		obs.Duration = time.Since(start)
		r.logDispatch(obs)
		if r.opts.onAfter != nil {
			r.opts.onAfter(ctx, call, obs, obs.Duration)
		}
	}()

	if !r.gate.enter() {
		return failed(obs, ErrShutdown)
	}
	defer r.gate.leave()

	r.mu.RLock()
	t, ok := r.tools[call.ToolName]
	if !ok {
		err := r.unknownToolLocked(call.ToolName)
		r.mu.RUnlock()
		return failed(obs, err)
	}
	r.mu.RUnlock()

	args, err := bindArguments(t, call.Args)
	if err != nil {
		return failed(obs, err)
	}

	if err := r.acquireSemaphore(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrTimeout
		}
		return failed(obs, &HandlerError{Tool: call.ToolName, Err: err})
	}
	defer r.releaseSemaphore()

	timeout := r.opts.timeout
	if tm, ok := t.(ToolMetadata); ok && tm.Timeout() > 0 {
		timeout = tm.Timeout()
	}
	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if r.opts.onBefore != nil {
		r.opts.onBefore(execCtx, call)
	}

	res, err := r.execute(execCtx, t, args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && execCtx.Err() != nil {
			err = &HandlerError{Tool: call.ToolName, Err: fmt.Errorf("%w after %s", ErrTimeout, timeout)}
		}
		return failed(obs, wrapHandlerError(call.ToolName, err))
	}
	obs.Result = res
	obs.Succeeded = true
	return obs
}

func (r *Registry) execute(ctx context.Context, t Tool, args []byte) (res string, err error) {
	if r.opts.recoverPanics {
		defer func() {
			if p := recover(); p != nil {
				res = ""
				err = &HandlerError{Tool: t.Name(), Err: &panicError{p: p}}
			}
		}()
	}
	return t.Execute(ctx, args)
}

func failed(obs Observation, err error) Observation {
	obs.Succeeded = false
	obs.Err = err
	var ce *ClientError
	if errors.As(err, &ce) {
		obs.Result = ce.Reason
	} else {
		obs.Result = err.Error()
	}
	return obs
}

func (r *Registry) logDispatch(obs Observation) {
	ev := r.opts.logger.Debug()
	if !obs.Succeeded {
		ev = r.opts.logger.Warn().Err(obs.Err)
	}
	ev.Str("tool", obs.ToolName).
		Str("call_id", obs.CallID).
		Bool("succeeded", obs.Succeeded).
		Dur("duration", obs.Duration).
		Msg("tool dispatched")
}

// unknownToolLocked builds the diagnostic for a missing tool, listing what exists
// and suggesting the closest name when it is within the configured edit distance.
func (r *Registry) unknownToolLocked(name string) error {
	names := r.namesLocked()
	reason := fmt.Sprintf("unknown tool %q", name)
	if s := suggest(name, names, r.opts.maxSuggestion); s != "" {
		reason += fmt.Sprintf("; did you mean %q?", s)
	} else if len(names) > 0 {
		reason += "."
	}
	if len(names) > 0 {
		reason += " Available tools: " + strings.Join(names, ", ")
	}
	return &ClientError{Reason: reason, Err: ErrToolNotFound}
}

func suggest(name string, candidates []string, maxDistance int) string {
	if maxDistance <= 0 || name == "" {
		return ""
	}
	best, bestDist := "", maxDistance+1
	lower := strings.ToLower(name)
	for _, c := range candidates {
		d := fuzzy.LevenshteinDistance(lower, strings.ToLower(c))
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// bindArguments normalizes raw call arguments into a JSON object. Empty input means
// no arguments; a JSON array is bound positionally using parameterOrder.
func bindArguments(t Tool, raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return []byte(`{}`), nil
	}
	if trimmed[0] != '[' {
		return trimmed, nil
	}
	var values []any
	if err := json.Unmarshal(trimmed, &values); err != nil {
		return nil, wrapJSONParseError(err)
	}
	order := parameterOrder(t)
	if len(values) > len(order) {
		return nil, &ClientError{
			Reason: fmt.Sprintf("%s accepts %d argument(s), got %d", t.Name(), len(order), len(values)),
			Err:    ErrValidation,
		}
	}
	named := make(map[string]any, len(values))
	for i, v := range values {
		named[order[i]] = v
	}
	return json.Marshal(named)
}

func (r *Registry) acquireSemaphore(ctx context.Context) error {
	sem := r.gate.sem
	if sem == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) releaseSemaphore() {
	if r.gate.sem != nil {
		<-r.gate.sem
	}
}

// Shutdown closes the registry, and every per-run clone of it, for new calls and
// waits for in-flight dispatches or ctx. Calling it more than once is safe.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.gate.mu.Lock()
	r.gate.closed = true
	r.gate.mu.Unlock()
	done := make(chan struct{})
	go func() {
		r.gate.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// clone returns a registry with the same tools, options and middleware chain. It
// shares r's concurrency limit and shutdown state, so registering into it never
// touches r.
func (r *Registry) clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := NewRegistry(func(o *registryOptions) { *o = r.opts })
	c.gate = r.gate
	c.middlewares = slices.Clone(r.middlewares)
	for name, t := range r.rawTools {
		c.rawTools[name] = t
		c.tools[name] = c.wrap(t)
	}
	return c
}
