package reactor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type toolOptions struct {
	strict  bool
	timeout time.Duration
	tags    []string
	order   []string
}

// ToolOption configures a tool built by NewTool or NewDynamicTool.
type ToolOption func(*toolOptions)

// WithStrict closes every object in the argument schema and requires every property.
func WithStrict() ToolOption {
	return func(o *toolOptions) { o.strict = true }
}

// WithTimeout bounds each call of this tool, replacing the registry default.
func WithTimeout(d time.Duration) ToolOption {
	return func(o *toolOptions) { o.timeout = d }
}

// WithTags labels the tool, e.g. "math". Tags are informational.
func WithTags(tags ...string) ToolOption {
	return func(o *toolOptions) { o.tags = tags }
}

// WithParameterOrder sets the names positional arguments bind to, in order.
func WithParameterOrder(names ...string) ToolOption {
	return func(o *toolOptions) { o.order = names }
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	timeout        time.Duration
	maxConcurrency int
	recoverPanics  bool
	maxSuggestion  int
	logger         zerolog.Logger
	onBefore       func(context.Context, ToolCall)
	onAfter        func(context.Context, ToolCall, Observation, time.Duration)
}

// WithDefaultTimeout bounds tools that set no timeout of their own. Zero means none.
func WithDefaultTimeout(d time.Duration) RegistryOption {
	return func(o *registryOptions) { o.timeout = d }
}

// WithMaxConcurrency caps how many tools execute at once across all runs sharing
// the registry. n <= 0 leaves it unbounded.
func WithMaxConcurrency(n int) RegistryOption {
	return func(o *registryOptions) { o.maxConcurrency = n }
}

// WithRecoverPanics turns a panicking tool into a failed observation instead of
// crashing the process.
func WithRecoverPanics(enable bool) RegistryOption {
	return func(o *registryOptions) { o.recoverPanics = enable }
}

// WithSuggestionDistance sets the maximum edit distance for "did you mean"
// hints on unknown tool names. Zero disables suggestions.
func WithSuggestionDistance(n int) RegistryOption {
	return func(o *registryOptions) { o.maxSuggestion = n }
}

// WithRegistryLogger logs dispatches at debug level and failures at warn.
func WithRegistryLogger(logger zerolog.Logger) RegistryOption {
	return func(o *registryOptions) { o.logger = logger }
}

// WithOnBeforeDispatch calls fn right before a resolved tool executes, with the
// execution context.
func WithOnBeforeDispatch(fn func(context.Context, ToolCall)) RegistryOption {
	return func(o *registryOptions) { o.onBefore = fn }
}

// WithOnAfterDispatch calls fn with the observation and elapsed time after every
// dispatch, failed ones included.
func WithOnAfterDispatch(fn func(context.Context, ToolCall, Observation, time.Duration)) RegistryOption {
	return func(o *registryOptions) { o.onAfter = fn }
}
