package reactor

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Middleware wraps a Tool with cross-cutting behavior.
type Middleware func(Tool) Tool

// truncationSuffix follows an observation cut by WithObservationLimit.
const truncationSuffix = " ... (truncated)"

// wrapper is the Tool every middleware returns. It keeps the wrapped tool's identity
// and metadata and replaces only Execute.
type wrapper struct {
	Tool
	timeout time.Duration
	exec    func(ctx context.Context, args []byte) (string, error)
}

func (w *wrapper) Execute(ctx context.Context, args []byte) (string, error) {
	return w.exec(ctx, args)
}

func (w *wrapper) Timeout() time.Duration {
	if w.timeout > 0 {
		return w.timeout
	}
	if tm, ok := w.Tool.(ToolMetadata); ok {
		return tm.Timeout()
	}
	return 0
}

func (w *wrapper) Tags() []string {
	if tm, ok := w.Tool.(ToolMetadata); ok {
		return tm.Tags()
	}
	return nil
}

func (w *wrapper) ParameterOrder() []string {
	if tm, ok := w.Tool.(ToolMetadata); ok {
		return tm.ParameterOrder()
	}
	return nil
}

// WithLogging logs every execution: arguments at start, then duration with either
// the observation size or the error.
func WithLogging(logger zerolog.Logger) Middleware {
	return func(next Tool) Tool {
		return &wrapper{Tool: next, exec: func(ctx context.Context, args []byte) (string, error) {
			log := logger.With().Str("tool", next.Name()).Logger()
			log.Info().Bytes("args", args).Msg("tool start")
			began := time.Now()
			out, err := next.Execute(ctx, args)
			if err != nil {
				log.Error().Err(err).Dur("duration", time.Since(began)).Msg("tool error")
				return "", err
			}
			log.Info().Dur("duration", time.Since(began)).Int("result_len", len(out)).Msg("tool end")
			return out, nil
		}}
	}
}

// WithRecovery turns a panic in the tool into a HandlerError.
func WithRecovery() Middleware {
	return func(next Tool) Tool {
		return &wrapper{Tool: next, exec: func(ctx context.Context, args []byte) (out string, err error) {
			defer func() {
				if p := recover(); p != nil {
					out, err = "", &HandlerError{Tool: next.Name(), Err: &panicError{p: p}}
				}
			}()
			return next.Execute(ctx, args)
		}}
	}
}

// WithTimeoutMiddleware bounds each execution by d. When the registry default also
// applies the shorter one wins.
func WithTimeoutMiddleware(d time.Duration) Middleware {
	return func(next Tool) Tool {
		return &wrapper{Tool: next, timeout: d, exec: func(ctx context.Context, args []byte) (string, error) {
			if d <= 0 {
				return next.Execute(ctx, args)
			}
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Execute(ctx, args)
		}}
	}
}

// WithObservationLimit cuts successful results longer than maxRunes so one verbose
// tool cannot fill a small context window. Errors pass through untouched.
func WithObservationLimit(maxRunes int) Middleware {
	return func(next Tool) Tool {
		if maxRunes <= 0 {
			return next
		}
		return &wrapper{Tool: next, exec: func(ctx context.Context, args []byte) (string, error) {
			out, err := next.Execute(ctx, args)
			if err != nil || utf8.RuneCountInString(out) <= maxRunes {
				return out, err
			}
			return fmt.Sprintf("%s%s", string([]rune(out)[:maxRunes]), truncationSuffix), nil
		}}
	}
}

// Use replaces the registry's middleware chain and rewraps every registered tool
// from its unwrapped form. The first middleware is outermost. Tools registered
// later get the same chain.
func (r *Registry) Use(middlewares ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = middlewares
	for name, raw := range r.rawTools {
		r.tools[name] = r.wrap(raw)
	}
}

// wrap applies the chain to t. Caller holds r.mu.
func (r *Registry) wrap(t Tool) Tool {
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		t = r.middlewares[i](t)
	}
	return t
}
