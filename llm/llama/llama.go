//go:build llama

package llama

import (
	"context"
	"fmt"
	"sync"

	llamacpp "github.com/go-skynet/go-llama.cpp"
	"github.com/rs/zerolog"

	"github.com/skosovsky/reactor"
)

// Endpoint is a reactor.Endpoint over one loaded model. Calls are serialized.
type Endpoint struct {
	cfg    Config
	logger zerolog.Logger

	mu    sync.Mutex
	model *llamacpp.LLama
}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithLogger sets the logger for load and generation events.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Endpoint) { e.logger = logger }
}

// New loads the model at cfg.ModelPath.
func New(cfg Config, opts ...Option) (*Endpoint, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	e := &Endpoint{cfg: cfg, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	model, err := llamacpp.New(cfg.ModelPath,
		llamacpp.SetContext(cfg.ContextSize),
		llamacpp.SetGPULayers(cfg.GPULayers),
	)
	if err != nil {
		return nil, fmt.Errorf("llama.New failed: %w", err)
	}
	e.model = model
	e.logger.Info().Str("model_path", cfg.ModelPath).Int("context_size", cfg.ContextSize).Msg("llama model loaded")
	return e, nil
}

// Generate implements reactor.Endpoint. Cancelling ctx stops token generation.
func (e *Endpoint) Generate(ctx context.Context, req reactor.Request, onFragment func(string)) (reactor.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return reactor.Response{}, fmt.Errorf("model is closed")
	}

	opts := []llamacpp.PredictOption{
		llamacpp.SetTemperature(e.cfg.Temperature),
		llamacpp.SetTopP(e.cfg.TopP),
		llamacpp.SetStopWords(StopWords...),
		llamacpp.SetTokenCallback(func(token string) bool {
			if ctx.Err() != nil {
				return false
			}
			if onFragment != nil {
				onFragment(token)
			}
			return true
		}),
	}
	if e.cfg.Threads > 0 {
		opts = append(opts, llamacpp.SetThreads(e.cfg.Threads))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llamacpp.SetTokens(req.MaxTokens))
	}

	text, err := e.model.Predict(RenderChatML(req.Turns, req.Tools), opts...)
	if err := ctx.Err(); err != nil {
		return reactor.Response{}, err
	}
	if err != nil {
		return reactor.Response{}, fmt.Errorf("prediction failed: %w", err)
	}
	e.logger.Debug().Int("output_length", len(text)).Msg("llama generate")
	return reactor.Response{Text: text}, nil
}

// Close frees the model.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}

var _ reactor.Endpoint = (*Endpoint)(nil)
