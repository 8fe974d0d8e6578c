//go:build !llama

package llama

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skosovsky/reactor"
)

// Endpoint is a reactor.Endpoint over one loaded model. This build has no llama.cpp.
type Endpoint struct{}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithLogger sets the logger for load and generation events.
func WithLogger(zerolog.Logger) Option {
	return func(*Endpoint) {}
}

// New validates cfg and returns ErrUnavailable.
func New(cfg Config, _ ...Option) (*Endpoint, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return nil, ErrUnavailable
}

// Generate implements reactor.Endpoint.
func (*Endpoint) Generate(context.Context, reactor.Request, func(string)) (reactor.Response, error) {
	return reactor.Response{}, ErrUnavailable
}

// Close is a no-op.
func (*Endpoint) Close() error { return nil }

var _ reactor.Endpoint = (*Endpoint)(nil)
