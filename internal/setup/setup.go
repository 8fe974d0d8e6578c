// Package setup wires a loaded config into the pieces every example binary needs.
package setup

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/rs/zerolog"

	"github.com/skosovsky/reactor"
	"github.com/skosovsky/reactor/config"
	"github.com/skosovsky/reactor/debuglog"
	"github.com/skosovsky/reactor/llm/langchain"
	"github.com/skosovsky/reactor/llm/llama"
	"github.com/skosovsky/reactor/toolkits/calculator"
	"github.com/skosovsky/reactor/toolkits/clock"
	"github.com/skosovsky/reactor/toolkits/memory"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// closers closes in reverse order and joins the errors.
type closers []io.Closer

func (cs closers) Close() error {
	var errs []error
	for _, c := range slices.Backward(cs) {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Endpoint builds the model endpoint named by cfg.LLM.Provider. The returned Closer
// releases local models and must be closed by the caller.
func Endpoint(cfg *config.Config, logger zerolog.Logger) (reactor.Endpoint, io.Closer, error) {
	logger = logger.With().Str("provider", cfg.LLM.Provider).Logger()
	if cfg.LLM.Provider == "llama" {
		ep, err := llama.New(llama.ConfigFrom(cfg.LLM), llama.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("llama endpoint: %w", err)
		}
		return ep, ep, nil
	}
	ep, err := langchain.FromConfig(cfg.LLM, langchain.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("langchain endpoint: %w", err)
	}
	return ep, nopCloser{}, nil
}

// Memory opens the store at cfg.Memory.File. It returns a nil store when memory is
// disabled. With memory.watch set the store follows edits made on disk until the
// Closer is closed.
func Memory(cfg *config.Config, logger zerolog.Logger) (*memory.Store, io.Closer, error) {
	if !cfg.Memory.Enabled {
		return nil, nopCloser{}, nil
	}
	store := memory.NewStore(cfg.Memory.File, memory.WithLogger(logger))
	if !cfg.Memory.Watch {
		return store, nopCloser{}, nil
	}
	w, err := store.Watch(func() { logger.Info().Str("path", store.Path()).Msg("memory file changed on disk") })
	if err != nil {
		return nil, nil, fmt.Errorf("watch memory: %w", err)
	}
	return store, w, nil
}

// Registry returns a registry configured from cfg.Registry that holds the
// calculator and clock toolkits, and save_memory when store is not nil.
func Registry(cfg *config.Config, store *memory.Store, logger zerolog.Logger) (*reactor.Registry, error) {
	opts := append(cfg.RegistryOptions(), reactor.WithRegistryLogger(logger))
	reg := reactor.NewRegistry(opts...)
	if n := cfg.Registry.ObservationLimit; n > 0 {
		reg.Use(reactor.WithObservationLimit(n))
	}
	if err := calculator.Register(reg); err != nil {
		return nil, fmt.Errorf("calculator: %w", err)
	}
	now, err := clock.New()
	if err != nil {
		return nil, fmt.Errorf("clock: %w", err)
	}
	tools := []reactor.Tool{now}
	if store != nil {
		save, err := memory.NewSaveTool(store)
		if err != nil {
			return nil, fmt.Errorf("save_memory: %w", err)
		}
		tools = append(tools, save)
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// ControllerOptions returns cfg's controller options plus the logger. A non-nil
// store becomes the context provider, and with debug output enabled a debuglog
// sink records every run.
func ControllerOptions(cfg *config.Config, store *memory.Store, logger zerolog.Logger) ([]reactor.Option, error) {
	opts := append(cfg.ControllerOptions(), reactor.WithLogger(logger))
	if store != nil {
		opts = append(opts, reactor.WithContextProvider(store))
	}
	if !cfg.Debug.Enabled {
		return opts, nil
	}
	sink, err := debuglog.NewFileSink(
		debuglog.WithOutputDir(cfg.Debug.OutputDir),
		debuglog.WithFilename(cfg.Debug.Filename),
		debuglog.WithTimestamp(cfg.Debug.Timestamp),
		debuglog.WithAppend(cfg.Debug.Append),
		debuglog.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return append(opts, reactor.WithSnapshotSink(sink)), nil
}

// Controller builds the endpoint, memory, registry and controller described by cfg.
// extra is applied after the configured options. The Closer stops the memory
// watcher and releases local models.
func Controller(cfg *config.Config, logger zerolog.Logger, extra ...reactor.Option) (*reactor.Controller, io.Closer, error) {
	ep, epCloser, err := Endpoint(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cs := closers{epCloser}
	fail := func(err error) (*reactor.Controller, io.Closer, error) {
		return nil, nil, errors.Join(err, cs.Close())
	}

	store, memCloser, err := Memory(cfg, logger)
	if err != nil {
		return fail(err)
	}
	cs = append(cs, memCloser)
	reg, err := Registry(cfg, store, logger)
	if err != nil {
		return fail(err)
	}
	opts, err := ControllerOptions(cfg, store, logger)
	if err != nil {
		return fail(err)
	}
	c, err := reactor.NewController(ep, reg, append(opts, extra...)...)
	if err != nil {
		return fail(err)
	}
	return c, cs, nil
}

// Load reads the config at path and builds its logger.
func Load(path string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := config.NewLogger(cfg.Log, nil)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}
