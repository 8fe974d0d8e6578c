package langchain

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/skosovsky/reactor/config"
)

// NewModel builds the langchaingo model named by cfg.Provider. The OpenAI client falls
// back to OPENAI_API_KEY when cfg.APIKey is empty.
func NewModel(cfg config.LLMConfig) (llms.Model, error) {
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		m, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		return m, nil
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		m, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("ollama: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("provider %q is not served by langchaingo", cfg.Provider)
	}
}

// FromConfig builds an Endpoint for cfg. Temperature and native tools come from cfg.
func FromConfig(cfg config.LLMConfig, opts ...Option) (*Endpoint, error) {
	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithCallOptions(llms.WithTemperature(cfg.Temperature)),
		WithNativeTools(cfg.NativeTools),
	}
	return New(model, append(base, opts...)...)
}
