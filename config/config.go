// Package config loads reactor settings from a YAML file, a .env file and REACTOR_*
// environment variables, and turns them into controller and registry options.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/skosovsky/reactor"
)

// EnvPrefix prefixes every environment override, e.g. REACTOR_CONTROLLER_MAX_ITERATIONS.
const EnvPrefix = "REACTOR"

// Config stores all configuration of an agent process.
type Config struct {
	Controller ControllerConfig `mapstructure:"controller"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Memory     MemoryConfig     `mapstructure:"memory"`
	Debug      DebugConfig      `mapstructure:"debug"`
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
}

// ControllerConfig mirrors the reactor.Controller options.
type ControllerConfig struct {
	MaxIterations    int           `mapstructure:"max_iterations"`
	PerCallTokens    int           `mapstructure:"per_call_tokens"`
	CallTimeout      time.Duration `mapstructure:"call_timeout"`
	MaxStalls        int           `mapstructure:"max_stalls"`
	AnswerMarker     string        `mapstructure:"answer_marker"`
	StructuredStop   bool          `mapstructure:"structured_stop"`
	BatchConcurrency int           `mapstructure:"batch_concurrency"`
	// SystemPrompt replaces the built-in ReAct prompt when set.
	SystemPrompt string `mapstructure:"system_prompt"`
}

// RegistryConfig mirrors the reactor.Registry options.
type RegistryConfig struct {
	DefaultTimeout     time.Duration `mapstructure:"default_timeout"`
	MaxConcurrency     int           `mapstructure:"max_concurrency"`
	RecoverPanics      bool          `mapstructure:"recover_panics"`
	SuggestionDistance int           `mapstructure:"suggestion_distance"`
	// ObservationLimit cuts tool results to this many runes; 0 keeps them whole.
	ObservationLimit int `mapstructure:"observation_limit"`
}

// LLMConfig selects and tunes the model endpoint.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"` // "openai", "ollama", "llama"
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float64 `mapstructure:"temperature"`
	NativeTools bool    `mapstructure:"native_tools"` // advertise tools through the provider API

	// Local GGUF models.
	ModelPath   string `mapstructure:"model_path"`
	ContextSize int    `mapstructure:"context_size"`
	Threads     int    `mapstructure:"threads"`
	GPULayers   int    `mapstructure:"gpu_layers"`
}

// MemoryConfig configures the long-term memory toolkit.
type MemoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	File    string `mapstructure:"file"`
	Watch   bool   `mapstructure:"watch"`
}

// DebugConfig configures prompt debug output.
type DebugConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	OutputDir string `mapstructure:"output_dir"`
	Filename  string `mapstructure:"filename"`
	Timestamp bool   `mapstructure:"timestamp"`
	Append    bool   `mapstructure:"append"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// ServerConfig configures the HTTP example server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("controller.max_iterations", 10)
	v.SetDefault("controller.per_call_tokens", 300)
	v.SetDefault("controller.call_timeout", 2*time.Minute)
	v.SetDefault("controller.max_stalls", 0)
	v.SetDefault("controller.answer_marker", reactor.DefaultAnswerMarker)
	v.SetDefault("controller.structured_stop", false)
	v.SetDefault("controller.batch_concurrency", 2)
	v.SetDefault("controller.system_prompt", "")

	v.SetDefault("registry.default_timeout", 30*time.Second)
	v.SetDefault("registry.max_concurrency", 0)
	v.SetDefault("registry.recover_panics", true)
	v.SetDefault("registry.suggestion_distance", 2)
	v.SetDefault("registry.observation_limit", 0)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.native_tools", false)
	v.SetDefault("llm.model_path", "./models/model.gguf")
	v.SetDefault("llm.context_size", 2000)
	v.SetDefault("llm.threads", 4)
	v.SetDefault("llm.gpu_layers", 0)

	v.SetDefault("memory.enabled", false)
	v.SetDefault("memory.file", "./agent-memory.json")
	v.SetDefault("memory.watch", false)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.output_dir", "./logs")
	v.SetDefault("debug.filename", "debug_output.txt")
	v.SetDefault("debug.timestamp", false)
	v.SetDefault("debug.append", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("server.addr", ":8080")
}

// Load reads configuration. configPath names a YAML file; when empty, config.yaml is
// looked up in the working directory and a missing file is not an error. envFiles are
// loaded into the process environment first; when none are given, ./.env is tried.
// Variables already set in the environment win over .env values.
func Load(configPath string, envFiles ...string) (*Config, error) {
	if err := loadEnv(envFiles); err != nil {
		return nil, err
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// controller.max_iterations becomes REACTOR_CONTROLLER_MAX_ITERATIONS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnv(files []string) error {
	if len(files) == 0 {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Controller.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("controller.max_iterations must be at least 1, got %d", c.Controller.MaxIterations))
	}
	if c.Controller.PerCallTokens < 0 {
		errs = append(errs, fmt.Errorf("controller.per_call_tokens must not be negative, got %d", c.Controller.PerCallTokens))
	}
	if c.Controller.MaxStalls < 0 {
		errs = append(errs, fmt.Errorf("controller.max_stalls must not be negative, got %d", c.Controller.MaxStalls))
	}
	if strings.TrimSpace(c.Controller.AnswerMarker) == "" {
		errs = append(errs, errors.New("controller.answer_marker must not be empty"))
	}
	if c.Controller.BatchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("controller.batch_concurrency must be at least 1, got %d", c.Controller.BatchConcurrency))
	}
	if c.Registry.ObservationLimit < 0 {
		errs = append(errs, fmt.Errorf("registry.observation_limit must not be negative, got %d", c.Registry.ObservationLimit))
	}
	if c.Registry.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("registry.max_concurrency must not be negative, got %d", c.Registry.MaxConcurrency))
	}
	switch c.LLM.Provider {
	case "openai", "ollama", "llama":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not one of openai, ollama, llama", c.LLM.Provider))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of console, json", c.Log.Format))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// ControllerOptions returns the reactor options for c.Controller.
func (c *Config) ControllerOptions() []reactor.Option {
	cc := c.Controller
	opts := []reactor.Option{
		reactor.WithMaxIterations(cc.MaxIterations),
		reactor.WithPerCallTokenBudget(cc.PerCallTokens),
		reactor.WithCallTimeout(cc.CallTimeout),
		reactor.WithMaxStalls(cc.MaxStalls),
		reactor.WithAnswerMarker(cc.AnswerMarker),
		reactor.WithStructuredStop(cc.StructuredStop),
		reactor.WithBatchConcurrency(cc.BatchConcurrency),
	}
	if cc.SystemPrompt != "" {
		opts = append(opts, reactor.WithSystemPrompt(cc.SystemPrompt))
	}
	return opts
}

// RegistryOptions returns the reactor options for c.Registry.
func (c *Config) RegistryOptions() []reactor.RegistryOption {
	rc := c.Registry
	return []reactor.RegistryOption{
		reactor.WithDefaultTimeout(rc.DefaultTimeout),
		reactor.WithMaxConcurrency(rc.MaxConcurrency),
		reactor.WithRecoverPanics(rc.RecoverPanics),
		reactor.WithSuggestionDistance(rc.SuggestionDistance),
	}
}

// NewLogger builds the process logger. The console format is meant for terminals;
// w defaults to os.Stderr.
func NewLogger(cfg LogConfig, w io.Writer) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	out := w
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
