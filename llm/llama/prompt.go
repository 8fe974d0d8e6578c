// Package llama runs local GGUF models through llama.cpp. The cgo binding is only
// compiled with the "llama" build tag; without it New returns ErrUnavailable.
package llama

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/skosovsky/reactor"
	"github.com/skosovsky/reactor/config"
)

// ErrUnavailable is returned by New in builds without the llama tag.
var ErrUnavailable = errors.New("llama.cpp support not compiled in; build with -tags llama")

// StopWords end a generation. "Observation:" keeps the model from inventing tool results.
var StopWords = []string{"<|im_end|>", "Observation:"}

// Config tunes model loading and sampling.
type Config struct {
	ModelPath   string
	ContextSize int
	GPULayers   int
	Threads     int
	Temperature float32
	TopP        float32
}

// ConfigFrom maps the llm section of a config file.
func ConfigFrom(c config.LLMConfig) Config {
	return Config{
		ModelPath:   c.ModelPath,
		ContextSize: c.ContextSize,
		GPULayers:   c.GPULayers,
		Threads:     c.Threads,
		Temperature: float32(c.Temperature),
		TopP:        0.9,
	}
}

func (c Config) validate() error {
	if c.ModelPath == "" {
		return errors.New("model path must not be empty")
	}
	if c.ContextSize <= 0 {
		return fmt.Errorf("context size must be positive, got %d", c.ContextSize)
	}
	return nil
}

// RenderChatML renders turns as a ChatML prompt ending with an open assistant turn.
// Tools are described in the system turn. Observations are written back as user
// turns starting with "Observation:".
func RenderChatML(turns []reactor.Turn, tools []reactor.ToolSchema) string {
	var b strings.Builder
	toolText := describeTools(tools)
	wroteSystem := false
	for _, t := range turns {
		switch t.Role {
		case reactor.RoleSystem:
			writeTurn(&b, "system", t.Content+toolText)
			wroteSystem = true
		case reactor.RoleUser:
			if !wroteSystem && toolText != "" {
				writeTurn(&b, "system", strings.TrimLeft(toolText, "\n"))
				wroteSystem = true
			}
			writeTurn(&b, "user", t.Content)
		case reactor.RoleAssistant:
			content := t.Content
			for _, c := range t.ToolCalls {
				content += fmt.Sprintf("\nAction: %s(%s)", c.ToolName, c.Args)
			}
			writeTurn(&b, "assistant", strings.TrimLeft(content, "\n"))
		case reactor.RoleTool:
			writeTurn(&b, "user", "Observation: "+t.Content)
		}
	}
	b.WriteString("<|im_start|>assistant\n")
	return b.String()
}

func writeTurn(b *strings.Builder, role, content string) {
	fmt.Fprintf(b, "<|im_start|>%s\n%s<|im_end|>\n", role, content)
}

func describeTools(tools []reactor.ToolSchema) string {
	if len(tools) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nAvailable tools:\n")
	for _, t := range tools {
		params, err := json.Marshal(t.Parameters)
		if err != nil {
			params = []byte("{}")
		}
		fmt.Fprintf(&b, "- %s: %s Parameters: %s\n", t.Name, t.Description, params)
	}
	return strings.TrimRight(b.String(), "\n")
}
