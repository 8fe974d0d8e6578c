// Package langchain adapts any langchaingo llms.Model (OpenAI, Ollama, Anthropic and
// the rest) to reactor.Endpoint.
package langchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"

	"github.com/skosovsky/reactor"
)

// ErrNoChoices is returned when the model answers without any choice.
var ErrNoChoices = errors.New("model returned no choices")

// Endpoint calls a langchaingo model.
type Endpoint struct {
	model       llms.Model
	callOpts    []llms.CallOption
	nativeTools bool
	stream      bool
	logger      zerolog.Logger
}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithCallOptions adds options to every call, e.g. llms.WithTemperature(0).
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(e *Endpoint) { e.callOpts = append(e.callOpts, opts...) }
}

// WithNativeTools advertises the registry's tools through the provider's
// function-calling API. Without it the model only sees the tools described in the prompt.
func WithNativeTools(enable bool) Option {
	return func(e *Endpoint) { e.nativeTools = enable }
}

// WithStreaming toggles token streaming. It is on by default.
func WithStreaming(enable bool) Option {
	return func(e *Endpoint) { e.stream = enable }
}

// WithLogger logs each call at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Endpoint) { e.logger = logger }
}

// New wraps model.
func New(model llms.Model, opts ...Option) (*Endpoint, error) {
	if model == nil {
		return nil, errors.New("model must not be nil")
	}
	e := &Endpoint{model: model, stream: true, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Generate implements reactor.Endpoint.
func (e *Endpoint) Generate(ctx context.Context, req reactor.Request, onFragment func(string)) (reactor.Response, error) {
	opts := make([]llms.CallOption, 0, len(e.callOpts)+3)
	opts = append(opts, e.callOpts...)
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	native := e.nativeTools && len(req.Tools) > 0
	if native {
		opts = append(opts, llms.WithTools(Tools(req.Tools)))
	}
	if e.stream && onFragment != nil {
		opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if native && isToolCallChunk(chunk) {
				return nil
			}
			onFragment(string(chunk))
			return nil
		}))
	}

	resp, err := e.model.GenerateContent(ctx, Messages(req.Turns), opts...)
	if err != nil {
		return reactor.Response{}, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return reactor.Response{}, ErrNoChoices
	}
	choice := resp.Choices[0]
	out := reactor.Response{
		Text:  choice.Content,
		Stop:  StopReason(choice.StopReason),
		Usage: usage(choice.GenerationInfo),
	}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, reactor.ToolCall{
			ID:       tc.ID,
			ToolName: tc.FunctionCall.Name,
			Args:     []byte(tc.FunctionCall.Arguments),
		})
	}
	if len(out.ToolCalls) > 0 && out.Stop == reactor.StopUnknown {
		out.Stop = reactor.StopToolCall
	}
	e.logger.Debug().
		Int("turns", len(req.Turns)).
		Int("tool_calls", len(out.ToolCalls)).
		Str("stop", string(out.Stop)).
		Int("total_tokens", out.Usage.TotalTokens).
		Msg("langchain generate")
	return out, nil
}

// isToolCallChunk reports whether a streamed chunk is the provider's serialized
// tool-call delta rather than model text. The OpenAI client streams those as a
// JSON array of calls; they arrive again in the final choice's ToolCalls.
func isToolCallChunk(chunk []byte) bool {
	trimmed := bytes.TrimSpace(chunk)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return false
	}
	var calls []struct {
		Function json.RawMessage `json:"function"`
	}
	if err := json.Unmarshal(trimmed, &calls); err != nil || len(calls) == 0 {
		return false
	}
	for _, c := range calls {
		if len(c.Function) == 0 {
			return false
		}
	}
	return true
}

// Messages converts turns to langchaingo messages. Tool turns that answer a
// structured call become tool responses; text-action observations are sent as a
// human "Observation:" line, the way a ReAct prompt expects them.
func Messages(turns []reactor.Turn) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case reactor.RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, t.Content))
		case reactor.RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, t.Content))
		case reactor.RoleAssistant:
			msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if t.Content != "" {
				msg.Parts = append(msg.Parts, llms.TextContent{Text: t.Content})
			}
			for _, c := range t.ToolCalls {
				msg.Parts = append(msg.Parts, llms.ToolCall{
					ID:           c.ID,
					Type:         "function",
					FunctionCall: &llms.FunctionCall{Name: c.ToolName, Arguments: string(c.Args)},
				})
			}
			out = append(out, msg)
		case reactor.RoleTool:
			if t.ToolCallID == "" {
				out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, "Observation: "+t.Content))
				continue
			}
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: t.ToolCallID,
					Name:       t.ToolName,
					Content:    t.Content,
				}},
			})
		}
	}
	return out
}

// Tools converts tool schemas to langchaingo function definitions.
func Tools(schemas []reactor.ToolSchema) []llms.Tool {
	out := make([]llms.Tool, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}

// StopReason maps provider stop reasons (OpenAI, Anthropic, Ollama, Gemini) to reactor's.
func StopReason(reason string) reactor.StopReason {
	switch reason {
	case "stop", "end_turn", "stop_sequence", "STOP":
		return reactor.StopEndTurn
	case "tool_calls", "tool_use", "function_call":
		return reactor.StopToolCall
	case "length", "max_tokens", "MAX_TOKENS":
		return reactor.StopMaxTokens
	default:
		return reactor.StopUnknown
	}
}

func usage(info map[string]any) reactor.Usage {
	u := reactor.Usage{
		PromptTokens:     intValue(info, "PromptTokens", "input_tokens"),
		CompletionTokens: intValue(info, "CompletionTokens", "output_tokens"),
		TotalTokens:      intValue(info, "TotalTokens"),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

func intValue(info map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

var _ reactor.Endpoint = (*Endpoint)(nil)
