package reactor

import "context"

// StopReason is the endpoint's account of why a generation ended.
type StopReason string

const (
	StopUnknown   StopReason = ""
	StopEndTurn   StopReason = "end_turn"
	StopToolCall  StopReason = "tool_call"
	StopMaxTokens StopReason = "max_tokens"
)

// Usage counts tokens spent by one or more model calls.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// Request is one model call.
type Request struct {
	Turns     []Turn
	Tools     []ToolSchema
	MaxTokens int
}

// Response is what an endpoint produced for one Request. Text is the full output;
// endpoints that streamed it through onFragment may leave Text empty.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
	Stop      StopReason
}

// Endpoint is a language model. Generate streams output through onFragment, which
// must be called sequentially and never after Generate returns. onFragment may be nil.
// Endpoints must honor ctx: the controller uses it for per-call timeouts.
type Endpoint interface {
	Generate(ctx context.Context, req Request, onFragment func(string)) (Response, error)
}

// EndpointFunc adapts a function to Endpoint.
type EndpointFunc func(ctx context.Context, req Request, onFragment func(string)) (Response, error)

// Generate calls f.
func (f EndpointFunc) Generate(ctx context.Context, req Request, onFragment func(string)) (Response, error) {
	return f(ctx, req, onFragment)
}
