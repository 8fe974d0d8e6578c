package langchain

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/goleak"

	"github.com/skosovsky/reactor"
	"github.com/skosovsky/reactor/config"
	"github.com/skosovsky/reactor/toolkits/calculator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeModel replays choices and records what it was called with.
type fakeModel struct {
	mu       sync.Mutex
	choices  []*llms.ContentChoice
	chunks   [][]string
	err      error
	calls    int
	messages [][]llms.MessageContent
	opts     []llms.CallOptions
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	m.messages = append(m.messages, messages)
	m.opts = append(m.opts, opts)
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	if opts.StreamingFunc != nil && idx < len(m.chunks) {
		for _, c := range m.chunks[idx] {
			if err := opts.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
	}
	if idx >= len(m.choices) {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{m.choices[idx]}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

var _ llms.Model = (*fakeModel)(nil)

func TestNew_NilModel(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestGenerate_TextAndUsage(t *testing.T) {
	model := &fakeModel{choices: []*llms.ContentChoice{{
		Content:    "Answer: 4",
		StopReason: "stop",
		GenerationInfo: map[string]any{
			"PromptTokens":     12,
			"CompletionTokens": 3,
			"TotalTokens":      15,
		},
	}}}
	ep, err := New(model, WithCallOptions(llms.WithTemperature(0.2)))
	require.NoError(t, err)

	resp, err := ep.Generate(context.Background(), reactor.Request{
		Turns:     []reactor.Turn{{Role: reactor.RoleUser, Content: "2+2?"}},
		Tools:     []reactor.ToolSchema{{Name: "add"}},
		MaxTokens: 300,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Answer: 4", resp.Text)
	assert.Equal(t, reactor.StopEndTurn, resp.Stop)
	assert.Equal(t, reactor.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}, resp.Usage)

	opts := model.opts[0]
	assert.Equal(t, 300, opts.MaxTokens)
	assert.InDelta(t, 0.2, opts.Temperature, 1e-9)
	assert.Empty(t, opts.Tools, "tools are only advertised with WithNativeTools")
	assert.Nil(t, opts.StreamingFunc)
}

func TestGenerate_Streams(t *testing.T) {
	model := &fakeModel{
		choices: []*llms.ContentChoice{{Content: "Answer: 42"}},
		chunks:  [][]string{{"Ans", "wer: ", "42"}},
	}
	ep, err := New(model)
	require.NoError(t, err)

	var got []string
	resp, err := ep.Generate(context.Background(), reactor.Request{}, func(s string) { got = append(got, s) })
	require.NoError(t, err)
	assert.Equal(t, []string{"Ans", "wer: ", "42"}, got)
	assert.Equal(t, "Answer: 42", resp.Text)

	// Streaming can be turned off.
	model = &fakeModel{choices: []*llms.ContentChoice{{Content: "x"}}, chunks: [][]string{{"x"}}}
	ep, err = New(model, WithStreaming(false))
	require.NoError(t, err)
	got = nil
	_, err = ep.Generate(context.Background(), reactor.Request{}, func(s string) { got = append(got, s) })
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGenerate_NativeToolCalls(t *testing.T) {
	model := &fakeModel{choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{
			{ID: "call_1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "add", Arguments: `{"a":1,"b":2}`}},
			{ID: "call_2", Type: "function"},
		},
	}}}
	ep, err := New(model, WithNativeTools(true))
	require.NoError(t, err)

	schemas := []reactor.ToolSchema{{Name: "add", Description: "Add two numbers", Parameters: map[string]any{"type": "object"}}}
	resp, err := ep.Generate(context.Background(), reactor.Request{Tools: schemas}, nil)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, reactor.ToolCall{ID: "call_1", ToolName: "add", Args: []byte(`{"a":1,"b":2}`)}, resp.ToolCalls[0])
	assert.Equal(t, reactor.StopToolCall, resp.Stop)

	require.Len(t, model.opts[0].Tools, 1)
	fn := model.opts[0].Tools[0].Function
	assert.Equal(t, "add", fn.Name)
	assert.Equal(t, "Add two numbers", fn.Description)
}

func TestGenerate_NativeToolCallChunksAreNotText(t *testing.T) {
	delta := `[{"id":"call_1","type":"function","function":{"name":"add","arguments":"{\"a\":1,\"b\":2}"}}]`
	model := &fakeModel{
		choices: []*llms.ContentChoice{{
			Content:   "Adding. ",
			ToolCalls: []llms.ToolCall{{ID: "call_1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "add", Arguments: `{"a":1,"b":2}`}}},
		}},
		chunks: [][]string{{"Adding. ", delta}},
	}
	ep, err := New(model, WithNativeTools(true))
	require.NoError(t, err)

	schemas := []reactor.ToolSchema{{Name: "add", Parameters: map[string]any{"type": "object"}}}
	var got []string
	resp, err := ep.Generate(context.Background(), reactor.Request{Tools: schemas}, func(s string) { got = append(got, s) })
	require.NoError(t, err)
	assert.Equal(t, []string{"Adding. "}, got)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "add", resp.ToolCalls[0].ToolName)

	// Without advertised tools the same text reaches the caller untouched.
	model = &fakeModel{choices: []*llms.ContentChoice{{Content: delta}}, chunks: [][]string{{delta}}}
	ep, err = New(model, WithNativeTools(true))
	require.NoError(t, err)
	got = nil
	_, err = ep.Generate(context.Background(), reactor.Request{}, func(s string) { got = append(got, s) })
	require.NoError(t, err)
	assert.Equal(t, []string{delta}, got)
}

func TestIsToolCallChunk(t *testing.T) {
	tests := []struct {
		chunk string
		want  bool
	}{
		{chunk: `[{"id":"call_1","type":"function","function":{"name":"add","arguments":""}}]`, want: true},
		{chunk: ` [{"function":{"arguments":"1}"}}] `, want: true},
		{chunk: `[1, 2]`},
		{chunk: `[]`},
		{chunk: `[`},
		{chunk: `[{"name":"add"}]`},
		{chunk: `Action: add(1, 2)`},
		{chunk: ``},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isToolCallChunk([]byte(tt.chunk)), "chunk %q", tt.chunk)
	}
}

func TestGenerate_Errors(t *testing.T) {
	boom := errors.New("rate limited")
	ep, err := New(&fakeModel{err: boom})
	require.NoError(t, err)
	_, err = ep.Generate(context.Background(), reactor.Request{}, nil)
	require.ErrorIs(t, err, boom)

	ep, err = New(&fakeModel{})
	require.NoError(t, err)
	_, err = ep.Generate(context.Background(), reactor.Request{}, nil)
	require.ErrorIs(t, err, ErrNoChoices)
}

func TestMessages(t *testing.T) {
	msgs := Messages([]reactor.Turn{
		{Role: reactor.RoleSystem, Content: "sys"},
		{Role: reactor.RoleUser, Content: "task"},
		{Role: reactor.RoleAssistant, Content: "Action: add(1, 2)"},
		{Role: reactor.RoleTool, ToolName: "add", Content: "3"},
		{Role: reactor.RoleAssistant, ToolCalls: []reactor.ToolCall{{ID: "c1", ToolName: "add", Args: []byte(`{"a":1}`)}}},
		{Role: reactor.RoleTool, ToolName: "add", ToolCallID: "c1", Content: "Error: missing b"},
	})
	require.Len(t, msgs, 6)
	assert.Equal(t, llms.TextParts(llms.ChatMessageTypeSystem, "sys"), msgs[0])
	assert.Equal(t, llms.TextParts(llms.ChatMessageTypeHuman, "task"), msgs[1])
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[2].Role)
	assert.Equal(t, llms.TextParts(llms.ChatMessageTypeHuman, "Observation: 3"), msgs[3])

	require.Len(t, msgs[4].Parts, 1)
	call, ok := msgs[4].Parts[0].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "c1", call.ID)
	assert.Equal(t, `{"a":1}`, call.FunctionCall.Arguments)

	assert.Equal(t, llms.ChatMessageTypeTool, msgs[5].Role)
	assert.Equal(t, llms.ToolCallResponse{ToolCallID: "c1", Name: "add", Content: "Error: missing b"}, msgs[5].Parts[0])
}

func TestStopReason(t *testing.T) {
	tests := map[string]reactor.StopReason{
		"stop":       reactor.StopEndTurn,
		"end_turn":   reactor.StopEndTurn,
		"tool_calls": reactor.StopToolCall,
		"tool_use":   reactor.StopToolCall,
		"length":     reactor.StopMaxTokens,
		"max_tokens": reactor.StopMaxTokens,
		"":           reactor.StopUnknown,
		"other":      reactor.StopUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, StopReason(in), in)
	}
}

func TestUsage(t *testing.T) {
	assert.Equal(t, reactor.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
		usage(map[string]any{"input_tokens": 5, "output_tokens": float64(2)}))
	assert.Equal(t, reactor.Usage{}, usage(nil))
}

func TestController_WithLangchainModel(t *testing.T) {
	model := &fakeModel{choices: []*llms.ContentChoice{
		{Content: "Thought: First I need to add 15 and 7\nAction: add(15, 7)"},
		{Content: "Thought: Now multiply by 3\nAction: multiply(22, 3)"},
		{Content: "Thought: done\nAnswer: 66", StopReason: "stop"},
	}}
	ep, err := New(model)
	require.NoError(t, err)

	reg := reactor.NewRegistry()
	require.NoError(t, calculator.Register(reg))
	c, err := reactor.NewController(ep, reg)
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "What is 15 + 7, then multiply that by 3?")
	require.NoError(t, err)
	assert.Equal(t, "66", res.FinalAnswer)

	// The third call carries both observations as human turns.
	third := model.messages[2]
	assert.Equal(t, llms.TextParts(llms.ChatMessageTypeHuman, "Observation: 22"), third[3])
	assert.Equal(t, llms.TextParts(llms.ChatMessageTypeHuman, "Observation: 66"), third[5])
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "test-key"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	m, err = NewModel(config.LLMConfig{Provider: "ollama", Model: "llama3.2", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	_, err = NewModel(config.LLMConfig{Provider: "llama"})
	require.Error(t, err)
}
