package reactor

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestObservation_Content(t *testing.T) {
	ok := Observation{CallID: "c1", ToolName: "add", Result: "22", Succeeded: true}
	assert.Equal(t, "22", ok.Content())

	bad := Observation{CallID: "c2", ToolName: "divide", Result: "division by zero"}
	assert.Equal(t, "Error: division by zero", bad.Content())
}

func TestState_Terminal(t *testing.T) {
	tests := []struct {
		state    State
		terminal bool
	}{
		{StateAwaitingModel, false},
		{StateToolCallPending, false},
		{StateFinalAnswer, true},
		{StateIterationLimit, true},
		{StateStalled, true},
		{StateFatal, true},
		{StateCancelled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.state.Terminal())
		})
	}
}

func TestStateFor(t *testing.T) {
	assert.Equal(t, StateFinalAnswer, stateFor(ReasonFinalAnswer))
	assert.Equal(t, StateIterationLimit, stateFor(ReasonMaxIterations))
	assert.Equal(t, StateStalled, stateFor(ReasonStalled))
	assert.Equal(t, StateCancelled, stateFor(ReasonCancelled))
	assert.Equal(t, StateFatal, stateFor(ReasonFatal))
}

func TestUsage_Add(t *testing.T) {
	u := Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}.Add(Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})
	assert.Equal(t, Usage{PromptTokens: 11, CompletionTokens: 22, TotalTokens: 33}, u)
}

// minTool is a minimal Tool used across the package tests.
type minTool struct {
	name, desc string
	params     map[string]any
	execute    func(context.Context, []byte) (string, error)
}

func (m *minTool) Name() string               { return m.name }
func (m *minTool) Description() string        { return m.desc }
func (m *minTool) Parameters() map[string]any { return m.params }
func (m *minTool) Execute(ctx context.Context, args []byte) (string, error) {
	if m.execute != nil {
		return m.execute(ctx, args)
	}
	return "", nil
}

func TestMinTool_ImplementsTool(_ *testing.T) {
	var _ Tool = &minTool{}
}

func ExampleNewTool() {
	type Args struct {
		A float64 `json:"a" description:"First number"`
		B float64 `json:"b" description:"Second number"`
	}
	add, err := NewTool("add", "Add two numbers", func(_ context.Context, a Args) (float64, error) {
		return a.A + a.B, nil
	})
	if err != nil {
		return
	}
	fmt.Println(add.Name(), add.(ToolMetadata).ParameterOrder())
	// Output: add [a b]
}

func ExampleRegistry_Dispatch() {
	type Args struct {
		A float64 `json:"a"`
		B float64 `json:"b"`
	}
	add, err := NewTool("add", "Add two numbers", func(_ context.Context, a Args) (float64, error) {
		return a.A + a.B, nil
	})
	if err != nil {
		return
	}
	reg := NewRegistry()
	reg.MustRegister(add)

	obs := reg.Dispatch(context.Background(), ToolCall{ID: "1", ToolName: "add", Args: []byte(`[15, 7]`)})
	fmt.Println(obs.Succeeded, obs.Result)

	obs = reg.Dispatch(context.Background(), ToolCall{ID: "2", ToolName: "ad", Args: []byte(`{}`)})
	fmt.Println(obs.Content())
	// Output:
	// true 22
	// Error: unknown tool "ad"; did you mean "add"? Available tools: add
}

func ExampleParseAction() {
	a, found, err := ParseAction("Thought: first add them\nAction: add(15, 7)\n")
	fmt.Println(a.Name, string(a.Args), found, err)
	// Output: add [15,7] true <nil>
}
