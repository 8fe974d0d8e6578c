package reactor

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pairArgs struct {
	A float64 `json:"a" description:"First number"`
	B float64 `json:"b" description:"Second number"`
}

func addTool(t testing.TB) Tool {
	t.Helper()
	tool, err := NewTool("add", "Add two numbers", func(_ context.Context, a pairArgs) (float64, error) {
		return a.A + a.B, nil
	}, WithTags("math"))
	require.NoError(t, err)
	return tool
}

func TestNewTool_Schema(t *testing.T) {
	tool := addTool(t)
	assert.Equal(t, "add", tool.Name())
	assert.Equal(t, "Add two numbers", tool.Description())

	params := tool.Parameters()
	assert.Equal(t, "object", params["type"])
	assert.NotContains(t, params, "$schema")
	assert.ElementsMatch(t, []any{"a", "b"}, params["required"])
	a, ok := params["properties"].(map[string]any)["a"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "number", a["type"])
	assert.Equal(t, "First number", a["description"])
}

func TestNewTool_Execute(t *testing.T) {
	tool := addTool(t)
	tests := []struct {
		name    string
		args    string
		want    string
		wantErr string
	}{
		{name: "integers", args: `{"a": 15, "b": 7}`, want: "22"},
		{name: "fractions", args: `{"a": 2.5, "b": 4}`, want: "6.5"},
		{name: "malformed", args: `{"a": 15,`, wantErr: "json parse error"},
		{name: "wrong type", args: `{"a": "fifteen", "b": 7}`, wantErr: "a"},
		{name: "missing b", args: `{"a": 15}`, wantErr: "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tool.Execute(context.Background(), []byte(tt.args))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			assert.True(t, IsClientError(err))
			assert.ErrorIs(t, err, ErrValidation)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

type celsius float64

func (c celsius) String() string { return strconv.FormatFloat(float64(c), 'f', -1, 64) + "C" }

func TestNewTool_ResultRendering(t *testing.T) {
	type reading struct {
		City string  `json:"city"`
		Temp celsius `json:"temp"`
	}
	run := func(t *testing.T, tool Tool, err error) string {
		t.Helper()
		require.NoError(t, err)
		out, err := tool.Execute(context.Background(), []byte(`{}`))
		require.NoError(t, err)
		return out
	}

	text, err := NewTool("text", "d", func(context.Context, struct{}) (string, error) { return "sunny", nil })
	assert.Equal(t, "sunny", run(t, text, err))

	raw, err := NewTool("raw", "d", func(context.Context, struct{}) ([]byte, error) { return []byte("22"), nil })
	assert.Equal(t, "22", run(t, raw, err))

	stringer, err := NewTool("stringer", "d", func(context.Context, struct{}) (celsius, error) { return 21.5, nil })
	assert.Equal(t, "21.5C", run(t, stringer, err))

	structured, err := NewTool("structured", "d", func(context.Context, struct{}) (reading, error) {
		return reading{City: "Lisbon", Temp: 19}, nil
	})
	assert.JSONEq(t, `{"city":"Lisbon","temp":19}`, run(t, structured, err))

	unrenderable, err := NewTool("chan", "d", func(context.Context, struct{}) (chan int, error) { return nil, nil })
	require.NoError(t, err)
	_, err = unrenderable.Execute(context.Background(), []byte(`{}`))
	assert.True(t, IsHandlerError(err))
}

func TestNewTool_HandlerErrors(t *testing.T) {
	divByZero := errors.New("division by zero")
	divide, err := NewTool("divide", "d", func(_ context.Context, a pairArgs) (float64, error) {
		if a.B == 0 {
			return 0, divByZero
		}
		if a.B < 0 {
			return 0, &ClientError{Reason: "b must be positive", Err: ErrValidation}
		}
		return a.A / a.B, nil
	})
	require.NoError(t, err)

	_, err = divide.Execute(context.Background(), []byte(`{"a": 1, "b": 0}`))
	var he *HandlerError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "divide", he.Tool)
	assert.ErrorIs(t, err, divByZero)
	assert.EqualError(t, err, "division by zero")

	_, err = divide.Execute(context.Background(), []byte(`{"a": 1, "b": -1}`))
	assert.True(t, IsClientError(err))
	assert.False(t, IsHandlerError(err))
}

func TestNewTool_Rejects(t *testing.T) {
	fn := func(context.Context, pairArgs) (string, error) { return "", nil }
	for _, name := range []string{"", "has space", "add!", "ümlaut", strings.Repeat("x", 65)} {
		_, err := NewTool(name, "d", fn)
		assert.Error(t, err, "name %q", name)
	}
	for _, name := range []string{"add", "get_current_time", "save-memory", strings.Repeat("x", 64)} {
		_, err := NewTool(name, "d", fn)
		assert.NoError(t, err, "name %q", name)
	}
	_, err := NewTool[pairArgs, string]("nil_handler", "d", nil)
	assert.ErrorContains(t, err, "handler must not be nil")
}

func TestNewTool_ParameterOrder(t *testing.T) {
	type Args struct {
		Second string `json:"second"`
		First  string `json:"first"`
		Hidden string `json:"-"`
		Plain  string
	}
	fn := func(context.Context, Args) (string, error) { return "", nil }

	declared, err := NewTool("ordered", "d", fn)
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first", "Plain"}, declared.(ToolMetadata).ParameterOrder())

	custom, err := NewTool("custom", "d", fn, WithParameterOrder("first", "second"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, custom.(ToolMetadata).ParameterOrder())
}

func TestTool_AccessorsReturnCopies(t *testing.T) {
	tool := addTool(t)
	meta := tool.(ToolMetadata)

	tags := meta.Tags()
	tags[0] = "changed"
	assert.Equal(t, []string{"math"}, meta.Tags())

	order := meta.ParameterOrder()
	order[0] = "changed"
	assert.Equal(t, []string{"a", "b"}, meta.ParameterOrder())

	params := tool.Parameters()
	params["x-changed"] = true
	assert.NotContains(t, tool.Parameters(), "x-changed")
}

func BenchmarkExecute(b *testing.B) {
	tool := addTool(b)
	args, err := json.Marshal(pairArgs{A: 15, B: 7})
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	for b.Loop() {
		_, _ = tool.Execute(ctx, args)
	}
}
