// Package testutil provides test helpers for reactor: a recording MockTool,
// a ready-made test registry and a ScriptedEndpoint that replays canned model turns.
package testutil

import (
	"context"
	"sync"

	"github.com/skosovsky/reactor"
)

// MockTool is a Tool that returns Result and Err, or delegates to Fn when set.
// It records the arguments of every call.
type MockTool struct {
	ToolName string
	Desc     string
	Schema   map[string]any
	Result   string
	Err      error
	Fn       func(ctx context.Context, args []byte) (string, error)

	mu   sync.Mutex
	args [][]byte
}

func (m *MockTool) Name() string {
	if m.ToolName == "" {
		return "mock"
	}
	return m.ToolName
}

func (m *MockTool) Description() string { return m.Desc }

func (m *MockTool) Parameters() map[string]any {
	if m.Schema == nil {
		return map[string]any{}
	}
	return m.Schema
}

func (m *MockTool) Execute(ctx context.Context, args []byte) (string, error) {
	m.mu.Lock()
	m.args = append(m.args, append([]byte(nil), args...))
	m.mu.Unlock()
	if m.Fn != nil {
		return m.Fn(ctx, args)
	}
	return m.Result, m.Err
}

// Calls returns how many times Execute ran.
func (m *MockTool) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.args)
}

// Args returns the arguments of every call, oldest first.
func (m *MockTool) Args() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.args))
	copy(out, m.args)
	return out
}

var _ reactor.Tool = (*MockTool)(nil)
