package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/reactor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	fixed := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	n := 0
	return NewStore(filepath.Join(t.TempDir(), "agent-memory.json"),
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() string {
			n++
			return "fact-" + string(rune('0'+n))
		}),
	)
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := newTestStore(t)
	m, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, m.Facts)
	assert.Empty(t, m.Preferences)
	assert.NotNil(t, m.Preferences)
}

func TestStore_LoadInvalidJSON(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o600))
	m, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, m.Facts)
}

func TestStore_AddAndSummary(t *testing.T) {
	s := newTestStore(t)
	f, err := s.AddFact("  My dog is called Rex  ")
	require.NoError(t, err)
	assert.Equal(t, "fact-1", f.ID)
	assert.Equal(t, "My dog is called Rex", f.Content)
	assert.Equal(t, "2026-10-14T09:30:00Z", f.Timestamp)
	require.NoError(t, s.AddPreference("favorite_color", "blue"))
	require.NoError(t, s.AddPreference("drink", "tea"))

	summary, err := s.Summary()
	require.NoError(t, err)
	want := "\n=== LONG-TERM MEMORY ===\n" +
		"\nKnown Facts:\n- My dog is called Rex\n" +
		"\nUser Preferences:\n- drink: tea\n- favorite_color: blue\n"
	assert.Equal(t, want, summary)

	ctxText, err := s.SystemContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, summary, ctxText)

	// A fresh store over the same file sees the saved data.
	again := NewStore(s.Path())
	m, err := again.Load()
	require.NoError(t, err)
	require.Len(t, m.Facts, 1)
	assert.Equal(t, "blue", m.Preferences["favorite_color"])
}

func TestStore_SummaryEmpty(t *testing.T) {
	summary, err := newTestStore(t).Summary()
	require.NoError(t, err)
	assert.Equal(t, "\n=== LONG-TERM MEMORY ===\n", summary)
}

func TestStore_RejectsEmpty(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddFact("   ")
	require.Error(t, err)
	require.Error(t, s.AddPreference("", "x"))
}

func TestStore_LoadsForeignDocument(t *testing.T) {
	s := newTestStore(t)
	doc := `{"facts": [{"content": "likes chess", "timestamp": "2024-05-01T10:00:00.123456"}],
		"preferences": {"language": "Go"}, "conversations": [{"role": "user"}]}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(doc), 0o600))
	_, err := s.AddFact("plays piano")
	require.NoError(t, err)
	m, err := s.Load()
	require.NoError(t, err)
	require.Len(t, m.Facts, 2)
	assert.Equal(t, "2024-05-01T10:00:00.123456", m.Facts[0].Timestamp)
	assert.Len(t, m.Conversations, 1)
	assert.Equal(t, "Go", m.Preferences["language"])
}

func TestStore_LoadReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddPreference("a", "1"))
	m, err := s.Load()
	require.NoError(t, err)
	m.Preferences["a"] = "mutated"
	again, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "1", again.Preferences["a"])
}

func TestStore_WatchReloadsExternalChanges(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddPreference("color", "blue"))

	changed := make(chan struct{}, 16)
	w, err := s.Watch(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer func() { require.NoError(t, w.Close()) }()

	m, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "blue", m.Preferences["color"])

	other := NewStore(s.Path())
	require.NoError(t, other.AddPreference("color", "green"))

	require.Eventually(t, func() bool {
		m, err := s.Load()
		return err == nil && m.Preferences["color"] == "green"
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("onChange was not called")
	}
}

func TestSaveTool(t *testing.T) {
	s := newTestStore(t)
	tool, err := NewSaveTool(s)
	require.NoError(t, err)
	reg := reactor.NewRegistry()
	require.NoError(t, reg.Register(tool))

	tests := []struct {
		name string
		args string
		want string
	}{
		{"fact", `{"memory_type": "fact", "content": "Lives in Lisbon"}`, "Fact saved to memory"},
		{"preference with key", `{"memory_type": "preference", "content": "dark roast", "key": "coffee"}`, "Preference saved to memory"},
		{"preference default key", `{"memory_type": "preference", "content": "jazz music on Sundays"}`, "Preference saved to memory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := reg.Dispatch(context.Background(), reactor.ToolCall{ID: "1", ToolName: "save_memory", Args: []byte(tt.args)})
			require.True(t, obs.Succeeded, obs.Result)
			assert.Equal(t, tt.want, obs.Result)
		})
	}

	m, err := s.Load()
	require.NoError(t, err)
	require.Len(t, m.Facts, 1)
	assert.Equal(t, "Lives in Lisbon", m.Facts[0].Content)
	assert.Equal(t, "dark roast", m.Preferences["coffee"])
	assert.Equal(t, "jazz music on Sundays", m.Preferences["jazz"])
}

func TestSaveTool_InvalidArguments(t *testing.T) {
	tool, err := NewSaveTool(newTestStore(t))
	require.NoError(t, err)
	reg := reactor.NewRegistry()
	require.NoError(t, reg.Register(tool))

	for _, args := range []string{
		`{"memory_type": "secret", "content": "x"}`,
		`{"memory_type": "fact"}`,
		`{"memory_type": "fact", "content": "   "}`,
	} {
		obs := reg.Dispatch(context.Background(), reactor.ToolCall{ID: "1", ToolName: "save_memory", Args: []byte(args)})
		assert.False(t, obs.Succeeded, args)
		assert.True(t, reactor.IsClientError(obs.Err), args)
	}
}

func TestSaveTool_Schema(t *testing.T) {
	tool, err := NewSaveTool(newTestStore(t))
	require.NoError(t, err)
	params := tool.Parameters()
	props, ok := params["properties"].(map[string]any)
	require.True(t, ok)
	mt, ok := props["memory_type"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"fact", "preference"}, mt["enum"])
	assert.ElementsMatch(t, []any{"memory_type", "content"}, params["required"])
}
