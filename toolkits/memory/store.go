// Package memory is a long-term memory for agents: a JSON file of facts and user
// preferences, a save_memory tool the model calls to add to it, and a
// reactor.ContextProvider that puts what is remembered into the system turn.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skosovsky/reactor"
)

// DefaultFile is where the memory examples keep their store.
const DefaultFile = "./agent-memory.json"

// Fact is one remembered statement.
type Fact struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content"`
	// Timestamp is RFC 3339. It is kept as text so files written by other tools load as-is.
	Timestamp string `json:"timestamp"`
}

// Memories is the on-disk document.
type Memories struct {
	Facts       []Fact            `json:"facts"`
	Preferences map[string]string `json:"preferences"`
	// Conversations is carried through untouched so files shared with other tools survive a save.
	Conversations []json.RawMessage `json:"conversations"`
}

func emptyMemories() Memories {
	return Memories{Facts: []Fact{}, Preferences: map[string]string{}, Conversations: []json.RawMessage{}}
}

func (m Memories) clone() Memories {
	out := Memories{
		Facts:         slices.Clone(m.Facts),
		Preferences:   maps.Clone(m.Preferences),
		Conversations: slices.Clone(m.Conversations),
	}
	if out.Facts == nil {
		out.Facts = []Fact{}
	}
	if out.Preferences == nil {
		out.Preferences = map[string]string{}
	}
	if out.Conversations == nil {
		out.Conversations = []json.RawMessage{}
	}
	return out
}

// Store reads and writes Memories at a file path. It is safe for concurrent use.
// While a Watcher is open, reads are served from memory and refreshed on every
// change to the file.
type Store struct {
	path   string
	newID  func() string
	now    func() time.Time
	logger zerolog.Logger

	mu       sync.Mutex
	cache    *Memories
	watching bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIDGenerator replaces uuid.NewString for fact IDs.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *Store) { s.newID = fn }
}

// WithClock replaces time.Now for fact timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger for load and watch problems.
func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore returns a store backed by path. The file is created on the first save.
func NewStore(path string, opts ...StoreOption) *Store {
	if path == "" {
		path = DefaultFile
	}
	s := &Store{
		path:   filepath.Clean(path),
		newID:  uuid.NewString,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load returns the stored memories. A missing or unreadable document yields empty memories.
func (s *Store) Load() (Memories, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.loadLocked()
	if err != nil {
		return Memories{}, err
	}
	return m.clone(), nil
}

func (s *Store) loadLocked() (Memories, error) {
	if s.watching && s.cache != nil {
		return *s.cache, nil
	}
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return emptyMemories(), nil
	case err != nil:
		return Memories{}, fmt.Errorf("read memory file: %w", err)
	}
	m := emptyMemories()
	if err := json.Unmarshal(data, &m); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("memory file is not valid JSON; starting empty")
		m = emptyMemories()
	}
	m = m.clone()
	if s.watching {
		s.cache = &m
	}
	return m, nil
}

// Save replaces the document. The file is written to a temporary sibling and renamed.
func (s *Store) Save(m Memories) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(m.clone())
}

func (s *Store) saveLocked(m Memories) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode memories: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".memory-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp memory file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write memory file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write memory file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace memory file: %w", err)
	}
	if s.watching {
		s.cache = &m
	}
	return nil
}

// AddFact appends a fact and saves.
func (s *Store) AddFact(content string) (Fact, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Fact{}, errors.New("fact must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.loadLocked()
	if err != nil {
		return Fact{}, err
	}
	m = m.clone()
	f := Fact{ID: s.newID(), Content: content, Timestamp: s.now().Format(time.RFC3339)}
	m.Facts = append(m.Facts, f)
	return f, s.saveLocked(m)
}

// AddPreference sets key to value and saves. An existing key is overwritten.
func (s *Store) AddPreference(key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("preference key must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.loadLocked()
	if err != nil {
		return err
	}
	m = m.clone()
	m.Preferences[key] = value
	return s.saveLocked(m)
}

// Summary renders the memories for a system prompt.
func (s *Store) Summary() (string, error) {
	m, err := s.Load()
	if err != nil {
		return "", err
	}
	return FormatSummary(m), nil
}

// FormatSummary renders m as the LONG-TERM MEMORY block. Preferences are sorted by key.
func FormatSummary(m Memories) string {
	var b strings.Builder
	b.WriteString("\n=== LONG-TERM MEMORY ===\n")
	if len(m.Facts) > 0 {
		b.WriteString("\nKnown Facts:\n")
		for _, f := range m.Facts {
			fmt.Fprintf(&b, "- %s\n", f.Content)
		}
	}
	if len(m.Preferences) > 0 {
		b.WriteString("\nUser Preferences:\n")
		for _, k := range slices.Sorted(maps.Keys(m.Preferences)) {
			fmt.Fprintf(&b, "- %s: %s\n", k, m.Preferences[k])
		}
	}
	return b.String()
}

// SystemContext implements reactor.ContextProvider.
func (s *Store) SystemContext(_ context.Context) (string, error) {
	return s.Summary()
}

// Watcher keeps a Store in sync with its file until Close.
type Watcher struct {
	store *Store
	w     *fsnotify.Watcher
	done  chan struct{}
}

// Watch starts serving reads from memory and reloading whenever the file is written,
// replaced or removed. onChange, when set, runs after each reload trigger.
func (s *Store) Watch(onChange func()) (*Watcher, error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	s.mu.Lock()
	s.watching = true
	s.cache = nil
	s.mu.Unlock()

	w := &Watcher{store: s, w: fw, done: make(chan struct{})}
	go w.loop(onChange)
	return w, nil
}

func (w *Watcher) loop(onChange func()) {
	defer close(w.done)
	base := filepath.Base(w.store.path)
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base || (ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write)) {
				continue
			}
			w.store.invalidate()
			w.store.logger.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("memory file changed")
			if onChange != nil {
				onChange()
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.store.logger.Warn().Err(err).Msg("memory watcher error")
		}
	}
}

// Close stops watching and waits for the watcher goroutine to exit.
func (w *Watcher) Close() error {
	err := w.w.Close()
	<-w.done
	w.store.mu.Lock()
	w.store.watching = false
	w.store.cache = nil
	w.store.mu.Unlock()
	return err
}

func (s *Store) invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

var _ reactor.ContextProvider = (*Store)(nil)
