package reactor

import (
	"strings"
	"sync"
)

// Transcript accumulates every fragment of model output in arrival order. It is
// safe to read from other goroutines while a run appends to it.
type Transcript struct {
	mu        sync.RWMutex
	b         strings.Builder
	fragments int
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds a fragment. Empty fragments are ignored.
func (t *Transcript) Append(fragment string) {
	if fragment == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.b.WriteString(fragment)
	t.fragments++
}

// String returns the concatenation of all fragments so far.
func (t *Transcript) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.b.String()
}

// Len returns the transcript length in bytes.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.b.Len()
}

// Fragments returns how many non-empty fragments were appended.
func (t *Transcript) Fragments() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fragments
}

// since returns the text appended after byte offset.
func (t *Transcript) since(offset int) string {
	s := t.String()
	if offset <= 0 || offset > len(s) {
		return s
	}
	return s[offset:]
}
