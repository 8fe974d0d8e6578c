package testutil

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/skosovsky/reactor"
)

// ErrScriptExhausted is returned by ScriptedEndpoint when it runs out of replies
// and has no Fallback.
var ErrScriptExhausted = errors.New("scripted endpoint: no replies left")

// Reply is one canned model turn.
type Reply struct {
	Text      string
	ToolCalls []reactor.ToolCall
	Stop      reactor.StopReason
	Usage     reactor.Usage
	// Err is returned after Text was streamed.
	Err error
	// Delay is waited before anything is produced. The wait ends early when ctx is done.
	Delay time.Duration
}

// ScriptedEndpoint replays Replies in order, one per Generate call. It is safe for
// concurrent use but the order of replies across concurrent runs is undefined.
type ScriptedEndpoint struct {
	Replies []Reply
	// Fallback answers every call after Replies are exhausted.
	Fallback *Reply
	// FragmentSize streams Text in chunks of this many bytes. Zero returns Text whole.
	FragmentSize int

	mu       sync.Mutex
	requests []reactor.Request
}

// Generate implements reactor.Endpoint.
func (e *ScriptedEndpoint) Generate(ctx context.Context, req reactor.Request, onFragment func(string)) (reactor.Response, error) {
	e.mu.Lock()
	idx := len(e.requests)
	e.requests = append(e.requests, req)
	var reply Reply
	switch {
	case idx < len(e.Replies):
		reply = e.Replies[idx]
	case e.Fallback != nil:
		reply = *e.Fallback
	default:
		e.mu.Unlock()
		return reactor.Response{}, ErrScriptExhausted
	}
	e.mu.Unlock()

	if reply.Delay > 0 {
		t := time.NewTimer(reply.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return reactor.Response{}, ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return reactor.Response{}, err
	}

	resp := reactor.Response{
		ToolCalls: slices.Clone(reply.ToolCalls),
		Usage:     reply.Usage,
		Stop:      reply.Stop,
	}
	if e.FragmentSize > 0 && onFragment != nil {
		for chunk := range chunks(reply.Text, e.FragmentSize) {
			if err := ctx.Err(); err != nil {
				return resp, err
			}
			onFragment(chunk)
		}
	} else {
		resp.Text = reply.Text
	}
	return resp, reply.Err
}

// Calls returns how many times Generate was called.
func (e *ScriptedEndpoint) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

// Requests returns a copy of every request received, in order.
func (e *ScriptedEndpoint) Requests() []reactor.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.requests)
}

func chunks(s string, size int) iter.Seq[string] {
	return func(yield func(string) bool) {
		for len(s) > 0 {
			n := min(size, len(s))
			if !yield(s[:n]) {
				return
			}
			s = s[n:]
		}
	}
}

var _ reactor.Endpoint = (*ScriptedEndpoint)(nil)
