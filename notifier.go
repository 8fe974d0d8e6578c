package reactor

import (
	"sync"

	"github.com/rs/zerolog"
)

// FragmentObserver receives streamed fragments in order. It runs on a dedicated
// goroutine so a slow observer never delays the run.
type FragmentObserver func(Fragment)

// notifier forwards fragments to an observer through an unbounded FIFO drained by a
// single goroutine. notify never blocks; close waits until the queue is empty.
type notifier struct {
	mu     sync.Mutex
	queue  []Fragment
	closed bool
	wake   chan struct{}
	done   chan struct{}
	fn     FragmentObserver
	logger zerolog.Logger
}

func newNotifier(fn FragmentObserver, logger zerolog.Logger) *notifier {
	if fn == nil {
		return nil
	}
	n := &notifier{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		fn:     fn,
		logger: logger,
	}
	go n.loop()
	return n
}

func (n *notifier) notify(f Fragment) {
	if n == nil {
		return
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, f)
	n.mu.Unlock()
	n.signal()
}

func (n *notifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// close stops accepting fragments and blocks until every queued one was delivered.
func (n *notifier) close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		<-n.done
		return
	}
	n.closed = true
	n.mu.Unlock()
	n.signal()
	<-n.done
}

func (n *notifier) loop() {
	defer close(n.done)
	for range n.wake {
		for {
			n.mu.Lock()
			batch := n.queue
			n.queue = nil
			closed := n.closed
			n.mu.Unlock()
			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}
			for _, f := range batch {
				n.deliver(f)
			}
		}
	}
}

func (n *notifier) deliver(f Fragment) {
	defer func() {
		if p := recover(); p != nil {
			n.logger.Error().Interface("panic", p).Str("run_id", f.RunID).Msg("fragment observer panicked")
		}
	}()
	n.fn(f)
}
