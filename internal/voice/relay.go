package voice

import (
	"context"
	"errors"
	"sync"
)

// ErrNoSession is returned by Relay.Fail when nobody is listening.
var ErrNoSession = errors.New("no voice session waiting")

// Relay is a Recognizer fed from outside the process: a browser running
// speech recognition, or a typed prompt. Each Recognize call waits for one
// Submit or Fail.
type Relay struct {
	onStart func()

	mu        sync.Mutex
	available bool
	waiting   chan relayResult
}

type relayResult struct {
	transcript string
	err        error
}

// NewRelay builds a relay. onStart, if set, runs whenever a session begins so
// the capture side can start listening.
func NewRelay(available bool, onStart func()) *Relay {
	return &Relay{available: available, onStart: onStart}
}

func (r *Relay) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available
}

func (r *Relay) SetAvailable(available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.available = available
}

func (r *Relay) Recognize(ctx context.Context) (string, error) {
	ch := make(chan relayResult, 1)

	r.mu.Lock()
	r.waiting = ch
	r.mu.Unlock()

	if r.onStart != nil {
		r.onStart()
	}

	defer func() {
		r.mu.Lock()
		if r.waiting == ch {
			r.waiting = nil
		}
		r.mu.Unlock()
	}()

	select {
	case result := <-ch:
		return result.transcript, result.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Waiting reports whether a session is waiting for input.
func (r *Relay) Waiting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting != nil
}

// Submit delivers a transcript to the waiting session. It reports false when
// no session is waiting.
func (r *Relay) Submit(transcript string) bool {
	return r.deliver(relayResult{transcript: transcript})
}

// Fail ends the waiting session with err.
func (r *Relay) Fail(err error) error {
	if !r.deliver(relayResult{err: err}) {
		return ErrNoSession
	}
	return nil
}

func (r *Relay) deliver(result relayResult) bool {
	r.mu.Lock()
	ch := r.waiting
	r.waiting = nil
	r.mu.Unlock()

	if ch == nil {
		return false
	}
	ch <- result
	return true
}
