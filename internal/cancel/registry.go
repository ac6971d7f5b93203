// Package cancel tracks the single channel whose running operation may be
// cancelled by the peer.
package cancel

import (
	"sync"
	"sync/atomic"
)

// Token is one registration. It keeps its cancelled mark after a later
// registration replaces it, so the operation it belongs to still observes an
// accepted cancel.
type Token struct {
	channel   int32
	gen       uint64
	cancelled atomic.Bool
}

func (t *Token) Channel() int32 {
	return t.channel
}

// Cancelled reports whether a cancel was accepted for this registration. A
// nil token is never cancelled.
func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Registry holds the current cancellable registration. At most one channel is
// cancellable at a time; registering a new one replaces the previous.
// Cancellation is best effort: it only affects responses that have not been
// transmitted yet.
type Registry struct {
	mu sync.Mutex

	gen     uint64
	current *Token
}

func New() *Registry {
	return &Registry{}
}

// RegisterCancellable makes ch the cancellable channel and returns the token
// of the new registration.
func (r *Registry) RegisterCancellable(ch int32) *Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	r.current = &Token{channel: ch, gen: r.gen}

	return r.current
}

// RequestCancel marks the current registration cancelled and reports true
// when it is for ch. A cancel for any other channel is refused.
func (r *Registry) RequestCancel(ch int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil || r.current.channel != ch {
		return false
	}

	r.current.cancelled.Store(true)

	return true
}

func (r *Registry) IsCancelled(t *Token) bool {
	return t.Cancelled()
}

// Done ends the registration t. A later registration, on the same channel or
// another, is left untouched.
func (r *Registry) Done(t *Token) {
	if t == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == t {
		r.current = nil
	}
}

func (r *Registry) Cancellable() (ch int32, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return 0, false
	}

	return r.current.channel, true
}
