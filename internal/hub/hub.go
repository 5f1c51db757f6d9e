// Package hub fans out session state to any number of independent
// subscribers.
//
// Delivery is synchronous with the triggering Publish. A Publish issued
// while a delivery round is running, whether from inside a subscriber
// callback or from another goroutine, is queued; the running round then
// delivers the newest snapshot. Subscribers are never re-entered and always
// converge on the latest state, though intermediate snapshots may be
// coalesced.
package hub

import (
	"sync"

	"github.com/jwalitptl/notifier/internal/model"
)

// Snapshot is an immutable view of the session. Version increases with
// every state change.
type Snapshot struct {
	Version       uint64                 `json:"version"`
	Status        model.ConnectionStatus `json:"status"`
	Notifications []model.Notification   `json:"notifications"`
	UnreadCount   int                    `json:"unreadCount"`
}

func (s Snapshot) IsConnected() bool {
	return s.Status.IsConnected()
}

type subscriber struct {
	id      uint64
	fn      func(Snapshot)
	seen    uint64
	removed bool
}

type Hub struct {
	mu          sync.Mutex
	subs        []*subscriber
	nextID      uint64
	last        Snapshot
	dispatching bool
	closed      bool
}

// New returns a Hub holding initial as its current snapshot. Versions start
// at 1 so that the first subscriber always receives it.
func New(initial Snapshot) *Hub {
	if initial.Version == 0 {
		initial.Version = 1
	}
	return &Hub{last: initial}
}

// Subscribe registers fn and delivers the current snapshot to it. The
// returned function unsubscribes; it may be called any number of times,
// including after Close.
func (h *Hub) Subscribe(fn func(Snapshot)) func() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}
	}
	h.nextID++
	sub := &subscriber{id: h.nextID, fn: fn}
	h.subs = append(h.subs, sub)
	h.dispatchLocked()

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(sub.id) })
	}
}

// Publish makes s the current snapshot and delivers it. Snapshots that are
// not newer than the current one are dropped.
func (h *Hub) Publish(s Snapshot) {
	h.mu.Lock()
	if h.closed || s.Version <= h.last.Version {
		h.mu.Unlock()
		return
	}
	h.last = s
	h.dispatchLocked()
}

// Current returns the latest published snapshot.
func (h *Hub) Current() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops every subscriber. Later publishes and subscribes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, sub := range h.subs {
		sub.removed = true
	}
	h.subs = nil
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, sub := range h.subs {
		if sub.id == id {
			sub.removed = true
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			return
		}
	}
}

// dispatchLocked must be called with mu held and releases it.
func (h *Hub) dispatchLocked() {
	if h.dispatching {
		h.mu.Unlock()
		return
	}
	h.dispatching = true

	for !h.closed {
		pending := h.pendingLocked()
		if len(pending) == 0 {
			break
		}
		for _, sub := range pending {
			if h.closed || sub.removed || sub.seen >= h.last.Version {
				continue
			}
			snap := h.last
			sub.seen = snap.Version

			h.mu.Unlock()
			sub.fn(snap)
			h.mu.Lock()
		}
	}

	h.dispatching = false
	h.mu.Unlock()
}

func (h *Hub) pendingLocked() []*subscriber {
	var out []*subscriber
	for _, sub := range h.subs {
		if sub.seen < h.last.Version {
			out = append(out, sub)
		}
	}
	return out
}
