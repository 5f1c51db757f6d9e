// Package notification holds the per-session notification log: an ordered,
// deduplicated, capacity-bounded collection with read/unread tracking.
//
// A Log does no locking and no I/O. Its owner serialises access.
package notification

import (
	"container/list"

	"github.com/jwalitptl/notifier/internal/model"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 100

type Log struct {
	capacity int
	order    *list.List // front is most recent
	byID     map[string]*list.Element
	unread   int
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		order:    list.New(),
		byID:     make(map[string]*list.Element, capacity),
	}
}

// Ingest inserts n at the head. It returns false, leaving the log untouched,
// when a record with the same ID is already held.
func (l *Log) Ingest(n model.Notification) bool {
	if _, ok := l.byID[n.ID]; ok {
		return false
	}

	l.byID[n.ID] = l.order.PushFront(&n)
	if !n.Read {
		l.unread++
	}

	for l.order.Len() > l.capacity {
		l.remove(l.order.Back())
	}
	return true
}

// MarkRead reports whether a record changed. Unknown ids are ignored; the
// record may already have been evicted.
func (l *Log) MarkRead(id string) bool {
	e, ok := l.byID[id]
	if !ok {
		return false
	}
	n := e.Value.(*model.Notification)
	if n.Read {
		return false
	}
	n.Read = true
	l.unread--
	return true
}

// MarkAllRead returns the number of records that changed.
func (l *Log) MarkAllRead() int {
	changed := 0
	for e := l.order.Front(); e != nil; e = e.Next() {
		n := e.Value.(*model.Notification)
		if !n.Read {
			n.Read = true
			changed++
		}
	}
	l.unread = 0
	return changed
}

// Clear empties the log and returns how many records were dropped.
func (l *Log) Clear() int {
	dropped := l.order.Len()
	l.order.Init()
	l.byID = make(map[string]*list.Element, l.capacity)
	l.unread = 0
	return dropped
}

func (l *Log) UnreadCount() int { return l.unread }

func (l *Log) Len() int { return l.order.Len() }

func (l *Log) Capacity() int { return l.capacity }

func (l *Log) Contains(id string) bool {
	_, ok := l.byID[id]
	return ok
}

// Get returns a copy of the record with the given id.
func (l *Log) Get(id string) (model.Notification, bool) {
	e, ok := l.byID[id]
	if !ok {
		return model.Notification{}, false
	}
	return *e.Value.(*model.Notification), true
}

// Records returns a copy of the log, most recent first.
func (l *Log) Records() []model.Notification {
	out := make([]model.Notification, 0, l.order.Len())
	for e := l.order.Front(); e != nil; e = e.Next() {
		out = append(out, *e.Value.(*model.Notification))
	}
	return out
}

func (l *Log) remove(e *list.Element) {
	n := l.order.Remove(e).(*model.Notification)
	delete(l.byID, n.ID)
	if !n.Read {
		l.unread--
	}
}
