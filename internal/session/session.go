// Package session is the context object a presentation layer talks to. A
// Session owns one notification log, one subscription hub and, when a
// transport is configured, one connection manager.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/notifier/internal/connection"
	"github.com/jwalitptl/notifier/internal/hub"
	"github.com/jwalitptl/notifier/internal/model"
	"github.com/jwalitptl/notifier/internal/notification"
	"github.com/jwalitptl/notifier/pkg/auth"
	"github.com/jwalitptl/notifier/pkg/logger"
	"github.com/jwalitptl/notifier/pkg/metrics"
	"github.com/jwalitptl/notifier/pkg/transport"
)

type Config struct {
	// Capacity bounds the notification log. Non-positive means the default.
	Capacity   int
	Connection connection.Config
}

type Session struct {
	id      string
	logger  *logger.Logger
	metrics *metrics.Metrics
	hub     *hub.Hub
	manager *connection.Manager

	mu      sync.Mutex
	log     *notification.Log
	status  model.ConnectionStatus
	version uint64
	stopped bool
}

// New builds a session. A nil dialer yields a session that never connects:
// commands still work and IsConnected stays false.
func New(
	dialer transport.Dialer,
	creds auth.CredentialSource,
	cfg Config,
	log *logger.Logger,
	m *metrics.Metrics,
) *Session {
	id := uuid.NewString()
	s := &Session{
		id:      id,
		logger:  log.With("session_id", id),
		metrics: m,
		log:     notification.NewLog(cfg.Capacity),
		status:  model.ConnectionStatus{State: model.ConnectionStateDisconnected},
		version: 1,
	}
	s.hub = hub.New(s.snapshotLocked())

	if dialer != nil {
		if creds == nil {
			creds = auth.None
		}
		s.manager = connection.NewManager(dialer, creds, s, cfg.Connection, s.logger, m)
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Start begins connecting. It is a no-op for sessions without a transport.
func (s *Session) Start(ctx context.Context) {
	if s.manager == nil {
		s.logger.Info("No transport configured, session stays disconnected")
		return
	}
	s.manager.Start(ctx)
}

// Stop detaches every subscriber, then shuts the connection down. The
// session ends Closed and broadcasts nothing further.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.hub.Close()
	if s.manager != nil {
		s.manager.Stop()
	}

	s.mu.Lock()
	s.status = model.ConnectionStatus{State: model.ConnectionStateClosed}
	s.mu.Unlock()
	s.logger.Info("Session stopped")
}

// Subscribe registers fn for state broadcasts. fn receives the current
// snapshot immediately.
func (s *Session) Subscribe(fn func(hub.Snapshot)) func() {
	return s.hub.Subscribe(fn)
}

// Subscribers returns the number of attached subscribers.
func (s *Session) Subscribers() int {
	return s.hub.Len()
}

// Snapshot returns the current state, read under a single lock.
func (s *Session) Snapshot() hub.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Notifications returns the log, most recent first.
func (s *Session) Notifications() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Records()
}

func (s *Session) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.UnreadCount()
}

func (s *Session) IsConnected() bool {
	return s.Status().IsConnected()
}

func (s *Session) Status() model.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// MarkAsRead marks one notification read. Unknown or already-read ids are
// ignored and reported as false.
func (s *Session) MarkAsRead(id string) bool {
	s.mu.Lock()
	if !s.log.MarkRead(id) {
		s.mu.Unlock()
		return false
	}
	s.publishLocked()
	return true
}

// MarkAllAsRead returns how many notifications changed.
func (s *Session) MarkAllAsRead() int {
	s.mu.Lock()
	n := s.log.MarkAllRead()
	if n == 0 {
		s.mu.Unlock()
		return 0
	}
	s.publishLocked()
	return n
}

// ClearNotifications empties the log and returns how many were removed.
func (s *Session) ClearNotifications() int {
	s.mu.Lock()
	n := s.log.Clear()
	if n == 0 {
		s.mu.Unlock()
		return 0
	}
	s.publishLocked()
	return n
}

// Ingest implements connection.Sink.
func (s *Session) Ingest(n model.Notification) bool {
	s.mu.Lock()
	if !s.log.Ingest(n) {
		s.mu.Unlock()
		return false
	}
	s.publishLocked()
	return true
}

// SetStatus implements connection.Sink.
func (s *Session) SetStatus(st model.ConnectionStatus) {
	s.mu.Lock()
	if s.stopped || s.status == st {
		s.mu.Unlock()
		return
	}
	prev := s.status
	s.status = st
	s.publishLocked()

	if prev.IsConnected() != st.IsConnected() {
		s.logger.Info("Connection status changed", "state", string(st.State), "failed", st.Failed)
	}
}

// publishLocked must be called with mu held and releases it before handing
// the new snapshot to the hub, so subscribers may call back into the session.
func (s *Session) publishLocked() {
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.metrics.LogSize.Set(float64(len(snap.Notifications)))
	s.metrics.UnreadCount.Set(float64(snap.UnreadCount))
	s.hub.Publish(snap)
}

func (s *Session) snapshotLocked() hub.Snapshot {
	return hub.Snapshot{
		Version:       s.version,
		Status:        s.status,
		Notifications: s.log.Records(),
		UnreadCount:   s.log.UnreadCount(),
	}
}

var _ connection.Sink = (*Session)(nil)
