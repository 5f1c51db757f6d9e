// Package connection owns the notification transport lifecycle: connect,
// authenticate, heartbeat, detect failure, reconnect with backoff, and hand
// decoded notifications to a Sink.
//
// All state transitions and timers run on a single goroutine per Manager.
// Frames are handed to the Sink in the order the transport delivers them.
package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/jwalitptl/notifier/internal/model"
	"github.com/jwalitptl/notifier/pkg/auth"
	"github.com/jwalitptl/notifier/pkg/errors"
	"github.com/jwalitptl/notifier/pkg/logger"
	"github.com/jwalitptl/notifier/pkg/metrics"
	"github.com/jwalitptl/notifier/pkg/transport"
)

// Sink receives the manager's output. Calls come from the manager goroutine
// and never after Stop has returned.
type Sink interface {
	Ingest(n model.Notification) bool
	SetStatus(s model.ConnectionStatus)
}

type Config struct {
	// HeartbeatInterval is how often a ping is sent while connected. Zero
	// disables pings.
	HeartbeatInterval time.Duration
	// HeartbeatTimeout is how long the connection may stay silent before it
	// is considered dead. Zero disables the check.
	HeartbeatTimeout time.Duration
	// AwaitAck requires an {"type":"ack"} frame before the connection
	// counts as established.
	AwaitAck         bool
	HandshakeTimeout time.Duration
	Backoff          Policy
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 25 * time.Second,
		HeartbeatTimeout:  60 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		Backoff:           DefaultPolicy(),
	}
}

type Manager struct {
	dialer  transport.Dialer
	creds   auth.CredentialSource
	sink    Sink
	config  Config
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	status  model.ConnectionStatus
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewManager(
	dialer transport.Dialer,
	creds auth.CredentialSource,
	sink Sink,
	config Config,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Manager {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if config.Backoff.Min <= 0 || config.Backoff.Max <= 0 || config.Backoff.Factor < 1 {
		config.Backoff = DefaultPolicy()
	}

	m := &Manager{
		dialer:  dialer,
		creds:   creds,
		sink:    sink,
		config:  config,
		logger:  logger,
		metrics: metrics,
		status:  model.ConnectionStatus{State: model.ConnectionStateDisconnected},
		done:    make(chan struct{}),
	}
	m.metrics.SetState(string(m.status.State), stateLabels())
	return m
}

// Start launches the connection loop. It is a no-op if the manager is
// already running or has been stopped.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx)
}

// Stop cancels pending timers, closes the transport, and waits for the loop
// to exit. The manager ends in the Closed state.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	started := m.started
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	if started {
		<-m.done
	} else {
		close(m.done)
	}

	m.mu.Lock()
	m.status = model.ConnectionStatus{State: model.ConnectionStateClosed}
	m.mu.Unlock()
	m.metrics.SetState(string(model.ConnectionStateClosed), stateLabels())
	m.logger.Info("Connection manager stopped")
}

func (m *Manager) Status() model.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Done is closed when the connection loop has exited, either because Stop
// was called or because the manager settled in Disconnected.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	b := m.config.Backoff.NewBackOff()

	for {
		token, err := m.creds.Token(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil && token == "" {
			m.logger.Info("No credential available, staying disconnected")
			m.setStatus(model.ConnectionStateDisconnected, false)
			return
		}

		m.setStatus(model.ConnectionStateConnecting, false)
		m.metrics.ConnectAttempts.Inc()

		var (
			conn transport.Conn
			r    *reader
		)
		if err != nil {
			err = errors.Unauthorized(fmt.Errorf("credential source: %w", err))
		} else {
			m.inspectToken(token)
			conn, r, err = m.connect(ctx, token)
		}

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			code := errors.CodeOf(err)
			m.metrics.HandshakeFailures.WithLabelValues(code.Reason()).Inc()
			if code == errors.ErrConfig {
				m.logger.Error(err, "Transport is not configured, staying disconnected")
				m.setStatus(model.ConnectionStateDisconnected, false)
				return
			}
			m.logger.Warn("Handshake failed", "reason", code.Reason(), "error", err.Error())
			m.setStatus(model.ConnectionStateReconnecting, false)
			if !m.wait(ctx, b) {
				return
			}
			continue
		}

		connID := uuid.NewString()
		log := m.logger.With("connection_id", connID)
		log.Info("Connected")

		connectedAt := time.Now()
		m.setStatus(model.ConnectionStateConnected, false)

		err = m.serve(ctx, conn, r, log)
		conn.Close()
		r.stop()
		if ctx.Err() != nil {
			return
		}

		reason := errors.CodeOf(err).Reason()
		m.metrics.Disconnects.WithLabelValues(reason).Inc()
		log.Warn("Connection lost", "reason", reason, "error", err.Error(),
			"uptime", time.Since(connectedAt).String())

		if time.Since(connectedAt) >= m.config.Backoff.StableAfter {
			b.Reset()
		}
		m.setStatus(model.ConnectionStateReconnecting, false)
		if !m.wait(ctx, b) {
			return
		}
	}
}

// connect dials and, when configured, waits for the server's ack.
func (m *Manager) connect(ctx context.Context, token string) (transport.Conn, *reader, error) {
	dctx, cancel := context.WithTimeout(ctx, m.config.HandshakeTimeout)
	defer cancel()

	conn, err := m.dialer.Dial(dctx, token)
	if err != nil {
		return nil, nil, err
	}
	r := startReader(conn)

	if m.config.AwaitAck {
		if err := m.awaitAck(ctx, r); err != nil {
			conn.Close()
			r.stop()
			return nil, nil, err
		}
	}
	return conn, r, nil
}

func (m *Manager) awaitAck(ctx context.Context, r *reader) error {
	timer := time.NewTimer(m.config.HandshakeTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.Transport("timed out waiting for handshake ack", nil)
	case err := <-r.errs:
		return err
	case data := <-r.frames:
		f, err := DecodeFrame(data)
		if err != nil {
			return err
		}
		switch f.Type {
		case transport.TypeAck:
			return nil
		case transport.TypeError:
			if f.Code == "unauthorized" || f.Code == "forbidden" {
				return errors.Unauthorized(fmt.Errorf("server rejected credential: %s", f.Message))
			}
			return errors.Transport("server rejected handshake", fmt.Errorf("%s: %s", f.Code, f.Message))
		default:
			return errors.Transport(fmt.Sprintf("expected ack, got %s frame", f.Type), nil)
		}
	}
}

// serve processes frames until the connection fails or ctx is cancelled.
func (m *Manager) serve(ctx context.Context, conn transport.Conn, r *reader, log *logger.Logger) error {
	interval := m.config.HeartbeatInterval
	timeout := m.config.HeartbeatTimeout

	lastPing := time.Now()
	lastSeen := lastPing

	var tick <-chan time.Time
	if check := heartbeatTick(interval, timeout); check > 0 {
		ticker := time.NewTicker(check)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-r.errs:
			return err

		case data := <-r.frames:
			lastSeen = time.Now()
			m.handleFrame(ctx, data, log)

		case now := <-tick:
			if timeout > 0 && now.Sub(lastSeen) > timeout {
				return errors.Heartbeat(fmt.Sprintf("no frame for %s", now.Sub(lastSeen).Round(time.Millisecond)))
			}
			if interval > 0 && now.Sub(lastPing) >= interval {
				lastPing = now
				if err := conn.Ping(ctx); err != nil {
					return err
				}
			}
		}
	}
}

func (m *Manager) handleFrame(ctx context.Context, data []byte, log *logger.Logger) {
	f, err := DecodeFrame(data)
	if err != nil {
		m.metrics.FramesDropped.WithLabelValues("decode").Inc()
		log.Warn("Dropping malformed frame", "error", err.Error(), "size", len(data))
		return
	}
	m.metrics.FramesReceived.WithLabelValues(f.Type).Inc()

	switch f.Type {
	case FrameNotification:
		if ctx.Err() != nil {
			return
		}
		if m.sink.Ingest(f.Notification) {
			m.metrics.NotificationsIngested.Inc()
		} else {
			m.metrics.DuplicatesDropped.Inc()
			log.Debug("Duplicate notification ignored", "id", f.Notification.ID)
		}
	case transport.TypeError:
		log.Warn("Server reported error", "code", f.Code, "message", f.Message)
	}
}

// wait sleeps for the next backoff delay. It returns false when ctx is
// cancelled or the retry policy is exhausted.
func (m *Manager) wait(ctx context.Context, b backoff.BackOff) bool {
	d := b.NextBackOff()
	if d == backoff.Stop {
		m.logger.Warn("Retry policy exhausted, giving up")
		m.setStatus(model.ConnectionStateDisconnected, true)
		return false
	}

	m.metrics.BackoffDelay.Observe(d.Seconds())
	m.logger.Debug("Waiting before reconnect", "delay", d.String())

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *Manager) setStatus(state model.ConnectionState, failed bool) {
	st := model.ConnectionStatus{State: state, Failed: failed}

	m.mu.Lock()
	if m.stopped || m.status == st {
		m.mu.Unlock()
		return
	}
	m.status = st
	m.mu.Unlock()

	m.metrics.SetState(string(state), stateLabels())
	m.sink.SetStatus(st)
}

func (m *Manager) inspectToken(token string) {
	claims, ok := auth.Inspect(token)
	if !ok {
		return
	}
	if claims.Expired(time.Now()) {
		m.logger.Warn("Credential appears expired, trying anyway",
			"subject", claims.Subject, "expired_at", claims.ExpiresAt.Format(time.RFC3339))
		return
	}
	m.logger.Debug("Using credential", "subject", claims.Subject)
}

// heartbeatTick picks the timer period: the ping interval, tightened so a
// timeout is noticed within half its length.
func heartbeatTick(interval, timeout time.Duration) time.Duration {
	tick := interval
	if timeout > 0 && (tick <= 0 || tick > timeout/2) {
		tick = timeout / 2
	}
	return tick
}

func stateLabels() []string {
	out := make([]string, len(model.ConnectionStates))
	for i, s := range model.ConnectionStates {
		out[i] = string(s)
	}
	return out
}

// reader forwards frames from a Conn over an unbuffered channel so they are
// consumed in delivery order by the manager goroutine.
type reader struct {
	frames chan []byte
	errs   chan error
	quit   chan struct{}
	once   sync.Once
}

func startReader(conn transport.Conn) *reader {
	r := &reader{
		frames: make(chan []byte),
		errs:   make(chan error, 1),
		quit:   make(chan struct{}),
	}
	go func() {
		for {
			data, err := conn.Read()
			if err != nil {
				r.errs <- err
				return
			}
			select {
			case r.frames <- data:
			case <-r.quit:
				return
			}
		}
	}()
	return r
}

func (r *reader) stop() {
	r.once.Do(func() { close(r.quit) })
}
