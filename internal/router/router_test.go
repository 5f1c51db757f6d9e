package router

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notifier/internal/handler"
	notificationHandler "github.com/jwalitptl/notifier/internal/handler/notification"
	"github.com/jwalitptl/notifier/internal/handler/prometheus"
	"github.com/jwalitptl/notifier/internal/model"
	"github.com/jwalitptl/notifier/internal/session"
	"github.com/jwalitptl/notifier/pkg/logger"
	"github.com/jwalitptl/notifier/pkg/metrics"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type state struct {
	Version       uint64               `json:"version"`
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unreadCount"`
	IsConnected   bool                 `json:"isConnected"`
	State         string               `json:"state"`
}

func setup(t *testing.T, config RouterConfig) (*session.Session, http.Handler) {
	t.Helper()
	reg := prom.NewRegistry()
	log := logger.Nop()

	sess := session.New(nil, nil, session.Config{}, log, metrics.NewMetrics("notifier", "", reg))
	t.Cleanup(sess.Stop)

	r := NewRouter(
		handler.NewHandler(sess, reg),
		notificationHandler.NewHandler(sess, log),
		prometheus.New("notifier", reg),
		log,
		config,
	)
	r.Setup()
	return sess, r.Engine()
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func note(id string, createdAt int64) model.Notification {
	return model.Notification{ID: id, Kind: model.NotificationKindApprovalRequired, Title: "Approve " + id, CreatedAt: createdAt}
}

func TestNotificationEndpoints(t *testing.T) {
	sess, h := setup(t, RouterConfig{})
	sess.Ingest(note("a", 1))
	sess.Ingest(note("b", 2))

	w, env := do(t, h, http.MethodGet, "/api/v1/notifications")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "1.0", w.Header().Get("X-API-Version"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var s state
	require.NoError(t, json.Unmarshal(env.Data, &s))
	require.Len(t, s.Notifications, 2)
	assert.Equal(t, "b", s.Notifications[0].ID)
	assert.Equal(t, 2, s.UnreadCount)
	assert.False(t, s.IsConnected)
	assert.Equal(t, "disconnected", s.State)

	w, env = do(t, h, http.MethodPost, "/api/v1/notifications/a/read")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"a","updated":true,"unreadCount":1}`, string(env.Data))

	w, env = do(t, h, http.MethodPost, "/api/v1/notifications/missing/read")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"missing","updated":false,"unreadCount":1}`, string(env.Data))

	w, env = do(t, h, http.MethodPost, "/api/v1/notifications/read-all")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":1,"unreadCount":0}`, string(env.Data))

	w, env = do(t, h, http.MethodDelete, "/api/v1/notifications")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cleared":2}`, string(env.Data))
	assert.Empty(t, sess.Notifications())

	_, env = do(t, h, http.MethodGet, "/api/v1/notifications")
	assert.Contains(t, string(env.Data), `"notifications":[]`)
	s = state{}
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, 0, s.UnreadCount)
	assert.Equal(t, "disconnected", s.State)
	assert.Equal(t, sess.Snapshot().Version, s.Version)
}

func TestListIsConsistentUnderIngest(t *testing.T) {
	sess, h := setup(t, RouterConfig{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 300; i++ {
			sess.Ingest(note(fmt.Sprint(i), int64(i+1)))
			if i%3 == 0 {
				sess.MarkAsRead(fmt.Sprint(i))
			}
		}
	}()

	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}

		w, env := do(t, h, http.MethodGet, "/api/v1/notifications")
		require.Equal(t, http.StatusOK, w.Code)
		var s state
		require.NoError(t, json.Unmarshal(env.Data, &s))

		unread := 0
		for _, n := range s.Notifications {
			if !n.Read {
				unread++
			}
		}
		require.Equal(t, unread, s.UnreadCount, "version %d", s.Version)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, h := setup(t, RouterConfig{})

	w, env := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, env = do(t, h, http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, env.Success)

	do(t, h, http.MethodGet, "/api/v1/notifications")
	w, _ = do(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "notifier_http_requests_total")
	assert.Contains(t, body, "notifier_log_size")
}

func TestRateLimit(t *testing.T) {
	_, h := setup(t, RouterConfig{RateLimit: 1, RateBurst: 1})

	w, _ := do(t, h, http.MethodGet, "/api/v1/notifications")
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := do(t, h, http.MethodGet, "/api/v1/notifications")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "rate_limited", env.Error.Code)

	w, _ = do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code, "health is not rate limited")
}

func TestCORS(t *testing.T) {
	_, h := setup(t, RouterConfig{CORSOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/notifications/stream", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Last-Event-ID")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStream(t *testing.T) {
	sess, h := setup(t, RouterConfig{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/notifications/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"), resp.Header.Get("Content-Type"))

	events := make(chan state, 8)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		event := ""
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:") && event == "snapshot":
				var s state
				if json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &s) == nil {
					events <- s
				}
			}
		}
	}()

	next := func() state {
		select {
		case s, ok := <-events:
			require.True(t, ok, "stream ended")
			return s
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot event")
			return state{}
		}
	}

	first := next()
	assert.Empty(t, first.Notifications)
	assert.Equal(t, 0, first.UnreadCount)

	sess.Ingest(note("a", 1))
	second := next()
	require.Len(t, second.Notifications, 1)
	assert.Equal(t, "a", second.Notifications[0].ID)
	assert.Equal(t, 1, second.UnreadCount)
	assert.Greater(t, second.Version, first.Version)

	cancel()
	assert.Eventually(t, func() bool { return sess.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}
