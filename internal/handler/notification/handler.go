package notification

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/notifier/internal/hub"
	"github.com/jwalitptl/notifier/internal/model"
	"github.com/jwalitptl/notifier/pkg/errors"
	"github.com/jwalitptl/notifier/pkg/httputil"
	"github.com/jwalitptl/notifier/pkg/logger"
)

// Session is the part of the notification session the API exposes.
type Session interface {
	Snapshot() hub.Snapshot
	UnreadCount() int
	MarkAsRead(id string) bool
	MarkAllAsRead() int
	ClearNotifications() int
	Subscribe(fn func(hub.Snapshot)) func()
}

type Handler struct {
	session   Session
	logger    *logger.Logger
	keepAlive time.Duration
}

func NewHandler(session Session, log *logger.Logger) *Handler {
	return &Handler{session: session, logger: log, keepAlive: 15 * time.Second}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.List)
		notifications.DELETE("", h.Clear)
		notifications.GET("/stream", h.Stream)
		notifications.POST("/read-all", h.MarkAllRead)
		notifications.POST("/:id/read", h.MarkRead)
	}
}

// stateView is the body of List and of every stream event.
type stateView struct {
	Version       uint64               `json:"version,omitempty"`
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unreadCount"`
	IsConnected   bool                 `json:"isConnected"`
	State         string               `json:"state"`
	Failed        bool                 `json:"failed,omitempty"`
}

func viewOf(s hub.Snapshot) stateView {
	notifications := s.Notifications
	if notifications == nil {
		notifications = []model.Notification{}
	}
	return stateView{
		Version:       s.Version,
		Notifications: notifications,
		UnreadCount:   s.UnreadCount,
		IsConnected:   s.IsConnected(),
		State:         string(s.Status.State),
		Failed:        s.Status.Failed,
	}
}

func (h *Handler) List(c *gin.Context) {
	httputil.RespondWithSuccess(c, viewOf(h.session.Snapshot()))
}

// MarkRead succeeds for unknown ids too; "updated" tells whether anything
// changed.
func (h *Handler) MarkRead(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		httputil.RespondWithError(c, errors.NewBadRequest("notification id is required", nil))
		return
	}

	updated := h.session.MarkAsRead(id)
	httputil.RespondWithSuccess(c, gin.H{
		"id":          id,
		"updated":     updated,
		"unreadCount": h.session.UnreadCount(),
	})
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	httputil.RespondWithSuccess(c, gin.H{
		"updated":     h.session.MarkAllAsRead(),
		"unreadCount": h.session.UnreadCount(),
	})
}

func (h *Handler) Clear(c *gin.Context) {
	httputil.RespondWithSuccess(c, gin.H{
		"cleared": h.session.ClearNotifications(),
	})
}

// Stream sends a "snapshot" event for every session broadcast until the
// client goes away. A slow client only ever sees the newest snapshot.
func (h *Handler) Stream(c *gin.Context) {
	updates := make(chan hub.Snapshot, 1)
	unsubscribe := h.session.Subscribe(func(s hub.Snapshot) {
		for {
			select {
			case updates <- s:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	h.logger.Debug("Stream client attached", "client_ip", c.ClientIP())
	defer h.logger.Debug("Stream client detached", "client_ip", c.ClientIP())

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-updates:
			c.SSEvent("snapshot", viewOf(s))
		case <-ticker.C:
			c.SSEvent("keepalive", time.Now().UnixMilli())
		}
		c.Writer.Flush()
	}
}
