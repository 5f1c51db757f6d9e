package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwalitptl/notifier/internal/model"
	"github.com/jwalitptl/notifier/pkg/httputil"
)

// StatusSource reports the connection status shown by the readiness probe.
type StatusSource interface {
	Status() model.ConnectionStatus
}

// Handler serves the operational endpoints
type Handler struct {
	status   StatusSource
	gatherer prometheus.Gatherer
}

// NewHandler creates a new handler instance
func NewHandler(status StatusSource, gatherer prometheus.Gatherer) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{status: status, gatherer: gatherer}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	httputil.RespondWithSuccess(c, gin.H{
		"status": "alive",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports the connection state. It answers 200 only while
// the notification connection is established.
func (h *Handler) ReadinessCheck(c *gin.Context) {
	st := h.status.Status()
	body := gin.H{
		"state":  st.State,
		"failed": st.Failed,
		"time":   time.Now(),
	}
	if !st.IsConnected() {
		c.JSON(http.StatusServiceUnavailable, httputil.Response{Success: false, Data: body})
		return
	}
	httputil.RespondWithSuccess(c, body)
}

func (h *Handler) MetricsHandler(c *gin.Context) {
	promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}
