package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/GriffinCanCode/Dashboard/backend/internal/bridge"
	"github.com/GriffinCanCode/Dashboard/backend/internal/domain/widget"
	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/sandbox"
	"github.com/GriffinCanCode/Dashboard/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/Dashboard/backend/internal/shared/id"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is reported by the root endpoint.
const Version = "0.3.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	manager *widget.Manager
	proxy   *bridge.Proxy
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(manager *widget.Manager, proxy *bridge.Proxy, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		manager: manager,
		proxy:   proxy,
		metrics: metrics,
		logger:  logger,
	}
}

// Register mounts every route except the websocket stream. proxyMiddleware
// runs only in front of the proxy route.
func (h *Handlers) Register(r gin.IRouter, proxyPath string, proxyMiddleware ...gin.HandlerFunc) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	r.GET("/metrics/json", h.MetricsJSON)

	r.POST(proxyPath, append(proxyMiddleware, h.proxy.Handle)...)

	widgets := r.Group("/widgets")
	widgets.GET("", h.ListWidgets)
	widgets.POST("", h.CreateWidget)
	widgets.GET("/:id", h.GetWidget)
	widgets.PUT("/:id", h.UpdateWidget)
	widgets.DELETE("/:id", h.DeleteWidget)
	widgets.POST("/:id/resize", h.ResizeWidget)
	widgets.GET("/:id/render", h.RenderWidget)
	widgets.GET("/:id/view", h.ViewWidget)
	widgets.POST("/:id/events", h.DispatchEvent)
	widgets.POST("/:id/report", h.ReportWidget)

	r.GET("/reports", h.ListReports)
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Dashboard widget engine",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"widgets":  h.manager.Count(),
		"breakers": h.breakerStates(),
		"streams":  h.manager.Hub().Subscribers(),
	})
}

func (h *Handlers) breakerStates() map[string]string {
	states := h.proxy.Breakers()
	out := make(map[string]string, len(states))
	for host, state := range states {
		out[host] = state.String()
	}
	return out
}

// widgetID validates the :id path parameter.
func widgetID(c *gin.Context) (string, bool) {
	wid := c.Param("id")
	if !id.IsValid(wid) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid widget id"})
		return "", false
	}
	return wid, true
}

// respondError maps engine errors to status codes.
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, widget.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, widget.ErrInvalid), errors.Is(err, sandbox.ErrUnknownHandler):
		status = http.StatusBadRequest
	case errors.Is(err, sandbox.ErrHealthy):
		status = http.StatusConflict
	case errors.Is(err, sandbox.ErrClosed):
		status = http.StatusGone
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, sandbox.ErrLoopUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}
