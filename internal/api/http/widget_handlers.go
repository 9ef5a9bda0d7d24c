package http

import (
	"net/http"
	"strconv"

	"github.com/GriffinCanCode/Dashboard/backend/internal/domain/widget"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CreateWidgetRequest is the body of POST /widgets.
type CreateWidgetRequest struct {
	Name       string         `json:"name"`
	Code       string         `json:"code"`
	CustomData map[string]any `json:"custom_data"`
	Width      float64        `json:"width" binding:"gte=0"`
	Height     float64        `json:"height" binding:"gte=0"`
}

// ResizeRequest is the body of POST /widgets/:id/resize.
type ResizeRequest struct {
	Width  float64 `json:"width" binding:"required,gt=0"`
	Height float64 `json:"height" binding:"required,gt=0"`
}

// EventRequest is the body of POST /widgets/:id/events.
type EventRequest struct {
	Handler string `json:"handler" binding:"required"`
	Value   any    `json:"value"`
}

// ReportRequest is the body of POST /widgets/:id/report.
type ReportRequest struct {
	IncludeCode bool `json:"include_code"`
}

// ListWidgets lists all running widgets
func (h *Handlers) ListWidgets(c *gin.Context) {
	widgets, err := h.manager.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"widgets": widgets,
		"count":   len(widgets),
	})
}

// CreateWidget creates and starts a widget
func (h *Handlers) CreateWidget(c *gin.Context) {
	var req CreateWidgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}

	st, err := h.manager.Create(c.Request.Context(), widget.Record{
		Name:       req.Name,
		Code:       req.Code,
		CustomData: req.CustomData,
		Width:      req.Width,
		Height:     req.Height,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("widget created", zap.String("widget_id", st.ID), zap.Bool("crashed", st.View.Crashed))
	c.JSON(http.StatusCreated, gin.H{"success": true, "widget": st})
}

// GetWidget returns the record and live view
func (h *Handlers) GetWidget(c *gin.Context) {
	wid, ok := widgetID(c)
	if !ok {
		return
	}
	st, err := h.manager.Get(c.Request.Context(), wid)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "widget": st})
}

// UpdateWidget replaces name, code, customData or size
func (h *Handlers) UpdateWidget(c *gin.Context) {
	wid, ok := widgetID(c)
	if !ok {
		return
	}
	var patch widget.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}
	if (patch.Width != nil && *patch.Width <= 0) || (patch.Height != nil && *patch.Height <= 0) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "dimensions must be positive"})
		return
	}

	st, err := h.manager.Update(c.Request.Context(), wid, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "widget": st})
}

// ResizeWidget changes dimensions without recompiling
func (h *Handlers) ResizeWidget(c *gin.Context) {
	wid, ok := widgetID(c)
	if !ok {
		return
	}
	var req ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "width and height must be positive"})
		return
	}

	st, err := h.manager.Resize(c.Request.Context(), wid, req.Width, req.Height)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "widget": st})
}

// RenderWidget renders and returns the isolated markup
func (h *Handlers) RenderWidget(c *gin.Context) {
	wid, ok := widgetID(c)
	if !ok {
		return
	}
	v, err := h.manager.Render(c.Request.Context(), wid)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("X-Widget-Crashed", strconv.FormatBool(v.Crashed))
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(v.HTML))
}

// ViewWidget returns the last committed view once queued renders settle
func (h *Handlers) ViewWidget(c *gin.Context) {
	wid, ok := widgetID(c)
	if !ok {
		return
	}
	v, err := h.manager.View(c.Request.Context(), wid)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "view": v})
}

// DispatchEvent invokes a handler registered by the last render
func (h *Handlers) DispatchEvent(c *gin.Context) {
	wid, ok := widgetID(c)
	if !ok {
		return
	}
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "handler is required"})
		return
	}

	v, err := h.manager.Dispatch(c.Request.Context(), wid, req.Handler, req.Value)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "view": v})
}

// ReportWidget sends the widget's crash to the repair loop
func (h *Handlers) ReportWidget(c *gin.Context) {
	wid, ok := widgetID(c)
	if !ok {
		return
	}
	var req ReportRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
			return
		}
	}

	if err := h.manager.Report(c.Request.Context(), wid, req.IncludeCode); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "widget_id": wid})
}

// DeleteWidget stops and removes a widget
func (h *Handlers) DeleteWidget(c *gin.Context) {
	wid, ok := widgetID(c)
	if !ok {
		return
	}
	if err := h.manager.Delete(c.Request.Context(), wid); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("widget deleted", zap.String("widget_id", wid))
	c.JSON(http.StatusOK, gin.H{"success": true, "widget_id": wid})
}

// ListReports returns recent repair reports, oldest first
func (h *Handlers) ListReports(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	reports := h.manager.Reports(limit)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"reports": reports,
		"count":   len(reports),
	})
}
