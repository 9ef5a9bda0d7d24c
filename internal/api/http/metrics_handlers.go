package http

import (
	"net/http"
	"time"

	"github.com/GriffinCanCode/Dashboard/backend/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
)

// MetricsSnapshot is the JSON form of the engine's running totals.
type MetricsSnapshot struct {
	Timestamp time.Time           `json:"timestamp"`
	Engine    monitoring.Snapshot `json:"engine"`
	Breakers  map[string]string   `json:"breakers"`
	Summary   MetricsSummary      `json:"summary"`
}

// MetricsSummary provides high-level metrics
type MetricsSummary struct {
	TotalRequests    int64   `json:"total_requests"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
	ErrorRate        float64 `json:"error_rate"`
	CrashRate        float64 `json:"crash_rate"`
	ActiveWidgets    int     `json:"active_widgets"`
	ReportStreams    int     `json:"report_streams"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// MetricsJSON returns the running totals as JSON
func (h *Handlers) MetricsJSON(c *gin.Context) {
	snap := h.metrics.Snapshot()
	c.JSON(http.StatusOK, MetricsSnapshot{
		Timestamp: time.Now(),
		Engine:    snap,
		Breakers:  h.breakerStates(),
		Summary:   h.summary(snap),
	})
}

func (h *Handlers) summary(snap monitoring.Snapshot) MetricsSummary {
	s := MetricsSummary{
		TotalRequests:    snap.TotalRequests,
		AverageLatencyMs: snap.AvgLatencyMS,
		ActiveWidgets:    h.manager.Count(),
		ReportStreams:    h.manager.Hub().Subscribers(),
		UptimeSeconds:    snap.UptimeSeconds,
	}
	if snap.TotalRequests > 0 {
		s.ErrorRate = float64(snap.TotalErrors) / float64(snap.TotalRequests)
	}
	if snap.Renders > 0 {
		s.CrashRate = float64(snap.Crashes) / float64(snap.Renders)
	}
	return s
}
