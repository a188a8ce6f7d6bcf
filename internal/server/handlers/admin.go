package handlers

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/agentstation/appgen/internal/server/response"
)

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response.OK(w, map[string]any{
		"runtime": map[string]any{
			"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
			"goroutines":     runtime.NumGoroutine(),
			"memory_mb":      memStats.Alloc / 1024 / 1024,
		},
		"subscribers": map[string]any{
			"total":      h.registry.Total(),
			"by_project": h.registry.Projects(),
		},
		"runs": map[string]any{
			"active":   h.runs.Count(),
			"capacity": h.runs.Capacity(),
		},
		"events": map[string]any{
			"published_total": h.bus.Published(),
			"dropped_total":   h.bus.Dropped(),
		},
		"cache": h.cache.GetStats(),
	})
}

// HandleMetrics handles GET /metrics with plain-text gauges.
func (h *Handlers) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	_, _ = fmt.Fprintf(w, "# TYPE appgen_subscribers gauge\n")
	for _, id := range h.registry.ProjectIDs() {
		_, _ = fmt.Fprintf(w, "appgen_subscribers{project_id=%q} %d\n", id, h.registry.Count(id))
	}
	_, _ = fmt.Fprintf(w, "# TYPE appgen_subscribers_total gauge\n")
	_, _ = fmt.Fprintf(w, "appgen_subscribers_total %d\n", h.registry.Total())
	_, _ = fmt.Fprintf(w, "# TYPE appgen_active_runs gauge\n")
	_, _ = fmt.Fprintf(w, "appgen_active_runs %d\n", h.runs.Count())
	_, _ = fmt.Fprintf(w, "# TYPE appgen_events_published_total counter\n")
	_, _ = fmt.Fprintf(w, "appgen_events_published_total %d\n", h.bus.Published())
	_, _ = fmt.Fprintf(w, "# TYPE appgen_events_dropped_total counter\n")
	_, _ = fmt.Fprintf(w, "appgen_events_dropped_total %d\n", h.bus.Dropped())
}
