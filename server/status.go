package server

import (
	"net/http"

	"github.com/skillvee/mend/jobs"
)

// SystemMetrics reports host resource usage for the status endpoint
type SystemMetrics struct {
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// getSystemMetrics returns current memory usage. Metrics are zero when the
// platform query fails; the status endpoint stays useful without them.
func getSystemMetrics() SystemMetrics {
	total, available, err := getMemoryStats()

	var m SystemMetrics
	if err == nil && total > 0 {
		m.MemoryTotalGB = float64(total) / 1024 / 1024 / 1024
		m.MemoryUsedGB = float64(total-available) / 1024 / 1024 / 1024
		m.MemoryPercent = (m.MemoryUsedGB / m.MemoryTotalGB) * 100
	}
	return m
}

// HandleStatus handles GET /api/status: dependency health, job counts by
// status, host metrics, and connected client count.
func (s *MendServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	counts, err := s.store.CountsByStatus()
	if err != nil {
		s.logger.Warnw("Failed to count jobs", "error", err)
		counts = map[jobs.Status]int{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dependency": s.monitor.Name(),
		"health":     s.monitor.Status(),
		"jobs":       counts,
		"system":     getSystemMetrics(),
		"clients":    s.clientCount(),
	})
}
