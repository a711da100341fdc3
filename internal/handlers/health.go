package handlers

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 5 * time.Second

// HealthCheck reports the state of every dependency probe
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{} "All dependencies healthy"
// @Failure 503 {object} map[string]interface{} "At least one dependency unhealthy"
// @Router /health [get]
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	healthy := true
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			healthy = false
			checks[c.Name] = "unhealthy: " + err.Error()
			continue
		}
		checks[c.Name] = "healthy"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	h.sendJSONResponse(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}
