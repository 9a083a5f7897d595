// FilePath: api/resources/api.resource.health.go
package resources

import (
	"net/http"

	"github.com/sensegrid/hub/internal/query"
	nuts "github.com/vaudience/go-nuts"
)

// HealthHandlers serves the liveness/readiness probe
type HealthHandlers struct {
	engine *query.Engine
}

// @Summary Health check
// @Description Reports service health including database connectivity
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *HealthHandlers) Check(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ping(r.Context()); err != nil {
		nuts.L.Warnf("[Health] Database unreachable: %v", err)
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": "disconnected",
		})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": "connected",
	})
}
