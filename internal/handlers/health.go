package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chronolens/chronolens/internal/workers"
	"github.com/chronolens/chronolens/pkg/database"
)

type HealthHandler struct {
	manager *workers.WorkerManager
}

func NewHealthHandler(manager *workers.WorkerManager) *HealthHandler {
	return &HealthHandler{manager: manager}
}

// Health reports process liveness, database reachability, and worker state
func (h *HealthHandler) Health(c *gin.Context) {
	status := http.StatusOK
	overall := "ok"
	dbState := "ok"
	if err := database.DB.Ping(); err != nil {
		status = http.StatusServiceUnavailable
		overall = "degraded"
		dbState = err.Error()
	}

	c.JSON(status, gin.H{
		"status":   overall,
		"time":     time.Now().UTC().Format(time.RFC3339),
		"database": dbState,
		"workers":  h.manager.GetWorkerStatus(),
	})
}
