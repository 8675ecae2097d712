package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chronolens/chronolens/internal/models"
	"github.com/chronolens/chronolens/internal/repositories"
	"github.com/chronolens/chronolens/internal/services"
)

type RepositoryHandler struct {
	snapshots    *repositories.SnapshotRepository
	orchestrator *services.OrchestratorService
}

func NewRepositoryHandler(snapshots *repositories.SnapshotRepository, orchestrator *services.OrchestratorService) *RepositoryHandler {
	return &RepositoryHandler{snapshots: snapshots, orchestrator: orchestrator}
}

type createRepositoryRequest struct {
	URL string `json:"url" binding:"required"`
}

// Create registers a repository and queues its first analysis
func (h *RepositoryHandler) Create(c *gin.Context) {
	var req createRepositoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	owner, name, err := parseRepositoryURL(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Re-registering a known URL re-queues it instead of duplicating it.
	snapshot, err := h.snapshots.GetByURL(req.URL)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up repository"})
			return
		}
		snapshot = models.NewRepositorySnapshot(owner, name, req.URL)
		if err := h.snapshots.Create(snapshot); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register repository"})
			return
		}
	}

	if err := h.submit(c, snapshot.ID); err != nil {
		return
	}
	c.JSON(http.StatusAccepted, snapshot)
}

// Get returns the snapshot with its current analysis progress
func (h *RepositoryHandler) Get(c *gin.Context) {
	snapshot, err := h.snapshots.GetByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// List returns all registered repositories
func (h *RepositoryHandler) List(c *gin.Context) {
	snapshots, err := h.snapshots.GetAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list repositories"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"repositories": snapshots})
}

// Analyze queues a re-analysis of an existing repository
func (h *RepositoryHandler) Analyze(c *gin.Context) {
	id := c.Param("id")
	if err := h.submit(c, id); err != nil {
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "repository_id": id})
}

// Delete removes a repository and its analysis artifacts
func (h *RepositoryHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.snapshots.Delete(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
		return
	}
	h.orchestrator.Forget(id)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// submit maps orchestrator submission errors onto HTTP responses
func (h *RepositoryHandler) submit(c *gin.Context, id string) error {
	err := h.orchestrator.Submit(id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrCapacityExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "analysis queue is full, try again later"})
	case errors.Is(err, services.ErrRepositoryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
	default:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	}
	return err
}

// parseRepositoryURL extracts owner and name from a git URL
func parseRepositoryURL(url string) (owner, name string, err error) {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(url, "/"), ".git")
	trimmed = strings.TrimPrefix(trimmed, "git@")
	trimmed = strings.ReplaceAll(trimmed, ":", "/")

	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("cannot parse owner and name from %q", url)
	}
	owner = parts[len(parts)-2]
	name = parts[len(parts)-1]
	if owner == "" || name == "" {
		return "", "", fmt.Errorf("cannot parse owner and name from %q", url)
	}
	return owner, name, nil
}
