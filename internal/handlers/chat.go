package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chronolens/chronolens/internal/services"
)

type ChatHandler struct {
	router *services.QueryRouterService
	cache  *services.CacheService
}

func NewChatHandler(router *services.QueryRouterService, cache *services.CacheService) *ChatHandler {
	return &ChatHandler{router: router, cache: cache}
}

type chatQueryRequest struct {
	RepositoryID string `json:"repository_id" binding:"required"`
	Query        string `json:"query" binding:"required"`
}

// Query answers a natural-language question about an analyzed repository
func (h *ChatHandler) Query(c *gin.Context) {
	var req chatQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "repository_id and query are required"})
		return
	}

	answer, err := h.router.Route(c.Request.Context(), req.RepositoryID, req.Query)
	if err != nil {
		switch err {
		case services.ErrRepositoryNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
		case services.ErrAnalysisNotCompleted:
			c.JSON(http.StatusConflict, gin.H{"error": "analysis has not completed for this repository"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to answer query"})
		}
		return
	}

	c.JSON(http.StatusOK, answer)
}

// Suggestions returns example questions the structured route can answer
func (h *ChatHandler) Suggestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"suggestions": []string{
		"Who are the top contributors?",
		"Show me the commit timeline",
		"Who owns the most code?",
		"What are the commit activity patterns?",
		"Give me a summary of this repository",
		"Which files changed most recently?",
	}})
}

// History returns the most recent cached answers for a repository
func (h *ChatHandler) History(c *gin.Context) {
	repoID := c.Query("repository_id")
	if repoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "repository_id query parameter is required"})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	entries, err := h.cache.Recent(repoID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}
