package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chronolens/chronolens/internal/models"
	"github.com/chronolens/chronolens/internal/services"
)

type AnalyticsHandler struct {
	provider  services.AnalysisProvider
	ownership *services.OwnershipService
	trends    *services.TrendService
	export    *services.ExportService
	lister    services.FileContentLister
	patcher   services.ManifestPatcher
}

func NewAnalyticsHandler(provider services.AnalysisProvider, ownership *services.OwnershipService,
	trends *services.TrendService, export *services.ExportService,
	lister services.FileContentLister, patcher services.ManifestPatcher) *AnalyticsHandler {
	return &AnalyticsHandler{
		provider: provider, ownership: ownership, trends: trends, export: export,
		lister: lister, patcher: patcher,
	}
}

// Contributors returns the per-identity aggregates for a repository. With
// ?active_days=N the response also names the identities that touched a live
// file within that window.
func (h *AnalyticsHandler) Contributors(c *gin.Context) {
	result, ok := h.analysis(c)
	if !ok {
		return
	}

	response := gin.H{"contributors": result.Contributors}
	if raw := c.Query("active_days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "active_days must be a positive integer"})
			return
		}
		since := time.Now().AddDate(0, 0, -days)
		active := make([]string, 0)
		for _, key := range result.Ownership.ActiveOwners(since) {
			name := key
			if identity, ok := result.Resolution.Get(key); ok && identity.Name != "" {
				name = identity.Name
			}
			active = append(active, name)
		}
		response["active_days"] = days
		response["active_identities"] = active
	}
	c.JSON(http.StatusOK, response)
}

// Ownership returns a per-file breakdown when ?path= is given, otherwise
// the repository-wide ownership overview
func (h *AnalyticsHandler) Ownership(c *gin.Context) {
	result, ok := h.analysis(c)
	if !ok {
		return
	}

	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusOK, h.ownership.Overview(result.Ownership))
		return
	}

	breakdown, err := result.Ownership.Breakdown(path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no ownership state for %q", path)})
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

// Experts ranks identities by expertise for a file extension
func (h *AnalyticsHandler) Experts(c *gin.Context) {
	result, ok := h.analysis(c)
	if !ok {
		return
	}

	extension := c.Query("extension")
	if extension == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "extension query parameter is required"})
		return
	}

	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"extension": extension,
		"experts":   h.ownership.FindExperts(result.Ownership, extension, limit),
	})
}

// Trends returns one metric series re-bucketed to the requested granularity
func (h *AnalyticsHandler) Trends(c *gin.Context) {
	result, ok := h.analysis(c)
	if !ok {
		return
	}

	metric := c.DefaultQuery("metric", models.MetricCommitFrequency)
	switch metric {
	case models.MetricCommitFrequency, models.MetricLinesOfCode, models.MetricComplexity, models.MetricDependencies:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown metric %q", metric)})
		return
	}

	granularity := models.Granularity(c.DefaultQuery("granularity", string(models.GranularityDaily)))
	if granularity != models.GranularityDaily && granularity != models.GranularityWeekly {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown granularity %q", granularity)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"metric":      metric,
		"granularity": granularity,
		"series":      h.trends.Series(result.Trends, metric, granularity),
	})
}

// Complexity scores the current files by content and reports the totals per
// extension, complementing the churn-based complexity trend series
func (h *AnalyticsHandler) Complexity(c *gin.Context) {
	result, ok := h.analysis(c)
	if !ok {
		return
	}

	paths := result.Ownership.LiveFiles()
	totals, err := h.trends.ComplexitySnapshot(c.Request.Context(),
		h.lister, result.Snapshot.Owner, result.Snapshot.Name, paths)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to score current files"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"files_considered": len(paths),
		"extensions":       totals,
	})
}

// Dependencies returns the named dependency additions and removals per
// manifest-touching commit
func (h *AnalyticsHandler) Dependencies(c *gin.Context) {
	result, ok := h.analysis(c)
	if !ok {
		return
	}

	deltas := h.trends.DependencyDeltas(c.Request.Context(),
		result.Commits, h.patcher, result.Snapshot.Owner, result.Snapshot.Name)
	if deltas == nil {
		deltas = []*models.DependencyDelta{}
	}
	c.JSON(http.StatusOK, gin.H{"deltas": deltas})
}

// Patterns returns the commit-habit summary
func (h *AnalyticsHandler) Patterns(c *gin.Context) {
	result, ok := h.analysis(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, result.Trends.Patterns())
}

// Export streams the analysis report as an Excel workbook
func (h *AnalyticsHandler) Export(c *gin.Context) {
	result, ok := h.analysis(c)
	if !ok {
		return
	}

	workbook, err := h.export.BuildWorkbook(result)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build report"})
		return
	}
	defer workbook.Close()

	filename := fmt.Sprintf("%s-%s-report.xlsx", result.Snapshot.Owner, result.Snapshot.Name)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := workbook.Write(c.Writer); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}

// analysis loads the completed analysis or writes the error response
func (h *AnalyticsHandler) analysis(c *gin.Context) (*services.AnalysisResult, bool) {
	result, err := h.provider.CompletedAnalysis(c.Param("id"))
	switch {
	case err == nil:
		return result, true
	case errors.Is(err, services.ErrRepositoryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
	case errors.Is(err, services.ErrAnalysisNotCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": "analysis has not completed for this repository"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load analysis"})
	}
	return nil, false
}
