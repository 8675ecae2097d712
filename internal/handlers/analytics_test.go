package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronolens/chronolens/internal/models"
	"github.com/chronolens/chronolens/internal/services"
)

type stubAnalysisProvider struct {
	result *services.AnalysisResult
	err    error
}

func (p *stubAnalysisProvider) CompletedAnalysis(repoID string) (*services.AnalysisResult, error) {
	return p.result, p.err
}

// stubContentSource serves file content and manifest patches for a fixed
// repository state
type stubContentSource struct {
	files   map[string]string
	patches map[string]string
}

func (s *stubContentSource) ListFiles(owner, name string) ([]string, error) {
	paths := make([]string, 0, len(s.files))
	for path := range s.files {
		paths = append(paths, path)
	}
	return paths, nil
}

func (s *stubContentSource) ReadFile(owner, name, path string, maxBytes int) (string, error) {
	content, ok := s.files[path]
	if !ok {
		return "", fmt.Errorf("no content for %s", path)
	}
	return content, nil
}

func (s *stubContentSource) ManifestPatch(ctx context.Context, owner, name, sha, path string) (string, error) {
	patch, ok := s.patches[sha+":"+path]
	if !ok {
		return "", fmt.Errorf("no patch for %s at %s", path, sha)
	}
	return patch, nil
}

func analyticsFixture(t *testing.T) (*services.AnalysisResult, *stubContentSource) {
	t.Helper()
	base := time.Now().Add(-48 * time.Hour)

	c1 := models.NewCommit("repo-1", "aaa1111", "initial commit", "Alice", "alice@example.com", base)
	c1.AddFile(models.NewCommitFile("main.go", models.ChangeTypeAdded, 50, 0))
	c1.AddFile(models.NewCommitFile("go.mod", models.ChangeTypeAdded, 5, 0))
	c2 := models.NewCommit("repo-1", "bbb2222", "feat: pull answers concurrently", "Bob", "bob@example.com", base.Add(24*time.Hour))
	c2.AddFile(models.NewCommitFile("go.mod", models.ChangeTypeModified, 1, 0))
	commits := []*models.Commit{c1, c2}

	resolution := services.NewIdentityService().Resolve(commits)
	ownershipService := services.NewOwnershipService()
	ownership, err := ownershipService.Build(commits)
	require.NoError(t, err)

	snapshot := models.NewRepositorySnapshot("acme", "widgets", "https://example.com/acme/widgets.git")
	snapshot.MarkCompleted("bbb2222", len(commits), len(ownership.LiveFiles()), len(resolution.Identities), false)

	result := &services.AnalysisResult{
		Snapshot:     snapshot,
		Commits:      commits,
		Resolution:   resolution,
		Ownership:    ownership,
		Trends:       services.NewTrendService().Build(commits),
		Contributors: ownershipService.Contributors(commits, resolution, ownership),
	}

	source := &stubContentSource{
		files: map[string]string{
			"main.go": "package main\n\nfunc main() {\n\tif len(args) > 0 {\n\t\trun(args)\n\t}\n}\n",
			"go.mod":  "module example.com/widgets\n",
		},
		patches: map[string]string{
			"bbb2222:go.mod": "+\tgolang.org/x/sync v0.16.0\n",
		},
	}
	return result, source
}

func newAnalyticsRouter(result *services.AnalysisResult, source *stubContentSource) *gin.Engine {
	gin.SetMode(gin.TestMode)
	ownershipService := services.NewOwnershipService()
	handler := NewAnalyticsHandler(
		&stubAnalysisProvider{result: result},
		ownershipService,
		services.NewTrendService(),
		services.NewExportService(ownershipService),
		source, source,
	)

	router := gin.New()
	router.GET("/api/repositories/:id/contributors", handler.Contributors)
	router.GET("/api/repositories/:id/complexity", handler.Complexity)
	router.GET("/api/repositories/:id/dependencies", handler.Dependencies)
	return router
}

func getJSON(t *testing.T, router *gin.Engine, url string, out interface{}) int {
	t.Helper()
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, url, nil)
	router.ServeHTTP(recorder, request)
	if out != nil && recorder.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), out))
	}
	return recorder.Code
}

func TestComplexityEndpointScoresLiveFiles(t *testing.T) {
	result, source := analyticsFixture(t)
	router := newAnalyticsRouter(result, source)

	var body struct {
		FilesConsidered int                `json:"files_considered"`
		Extensions      map[string]float64 `json:"extensions"`
	}
	code := getJSON(t, router, "/api/repositories/repo-1/complexity", &body)
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, 2, body.FilesConsidered, "go.mod and main.go are both live")
	assert.Greater(t, body.Extensions[".go"], 0.0)
	assert.NotContains(t, body.Extensions, ".mod", "manifests are not source files")
}

func TestDependenciesEndpointExtractsDeltas(t *testing.T) {
	result, source := analyticsFixture(t)
	router := newAnalyticsRouter(result, source)

	var body struct {
		Deltas []models.DependencyDelta `json:"deltas"`
	}
	code := getJSON(t, router, "/api/repositories/repo-1/dependencies", &body)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body.Deltas, 2, "both commits touched go.mod")

	// the first commit has no fetchable patch, so its lists stay empty
	assert.Equal(t, "aaa1111", body.Deltas[0].CommitSHA)
	assert.Empty(t, body.Deltas[0].Added)

	assert.Equal(t, "bbb2222", body.Deltas[1].CommitSHA)
	assert.Equal(t, []string{"golang.org/x/sync"}, body.Deltas[1].Added)
	assert.Empty(t, body.Deltas[1].Removed)
}

func TestContributorsActiveWindow(t *testing.T) {
	result, source := analyticsFixture(t)
	router := newAnalyticsRouter(result, source)

	var body struct {
		ActiveDays       int      `json:"active_days"`
		ActiveIdentities []string `json:"active_identities"`
	}
	code := getJSON(t, router, "/api/repositories/repo-1/contributors?active_days=7", &body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 7, body.ActiveDays)
	assert.ElementsMatch(t, []string{"Alice", "Bob"}, body.ActiveIdentities)

	code = getJSON(t, router, "/api/repositories/repo-1/contributors?active_days=soon", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAnalyticsEndpointsRequireCompletedAnalysis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ownershipService := services.NewOwnershipService()
	handler := NewAnalyticsHandler(
		&stubAnalysisProvider{err: services.ErrAnalysisNotCompleted},
		ownershipService,
		services.NewTrendService(),
		services.NewExportService(ownershipService),
		&stubContentSource{}, &stubContentSource{},
	)
	router := gin.New()
	router.GET("/api/repositories/:id/complexity", handler.Complexity)
	router.GET("/api/repositories/:id/dependencies", handler.Dependencies)

	assert.Equal(t, http.StatusConflict, getJSON(t, router, "/api/repositories/repo-1/complexity", nil))
	assert.Equal(t, http.StatusConflict, getJSON(t, router, "/api/repositories/repo-1/dependencies", nil))
}
