package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronolens/chronolens/internal/models"
)

// stuckClassifier never replies; the router must still answer in time
type stuckClassifier struct{}

func (c *stuckClassifier) Classify(ctx context.Context, query, brief string) (models.QueryRoute, error) {
	select {} // block forever, ignoring the context on purpose
}

type fixedClassifier struct {
	route models.QueryRoute
	err   error
}

func (c *fixedClassifier) Classify(ctx context.Context, query, brief string) (models.QueryRoute, error) {
	return c.route, c.err
}

type stubProvider struct {
	result *AnalysisResult
	err    error
}

func (p *stubProvider) CompletedAnalysis(repoID string) (*AnalysisResult, error) {
	return p.result, p.err
}

func routerFixture(t *testing.T) *AnalysisResult {
	t.Helper()

	commits := []*models.Commit{
		foldCommit("alice", 1, change{path: "main.go", kind: models.ChangeTypeAdded, additions: 100}),
		foldCommit("bob", 2, change{path: "main.go", kind: models.ChangeTypeModified, additions: 20, deletions: 10}),
		foldCommit("alice", 3, change{path: "docs.md", kind: models.ChangeTypeAdded, additions: 5}),
	}

	identity := NewIdentityService()
	ownership := NewOwnershipService()
	trends := NewTrendService()

	resolution := identity.Resolve(commits)
	ownershipAnalysis, err := ownership.Build(commits)
	require.NoError(t, err)

	snapshot := models.NewRepositorySnapshot("acme", "widgets", "https://example.com/acme/widgets.git")
	snapshot.MarkCompleted("headsha1234567", len(commits), 2, len(resolution.Identities), false)

	return &AnalysisResult{
		Snapshot:     snapshot,
		Commits:      commits,
		Resolution:   resolution,
		Ownership:    ownershipAnalysis,
		Trends:       trends.Build(commits),
		Contributors: ownership.Contributors(commits, resolution, ownershipAnalysis),
	}
}

func newRouter(t *testing.T, classifier QueryClassifier, result *AnalysisResult, timeout time.Duration) *QueryRouterService {
	t.Helper()
	return NewQueryRouterService(
		&stubProvider{result: result},
		classifier,
		nil, // no answer model in unit tests
		NewRelevanceService(8, 48000),
		NewCacheService(newMemoryCacheStore(), time.Hour),
		NewOwnershipService(),
		NewTrendService(),
		&stubLister{files: map[string]string{}},
		timeout,
	)
}

func TestRouteFallsBackWhenClassifierNeverReplies(t *testing.T) {
	router := newRouter(t, &stuckClassifier{}, routerFixture(t), 100*time.Millisecond)

	start := time.Now()
	answer, err := router.Route(context.Background(), "repo-1", "who are the top contributors?")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second, "classification must not block past its timeout")
	assert.Equal(t, models.RouteStructured, answer.Route)
	assert.False(t, answer.Degraded)
	assert.Contains(t, answer.Response, "alice")
}

func TestRouteStructuredAnswerIsCached(t *testing.T) {
	router := newRouter(t, nil, routerFixture(t), time.Second)

	first, err := router.Route(context.Background(), "repo-1", "show me the commit timeline")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, models.RouteStructured, first.Route)

	second, err := router.Route(context.Background(), "repo-1", "show me the commit timeline")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Response, second.Response)
}

func TestRouteRetrievalDegradesWithoutModel(t *testing.T) {
	router := newRouter(t, &fixedClassifier{route: models.RouteRetrieval}, routerFixture(t), time.Second)

	answer, err := router.Route(context.Background(), "repo-1", "explain the architecture of the parser")
	require.NoError(t, err)
	assert.True(t, answer.Degraded)
	assert.Equal(t, models.RouteRetrieval, answer.Route)
	assert.NotEmpty(t, answer.Response)
	assert.False(t, answer.Cached)
}

func TestRouteDegradedAnswerIsNotCached(t *testing.T) {
	router := newRouter(t, &fixedClassifier{route: models.RouteRetrieval}, routerFixture(t), time.Second)

	first, err := router.Route(context.Background(), "repo-1", "explain the scheduler internals")
	require.NoError(t, err)
	require.True(t, first.Degraded)

	second, err := router.Route(context.Background(), "repo-1", "explain the scheduler internals")
	require.NoError(t, err)
	assert.True(t, second.Degraded)
	assert.False(t, second.Cached, "a degraded answer must never be served from cache")
}

func TestRoutePropagatesProviderErrors(t *testing.T) {
	router := NewQueryRouterService(
		&stubProvider{err: ErrAnalysisNotCompleted}, nil, nil,
		NewRelevanceService(8, 48000),
		NewCacheService(newMemoryCacheStore(), time.Hour),
		NewOwnershipService(), NewTrendService(),
		&stubLister{}, time.Second)

	_, err := router.Route(context.Background(), "repo-1", "anything")
	assert.ErrorIs(t, err, ErrAnalysisNotCompleted)
}

func TestKeywordRoute(t *testing.T) {
	tests := []struct {
		query    string
		expected models.QueryRoute
	}{
		{"who wrote the parser?", models.RouteStructured},
		{"show the commit timeline", models.RouteStructured},
		{"ownership of main.go", models.RouteStructured},
		{"what are the activity trends?", models.RouteStructured},
		{"give me a summary", models.RouteStructured},
		{"explain how the scheduler picks tasks", models.RouteRetrieval},
		{"why is this function recursive", models.RouteRetrieval},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.expected, keywordRoute(tt.query))
		})
	}
}

func TestStructuredOwnershipAnswerResolvesPath(t *testing.T) {
	router := newRouter(t, nil, routerFixture(t), time.Second)

	answer, err := router.Route(context.Background(), "repo-1", "ownership of main.go")
	require.NoError(t, err)
	assert.Equal(t, models.RouteStructured, answer.Route)
	assert.Contains(t, answer.Response, "main.go")
	assert.Contains(t, answer.Response, "%")
}

func TestExtractPathToken(t *testing.T) {
	assert.Equal(t, "main.go", extractPathToken("ownership of main.go?"))
	assert.Equal(t, "pkg/config/config.go", extractPathToken("who owns pkg/config/config.go"))
	assert.Equal(t, "", extractPathToken("who owns the scheduler"))
}
