package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chronolens/chronolens/internal/models"
	"github.com/chronolens/chronolens/pkg/logger"
)

// QueryClassifier decides which route answers a natural-language query
type QueryClassifier interface {
	Classify(ctx context.Context, query, brief string) (models.QueryRoute, error)
}

// AnalysisProvider hands the router the completed analysis for a repository
type AnalysisProvider interface {
	CompletedAnalysis(repoID string) (*AnalysisResult, error)
}

// structuredKeywords route a query to precomputed analytics when the
// classifier is unavailable, grouped by the intent they signal
var structuredKeywords = map[string]string{
	"who": "contributors", "contributor": "contributors", "contributors": "contributors",
	"author": "contributors", "authors": "contributors", "wrote": "contributors",
	"timeline": "timeline", "history": "timeline", "when": "timeline",
	"commit": "timeline", "commits": "timeline", "recent": "timeline",
	"ownership": "ownership", "owns": "ownership", "owner": "ownership", "owned": "ownership",
	"pattern": "patterns", "patterns": "patterns", "trend": "patterns",
	"trends": "patterns", "activity": "patterns", "habits": "patterns",
	"summary": "summary", "overview": "summary", "statistics": "summary", "stats": "summary",
	"changed": "timeline", "expert": "ownership", "experts": "ownership",
}

// answerPayload is the cached representation of a chat answer
type answerPayload struct {
	Response string            `json:"response"`
	Route    models.QueryRoute `json:"route"`
	Source   string            `json:"source"`
}

// QueryRouterService drives a query through classification, dispatch, and
// caching. Classification never blocks past its timeout: a silent or failing
// classifier degrades to the deterministic keyword route. A failed retrieval
// answer surfaces as a degraded response, never as a fabricated one.
type QueryRouterService struct {
	provider   AnalysisProvider
	classifier QueryClassifier
	llm        *LLMService
	relevance  *RelevanceService
	cache      *CacheService
	ownership  *OwnershipService
	trends     *TrendService
	lister     FileContentLister
	timeout    time.Duration
}

// NewQueryRouterService wires the router. classifier may be nil, in which
// case every query takes the keyword path.
func NewQueryRouterService(
	provider AnalysisProvider,
	classifier QueryClassifier,
	llm *LLMService,
	relevance *RelevanceService,
	cache *CacheService,
	ownership *OwnershipService,
	trends *TrendService,
	lister FileContentLister,
	classificationTimeout time.Duration,
) *QueryRouterService {
	if classificationTimeout <= 0 {
		classificationTimeout = 5 * time.Second
	}
	return &QueryRouterService{
		provider:   provider,
		classifier: classifier,
		llm:        llm,
		relevance:  relevance,
		cache:      cache,
		ownership:  ownership,
		trends:     trends,
		lister:     lister,
		timeout:    classificationTimeout,
	}
}

// Route answers a natural-language query about an analyzed repository
func (s *QueryRouterService) Route(ctx context.Context, repoID, query string) (*models.QueryAnswer, error) {
	analysis, err := s.provider.CompletedAnalysis(repoID)
	if err != nil {
		return nil, err
	}

	answer := &models.QueryAnswer{
		RepositoryID: repoID,
		Query:        query,
		Timestamp:    time.Now(),
	}

	key := s.cache.DeriveKey(repoID, analysis.Snapshot.LastCommitSHA, query)
	payload, cached, err := s.cache.GetOrCompute(key, repoID, query, func() (string, error) {
		computed, err := s.answer(ctx, analysis, query)
		if err != nil {
			return "", err
		}
		raw, err := json.Marshal(computed)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	})
	if err != nil {
		if errors.Is(err, ErrRetrievalAnswerFailed) {
			answer.Route = models.RouteRetrieval
			answer.Degraded = true
			answer.Response = "I could not produce an answer from the repository's code right now. " +
				"Structured questions about contributors, ownership, and history still work."
			return answer, nil
		}
		return nil, err
	}

	var stored answerPayload
	if err := json.Unmarshal([]byte(payload), &stored); err != nil {
		return nil, fmt.Errorf("corrupt cache payload: %w", err)
	}

	answer.Response = stored.Response
	answer.Route = stored.Route
	answer.Cached = cached
	return answer, nil
}

// answer runs the classify-and-dispatch pipeline for a cache miss
func (s *QueryRouterService) answer(ctx context.Context, analysis *AnalysisResult, query string) (*answerPayload, error) {
	classification := s.classify(ctx, analysis, query)

	if classification.Route == models.RouteStructured {
		response := s.answerStructured(analysis, query)
		return &answerPayload{
			Response: response,
			Route:    models.RouteStructured,
			Source:   string(classification.Source),
		}, nil
	}

	response, err := s.answerRetrieval(ctx, analysis, query)
	if err != nil {
		return nil, err
	}
	return &answerPayload{
		Response: response,
		Route:    models.RouteRetrieval,
		Source:   string(classification.Source),
	}, nil
}

// classify asks the external classifier under a hard timeout and falls back
// to keywords when it times out, errors, or was never configured.
func (s *QueryRouterService) classify(ctx context.Context, analysis *AnalysisResult, query string) models.QueryClassification {
	classification := models.QueryClassification{Query: query}

	if s.classifier != nil {
		timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		type outcome struct {
			route models.QueryRoute
			err   error
		}
		ch := make(chan outcome, 1)
		go func() {
			route, err := s.classifier.Classify(timeoutCtx, query, s.repositoryBrief(analysis))
			ch <- outcome{route, err}
		}()

		select {
		case out := <-ch:
			if out.err == nil {
				classification.Route = out.route
				classification.Source = models.SourceLLM
				return classification
			}
			logger.WithComponent("router").WithError(out.err).Infof("classifier failed, using keyword fallback")
		case <-timeoutCtx.Done():
			logger.WithComponent("router").Infof("classification timed out after %s, using keyword fallback", s.timeout)
		}
	}

	classification.Route = keywordRoute(query)
	classification.Source = models.SourceKeywordFallback
	return classification
}

// keywordRoute is the deterministic fallback classifier
func keywordRoute(query string) models.QueryRoute {
	for _, term := range strings.Fields(strings.ToLower(query)) {
		term = strings.Trim(term, "?.,!:;'\"")
		if _, ok := structuredKeywords[term]; ok {
			return models.RouteStructured
		}
	}
	return models.RouteRetrieval
}

// keywordIntent picks the structured formatter for a query
func keywordIntent(query string) string {
	counts := make(map[string]int)
	for _, term := range strings.Fields(strings.ToLower(query)) {
		term = strings.Trim(term, "?.,!:;'\"")
		if intent, ok := structuredKeywords[term]; ok {
			counts[intent]++
		}
	}
	best, bestCount := "summary", 0
	for _, intent := range []string{"contributors", "ownership", "timeline", "patterns", "summary"} {
		if counts[intent] > bestCount {
			best, bestCount = intent, counts[intent]
		}
	}
	return best
}

func (s *QueryRouterService) repositoryBrief(analysis *AnalysisResult) string {
	snap := analysis.Snapshot
	return fmt.Sprintf("%s/%s, %d commits, %d files, %d authors",
		snap.Owner, snap.Name, snap.TotalCommits, snap.TotalFiles, snap.TotalAuthors)
}

// answerStructured dispatches to the analytics formatters; no model call is
// needed on this path.
func (s *QueryRouterService) answerStructured(analysis *AnalysisResult, query string) string {
	switch keywordIntent(query) {
	case "contributors":
		return s.formatContributors(analysis)
	case "ownership":
		if path := extractPathToken(query); path != "" {
			return s.formatOwnership(analysis, path)
		}
		return s.formatOwnershipOverview(analysis)
	case "timeline":
		return s.formatTimeline(analysis)
	case "patterns":
		return s.formatPatterns(analysis)
	default:
		return s.formatSummary(analysis)
	}
}

// answerRetrieval assembles bounded context and asks the model
func (s *QueryRouterService) answerRetrieval(ctx context.Context, analysis *AnalysisResult, query string) (string, error) {
	if s.llm == nil || !s.llm.Enabled() {
		return "", fmt.Errorf("%w: no answer model configured", ErrRetrievalAnswerFailed)
	}

	snap := analysis.Snapshot
	files, err := s.relevance.SelectContext(query, s.lister, snap.Owner, snap.Name, analysis.Ownership)
	if err != nil {
		return "", fmt.Errorf("%w: context selection: %v", ErrRetrievalAnswerFailed, err)
	}
	return s.llm.Answer(ctx, query, files)
}

// extractPathToken finds a file-looking token in the query
func extractPathToken(query string) string {
	for _, term := range strings.Fields(query) {
		term = strings.Trim(term, "?.,!:;'\"")
		if strings.ContainsAny(term, "/") || (strings.Contains(term, ".") && !strings.HasSuffix(term, ".")) {
			return term
		}
	}
	return ""
}

func (s *QueryRouterService) formatContributors(analysis *AnalysisResult) string {
	stats := analysis.Contributors
	if len(stats) == 0 {
		return "No contributors found in the analyzed history."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top contributors across %d commits:\n", analysis.Snapshot.TotalCommits)
	limit := 10
	if len(stats) < limit {
		limit = len(stats)
	}
	for i := 0; i < limit; i++ {
		stat := stats[i]
		name := stat.Name
		if name == "" {
			name = stat.IdentityKey
		}
		fmt.Fprintf(&b, "%d. %s: %d commits (%.1f%%), +%d/-%d lines\n",
			i+1, name, stat.Commits, stat.Percentage, stat.Additions, stat.Deletions)
	}
	return strings.TrimSpace(b.String())
}

func (s *QueryRouterService) formatOwnership(analysis *AnalysisResult, path string) string {
	breakdown, err := analysis.Ownership.Breakdown(path)
	if err != nil {
		return fmt.Sprintf("No ownership state found for %q. The path may never have existed in the analyzed history.", path)
	}

	var b strings.Builder
	switch {
	case breakdown.Deleted:
		fmt.Fprintf(&b, "%s was deleted; its last known ownership:\n", path)
	case breakdown.LivePath != "":
		fmt.Fprintf(&b, "%s was renamed to %s; current ownership:\n", path, breakdown.LivePath)
	default:
		fmt.Fprintf(&b, "Ownership of %s:\n", path)
	}
	for _, owner := range breakdown.Owners {
		identityName := owner.IdentityKey
		if identity, ok := analysis.Resolution.Get(owner.IdentityKey); ok && identity.Name != "" {
			identityName = identity.Name
		}
		fmt.Fprintf(&b, "- %s: %.1f%% (%d commits)\n", identityName, owner.Percentage, owner.Commits)
	}
	return strings.TrimSpace(b.String())
}

func (s *QueryRouterService) formatOwnershipOverview(analysis *AnalysisResult) string {
	overview := s.ownership.Overview(analysis.Ownership)
	return fmt.Sprintf(
		"Ownership overview: %d live files (%d deleted), %.1f owners per file on average. "+
			"Top-owner concentration %.0f%%; %.0f%% of files have two or more meaningful owners.",
		overview.TotalFiles, overview.DeletedFiles, overview.AverageOwners,
		overview.ConcentrationScore*100, overview.CollaborationScore*100)
}

func (s *QueryRouterService) formatTimeline(analysis *AnalysisResult) string {
	commits := analysis.Commits
	if len(commits) == 0 {
		return "No commits in the analyzed history."
	}

	var b strings.Builder
	b.WriteString("Most recent commits:\n")
	shown := 0
	for i := len(commits) - 1; i >= 0 && shown < 10; i-- {
		c := commits[i]
		fmt.Fprintf(&b, "- %s %s: %s (%s)\n",
			c.CommitDate.Format("2006-01-02"), shortSHA(c.SHA), firstLine(c.Message), c.AuthorName)
		shown++
	}
	return strings.TrimSpace(b.String())
}

func (s *QueryRouterService) formatPatterns(analysis *AnalysisResult) string {
	patterns := analysis.Trends.Patterns()
	if patterns == nil || patterns.TotalCommits == 0 {
		return "No activity patterns in the analyzed history."
	}

	type bucket struct {
		name  string
		count int
	}
	var buckets []bucket
	for name, count := range patterns.MessageTypes {
		buckets = append(buckets, bucket{name, count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].count != buckets[j].count {
			return buckets[i].count > buckets[j].count
		}
		return buckets[i].name < buckets[j].name
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Activity patterns over %d commits:\n", patterns.TotalCommits)
	fmt.Fprintf(&b, "Most active hour: %02d:00 UTC; most active day: %s.\n",
		patterns.MostActiveHour, patterns.MostActiveDay)
	b.WriteString("Commit types: ")
	for i, bk := range buckets {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s (%d)", bk.name, bk.count)
	}
	return strings.TrimSpace(b.String())
}

func (s *QueryRouterService) formatSummary(analysis *AnalysisResult) string {
	snap := analysis.Snapshot
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s: %d commits by %d authors across %d files.",
		snap.Owner, snap.Name, snap.TotalCommits, snap.TotalAuthors, snap.TotalFiles)
	if snap.Truncated {
		b.WriteString(" History was truncated at the analysis limit.")
	}
	if len(analysis.Contributors) > 0 {
		top := analysis.Contributors[0]
		name := top.Name
		if name == "" {
			name = top.IdentityKey
		}
		fmt.Fprintf(&b, " Most active contributor: %s (%.1f%% of commits).", name, top.Percentage)
	}
	return b.String()
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func firstLine(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		return message[:i]
	}
	return message
}
