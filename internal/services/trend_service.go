package services

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chronolens/chronolens/internal/models"
	"github.com/chronolens/chronolens/pkg/logger"
)

// sourceComplexityWeights marks extensions that count toward the complexity
// proxy. Churn in markup or data files does not make a codebase harder.
var sourceComplexityWeights = map[string]float64{
	".go": 1.0, ".py": 1.0, ".js": 1.0, ".ts": 1.0, ".jsx": 1.0, ".tsx": 1.0,
	".java": 1.0, ".c": 1.0, ".h": 0.8, ".cpp": 1.0, ".cc": 1.0, ".rs": 1.0,
	".rb": 1.0, ".php": 1.0, ".cs": 1.0, ".kt": 1.0, ".swift": 1.0,
	".sql": 0.6, ".sh": 0.6,
}

// dependencyManifests are the files whose changes signal a dependency delta
var dependencyManifests = map[string]bool{
	"go.mod":           true,
	"package.json":     true,
	"requirements.txt": true,
	"pyproject.toml":   true,
	"cargo.toml":       true,
	"gemfile":          true,
	"pom.xml":          true,
	"build.gradle":     true,
	"composer.json":    true,
}

// branchTokens drive the content-based complexity score
var branchTokens = []string{
	"if ", "if(", "for ", "for(", "while ", "while(", "case ", "switch",
	"elif ", "except", "catch", "&&", "||", "select {",
}

var conventionalPrefixes = []string{
	"feat", "fix", "docs", "style", "refactor", "perf", "test", "chore", "build", "ci",
}

// ManifestPatcher exposes the textual diff of one file in one commit, used
// to extract named dependency additions and removals.
type ManifestPatcher interface {
	ManifestPatch(ctx context.Context, owner, name, sha, path string) (string, error)
}

// TrendService derives append-only metric series and commit-habit summaries
// from an ordered commit history. Raw per-commit points are stored once and
// re-bucketed to the requested granularity on read.
type TrendService struct{}

// NewTrendService creates a new trend service
func NewTrendService() *TrendService {
	return &TrendService{}
}

// TrendAnalysis holds per-commit raw points, ordered by time per metric
type TrendAnalysis struct {
	points   map[string][]models.TrendPoint
	patterns *models.CommitPatterns
}

// Patterns returns the commit-habit summary computed during Build
func (a *TrendAnalysis) Patterns() *models.CommitPatterns {
	return a.patterns
}

// Build walks commits, which must be ordered oldest first, and produces the
// raw series for every metric plus commit message patterns.
func (s *TrendService) Build(commits []*models.Commit) *TrendAnalysis {
	analysis := &TrendAnalysis{
		points:   make(map[string][]models.TrendPoint),
		patterns: newCommitPatterns(),
	}

	loc, complexity, deps := 0.0, 0.0, 0.0

	for _, commit := range commits {
		for _, file := range commit.Files {
			net := float64(file.Additions - file.Deletions)
			loc += net
			if weight, ok := sourceComplexityWeights[strings.ToLower(filepath.Ext(file.Path))]; ok {
				complexity += weight * (float64(file.Additions) + float64(file.Deletions)*0.5)
			}
			if dependencyManifests[strings.ToLower(filepath.Base(file.Path))] {
				deps += net
			}
		}
		if loc < 0 {
			loc = 0
		}
		if deps < 0 {
			deps = 0
		}

		at := commit.CommitDate
		analysis.append(models.MetricCommitFrequency, at, 1)
		analysis.append(models.MetricLinesOfCode, at, loc)
		analysis.append(models.MetricComplexity, at, complexity)
		analysis.append(models.MetricDependencies, at, deps)

		s.recordPattern(analysis.patterns, commit)
	}

	finishCommitPatterns(analysis.patterns)
	return analysis
}

func (a *TrendAnalysis) append(metric string, at time.Time, value float64) {
	a.points[metric] = append(a.points[metric], models.TrendPoint{
		Bucket: at, Metric: metric, Value: value,
	})
}

// Series re-buckets the raw per-commit points of one metric at read time.
// Commit frequency sums within a bucket; cumulative metrics keep the last
// sample of the bucket. A single-commit history yields a one-point series.
func (s *TrendService) Series(analysis *TrendAnalysis, metric string, granularity models.Granularity) []models.TrendPoint {
	raw := analysis.points[metric]
	if len(raw) == 0 {
		return nil
	}

	buckets := make(map[time.Time]float64)
	for _, point := range raw {
		bucket := bucketStart(point.Bucket, granularity)
		if metric == models.MetricCommitFrequency {
			buckets[bucket] += point.Value
		} else {
			buckets[bucket] = point.Value // points arrive oldest first
		}
	}

	series := make([]models.TrendPoint, 0, len(buckets))
	for bucket, value := range buckets {
		series = append(series, models.TrendPoint{Bucket: bucket, Metric: metric, Value: value})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Bucket.Before(series[j].Bucket) })
	return series
}

// bucketStart truncates to midnight UTC for daily buckets and to the Monday
// of the ISO week for weekly ones.
func bucketStart(t time.Time, granularity models.Granularity) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if granularity != models.GranularityWeekly {
		return day
	}
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

// ComplexitySnapshot scores the current files by content and aggregates the
// result per extension. Files are scored independently and in parallel.
func (s *TrendService) ComplexitySnapshot(ctx context.Context, lister FileContentLister, owner, name string, paths []string) (map[string]float64, error) {
	const maxFileBytes = 256 * 1024

	var mu sync.Mutex
	totals := make(map[string]float64)

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(8)

	for _, path := range paths {
		ext := strings.ToLower(filepath.Ext(path))
		weight, ok := sourceComplexityWeights[ext]
		if !ok {
			continue
		}
		path := path
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			content, err := lister.ReadFile(owner, name, path, maxFileBytes)
			if err != nil {
				// Unreadable files are skipped, not fatal to the snapshot.
				logger.WithComponent("trends").WithField("path", path).Debugf("skipping unreadable file: %v", err)
				return nil
			}
			score := scoreContent(content) * weight
			mu.Lock()
			totals[ext] += score
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return totals, nil
}

// scoreContent is a cheap structural proxy: line count plus weighted
// branching constructs and indentation depth.
func scoreContent(content string) float64 {
	lines := strings.Split(content, "\n")
	score := float64(len(lines)) * 0.1

	maxIndent := 0
	for _, line := range lines {
		indent := 0
		for _, r := range line {
			if r == ' ' {
				indent++
			} else if r == '\t' {
				indent += 4
			} else {
				break
			}
		}
		if indent > maxIndent {
			maxIndent = indent
		}
	}
	score += float64(maxIndent) * 0.5

	lower := strings.ToLower(content)
	for _, token := range branchTokens {
		score += float64(strings.Count(lower, token)) * 2
	}
	return score
}

var manifestEntryPatterns = map[string]*regexp.Regexp{
	"go.mod":           regexp.MustCompile(`^\s*([A-Za-z0-9][\w./-]*\.[\w./-]+)\s+v[\w.+-]+`),
	"package.json":     regexp.MustCompile(`^\s*"([^"]+)"\s*:\s*"[\^~]?\d`),
	"requirements.txt": regexp.MustCompile(`^\s*([A-Za-z0-9][\w.-]*)\s*(?:[=<>!~[]|$)`),
	"pyproject.toml":   regexp.MustCompile(`^\s*([A-Za-z0-9][\w.-]*)\s*=`),
	"cargo.toml":       regexp.MustCompile(`^\s*([A-Za-z0-9][\w-]*)\s*=`),
}

// DependencyDeltas extracts named dependency additions and removals per
// commit by textually diffing manifest files. Commits whose patch cannot be
// fetched still yield a delta with the manifest name but empty entry lists.
func (s *TrendService) DependencyDeltas(ctx context.Context, commits []*models.Commit, patcher ManifestPatcher, owner, name string) []*models.DependencyDelta {
	var deltas []*models.DependencyDelta

	for _, commit := range commits {
		for _, file := range commit.Files {
			base := strings.ToLower(filepath.Base(file.Path))
			if !dependencyManifests[base] {
				continue
			}
			delta := &models.DependencyDelta{
				CommitSHA: commit.SHA,
				Manifest:  file.Path,
				At:        commit.CommitDate,
			}
			if patcher != nil {
				if patch, err := patcher.ManifestPatch(ctx, owner, name, commit.SHA, file.Path); err == nil {
					delta.Added, delta.Removed = parseManifestPatch(base, patch)
				}
			}
			deltas = append(deltas, delta)
		}
	}

	return deltas
}

// parseManifestPatch pulls dependency names out of added/removed patch lines.
// An entry appearing on both sides is a version bump, not a delta.
func parseManifestPatch(manifest, patch string) (added, removed []string) {
	pattern := manifestEntryPatterns[manifest]
	if pattern == nil {
		return nil, nil
	}

	plus, minus := map[string]bool{}, map[string]bool{}
	for _, line := range strings.Split(patch, "\n") {
		if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") {
			continue
		}
		var bucket map[string]bool
		switch {
		case strings.HasPrefix(line, "+"):
			bucket = plus
		case strings.HasPrefix(line, "-"):
			bucket = minus
		default:
			continue
		}
		if m := pattern.FindStringSubmatch(line[1:]); m != nil {
			bucket[m[1]] = true
		}
	}

	for entry := range plus {
		if !minus[entry] {
			added = append(added, entry)
		}
	}
	for entry := range minus {
		if !plus[entry] {
			removed = append(removed, entry)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func newCommitPatterns() *models.CommitPatterns {
	return &models.CommitPatterns{
		MessageTypes:   make(map[string]int),
		HourlyCommits:  make(map[int]int),
		WeekdayCommits: make(map[string]int),
		MostActiveHour: -1,
	}
}

func (s *TrendService) recordPattern(patterns *models.CommitPatterns, commit *models.Commit) {
	patterns.TotalCommits++
	patterns.MessageTypes[classifyMessage(commit.Message, commit.IsMergeCommit)]++
	patterns.HourlyCommits[commit.CommitDate.UTC().Hour()]++
	patterns.WeekdayCommits[commit.CommitDate.UTC().Weekday().String()]++
	patterns.AvgMessageLength += float64(len(commit.Message))
}

func finishCommitPatterns(patterns *models.CommitPatterns) {
	if patterns.TotalCommits > 0 {
		patterns.AvgMessageLength /= float64(patterns.TotalCommits)
	}

	best := -1
	for hour, count := range patterns.HourlyCommits {
		if count > best || (count == best && hour < patterns.MostActiveHour) {
			best = count
			patterns.MostActiveHour = hour
		}
	}
	best = -1
	for day, count := range patterns.WeekdayCommits {
		if count > best || (count == best && day < patterns.MostActiveDay) {
			best = count
			patterns.MostActiveDay = day
		}
	}
}

// classifyMessage buckets a commit message the way conventional-commit
// prefixes suggest, with keyword fallbacks for unstructured messages.
func classifyMessage(message string, isMerge bool) string {
	lower := strings.ToLower(strings.TrimSpace(message))

	if isMerge || strings.HasPrefix(lower, "merge") {
		return "merge"
	}
	if strings.HasPrefix(lower, "initial") {
		return "initial"
	}
	for _, prefix := range conventionalPrefixes {
		if strings.HasPrefix(lower, prefix+":") || strings.HasPrefix(lower, prefix+"(") {
			return prefix
		}
	}
	switch {
	case strings.HasPrefix(lower, "fix") || strings.Contains(lower, "bugfix"):
		return "fix"
	case strings.HasPrefix(lower, "add"):
		return "add"
	case strings.HasPrefix(lower, "remove") || strings.HasPrefix(lower, "delete"):
		return "remove"
	case strings.HasPrefix(lower, "update") || strings.HasPrefix(lower, "bump"):
		return "update"
	case strings.HasPrefix(lower, "refactor"):
		return "refactor"
	case strings.HasPrefix(lower, "doc"):
		return "docs"
	case strings.HasPrefix(lower, "test"):
		return "test"
	}
	return "other"
}
