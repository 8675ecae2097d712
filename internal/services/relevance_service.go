package services

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/chronolens/chronolens/pkg/logger"
)

// queryStopwords are query terms that carry no retrieval signal
var queryStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "this": true,
	"that": true, "what": true, "when": true, "where": true, "which": true,
	"how": true, "does": true, "code": true, "file": true, "files": true,
	"show": true, "about": true, "from": true, "into": true, "are": true,
	"was": true, "has": true, "have": true, "can": true, "you": true,
}

var identifierPattern = regexp.MustCompile(`(?m)^\s*(?:func|def|class|type|function|struct|interface|fn|public|private)\s+\(?[\w\s*\]\[]*?(\w{3,})`)

// ScoredFile is one context candidate with its content already loaded
type ScoredFile struct {
	Path    string  `json:"path"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
}

// RelevanceService ranks files by estimated relevance to a free-text query
// so a bounded context can be handed to the answer model. The scoring is a
// heuristic blend of lexical overlap, identifier matches, and recency; it
// makes no recall guarantee.
type RelevanceService struct {
	maxFiles   int
	byteBudget int
}

// NewRelevanceService creates a relevance scorer with its context bounds
func NewRelevanceService(maxFiles, byteBudget int) *RelevanceService {
	if maxFiles <= 0 {
		maxFiles = 8
	}
	if byteBudget <= 0 {
		byteBudget = 48000
	}
	return &RelevanceService{maxFiles: maxFiles, byteBudget: byteBudget}
}

// SelectContext returns the most relevant files for the query, most relevant
// first, bounded by the file and byte budgets. The ownership analysis, when
// present, contributes a recency weight from each file's last touch.
func (s *RelevanceService) SelectContext(query string, lister FileContentLister, owner, name string, analysis *OwnershipAnalysis) ([]ScoredFile, error) {
	paths, err := lister.ListFiles(owner, name)
	if err != nil {
		return nil, err
	}

	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return nil, nil
	}

	now := time.Now()
	type candidate struct {
		ScoredFile
		lastTouch time.Time
	}
	var candidates []candidate

	for _, path := range paths {
		content, err := lister.ReadFile(owner, name, path, 64*1024)
		if err != nil {
			continue
		}

		score := scoreLexical(path, content, terms)
		if score <= 0 {
			continue
		}

		var lastTouch time.Time
		if analysis != nil {
			if breakdown, err := analysis.Breakdown(path); err == nil {
				lastTouch = breakdown.LastTouch
				score *= 1 + recencyWeight(now, lastTouch)
			}
		}

		candidates = append(candidates, candidate{
			ScoredFile: ScoredFile{Path: path, Score: score, Content: content},
			lastTouch:  lastTouch,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if len(candidates[i].Path) != len(candidates[j].Path) {
			return len(candidates[i].Path) < len(candidates[j].Path)
		}
		return candidates[i].lastTouch.After(candidates[j].lastTouch)
	})

	selected := make([]ScoredFile, 0, s.maxFiles)
	remaining := s.byteBudget
	for _, c := range candidates {
		if len(selected) == s.maxFiles || remaining <= 0 {
			break
		}
		if len(c.Content) > remaining {
			c.Content = c.Content[:remaining]
		}
		remaining -= len(c.Content)
		selected = append(selected, c.ScoredFile)
	}

	logger.WithComponent("relevance").WithField("query", query).
		Debugf("selected %d of %d candidate files", len(selected), len(candidates))
	return selected, nil
}

// scoreLexical combines path matches, content term frequency, and a boost
// for terms that name declared identifiers.
func scoreLexical(path, content string, terms []string) float64 {
	lowerPath := strings.ToLower(path)
	lowerContent := strings.ToLower(content)
	identifiers := identifierTokens(content)

	score := 0.0
	for _, term := range terms {
		if strings.Contains(lowerPath, term) {
			score += 3
		}
		if n := strings.Count(lowerContent, term); n > 0 {
			if n > 5 {
				n = 5
			}
			score += float64(n) * 0.5
		}
		if identifiers[term] {
			score += 2
		}
	}
	return score
}

// identifierTokens extracts declared names, split on case and underscores
func identifierTokens(content string) map[string]bool {
	tokens := make(map[string]bool)
	for _, m := range identifierPattern.FindAllStringSubmatch(content, -1) {
		name := m[1]
		tokens[strings.ToLower(name)] = true
		for _, part := range splitIdentifier(name) {
			tokens[part] = true
		}
	}
	return tokens
}

// splitIdentifier breaks camelCase and snake_case names into lowercase parts
func splitIdentifier(name string) []string {
	var parts []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 2 {
			parts = append(parts, strings.ToLower(current.String()))
		}
		current.Reset()
	}
	for _, r := range name {
		switch {
		case r == '_':
			flush()
		case r >= 'A' && r <= 'Z':
			flush()
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return parts
}

// recencyWeight decays from 1 toward 0 as the last touch ages, with a
// 30-day half-life
func recencyWeight(now, lastTouch time.Time) float64 {
	if lastTouch.IsZero() {
		return 0
	}
	ageDays := now.Sub(lastTouch).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return 30 / (30 + ageDays)
}

// tokenizeQuery lowercases and keeps informative terms
func tokenizeQuery(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	var terms []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if len(f) < 3 || queryStopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}
