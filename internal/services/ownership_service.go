package services

import (
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chronolens/chronolens/internal/models"
	"github.com/chronolens/chronolens/pkg/logger"
)

// ownershipEpsilon is the tolerated drift around a 100% percentage sum
const ownershipEpsilon = 0.01

// OwnershipService folds an ordered commit history into per-file ownership
// state. Shares are proportional to surviving attributed lines; percentages
// sum to 100 within epsilon after every mutation. Renames carry state to the
// new path and leave a lineage edge behind so old paths stay queryable.
type OwnershipService struct{}

// NewOwnershipService creates a new ownership service
func NewOwnershipService() *OwnershipService {
	return &OwnershipService{}
}

// OwnershipAnalysis is the immutable result of one fold over a repository's
// history. Readers resolve paths through the rename lineage.
type OwnershipAnalysis struct {
	files   map[string]*models.FileOwnership
	lineage map[string]string // renamed path -> successor path
}

// Build folds commits, which must already be ordered oldest first, into
// ownership state. Merge commits participate with their first-parent diff
// like any other commit.
func (s *OwnershipService) Build(commits []*models.Commit) (*OwnershipAnalysis, error) {
	analysis := &OwnershipAnalysis{
		files:   make(map[string]*models.FileOwnership),
		lineage: make(map[string]string),
	}

	for _, commit := range commits {
		for _, file := range commit.Files {
			s.applyChange(analysis, commit, file)
		}
	}

	return analysis, nil
}

func (s *OwnershipService) applyChange(a *OwnershipAnalysis, commit *models.Commit, file *models.CommitFile) {
	switch file.ChangeType {
	case models.ChangeTypeAdded:
		fo := a.files[file.Path]
		if fo == nil || fo.Deleted {
			// A re-added path starts over; the frozen state is superseded.
			fo = models.NewFileOwnership(file.Path, commit.CommitDate)
			a.files[file.Path] = fo
			delete(a.lineage, file.Path)
		}
		s.credit(fo, commit, float64(file.Additions), 0)

	case models.ChangeTypeModified:
		fo := a.files[file.Path]
		if fo == nil {
			// History starts mid-stream for this path (truncated log).
			fo = models.NewFileOwnership(file.Path, commit.CommitDate)
			a.files[file.Path] = fo
		}
		s.credit(fo, commit, float64(file.Additions), float64(file.Deletions))

	case models.ChangeTypeRenamed:
		fo := a.files[file.OldPath]
		if fo == nil {
			fo = models.NewFileOwnership(file.Path, commit.CommitDate)
		} else {
			delete(a.files, file.OldPath)
			a.lineage[file.OldPath] = file.Path
			fo.Path = file.Path
		}
		a.files[file.Path] = fo
		delete(a.lineage, file.Path)
		s.credit(fo, commit, float64(file.Additions), float64(file.Deletions))

	case models.ChangeTypeDeleted:
		if fo := a.files[file.Path]; fo != nil {
			fo.Deleted = true
			fo.LastTouch = commit.CommitDate
		}
	}
}

// credit applies a proportional reduction for removed lines, then attributes
// added lines to the commit author, then renormalizes percentages.
func (s *OwnershipService) credit(fo *models.FileOwnership, commit *models.Commit, additions, deletions float64) {
	if deletions > 0 && fo.TotalLines > 0 {
		factor := (fo.TotalLines - deletions) / fo.TotalLines
		if factor < 0 {
			factor = 0
		}
		for _, share := range fo.Shares {
			share.Lines *= factor
		}
		fo.TotalLines *= factor
	}

	if additions > 0 {
		share := fo.Shares[commit.IdentityKey]
		if share == nil {
			share = &models.OwnerShare{
				IdentityKey: commit.IdentityKey,
				FirstTouch:  commit.CommitDate,
			}
			fo.Shares[commit.IdentityKey] = share
		}
		share.Lines += additions
		fo.TotalLines += additions
	}

	if share := fo.Shares[commit.IdentityKey]; share != nil {
		share.Commits++
		share.LastTouch = commit.CommitDate
	}
	fo.LastTouch = commit.CommitDate

	s.renormalize(fo)
}

// renormalize recomputes percentages from line stakes and clamps any
// floating point drift back to a 100% sum.
func (s *OwnershipService) renormalize(fo *models.FileOwnership) {
	if fo.TotalLines <= 0 {
		for _, share := range fo.Shares {
			share.Percentage = 0
		}
		return
	}

	sum := 0.0
	for _, share := range fo.Shares {
		share.Percentage = share.Lines / fo.TotalLines * 100
		sum += share.Percentage
	}

	if math.Abs(sum-100) > ownershipEpsilon && sum > 0 {
		logger.WithComponent("ownership").WithFields(map[string]interface{}{
			"path": fo.Path,
			"sum":  sum,
		}).Warnf("ownership drift detected, clamping: %v", ErrInconsistentOwnership)
		scale := 100 / sum
		for _, share := range fo.Shares {
			share.Percentage *= scale
		}
	}
}

// resolveLive follows rename edges to the current path. The visited set
// guards against pathological A->B->A chains.
func (a *OwnershipAnalysis) resolveLive(path string) string {
	visited := map[string]bool{path: true}
	for {
		next, ok := a.lineage[path]
		if !ok || visited[next] {
			return path
		}
		visited[next] = true
		path = next
	}
}

// Breakdown returns the ownership view for a path, resolving renamed paths
// through their lineage. Frozen state of deleted files is still served.
func (a *OwnershipAnalysis) Breakdown(path string) (*models.OwnershipBreakdown, error) {
	live := a.resolveLive(path)
	fo, ok := a.files[live]
	if !ok {
		return nil, ErrFileNotFound
	}

	breakdown := &models.OwnershipBreakdown{
		Path:      path,
		Current:   live == path && !fo.Deleted,
		Deleted:   fo.Deleted,
		LastTouch: fo.LastTouch,
	}
	if live != path {
		breakdown.LivePath = live
	}

	for _, share := range fo.Shares {
		copied := *share
		breakdown.Owners = append(breakdown.Owners, &copied)
	}
	sort.Slice(breakdown.Owners, func(i, j int) bool {
		if breakdown.Owners[i].Percentage != breakdown.Owners[j].Percentage {
			return breakdown.Owners[i].Percentage > breakdown.Owners[j].Percentage
		}
		return breakdown.Owners[i].IdentityKey < breakdown.Owners[j].IdentityKey
	})

	return breakdown, nil
}

// LiveFiles returns the paths of all non-deleted files, sorted
func (a *OwnershipAnalysis) LiveFiles() []string {
	paths := make([]string, 0, len(a.files))
	for path, fo := range a.files {
		if !fo.Deleted {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// Contributors aggregates per-identity stats over the commit history and the
// current ownership state. Percentage is the identity's share of commits.
func (s *OwnershipService) Contributors(commits []*models.Commit, resolution *IdentityResolution, analysis *OwnershipAnalysis) []*models.ContributorStat {
	stats := make(map[string]*models.ContributorStat)

	for _, commit := range commits {
		stat := stats[commit.IdentityKey]
		if stat == nil {
			stat = &models.ContributorStat{IdentityKey: commit.IdentityKey, FirstCommit: commit.CommitDate}
			if identity, ok := resolution.Get(commit.IdentityKey); ok {
				stat.Name = identity.Name
				stat.Email = identity.Email
			}
			stats[commit.IdentityKey] = stat
		}
		stat.Commits++
		stat.Additions += commit.Additions
		stat.Deletions += commit.Deletions
		if commit.CommitDate.Before(stat.FirstCommit) {
			stat.FirstCommit = commit.CommitDate
		}
		if commit.CommitDate.After(stat.LastCommit) {
			stat.LastCommit = commit.CommitDate
		}
	}

	for _, fo := range analysis.files {
		if fo.Deleted {
			continue
		}
		for key, share := range fo.Shares {
			if stat := stats[key]; stat != nil {
				stat.LinesOwned += share.Lines
			}
		}
	}

	result := make([]*models.ContributorStat, 0, len(stats))
	total := 0
	for _, stat := range stats {
		total += stat.Commits
		result = append(result, stat)
	}
	for _, stat := range result {
		if total > 0 {
			stat.Percentage = float64(stat.Commits) / float64(total) * 100
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Commits != result[j].Commits {
			return result[i].Commits > result[j].Commits
		}
		return result[i].IdentityKey < result[j].IdentityKey
	})

	return result
}

// OwnershipOverview summarizes how concentrated ownership is across the
// repository's live files.
type OwnershipOverview struct {
	TotalFiles         int     `json:"total_files"`
	DeletedFiles       int     `json:"deleted_files"`
	AverageOwners      float64 `json:"average_owners"`
	ConcentrationScore float64 `json:"concentration_score"` // mean top-owner share, 0-1
	CollaborationScore float64 `json:"collaboration_score"` // share of files with 2+ owners above 10%
}

// Overview computes repository-wide ownership aggregates
func (s *OwnershipService) Overview(analysis *OwnershipAnalysis) *OwnershipOverview {
	overview := &OwnershipOverview{}

	ownerSum := 0
	topSum := 0.0
	collaborative := 0
	live := 0

	for _, fo := range analysis.files {
		if fo.Deleted {
			overview.DeletedFiles++
			continue
		}
		live++
		top := 0.0
		meaningful := 0
		for _, share := range fo.Shares {
			ownerSum++
			if share.Percentage > top {
				top = share.Percentage
			}
			if share.Percentage >= 10 {
				meaningful++
			}
		}
		topSum += top
		if meaningful >= 2 {
			collaborative++
		}
	}

	overview.TotalFiles = live
	if live > 0 {
		overview.AverageOwners = float64(ownerSum) / float64(live)
		overview.ConcentrationScore = topSum / float64(live) / 100
		overview.CollaborationScore = float64(collaborative) / float64(live)
	}

	return overview
}

// CodeExpert scores one identity's expertise in files of a given extension
type CodeExpert struct {
	IdentityKey  string  `json:"identity_key"`
	Extension    string  `json:"extension"`
	Score        float64 `json:"score"`
	FilesOwned   int     `json:"files_owned"`
	FilesTouched int     `json:"files_touched"`
	AvgOwnership float64 `json:"avg_ownership"`
}

// FindExperts ranks identities by expertise for one file extension. The
// score blends average ownership depth, how often the identity is the
// primary owner, and breadth of coverage.
func (s *OwnershipService) FindExperts(analysis *OwnershipAnalysis, extension string, limit int) []*CodeExpert {
	extension = strings.ToLower(strings.TrimPrefix(extension, "."))

	type tally struct {
		ownershipSum float64
		touched      int
		primary      int
	}
	tallies := make(map[string]*tally)
	extFiles := 0

	for path, fo := range analysis.files {
		if fo.Deleted {
			continue
		}
		if strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) != extension {
			continue
		}
		extFiles++

		topKey, top := "", 0.0
		for key, share := range fo.Shares {
			t := tallies[key]
			if t == nil {
				t = &tally{}
				tallies[key] = t
			}
			t.ownershipSum += share.Percentage
			t.touched++
			if share.Percentage > top || (share.Percentage == top && key < topKey) {
				topKey, top = key, share.Percentage
			}
		}
		if topKey != "" {
			tallies[topKey].primary++
		}
	}

	if extFiles == 0 {
		return nil
	}

	experts := make([]*CodeExpert, 0, len(tallies))
	for key, t := range tallies {
		avg := t.ownershipSum / float64(t.touched) / 100
		primaryRatio := float64(t.primary) / float64(t.touched)
		coverage := float64(t.touched) / float64(extFiles)
		experts = append(experts, &CodeExpert{
			IdentityKey:  key,
			Extension:    extension,
			Score:        avg*0.4 + primaryRatio*0.3 + coverage*0.3,
			FilesOwned:   t.primary,
			FilesTouched: t.touched,
			AvgOwnership: avg * 100,
		})
	}

	sort.Slice(experts, func(i, j int) bool {
		if experts[i].Score != experts[j].Score {
			return experts[i].Score > experts[j].Score
		}
		return experts[i].IdentityKey < experts[j].IdentityKey
	})

	if limit > 0 && len(experts) > limit {
		experts = experts[:limit]
	}
	return experts
}

// ActiveOwners reports identities that touched any live file since the
// given time
func (a *OwnershipAnalysis) ActiveOwners(since time.Time) []string {
	seen := make(map[string]bool)
	for _, fo := range a.files {
		for key, share := range fo.Shares {
			if !share.LastTouch.Before(since) {
				seen[key] = true
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
