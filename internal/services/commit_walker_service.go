package services

import (
	"context"
	"sort"
	"strings"

	"github.com/chronolens/chronolens/internal/models"
	"github.com/chronolens/chronolens/pkg/logger"
)

// WalkResult is the normalized output of one history walk
type WalkResult struct {
	Commits   []*models.Commit
	HeadSHA   string // latest analyzed commit id
	Truncated bool
}

// CommitWalkerService streams the provider's commit log into normalized
// commit records. Traversal order is always normalized to oldest-first,
// since ownership accumulation is order-dependent.
type CommitWalkerService struct {
	provider   CommitLogProvider
	maxCommits int
}

// NewCommitWalkerService creates a new commit walker
func NewCommitWalkerService(provider CommitLogProvider, maxCommits int) *CommitWalkerService {
	return &CommitWalkerService{provider: provider, maxCommits: maxCommits}
}

// Walk fetches and normalizes the history of a repository. Repositories
// exceeding the commit bound are analyzed on a truncated oldest-first prefix.
func (s *CommitWalkerService) Walk(ctx context.Context, repositoryID, owner, name string) (*WalkResult, error) {
	raw, err := s.provider.FetchLog(ctx, owner, name)
	if err != nil {
		return nil, err
	}

	normalizeOrder(raw)

	result := &WalkResult{}
	if s.maxCommits > 0 && len(raw) > s.maxCommits {
		logger.WithComponent("walker").Warnf(
			"history of %s/%s has %d commits, truncating to %d", owner, name, len(raw), s.maxCommits)
		raw = raw[:s.maxCommits]
		result.Truncated = true
	}

	for _, rc := range raw {
		commit := models.NewCommit(repositoryID, rc.SHA, rc.Message, rc.AuthorName, rc.AuthorEmail, rc.Timestamp)
		commit.IsMergeCommit = len(rc.Parents) > 1

		for _, fc := range rc.Files {
			file := models.NewCommitFile(fc.Path, normalizeChangeKind(fc.Kind), fc.Additions, fc.Deletions)
			if fc.OldPath != "" && fc.OldPath != fc.Path {
				file.OldPath = fc.OldPath
				file.ChangeType = models.ChangeTypeRenamed
			}
			commit.AddFile(file)
		}

		result.Commits = append(result.Commits, commit)
	}

	if n := len(result.Commits); n > 0 {
		result.HeadSHA = result.Commits[n-1].SHA
	}

	return result, nil
}

// normalizeOrder sorts raw commits oldest-first. Providers may emit either
// direction; a stable sort on the timestamp settles both.
func normalizeOrder(raw []RawCommit) {
	sort.SliceStable(raw, func(i, j int) bool {
		return raw[i].Timestamp.Before(raw[j].Timestamp)
	})
}

func normalizeChangeKind(kind string) models.ChangeType {
	switch strings.ToLower(kind) {
	case "added", "add":
		return models.ChangeTypeAdded
	case "deleted", "delete", "removed":
		return models.ChangeTypeDeleted
	case "renamed", "rename":
		return models.ChangeTypeRenamed
	default:
		return models.ChangeTypeModified
	}
}
