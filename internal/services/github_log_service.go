package services

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/chronolens/chronolens/pkg/logger"
)

// GitHubLogService is the API-backed commit-log provider. It lists commits
// through the GitHub REST API and fetches per-commit file stats, at the cost
// of one request per commit. File content still comes from the local clone.
type GitHubLogService struct {
	token    string
	pageSize int
}

// NewGitHubLogService creates a new GitHub log service
func NewGitHubLogService(token string) *GitHubLogService {
	return &GitHubLogService{token: token, pageSize: 100}
}

// createClient creates an authenticated GitHub client, or an anonymous one
// when no token is configured
func (s *GitHubLogService) createClient(ctx context.Context) *github.Client {
	if s.token == "" {
		return github.NewClient(nil)
	}
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: s.token},
	)
	tc := oauth2.NewClient(ctx, ts)
	return github.NewClient(tc)
}

// FetchLog retrieves the full commit log via the GitHub API, newest first
func (s *GitHubLogService) FetchLog(ctx context.Context, owner, name string) ([]RawCommit, error) {
	client := s.createClient(ctx)

	var raw []RawCommit
	opts := &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: s.pageSize},
	}

	for {
		commits, resp, err := client.Repositories.ListCommits(ctx, owner, name, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: list commits: %v", ErrHistoryUnavailable, err)
		}

		for _, c := range commits {
			rc, err := s.fetchCommitDetail(ctx, client, owner, name, c.GetSHA())
			if err != nil {
				return nil, err
			}
			raw = append(raw, rc)
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	logger.WithComponent("gitlog").Infof("fetched %d commits for %s/%s via GitHub API", len(raw), owner, name)
	return raw, nil
}

// fetchCommitDetail loads file-level stats for one commit
func (s *GitHubLogService) fetchCommitDetail(ctx context.Context, client *github.Client, owner, name, sha string) (RawCommit, error) {
	detail, _, err := client.Repositories.GetCommit(ctx, owner, name, sha, nil)
	if err != nil {
		return RawCommit{}, fmt.Errorf("%w: get commit %s: %v", ErrHistoryUnavailable, sha, err)
	}

	rc := RawCommit{
		SHA:     detail.GetSHA(),
		Message: detail.GetCommit().GetMessage(),
	}

	if author := detail.GetCommit().GetAuthor(); author != nil {
		rc.AuthorName = author.GetName()
		rc.AuthorEmail = author.GetEmail()
		rc.Timestamp = author.GetDate().Time.UTC()
	}

	for _, parent := range detail.Parents {
		rc.Parents = append(rc.Parents, parent.GetSHA())
	}

	for _, f := range detail.Files {
		change := RawFileChange{
			Path:      f.GetFilename(),
			Kind:      normalizeGitHubStatus(f.GetStatus()),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
		}
		if f.GetPreviousFilename() != "" {
			change.OldPath = f.GetPreviousFilename()
			change.Kind = "renamed"
		}
		rc.Files = append(rc.Files, change)
	}

	return rc, nil
}

// ManifestPatch returns the patch hunk GitHub serves for one file in one
// commit. Empty patches (binary or oversized files) are not an error.
func (s *GitHubLogService) ManifestPatch(ctx context.Context, owner, name, sha, path string) (string, error) {
	client := s.createClient(ctx)
	detail, _, err := client.Repositories.GetCommit(ctx, owner, name, sha, nil)
	if err != nil {
		return "", fmt.Errorf("get commit %s: %w", sha, err)
	}
	for _, f := range detail.Files {
		if f.GetFilename() == path {
			return f.GetPatch(), nil
		}
	}
	return "", nil
}

func normalizeGitHubStatus(status string) string {
	switch status {
	case "added", "modified", "renamed":
		return status
	case "removed":
		return "deleted"
	case "copied":
		return "added"
	default:
		return "modified"
	}
}
