package services

import (
	"context"
	"time"
)

// RawFileChange is one file-level diff stat as reported by a provider
type RawFileChange struct {
	Path      string
	OldPath   string // set when the change is a rename
	Kind      string // "added", "modified", "deleted", "renamed"
	Additions int
	Deletions int
}

// RawCommit is the provider-level commit tuple before normalization
type RawCommit struct {
	SHA         string
	Parents     []string
	AuthorName  string
	AuthorEmail string
	Timestamp   time.Time
	Message     string
	Files       []RawFileChange
}

// CommitLogProvider produces the raw commit log of a repository. Order may be
// oldest-first or newest-first; the commit walker normalizes it. Diffs for
// merge commits must be computed against the first parent only.
//
// Implementations: GitLogService (local clone + git CLI) and
// GitHubLogService (REST API). Failures map to ErrHistoryUnavailable.
type CommitLogProvider interface {
	FetchLog(ctx context.Context, owner, name string) ([]RawCommit, error)
}

// FileContentLister exposes the current file tree of an analyzed repository
// for retrieval-context assembly. Optional; the GitHub provider does not
// implement it.
type FileContentLister interface {
	ListFiles(owner, name string) ([]string, error)
	ReadFile(owner, name, path string, maxBytes int) (string, error)
}
