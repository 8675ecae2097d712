package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisStatus represents the lifecycle state of a repository analysis
type AnalysisStatus string

const (
	AnalysisStatusPending   AnalysisStatus = "pending"
	AnalysisStatusCloning   AnalysisStatus = "cloning"
	AnalysisStatusMining    AnalysisStatus = "mining"
	AnalysisStatusAnalyzing AnalysisStatus = "analyzing"
	AnalysisStatusCompleted AnalysisStatus = "completed"
	AnalysisStatusFailed    AnalysisStatus = "failed"
)

// RepositorySnapshot identifies a repository at a specific analyzed state.
// There is exactly one snapshot per repository; a re-analysis replaces its
// fields wholesale. Only the orchestrator may transition Status.
type RepositorySnapshot struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Owner          string         `json:"owner"`
	URL            string         `json:"url"`
	Status         AnalysisStatus `json:"status"`
	LastCommitSHA  string         `json:"last_commit_sha"`
	TotalCommits   int            `json:"total_commits"`
	TotalFiles     int            `json:"total_files"`
	TotalAuthors   int            `json:"total_authors"`
	Truncated      bool           `json:"truncated"`
	ErrorMessage   *string        `json:"error_message"`
	LastAnalyzedAt *time.Time     `json:"last_analyzed_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewRepositorySnapshot creates a pending snapshot with a generated UUID
func NewRepositorySnapshot(owner, name, url string) *RepositorySnapshot {
	now := time.Now()
	return &RepositorySnapshot{
		ID:        uuid.New().String(),
		Name:      name,
		Owner:     owner,
		URL:       url,
		Status:    AnalysisStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsCompleted checks if the latest analysis finished successfully
func (r *RepositorySnapshot) IsCompleted() bool {
	return r.Status == AnalysisStatusCompleted
}

// MarkCompleted records a successful run against the given head commit
func (r *RepositorySnapshot) MarkCompleted(headSHA string, commits, files, authors int, truncated bool) {
	now := time.Now()
	r.Status = AnalysisStatusCompleted
	r.LastCommitSHA = headSHA
	r.TotalCommits = commits
	r.TotalFiles = files
	r.TotalAuthors = authors
	r.Truncated = truncated
	r.ErrorMessage = nil
	r.LastAnalyzedAt = &now
	r.UpdatedAt = now
}

// MarkFailed records a failed run with its error message
func (r *RepositorySnapshot) MarkFailed(message string) {
	r.Status = AnalysisStatusFailed
	r.ErrorMessage = &message
	r.UpdatedAt = time.Now()
}

// Clone returns a copy for readers outside the orchestrator
func (r *RepositorySnapshot) Clone() *RepositorySnapshot {
	cp := *r
	if r.ErrorMessage != nil {
		msg := *r.ErrorMessage
		cp.ErrorMessage = &msg
	}
	if r.LastAnalyzedAt != nil {
		at := *r.LastAnalyzedAt
		cp.LastAnalyzedAt = &at
	}
	return &cp
}
