package models

import (
	"time"

	"github.com/google/uuid"
)

// Commit represents a normalized Git commit record. Immutable once produced
// by the commit walker; the SHA is the natural key.
type Commit struct {
	ID            string    `json:"id"`
	RepositoryID  string    `json:"repository_id"`
	SHA           string    `json:"sha"`
	Message       string    `json:"message"`
	AuthorName    string    `json:"author_name"`
	AuthorEmail   string    `json:"author_email"`
	IdentityKey   string    `json:"identity_key"`
	CommitDate    time.Time `json:"commit_date"`
	IsMergeCommit bool      `json:"is_merge_commit"`
	Additions     int       `json:"additions"`
	Deletions     int       `json:"deletions"`
	CreatedAt     time.Time `json:"created_at"`

	// Files is the ordered list of changes carried with the commit during
	// analysis; persisted separately in commit_files.
	Files []*CommitFile `json:"files,omitempty"`
}

// NewCommit creates a new Commit with a generated UUID
func NewCommit(repositoryID, sha, message, authorName, authorEmail string, commitDate time.Time) *Commit {
	return &Commit{
		ID:           uuid.New().String(),
		RepositoryID: repositoryID,
		SHA:          sha,
		Message:      message,
		AuthorName:   authorName,
		AuthorEmail:  authorEmail,
		CommitDate:   commitDate,
	}
}

// AddFile appends a file change and updates the commit totals
func (c *Commit) AddFile(file *CommitFile) {
	file.CommitID = c.ID
	c.Files = append(c.Files, file)
	c.Additions += file.Additions
	c.Deletions += file.Deletions
}
