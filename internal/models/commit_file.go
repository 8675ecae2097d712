package models

import (
	"time"

	"github.com/google/uuid"
)

// ChangeType represents the kind of change a commit applied to a file
type ChangeType string

const (
	ChangeTypeAdded    ChangeType = "added"
	ChangeTypeModified ChangeType = "modified"
	ChangeTypeDeleted  ChangeType = "deleted"
	ChangeTypeRenamed  ChangeType = "renamed"
)

// CommitFile represents a single file change within a commit
type CommitFile struct {
	ID         string     `json:"id"`
	CommitID   string     `json:"commit_id"`
	Path       string     `json:"path"`
	OldPath    string     `json:"old_path,omitempty"` // set for renames
	ChangeType ChangeType `json:"change_type"`
	Additions  int        `json:"additions"`
	Deletions  int        `json:"deletions"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewCommitFile creates a new CommitFile with a generated UUID
func NewCommitFile(path string, changeType ChangeType, additions, deletions int) *CommitFile {
	return &CommitFile{
		ID:         uuid.New().String(),
		Path:       path,
		ChangeType: changeType,
		Additions:  additions,
		Deletions:  deletions,
	}
}

// IsRename checks whether this change moved the file to a new path
func (cf *CommitFile) IsRename() bool {
	return cf.ChangeType == ChangeTypeRenamed && cf.OldPath != "" && cf.OldPath != cf.Path
}
