package models

import "time"

// OwnerShare is one identity's cumulative stake in a file
type OwnerShare struct {
	IdentityKey string    `json:"identity_key"`
	Lines       float64   `json:"lines"`
	Percentage  float64   `json:"percentage"`
	Commits     int       `json:"commits"`
	FirstTouch  time.Time `json:"first_touch"`
	LastTouch   time.Time `json:"last_touch"`
}

// FileOwnership is the cumulative ownership state for one file path.
// Shares always sum to 100% within a small epsilon. Deleted files keep
// their state frozen for historical queries.
type FileOwnership struct {
	Path       string                 `json:"path"`
	Shares     map[string]*OwnerShare `json:"shares"`
	TotalLines float64                `json:"total_lines"`
	Deleted    bool                   `json:"deleted"`
	CreatedAt  time.Time              `json:"created_at"`
	LastTouch  time.Time              `json:"last_touch"`
}

// NewFileOwnership creates an empty ownership bucket for a path
func NewFileOwnership(path string, at time.Time) *FileOwnership {
	return &FileOwnership{
		Path:      path,
		Shares:    make(map[string]*OwnerShare),
		CreatedAt: at,
		LastTouch: at,
	}
}

// OwnershipBreakdown is the per-file view handed to callers,
// sorted by percentage descending.
type OwnershipBreakdown struct {
	Path      string        `json:"path"`
	Current   bool          `json:"current"`   // false when resolved via lineage or frozen state
	LivePath  string        `json:"live_path"` // final path after rename chain, if different
	Deleted   bool          `json:"deleted"`
	Owners    []*OwnerShare `json:"owners"`
	LastTouch time.Time     `json:"last_touch"`
}

// ContributorStat is one identity's aggregate over the whole repository
type ContributorStat struct {
	IdentityKey string    `json:"identity_key"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Commits     int       `json:"commits"`
	Additions   int       `json:"additions"`
	Deletions   int       `json:"deletions"`
	Percentage  float64   `json:"percentage"` // share of commits
	LinesOwned  float64   `json:"lines_owned"`
	FirstCommit time.Time `json:"first_commit"`
	LastCommit  time.Time `json:"last_commit"`
}
