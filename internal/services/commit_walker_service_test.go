package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronolens/chronolens/internal/models"
)

func TestWalkNormalizesToOldestFirst(t *testing.T) {
	// provider emits newest first, as git log does
	walker := NewCommitWalkerService(&stubLogProvider{raw: sampleRawHistory()}, 0)

	result, err := walker.Walk(context.Background(), "repo-1", "acme", "widgets")
	require.NoError(t, err)
	require.Len(t, result.Commits, 3)

	assert.Equal(t, "c1", result.Commits[0].SHA)
	assert.Equal(t, "c2", result.Commits[1].SHA)
	assert.Equal(t, "c3", result.Commits[2].SHA)
	assert.Equal(t, "c3", result.HeadSHA)
	assert.False(t, result.Truncated)

	for i := 1; i < len(result.Commits); i++ {
		assert.False(t, result.Commits[i].CommitDate.Before(result.Commits[i-1].CommitDate))
	}
}

func TestWalkTruncatesOversizedHistory(t *testing.T) {
	walker := NewCommitWalkerService(&stubLogProvider{raw: sampleRawHistory()}, 2)

	result, err := walker.Walk(context.Background(), "repo-1", "acme", "widgets")
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	require.Len(t, result.Commits, 2)
	assert.Equal(t, "c1", result.Commits[0].SHA)
	assert.Equal(t, "c2", result.HeadSHA)
}

func TestWalkFlagsMergeCommits(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	raw := []RawCommit{
		{SHA: "m1", Parents: []string{"a", "b"}, AuthorName: "Alice", AuthorEmail: "alice@example.com",
			Timestamp: base.AddDate(0, 0, 1), Message: "Merge branch 'feature'"},
		{SHA: "a1", Parents: []string{"p"}, AuthorName: "Alice", AuthorEmail: "alice@example.com",
			Timestamp: base, Message: "feat: thing"},
	}
	walker := NewCommitWalkerService(&stubLogProvider{raw: raw}, 0)

	result, err := walker.Walk(context.Background(), "repo-1", "acme", "widgets")
	require.NoError(t, err)
	require.Len(t, result.Commits, 2)
	assert.False(t, result.Commits[0].IsMergeCommit)
	assert.True(t, result.Commits[1].IsMergeCommit)
}

func TestWalkMapsRenames(t *testing.T) {
	raw := []RawCommit{
		{SHA: "r1", AuthorName: "Alice", AuthorEmail: "alice@example.com",
			Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), Message: "move",
			Files: []RawFileChange{{Path: "new/path.go", OldPath: "old/path.go", Kind: "renamed", Additions: 1, Deletions: 1}}},
	}
	walker := NewCommitWalkerService(&stubLogProvider{raw: raw}, 0)

	result, err := walker.Walk(context.Background(), "repo-1", "acme", "widgets")
	require.NoError(t, err)
	require.Len(t, result.Commits[0].Files, 1)

	file := result.Commits[0].Files[0]
	assert.Equal(t, models.ChangeTypeRenamed, file.ChangeType)
	assert.Equal(t, "old/path.go", file.OldPath)
	assert.True(t, file.IsRename())
}

func TestWalkPropagatesProviderFailure(t *testing.T) {
	walker := NewCommitWalkerService(&stubLogProvider{err: ErrHistoryUnavailable}, 0)

	_, err := walker.Walk(context.Background(), "repo-1", "acme", "widgets")
	assert.ErrorIs(t, err, ErrHistoryUnavailable)
}

func TestWalkAccumulatesCommitTotals(t *testing.T) {
	raw := []RawCommit{
		{SHA: "t1", AuthorName: "Alice", AuthorEmail: "alice@example.com",
			Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), Message: "two files",
			Files: []RawFileChange{
				{Path: "a.go", Kind: "added", Additions: 10},
				{Path: "b.go", Kind: "modified", Additions: 5, Deletions: 3},
			}},
	}
	walker := NewCommitWalkerService(&stubLogProvider{raw: raw}, 0)

	result, err := walker.Walk(context.Background(), "repo-1", "acme", "widgets")
	require.NoError(t, err)

	commit := result.Commits[0]
	assert.Equal(t, 15, commit.Additions)
	assert.Equal(t, 3, commit.Deletions)
	assert.Equal(t, "repo-1", commit.RepositoryID)
}
