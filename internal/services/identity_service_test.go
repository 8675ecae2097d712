package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronolens/chronolens/internal/models"
)

func authoredCommit(name, email string) *models.Commit {
	c := models.NewCommit("repo-1", "sha", "msg", name, email, time.Now())
	return c
}

func TestIdentityServiceResolve(t *testing.T) {
	service := NewIdentityService()

	tests := []struct {
		name            string
		authors         [][2]string // name, email
		expectedCount   int
		sameIdentity    [][2]int // pairs of author indexes expected to share a key
		splitIdentities [][2]int // pairs expected NOT to share a key
	}{
		{
			name: "same email different display names merge",
			authors: [][2]string{
				{"Jane Doe", "jane@example.com"},
				{"jdoe", "JANE@example.com"},
			},
			expectedCount: 1,
			sameIdentity:  [][2]int{{0, 1}},
		},
		{
			name: "different emails and names stay split",
			authors: [][2]string{
				{"Jane Doe", "jane@example.com"},
				{"Bob Smith", "bob@example.com"},
			},
			expectedCount:   2,
			splitIdentities: [][2]int{{0, 1}},
		},
		{
			name: "same display name across two emails merges",
			authors: [][2]string{
				{"Jane Doe", "jane@work.example"},
				{"Jane Doe", "jane@home.example"},
			},
			expectedCount: 1,
			sameIdentity:  [][2]int{{0, 1}},
		},
		{
			name: "name shared by three emails is ambiguous and never merges",
			authors: [][2]string{
				{"Alex Kim", "alex@a.example"},
				{"Alex Kim", "alex@b.example"},
				{"Alex Kim", "alex@c.example"},
			},
			expectedCount:   3,
			splitIdentities: [][2]int{{0, 1}, {1, 2}, {0, 2}},
		},
		{
			name: "malformed author maps to the unknown sentinel",
			authors: [][2]string{
				{"", ""},
				{"  ", "not-an-email"},
			},
			expectedCount: 1,
			sameIdentity:  [][2]int{{0, 1}},
		},
		{
			name: "nameless alias with valid email keeps its own identity",
			authors: [][2]string{
				{"", "ci@example.com"},
				{"Jane Doe", "jane@example.com"},
			},
			expectedCount:   2,
			splitIdentities: [][2]int{{0, 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commits := make([]*models.Commit, len(tt.authors))
			for i, a := range tt.authors {
				commits[i] = authoredCommit(a[0], a[1])
			}

			resolution := service.Resolve(commits)
			assert.Len(t, resolution.Identities, tt.expectedCount)

			for _, pair := range tt.sameIdentity {
				assert.Equal(t, commits[pair[0]].IdentityKey, commits[pair[1]].IdentityKey,
					"authors %v and %v should merge", tt.authors[pair[0]], tt.authors[pair[1]])
			}
			for _, pair := range tt.splitIdentities {
				assert.NotEqual(t, commits[pair[0]].IdentityKey, commits[pair[1]].IdentityKey,
					"authors %v and %v should not merge", tt.authors[pair[0]], tt.authors[pair[1]])
			}
		})
	}
}

func TestIdentityServiceResolveIsDeterministic(t *testing.T) {
	service := NewIdentityService()

	forward := []*models.Commit{
		authoredCommit("Jane Doe", "jane@work.example"),
		authoredCommit("Jane Doe", "jane@home.example"),
		authoredCommit("Bob Smith", "bob@example.com"),
	}
	reversed := []*models.Commit{
		authoredCommit("Bob Smith", "bob@example.com"),
		authoredCommit("Jane Doe", "jane@home.example"),
		authoredCommit("Jane Doe", "jane@work.example"),
	}

	a := service.Resolve(forward)
	b := service.Resolve(reversed)

	require.Equal(t, len(a.Identities), len(b.Identities))
	for i := range a.Identities {
		assert.Equal(t, a.Identities[i].Key, b.Identities[i].Key)
	}
	assert.Equal(t, a.KeyFor("Jane Doe", "jane@work.example"), b.KeyFor("Jane Doe", "jane@home.example"))
}

func TestIdentityServiceUnknownSentinel(t *testing.T) {
	service := NewIdentityService()
	resolution := service.Resolve([]*models.Commit{authoredCommit("", "")})

	require.Len(t, resolution.Identities, 1)
	assert.Equal(t, models.UnknownIdentityKey, resolution.Identities[0].Key)
	assert.Equal(t, models.UnknownIdentityKey, resolution.KeyFor("Someone", "never@seen.example"))
}
