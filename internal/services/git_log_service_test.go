package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logRecord(header string, lines ...string) string {
	out := commitHeaderPrefix + header
	for _, l := range lines {
		out += "\n" + l
	}
	return out + "\n"
}

func TestParseGitLogMultipleCommits(t *testing.T) {
	out := logRecord("aaa111\x02\x02Alice\x02alice@example.com\x021714550400\x02initial commit",
		"10\t0\tmain.go",
		"A\tmain.go",
	) + logRecord("bbb222\x02aaa111\x02Bob\x02bob@example.com\x021714636800\x02fix: handle nil input",
		"3\t1\tmain.go",
		"2\t0\tutil.go",
		"M\tmain.go",
		"A\tutil.go",
	)

	commits, err := parseGitLog(out)
	require.NoError(t, err)
	require.Len(t, commits, 2)

	first := commits[0]
	assert.Equal(t, "aaa111", first.SHA)
	assert.Empty(t, first.Parents)
	assert.Equal(t, "Alice", first.AuthorName)
	assert.Equal(t, "alice@example.com", first.AuthorEmail)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), first.Timestamp)
	assert.Equal(t, "initial commit", first.Message)
	require.Len(t, first.Files, 1)
	assert.Equal(t, "added", first.Files[0].Kind)
	assert.Equal(t, 10, first.Files[0].Additions)

	second := commits[1]
	assert.Equal(t, []string{"aaa111"}, second.Parents)
	require.Len(t, second.Files, 2)
	assert.Equal(t, "main.go", second.Files[0].Path)
	assert.Equal(t, "modified", second.Files[0].Kind)
	assert.Equal(t, 3, second.Files[0].Additions)
	assert.Equal(t, 1, second.Files[0].Deletions)
	assert.Equal(t, "util.go", second.Files[1].Path)
	assert.Equal(t, "added", second.Files[1].Kind)
}

func TestParseGitLogMergeCommitParents(t *testing.T) {
	out := logRecord("ccc333\x02aaa111 bbb222\x02Alice\x02alice@example.com\x021714723200\x02Merge branch 'feature'")

	commits, err := parseGitLog(out)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, []string{"aaa111", "bbb222"}, commits[0].Parents)
	assert.Empty(t, commits[0].Files)
}

func TestParseGitLogRename(t *testing.T) {
	out := logRecord("ddd444\x02ccc333\x02Bob\x02bob@example.com\x021714809600\x02restructure packages",
		"1\t1\tinternal/{handlers => api}/routes.go",
		"R095\tinternal/handlers/routes.go\tinternal/api/routes.go",
	)

	commits, err := parseGitLog(out)
	require.NoError(t, err)
	require.Len(t, commits[0].Files, 1)

	file := commits[0].Files[0]
	assert.Equal(t, "internal/api/routes.go", file.Path)
	assert.Equal(t, "internal/handlers/routes.go", file.OldPath)
	assert.Equal(t, "renamed", file.Kind)
}

func TestParseGitLogBinaryCounts(t *testing.T) {
	out := logRecord("eee555\x02ddd444\x02Alice\x02alice@example.com\x021714896000\x02add logo",
		"-\t-\tassets/logo.png",
		"A\tassets/logo.png",
	)

	commits, err := parseGitLog(out)
	require.NoError(t, err)
	require.Len(t, commits[0].Files, 1)
	assert.Equal(t, 0, commits[0].Files[0].Additions)
	assert.Equal(t, 0, commits[0].Files[0].Deletions)
	assert.Equal(t, "added", commits[0].Files[0].Kind)
}

func TestParseGitLogMissingStatusDefaultsModified(t *testing.T) {
	out := logRecord("fff666\x02eee555\x02Bob\x02bob@example.com\x021714982400\x02tweak",
		"1\t1\tconfig.yaml",
	)

	commits, err := parseGitLog(out)
	require.NoError(t, err)
	require.Len(t, commits[0].Files, 1)
	assert.Equal(t, "modified", commits[0].Files[0].Kind)
}

func TestParseGitLogMalformedHeader(t *testing.T) {
	_, err := parseGitLog(commitHeaderPrefix + "only\x02three\x02fields\n")
	assert.Error(t, err)

	_, err = parseGitLog(commitHeaderPrefix + "sha\x02\x02Alice\x02a@b.com\x02notanumber\x02msg\n")
	assert.Error(t, err)
}

func TestParseNameStatusLine(t *testing.T) {
	tests := []struct {
		line    string
		kind    string
		path    string
		oldPath string
		ok      bool
	}{
		{"A\tnew.go", "added", "new.go", "", true},
		{"D\tgone.go", "deleted", "gone.go", "", true},
		{"M\tchanged.go", "modified", "changed.go", "", true},
		{"R100\told.go\tnew.go", "renamed", "new.go", "old.go", true},
		{"C075\tsrc.go\tcopy.go", "added", "copy.go", "", true},
		{"garbage", "", "", "", false},
		{"", "", "", "", false},
	}

	for _, tt := range tests {
		kind, path, oldPath, ok := parseNameStatusLine(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.kind, kind, tt.line)
		assert.Equal(t, tt.path, path, tt.line)
		assert.Equal(t, tt.oldPath, oldPath, tt.line)
	}
}

func TestParseRenamePath(t *testing.T) {
	tests := []struct {
		field   string
		oldPath string
		newPath string
	}{
		{"plain/path.go", "", "plain/path.go"},
		{"old.txt => new.txt", "old.txt", "new.txt"},
		{"src/{old.go => new.go}", "src/old.go", "src/new.go"},
		{"internal/{handlers => api}/routes.go", "internal/handlers/routes.go", "internal/api/routes.go"},
		{"{ => pkg}/file.go", "file.go", "pkg/file.go"},
		{"{cmd => }/main.go", "cmd/main.go", "main.go"},
	}

	for _, tt := range tests {
		oldPath, newPath := parseRenamePath(tt.field)
		assert.Equal(t, tt.oldPath, oldPath, tt.field)
		assert.Equal(t, tt.newPath, newPath, tt.field)
	}
}
