package services

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chronolens/chronolens/pkg/logger"
)

// commitHeaderPrefix marks the start of a commit record in git log output
const commitHeaderPrefix = "\x01"

// GitLogService is the local-clone commit-log provider. It clones (or pulls)
// the repository under a base path and parses `git log` numstat/name-status
// output into raw commit tuples.
type GitLogService struct {
	cloneBasePath string
}

// NewGitLogService creates a new git log service
func NewGitLogService(cloneBasePath string) *GitLogService {
	return &GitLogService{cloneBasePath: cloneBasePath}
}

// ClonePath returns the working directory used for a repository
func (s *GitLogService) ClonePath(owner, name string) string {
	return filepath.Join(s.cloneBasePath, owner, name)
}

// CloneOrUpdate clones the repository if absent, otherwise pulls
func (s *GitLogService) CloneOrUpdate(ctx context.Context, owner, name, url string) error {
	repoPath := s.ClonePath(owner, name)

	if s.isRepositoryCloned(repoPath) {
		cmd := exec.CommandContext(ctx, "git", "-C", repoPath, "pull", "--ff-only")
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%w: git pull: %s", ErrHistoryUnavailable, strings.TrimSpace(string(out)))
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(repoPath), 0755); err != nil {
		return fmt.Errorf("failed to create clone directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", url, repoPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		// Clean up failed clone
		os.RemoveAll(repoPath)
		return fmt.Errorf("%w: git clone: %s", ErrHistoryUnavailable, strings.TrimSpace(string(out)))
	}

	return nil
}

// FetchLog parses the repository history into raw commits, newest first as
// git emits them. Merge diffs are taken against the first parent.
func (s *GitLogService) FetchLog(ctx context.Context, owner, name string) ([]RawCommit, error) {
	repoPath := s.ClonePath(owner, name)
	if !s.isRepositoryCloned(repoPath) {
		return nil, fmt.Errorf("%w: repository not cloned at %s", ErrHistoryUnavailable, repoPath)
	}

	format := commitHeaderPrefix + "%H\x02%P\x02%an\x02%ae\x02%at\x02%s"
	cmd := exec.CommandContext(ctx, "git", "-C", repoPath, "log",
		"--numstat", "--name-status", "-M",
		"--diff-merges=first-parent",
		"--pretty=format:"+format,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: git log: %v", ErrHistoryUnavailable, err)
	}

	commits, err := parseGitLog(string(out))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}

	logger.WithComponent("gitlog").Infof("fetched %d commits for %s/%s", len(commits), owner, name)
	return commits, nil
}

// ListFiles returns the current tracked file list of the clone
func (s *GitLogService) ListFiles(owner, name string) ([]string, error) {
	repoPath := s.ClonePath(owner, name)
	cmd := exec.Command("git", "-C", repoPath, "ls-files")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var files []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			files = append(files, line)
		}
	}
	return files, scanner.Err()
}

// ReadFile reads up to maxBytes of a tracked file from the clone
func (s *GitLogService) ReadFile(owner, name, path string, maxBytes int) (string, error) {
	full := filepath.Join(s.ClonePath(owner, name), filepath.Clean(path))
	f, err := os.Open(full)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, maxBytes)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "", err
	}
	return string(buf[:n]), nil
}

// ManifestPatch returns the unified diff of one file in one commit, taken
// against the first parent so merge commits do not double-report.
func (s *GitLogService) ManifestPatch(ctx context.Context, owner, name, sha, path string) (string, error) {
	repoPath := s.ClonePath(owner, name)
	cmd := exec.CommandContext(ctx, "git", "-C", repoPath, "show",
		"--diff-merges=first-parent", "--pretty=format:", "--unified=0", sha, "--", path)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git show %s -- %s: %w", sha, path, err)
	}
	return string(out), nil
}

// isRepositoryCloned checks if a repository is already cloned
func (s *GitLogService) isRepositoryCloned(repoPath string) bool {
	gitDir := filepath.Join(repoPath, ".git")
	info, err := os.Stat(gitDir)
	return err == nil && info.IsDir()
}

// parseGitLog turns combined numstat/name-status log output into raw commits
func parseGitLog(out string) ([]RawCommit, error) {
	var commits []RawCommit

	records := strings.Split(out, commitHeaderPrefix)
	for _, record := range records {
		if strings.TrimSpace(record) == "" {
			continue
		}

		lines := strings.Split(record, "\n")
		header := strings.Split(lines[0], "\x02")
		if len(header) != 6 {
			return nil, fmt.Errorf("malformed commit header: %q", lines[0])
		}

		unix, err := strconv.ParseInt(header[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed commit timestamp: %q", header[4])
		}

		commit := RawCommit{
			SHA:         header[0],
			AuthorName:  header[2],
			AuthorEmail: header[3],
			Timestamp:   time.Unix(unix, 0).UTC(),
			Message:     header[5],
		}
		if parents := strings.Fields(header[1]); len(parents) > 0 {
			commit.Parents = parents
		}

		counts := make(map[string][2]int)
		var order []string
		kinds := make(map[string]string)
		oldPaths := make(map[string]string)

		for _, line := range lines[1:] {
			line = strings.TrimRight(line, "\r")
			if line == "" {
				continue
			}

			if adds, dels, path, oldPath, ok := parseNumstatLine(line); ok {
				if _, seen := counts[path]; !seen {
					order = append(order, path)
				}
				counts[path] = [2]int{adds, dels}
				if oldPath != "" {
					oldPaths[path] = oldPath
				}
				continue
			}

			if kind, path, oldPath, ok := parseNameStatusLine(line); ok {
				kinds[path] = kind
				if oldPath != "" {
					oldPaths[path] = oldPath
				}
			}
		}

		for _, path := range order {
			c := counts[path]
			kind := kinds[path]
			if kind == "" {
				kind = "modified"
			}
			commit.Files = append(commit.Files, RawFileChange{
				Path:      path,
				OldPath:   oldPaths[path],
				Kind:      kind,
				Additions: c[0],
				Deletions: c[1],
			})
		}

		commits = append(commits, commit)
	}

	return commits, nil
}

// parseNumstatLine parses "adds<TAB>dels<TAB>path" including rename forms.
// Binary files report "-" counts and are kept with zero lines.
func parseNumstatLine(line string) (adds, dels int, path, oldPath string, ok bool) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 {
		return 0, 0, "", "", false
	}

	adds, okA := parseNumstatCount(parts[0])
	dels, okD := parseNumstatCount(parts[1])
	if !okA || !okD {
		return 0, 0, "", "", false
	}

	oldPath, path = parseRenamePath(parts[2])
	return adds, dels, path, oldPath, true
}

func parseNumstatCount(s string) (int, bool) {
	if s == "-" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseNameStatusLine parses "M<TAB>path" or "R100<TAB>old<TAB>new" lines
func parseNameStatusLine(line string) (kind, path, oldPath string, ok bool) {
	parts := strings.Split(line, "\t")
	if len(parts) < 2 || parts[0] == "" {
		return "", "", "", false
	}

	switch parts[0][0] {
	case 'A':
		return "added", parts[1], "", true
	case 'D':
		return "deleted", parts[1], "", true
	case 'M':
		return "modified", parts[1], "", true
	case 'R':
		if len(parts) == 3 {
			return "renamed", parts[2], parts[1], true
		}
	case 'C':
		if len(parts) == 3 {
			return "added", parts[2], "", true
		}
	}

	return "", "", "", false
}

// parseRenamePath handles the numstat rename forms "old => new" and
// "prefix/{old => new}/suffix". Returns empty oldPath for plain paths.
func parseRenamePath(field string) (oldPath, newPath string) {
	if open := strings.Index(field, "{"); open >= 0 {
		if close := strings.Index(field[open:], "}"); close >= 0 {
			inner := field[open+1 : open+close]
			if arrow := strings.Index(inner, " => "); arrow >= 0 {
				prefix := field[:open]
				suffix := field[open+close+1:]
				oldPath = cleanJoined(prefix + inner[:arrow] + suffix)
				newPath = cleanJoined(prefix + inner[arrow+4:] + suffix)
				return oldPath, newPath
			}
		}
	}

	if arrow := strings.Index(field, " => "); arrow >= 0 {
		return field[:arrow], field[arrow+4:]
	}

	return "", field
}

// cleanJoined collapses the stray slash left by an empty brace side
func cleanJoined(p string) string {
	p = strings.ReplaceAll(p, "//", "/")
	return strings.TrimPrefix(p, "/")
}
