package git

import (
	"context"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ShayCichocki/council/internal/exec"
)

// DefaultContextTimeout bounds each diagnostic query made by Context.
const DefaultContextTimeout = 4 * time.Second

// ExecRunner implements Runner by invoking the git binary through an
// exec.CommandRunner.
type ExecRunner struct {
	repoPath       string
	cmd            exec.CommandRunner
	contextTimeout time.Duration
}

// NewRunner creates a new git runner for the repository at the given path.
// A nil command runner uses the real os/exec implementation.
func NewRunner(repoPath string, cmd exec.CommandRunner) *ExecRunner {
	if cmd == nil {
		cmd = exec.NewRunner()
	}
	return &ExecRunner{
		repoPath:       repoPath,
		cmd:            cmd,
		contextTimeout: DefaultContextTimeout,
	}
}

// SetContextTimeout changes the per-command timeout used by Context.
func (r *ExecRunner) SetContextTimeout(d time.Duration) {
	if d > 0 {
		r.contextTimeout = d
	}
}

// run executes a git command and returns its trimmed stdout.
func (r *ExecRunner) run(ctx context.Context, args ...string) (string, error) {
	res, err := r.cmd.Run(ctx, r.repoPath, "git", args...)
	if err != nil {
		ve := &VcsError{Args: args, Err: err}
		if res != nil {
			ve.ExitCode, ve.Stdout, ve.Stderr = res.ExitCode, res.Stdout, res.Stderr
		}
		return "", ve
	}
	if res.ExitCode != 0 {
		return "", &VcsError{Args: args, ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
	}
	return strings.TrimSpace(res.Stdout), nil
}

// CurrentBranch returns the name of the current branch, or "" on failure.
func (r *ExecRunner) CurrentBranch(ctx context.Context) string {
	out, err := r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return ""
	}
	return out
}

// BranchExists returns true if the branch exists.
func (r *ExecRunner) BranchExists(ctx context.Context, name string) (bool, error) {
	res, err := r.cmd.Run(ctx, r.repoPath, "git", "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	if err != nil {
		return false, &VcsError{Args: []string{"show-ref", "--verify", "--quiet", "refs/heads/" + name}, Err: err}
	}
	switch res.ExitCode {
	case 0:
		return true, nil
	case 1:
		// Exit code 1 means the ref is missing
		return false, nil
	default:
		return false, &VcsError{
			Args:     []string{"show-ref", "--verify", "--quiet", "refs/heads/" + name},
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
	}
}

// CreateUniqueBranch creates and checks out name, appending -2, -3, ...
// until an unused name is found.
func (r *ExecRunner) CreateUniqueBranch(ctx context.Context, name string) (string, error) {
	candidate := name
	for suffix := 2; ; suffix++ {
		exists, err := r.BranchExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			break
		}
		candidate = name + "-" + strconv.Itoa(suffix)
	}

	if _, err := r.run(ctx, "checkout", "-b", candidate); err != nil {
		return "", err
	}
	return candidate, nil
}

// Status returns the output of git status --porcelain.
func (r *ExecRunner) Status(ctx context.Context, paths ...string) (string, error) {
	args := []string{"status", "--porcelain"}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}
	return r.run(ctx, args...)
}

// CommitPaths stages and commits the given paths, or everything when paths
// is empty. The status check runs first so an empty change set never reaches
// add or commit.
func (r *ExecRunner) CommitPaths(ctx context.Context, message string, paths []string) error {
	status, err := r.Status(ctx, paths...)
	if err != nil {
		return err
	}
	if status == "" {
		return ErrNothingToCommit
	}

	addArgs := []string{"add", "-A"}
	if len(paths) > 0 {
		addArgs = append([]string{"add", "--"}, paths...)
	}
	if _, err := r.run(ctx, addArgs...); err != nil {
		return err
	}

	_, err = r.run(ctx, "commit", "-m", message)
	return err
}

// ApplyPatch writes diff to a temporary file and runs git apply on it.
// The temporary file is removed whether or not the apply succeeds.
func (r *ExecRunner) ApplyPatch(ctx context.Context, diff string) error {
	f, err := os.CreateTemp("", "council-*.patch")
	if err != nil {
		return &VcsError{Args: []string{"apply"}, Err: err}
	}
	patchPath := f.Name()
	defer os.Remove(patchPath)

	if !strings.HasSuffix(diff, "\n") {
		diff += "\n"
	}
	if _, err := f.WriteString(diff); err != nil {
		f.Close()
		return &VcsError{Args: []string{"apply", patchPath}, Err: err}
	}
	if err := f.Close(); err != nil {
		return &VcsError{Args: []string{"apply", patchPath}, Err: err}
	}

	_, err = r.run(ctx, "apply", patchPath)
	return err
}

// CleanupMergedBranches deletes branches under prefix that are merged into
// base, keeping the newest keep by commit date. Unmerged branches are never
// touched and deletion uses the safe -d form. Any git failure while listing
// yields an empty result.
func (r *ExecRunner) CleanupMergedBranches(ctx context.Context, keep int, base, prefix string) []string {
	deleted := []string{}
	for _, name := range r.StaleMergedBranches(ctx, keep, base, prefix) {
		if _, err := r.run(ctx, "branch", "-d", name); err != nil {
			continue
		}
		deleted = append(deleted, name)
	}
	return deleted
}

// StaleMergedBranches lists the branches CleanupMergedBranches would
// delete, newest first.
func (r *ExecRunner) StaleMergedBranches(ctx context.Context, keep int, base, prefix string) []string {
	merged, err := r.run(ctx, "branch", "--merged", base)
	if err != nil {
		return []string{}
	}

	var candidates []string
	for _, line := range strings.Split(merged, "\n") {
		name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "* "))
		if name != "" && strings.HasPrefix(name, prefix) {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return []string{}
	}

	refs, err := r.run(ctx, "for-each-ref", "--format=%(refname:short)|%(committerdate:iso-strict)", "refs/heads/"+prefix)
	if err != nil {
		return []string{}
	}
	dates := parseRefDates(refs)

	sort.SliceStable(candidates, func(i, j int) bool {
		return dates[candidates[i]].After(dates[candidates[j]])
	})

	if keep < 0 {
		keep = 0
	}
	if keep >= len(candidates) {
		return []string{}
	}
	return candidates[keep:]
}

// parseRefDates parses "name|date" lines from for-each-ref.
func parseRefDates(out string) map[string]time.Time {
	dates := make(map[string]time.Time)
	for _, line := range strings.Split(out, "\n") {
		name, date, ok := strings.Cut(strings.TrimSpace(line), "|")
		if !ok {
			continue
		}
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(date))
		if err != nil {
			continue
		}
		dates[name] = t
	}
	return dates
}

// Context gathers branch, status, diff stat and the last commit. Each query
// has its own timeout; failures leave the value empty.
func (r *ExecRunner) Context(ctx context.Context) map[string]string {
	queries := []struct {
		key  string
		args []string
	}{
		{"branch", []string{"rev-parse", "--abbrev-ref", "HEAD"}},
		{"status", []string{"status", "--porcelain"}},
		{"diff_stat", []string{"diff", "--stat"}},
		{"last_commit", []string{"log", "-1", "--pretty=%h %s"}},
	}

	out := make(map[string]string, len(queries))
	for _, q := range queries {
		qctx, cancel := context.WithTimeout(ctx, r.contextTimeout)
		value, err := r.run(qctx, q.args...)
		cancel()
		if err != nil {
			value = ""
		}
		out[q.key] = value
	}
	return out
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
