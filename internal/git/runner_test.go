package git

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/ShayCichocki/council/internal/exec"
)

// scriptedRunner is a CommandRunner that answers git invocations from a
// handler and records every call.
type scriptedRunner struct {
	calls   [][]string
	handler func(args []string) (*exec.Result, error)
}

func (s *scriptedRunner) Run(_ context.Context, _ string, name string, args ...string) (*exec.Result, error) {
	call := append([]string{name}, args...)
	s.calls = append(s.calls, call)
	if s.handler == nil {
		return &exec.Result{}, nil
	}
	return s.handler(args)
}

func (s *scriptedRunner) RunShell(ctx context.Context, workDir string, command string) (*exec.Result, error) {
	return s.Run(ctx, workDir, "sh", "-c", command)
}

func (s *scriptedRunner) called(sub string) bool {
	for _, c := range s.calls {
		if len(c) > 1 && c[1] == sub {
			return true
		}
	}
	return false
}

func ok(stdout string) (*exec.Result, error) {
	return &exec.Result{Stdout: stdout}, nil
}

func TestCreateUniqueBranch_Suffixes(t *testing.T) {
	existing := map[string]bool{"refs/heads/x": true}
	sr := &scriptedRunner{}
	sr.handler = func(args []string) (*exec.Result, error) {
		switch args[0] {
		case "show-ref":
			if existing[args[len(args)-1]] {
				return &exec.Result{}, nil
			}
			return &exec.Result{ExitCode: 1}, nil
		case "checkout":
			existing["refs/heads/"+args[2]] = true
			return ok("")
		}
		t.Fatalf("unexpected git call: %v", args)
		return nil, nil
	}
	r := NewRunner(t.TempDir(), sr)

	got, err := r.CreateUniqueBranch(context.Background(), "x")
	if err != nil {
		t.Fatalf("CreateUniqueBranch failed: %v", err)
	}
	if got != "x-2" {
		t.Errorf("first branch = %q, want %q", got, "x-2")
	}

	got, err = r.CreateUniqueBranch(context.Background(), "x")
	if err != nil {
		t.Fatalf("CreateUniqueBranch failed: %v", err)
	}
	if got != "x-3" {
		t.Errorf("second branch = %q, want %q", got, "x-3")
	}
}

func TestCreateUniqueBranch_CheckoutFails(t *testing.T) {
	sr := &scriptedRunner{handler: func(args []string) (*exec.Result, error) {
		if args[0] == "show-ref" {
			return &exec.Result{ExitCode: 1}, nil
		}
		return &exec.Result{ExitCode: 128, Stderr: "fatal: not a git repository"}, nil
	}}
	r := NewRunner("", sr)

	_, err := r.CreateUniqueBranch(context.Background(), "self-improve/proposal-1")
	var ve *VcsError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *VcsError", err)
	}
	if !strings.Contains(ve.Error(), "not a git repository") {
		t.Errorf("VcsError should carry stderr, got %q", ve.Error())
	}
}

func TestCommitPaths_NothingToCommit(t *testing.T) {
	sr := &scriptedRunner{handler: func(args []string) (*exec.Result, error) {
		if args[0] == "status" {
			return ok("")
		}
		t.Fatalf("unexpected git call: %v", args)
		return nil, nil
	}}
	r := NewRunner("", sr)

	err := r.CommitPaths(context.Background(), "msg", []string{"file.go"})
	if !errors.Is(err, ErrNothingToCommit) {
		t.Fatalf("error = %v, want ErrNothingToCommit", err)
	}
	if sr.called("add") || sr.called("commit") {
		t.Errorf("add/commit must not run when status is empty, calls = %v", sr.calls)
	}
}

func TestCommitPaths_StagesExactPaths(t *testing.T) {
	sr := &scriptedRunner{handler: func(args []string) (*exec.Result, error) {
		if args[0] == "status" {
			return ok(" M a.go\n")
		}
		return ok("")
	}}
	r := NewRunner("", sr)

	if err := r.CommitPaths(context.Background(), "commit msg", []string{"a.go"}); err != nil {
		t.Fatalf("CommitPaths failed: %v", err)
	}

	want := [][]string{
		{"git", "status", "--porcelain", "--", "a.go"},
		{"git", "add", "--", "a.go"},
		{"git", "commit", "-m", "commit msg"},
	}
	if len(sr.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", sr.calls, want)
	}
	for i := range want {
		if strings.Join(sr.calls[i], " ") != strings.Join(want[i], " ") {
			t.Errorf("call %d = %v, want %v", i, sr.calls[i], want[i])
		}
	}
}

func TestCommitPaths_CommitFailure(t *testing.T) {
	sr := &scriptedRunner{handler: func(args []string) (*exec.Result, error) {
		switch args[0] {
		case "status":
			return ok(" M file.go")
		case "add":
			return ok("")
		case "commit":
			return &exec.Result{ExitCode: 1, Stderr: "boom"}, nil
		}
		return nil, nil
	}}
	r := NewRunner("", sr)

	err := r.CommitPaths(context.Background(), "msg", nil)
	var ve *VcsError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *VcsError", err)
	}
	if ve.Stderr != "boom" {
		t.Errorf("Stderr = %q, want %q", ve.Stderr, "boom")
	}
	if !strings.Contains(err.Error(), "git status, git diff") {
		t.Errorf("error should suggest manual review, got %q", err.Error())
	}
}

func TestApplyPatch_RemovesTempFile(t *testing.T) {
	for _, exitCode := range []int{0, 1} {
		var patchPath string
		sr := &scriptedRunner{handler: func(args []string) (*exec.Result, error) {
			patchPath = args[1]
			data, err := os.ReadFile(patchPath)
			if err != nil {
				t.Fatalf("patch file should exist during apply: %v", err)
			}
			if !strings.Contains(string(data), "+++ b/file.go") {
				t.Errorf("patch content = %q", data)
			}
			return &exec.Result{ExitCode: exitCode}, nil
		}}
		r := NewRunner("", sr)

		err := r.ApplyPatch(context.Background(), "--- a/file.go\n+++ b/file.go\n@@ -1 +1 @@\n-a\n+b")
		if (err != nil) != (exitCode != 0) {
			t.Errorf("exit %d: err = %v", exitCode, err)
		}
		if _, statErr := os.Stat(patchPath); !os.IsNotExist(statErr) {
			t.Errorf("exit %d: temp patch %s was not removed", exitCode, patchPath)
		}
	}
}

func TestCleanupMergedBranches(t *testing.T) {
	merged := strings.Join([]string{
		"  main",
		"  self-improve/proposal-1",
		"  self-improve/proposal-2",
		"  self-improve/proposal-3",
		"  self-improve/proposal-4",
	}, "\n")
	refs := strings.Join([]string{
		"self-improve/proposal-1|2024-01-01T00:00:00+00:00",
		"self-improve/proposal-2|2024-01-02T00:00:00+00:00",
		"self-improve/proposal-3|2024-01-03T00:00:00+00:00",
		"self-improve/proposal-4|2024-01-04T00:00:00+00:00",
	}, "\n")

	var deletedCalls []string
	sr := &scriptedRunner{handler: func(args []string) (*exec.Result, error) {
		switch {
		case args[0] == "branch" && args[1] == "--merged":
			return ok(merged)
		case args[0] == "for-each-ref":
			return ok(refs)
		case args[0] == "branch" && args[1] == "-d":
			deletedCalls = append(deletedCalls, args[2])
			return ok("")
		}
		t.Fatalf("unexpected git call: %v", args)
		return nil, nil
	}}
	r := NewRunner("", sr)

	deleted := r.CleanupMergedBranches(context.Background(), 2, "main", "self-improve/")
	want := []string{"self-improve/proposal-2", "self-improve/proposal-1"}
	if strings.Join(deleted, ",") != strings.Join(want, ",") {
		t.Errorf("deleted = %v, want %v", deleted, want)
	}
	if strings.Join(deletedCalls, ",") != strings.Join(want, ",") {
		t.Errorf("branch -d calls = %v, want %v", deletedCalls, want)
	}
}

func TestStaleMergedBranches_DoesNotDelete(t *testing.T) {
	sr := &scriptedRunner{handler: func(args []string) (*exec.Result, error) {
		switch {
		case args[0] == "branch" && args[1] == "--merged":
			return ok("* main\n  self-heal/fix-a\n  self-heal/fix-b\n  feature/x")
		case args[0] == "for-each-ref":
			return ok("self-heal/fix-a|2024-02-01T00:00:00Z\nself-heal/fix-b|2024-03-01T00:00:00Z")
		}
		t.Fatalf("unexpected git call: %v", args)
		return nil, nil
	}}
	r := NewRunner("", sr)

	stale := r.StaleMergedBranches(context.Background(), 0, "main", "self-heal/")
	if strings.Join(stale, ",") != "self-heal/fix-b,self-heal/fix-a" {
		t.Errorf("stale = %v", stale)
	}
	for _, c := range sr.calls {
		if len(c) > 2 && c[1] == "branch" && c[2] == "-d" {
			t.Errorf("StaleMergedBranches must not delete: %v", c)
		}
	}
}

func TestCleanupMergedBranches_GitError(t *testing.T) {
	sr := &scriptedRunner{handler: func(args []string) (*exec.Result, error) {
		return nil, errors.New("git not found")
	}}
	r := NewRunner("", sr)

	deleted := r.CleanupMergedBranches(context.Background(), 5, "main", "self-improve/")
	if deleted == nil || len(deleted) != 0 {
		t.Errorf("deleted = %v, want empty non-nil slice", deleted)
	}
}

func TestCurrentBranch(t *testing.T) {
	sr := &scriptedRunner{handler: func(args []string) (*exec.Result, error) {
		return ok("main\n")
	}}
	if got := NewRunner("", sr).CurrentBranch(context.Background()); got != "main" {
		t.Errorf("CurrentBranch = %q, want %q", got, "main")
	}

	failing := &scriptedRunner{handler: func(args []string) (*exec.Result, error) {
		return &exec.Result{ExitCode: 128}, nil
	}}
	if got := NewRunner("", failing).CurrentBranch(context.Background()); got != "" {
		t.Errorf("CurrentBranch on failure = %q, want empty", got)
	}
}

func TestContext_EmptyOnFailure(t *testing.T) {
	sr := &scriptedRunner{handler: func(args []string) (*exec.Result, error) {
		if args[0] == "rev-parse" {
			return ok("feature\n")
		}
		return &exec.Result{ExitCode: 128}, nil
	}}
	got := NewRunner("", sr).Context(context.Background())

	if got["branch"] != "feature" {
		t.Errorf("branch = %q, want %q", got["branch"], "feature")
	}
	for _, key := range []string{"status", "diff_stat", "last_commit"} {
		v, present := got[key]
		if !present || v != "" {
			t.Errorf("%s = %q (present=%v), want empty", key, v, present)
		}
	}
}
