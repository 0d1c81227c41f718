// Package git provides an interface for git operations.
package git

import "context"

// BranchOperations defines the interface for git branch operations.
type BranchOperations interface {
	// CurrentBranch returns the name of the current branch, or "" if it
	// cannot be determined.
	CurrentBranch(ctx context.Context) string
	// BranchExists returns true if the branch exists.
	BranchExists(ctx context.Context, name string) (bool, error)
	// CreateUniqueBranch creates and switches to a branch named name, or
	// name-2, name-3, ... if that name is taken. Returns the name used.
	CreateUniqueBranch(ctx context.Context, name string) (string, error)
	// CleanupMergedBranches deletes merged branches under prefix, keeping
	// the newest keep of them. Returns the deleted names, newest first.
	CleanupMergedBranches(ctx context.Context, keep int, base, prefix string) []string
}

// CommitOperations defines the interface for git staging and commits.
type CommitOperations interface {
	// Status returns the output of git status --porcelain, limited to paths
	// when any are given.
	Status(ctx context.Context, paths ...string) (string, error)
	// CommitPaths stages paths (everything when empty) and commits them.
	// Returns ErrNothingToCommit when there is nothing to stage.
	CommitPaths(ctx context.Context, message string, paths []string) error
}

// PatchOperations defines the interface for applying patches.
type PatchOperations interface {
	// ApplyPatch applies a unified diff to the working tree.
	ApplyPatch(ctx context.Context, diff string) error
}

// ContextOperations defines read-only queries used for diagnostics.
type ContextOperations interface {
	// Context returns branch, status, diff_stat and last_commit.
	// Failed queries yield empty strings.
	Context(ctx context.Context) map[string]string
}

// Runner combines all git operations the council needs.
type Runner interface {
	BranchOperations
	CommitOperations
	PatchOperations
	ContextOperations
}
