package git

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNothingToCommit is returned by CommitPaths when the status check finds
// no changes under the requested paths.
var ErrNothingToCommit = errors.New("no actual changes detected, nothing to commit; the proposal may have contained placeholder or incomplete code")

// reviewHint is appended to every VcsError message.
const reviewHint = "Suggest manually reviewing the branch with: git status, git diff"

// VcsError reports a failed git invocation with its captured output.
type VcsError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *VcsError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "git %s failed", strings.Join(e.Args, " "))
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	} else {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	fmt.Fprintf(&b, ".\nSTDERR: %s\nSTDOUT: %s\n\n%s", strings.TrimSpace(e.Stderr), strings.TrimSpace(e.Stdout), reviewHint)
	return b.String()
}

func (e *VcsError) Unwrap() error {
	return e.Err
}
