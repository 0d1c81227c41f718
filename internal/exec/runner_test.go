package exec

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunShell_Success(t *testing.T) {
	r := NewRunner()
	res, err := r.RunShell(context.Background(), t.TempDir(), "echo hello; echo oops 1>&2")
	if err != nil {
		t.Fatalf("RunShell failed: %v", err)
	}
	if !res.Success() {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "hello\n")
	}
	if strings.TrimSpace(res.Stderr) != "oops" {
		t.Errorf("Stderr = %q, want %q", res.Stderr, "oops\n")
	}
}

func TestRunShell_NonZeroExit(t *testing.T) {
	r := NewRunner()
	res, err := r.RunShell(context.Background(), "", "exit 3")
	if err != nil {
		t.Fatalf("non-zero exit should not be an error, got %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if res.Success() {
		t.Error("Success() = true, want false")
	}
}

func TestRun_MissingBinary(t *testing.T) {
	r := NewRunner()
	_, err := r.Run(context.Background(), "", "definitely-not-a-real-binary-xyz")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestRun_ContextCanceled(t *testing.T) {
	r := NewRunner()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.RunShell(ctx, "", "sleep 5")
	if err == nil {
		t.Fatal("expected error when context expires")
	}
}
