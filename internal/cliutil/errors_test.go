package cliutil

import (
	"errors"
	"testing"
)

func TestSilentError_ExitCodeAndUnwrap(t *testing.T) {
	inner := errors.New("boom")

	generic := NewSilentError(inner)
	if generic.ExitCode() != ExitFailure {
		t.Errorf("NewSilentError exit code = %d, want %d", generic.ExitCode(), ExitFailure)
	}
	if !errors.Is(generic, inner) {
		t.Errorf("expected errors.Is to unwrap to inner error")
	}

	worktree := NewSilentErrorWithCode(inner, ExitWorktreeEnforcement)
	if worktree.ExitCode() != ExitWorktreeEnforcement {
		t.Errorf("NewSilentErrorWithCode exit code = %d, want %d", worktree.ExitCode(), ExitWorktreeEnforcement)
	}
	if worktree.Error() != "boom" {
		t.Errorf("Error() = %q, want %q", worktree.Error(), "boom")
	}
}

func TestCommandError_WithContextChaining(t *testing.T) {
	err := NewCommandError(CodeNotFound, "task not found").
		WithContext("taskId", "t1").
		WithContext("round", 2)

	if err.Error() != "not_found: task not found" {
		t.Errorf("Error() = %q, want %q", err.Error(), "not_found: task not found")
	}
	if err.Context["taskId"] != "t1" || err.Context["round"] != 2 {
		t.Errorf("unexpected context: %#v", err.Context)
	}
}

func TestCommandError_AsTarget(t *testing.T) {
	var target *CommandError
	wrapped := NewSilentError(NewCommandError(CodeGuardFailed, "blocked"))
	if !errors.As(wrapped, &target) {
		t.Fatalf("expected errors.As to find a *CommandError through SilentError")
	}
	if target.Code != CodeGuardFailed {
		t.Errorf("target.Code = %q, want %q", target.Code, CodeGuardFailed)
	}
}
