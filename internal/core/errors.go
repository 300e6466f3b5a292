package core

import "fmt"

// Kind is a distinct error kind from the taxonomy of spec.md §7, independent
// of the Go error type that carries it.
type Kind string

const (
	KindUnknownTaskID          Kind = "unknown-task-id"
	KindDuplicateID            Kind = "duplicate-id"
	KindInvalidTransition      Kind = "invalid-transition"
	KindInvalidEndpoint        Kind = "invalid-endpoint"
	KindInvalidPort            Kind = "invalid-port"
	KindEmptyTaskBody          Kind = "empty-task-body"
	KindConflictingFlags       Kind = "conflicting-flags"
	KindRepoNotFound           Kind = "repo-not-found"
	KindBranchNotFound         Kind = "branch-not-found"
	KindWorktreeError          Kind = "worktree-error"
	KindGitRuntimeError        Kind = "git-runtime-error"
	KindPortAllocationError    Kind = "port-allocation-error"
	KindContainerNotFound      Kind = "container-not-found"
	KindContainerStartError    Kind = "container-start-error"
	KindContainerError         Kind = "container-error"
	KindImageBuildError        Kind = "image-build-error"
	KindEndpointError          Kind = "endpoint-error"
	KindPlanError              Kind = "plan-error"
	KindBuildError             Kind = "build-error"
	KindReviewLaunchError      Kind = "review-launch-error"
	KindStrictLocalValidation  Kind = "strict-local-validation-error"
)

// Error is a structured error carrying a taxonomy Kind plus whatever context
// is known. Most fields are empty for input errors and populated for
// external-system / phase errors.
type Error struct {
	Kind     Kind
	TaskID   string
	Message  string
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("%s: %s [task=%s]", e.Kind, e.Message, e.TaskID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, &core.Error{Kind: core.KindX}) by matching on
// Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a minimal *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// StageError is a pipeline stage error from spec.md §4.6/§7: one of
// setup|planning|building|success, tagged with task id, message, and
// (where known) the failing command's exit code and captured output.
type StageError struct {
	Stage    string
	TaskID   string
	Message  string
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Stage, e.TaskID, e.Message)
}

func (e *StageError) Unwrap() error { return e.Err }
