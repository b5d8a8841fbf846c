// Package engine defines the contract between the scheduler core and an execution backend.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sourceplane/flowline/internal/model"
)

// AllExecutors is the label that lets the backend choose among all of its executors.
const AllExecutors = "all"

var (
	ErrExecutionFailed  = errors.New("execution failed")
	ErrDependencyFailed = errors.New("dependency failed")
	ErrMissingOutputs   = errors.New("missing outputs")
	ErrBackend          = errors.New("backend error")
)

// TaskError carries the classification of a failed task together with its details.
type TaskError struct {
	Kind    error
	TaskID  string
	Reason  string
	Missing []string
	Err     error
}

func (e *TaskError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "task %s: %s", e.TaskID, e.Kind)
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Is matches the classification sentinel.
func (e *TaskError) Is(target error) bool { return target == e.Kind }

func (e *TaskError) Unwrap() error { return e.Err }

// Handle is an engine-owned future for a submitted task.
type Handle interface {
	TaskID() string
	Started() bool
	Finished() bool
	// Result blocks until the task finishes or ctx is done.
	Result(ctx context.Context) (any, error)
	// Outputs returns one handle per declared output path, completing with the task.
	Outputs() map[string]Handle
}

// Dependency is an input passed to a task. Handle is nil for plain paths that
// exist before the run; Path is empty for ordering-only dependencies.
type Dependency struct {
	Path   string
	Handle Handle
}

// ShellTask is a shell unit ready for submission.
type ShellTask struct {
	ID           string
	Name         string
	Command      string
	SuccessCodes []int
	Inputs       []Dependency
	Outputs      []string
	Stdout       string
	Stderr       string
	Executor     string
}

// FunctionTask is a function unit ready for submission.
type FunctionTask struct {
	ID       string
	Name     string
	Function string
	Func     model.Func
	Args     []any
	Kwargs   map[string]any
	Inputs   []Dependency
	Outputs  []string
	Stdout   string
	Stderr   string
	Executor string
}

// Engine accepts tasks and runs them once their dependencies resolve.
type Engine interface {
	Executors() []string
	SubmitShell(ctx context.Context, task ShellTask) (Handle, error)
	SubmitFunction(ctx context.Context, task FunctionTask) (Handle, error)
}
