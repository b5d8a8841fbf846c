// Package enginetest provides a scriptable in-memory engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourceplane/flowline/internal/engine"
	"github.com/sourceplane/flowline/internal/model"
)

// Submission records one task handed to the engine.
type Submission struct {
	ID       string
	Name     string
	Kind     model.UnitKind
	Executor string
	Inputs   []engine.Dependency
	Outputs  []string
	Stdout   string
	Stderr   string
}

// Engine records submissions and resolves each task with a scripted outcome.
// Tasks resolve at submission unless held.
type Engine struct {
	labels []string

	mu          sync.Mutex
	submissions []Submission
	futures     map[string]*engine.Future
	outcomes    map[string]error
	held        map[string]bool
	unstarted   map[string]bool
	submitErr   map[string]error
}

// New creates a fake engine exposing the given executor labels.
func New(labels ...string) *Engine {
	return &Engine{
		labels:    labels,
		futures:   make(map[string]*engine.Future),
		outcomes:  make(map[string]error),
		held:      make(map[string]bool),
		unstarted: make(map[string]bool),
		submitErr: make(map[string]error),
	}
}

// Fail makes the task with the given id resolve with err.
func (e *Engine) Fail(id string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outcomes[id] = err
}

// Hold keeps the task running after submission until Release is called.
func (e *Engine) Hold(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.held[id] = true
}

// HoldUnstarted keeps the task queued and never marks it started.
func (e *Engine) HoldUnstarted(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.held[id] = true
	e.unstarted[id] = true
}

// RejectSubmit makes submission of the task fail.
func (e *Engine) RejectSubmit(id string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitErr[id] = err
}

// Release resolves a held task with its scripted outcome.
func (e *Engine) Release(id string) {
	e.mu.Lock()
	f, ok := e.futures[id]
	err := e.outcomes[id]
	e.mu.Unlock()
	if !ok {
		return
	}
	f.Start()
	f.Complete(id, err)
}

// Future returns the handle created for a task.
func (e *Engine) Future(id string) *engine.Future {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.futures[id]
}

// Submissions returns every submission in order.
func (e *Engine) Submissions() []Submission {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Submission(nil), e.submissions...)
}

// Order returns submitted task ids in order.
func (e *Engine) Order() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.submissions))
	for _, s := range e.submissions {
		ids = append(ids, s.ID)
	}
	return ids
}

func (e *Engine) Executors() []string {
	return append([]string(nil), e.labels...)
}

func (e *Engine) SubmitShell(ctx context.Context, task engine.ShellTask) (engine.Handle, error) {
	return e.submit(Submission{
		ID: task.ID, Name: task.Name, Kind: model.KindShell, Executor: task.Executor,
		Inputs: task.Inputs, Outputs: task.Outputs, Stdout: task.Stdout, Stderr: task.Stderr,
	})
}

func (e *Engine) SubmitFunction(ctx context.Context, task engine.FunctionTask) (engine.Handle, error) {
	return e.submit(Submission{
		ID: task.ID, Name: task.Name, Kind: model.KindFunction, Executor: task.Executor,
		Inputs: task.Inputs, Outputs: task.Outputs, Stdout: task.Stdout, Stderr: task.Stderr,
	})
}

func (e *Engine) submit(s Submission) (engine.Handle, error) {
	e.mu.Lock()
	if err, ok := e.submitErr[s.ID]; ok {
		e.mu.Unlock()
		return nil, err
	}
	if _, exists := e.futures[s.ID]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("task %s submitted twice", s.ID)
	}
	f := engine.NewFuture(s.ID, s.Outputs)
	e.futures[s.ID] = f
	e.submissions = append(e.submissions, s)
	held := e.held[s.ID]
	unstarted := e.unstarted[s.ID]
	outcome := e.outcomes[s.ID]
	e.mu.Unlock()

	if !unstarted {
		f.Start()
	}
	if !held {
		f.Complete(s.ID, outcome)
	}
	return f, nil
}
