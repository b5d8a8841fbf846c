// Package local is an in-process engine that runs shell and function units on
// bounded worker pools.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sourceplane/flowline/internal/engine"
	"github.com/sourceplane/flowline/internal/model"
)

type pool struct {
	label string
	sem   *semaphore.Weighted
}

// Engine runs tasks as goroutines, limited per executor by a semaphore.
type Engine struct {
	WorkDir string

	pools   []*pool
	byLabel map[string]*pool
	next    atomic.Uint64
	funcs   map[string]model.Func

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the local engine.
type Option func(*Engine)

// WithFunctions registers functions that function units may name.
func WithFunctions(funcs map[string]model.Func) Option {
	return func(e *Engine) {
		for name, fn := range funcs {
			e.funcs[name] = fn
		}
	}
}

// WithWorkDir sets the working directory for shell units.
func WithWorkDir(dir string) Option {
	return func(e *Engine) { e.WorkDir = dir }
}

// New creates an engine with one pool per configured executor.
func New(cfg *model.RuntimeConfig, opts ...Option) (*Engine, error) {
	if cfg == nil || len(cfg.Executors) == 0 {
		return nil, fmt.Errorf("runtime config must define at least one executor")
	}

	base, cancel := context.WithCancel(context.Background())
	e := &Engine{
		byLabel: make(map[string]*pool, len(cfg.Executors)),
		funcs:   make(map[string]model.Func),
		base:    base,
		cancel:  cancel,
	}
	for _, ex := range cfg.Executors {
		if ex.Label == "" {
			cancel()
			return nil, fmt.Errorf("executor label cannot be empty")
		}
		if ex.Label == engine.AllExecutors {
			cancel()
			return nil, fmt.Errorf("executor label %q is reserved", engine.AllExecutors)
		}
		if _, exists := e.byLabel[ex.Label]; exists {
			cancel()
			return nil, fmt.Errorf("duplicate executor label %q", ex.Label)
		}
		workers := ex.Workers
		if workers <= 0 {
			workers = 1
		}
		p := &pool{label: ex.Label, sem: semaphore.NewWeighted(int64(workers))}
		e.pools = append(e.pools, p)
		e.byLabel[ex.Label] = p
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Executors returns the configured executor labels.
func (e *Engine) Executors() []string {
	labels := make([]string, 0, len(e.pools))
	for _, p := range e.pools {
		labels = append(labels, p.label)
	}
	return labels
}

// Close cancels running tasks and waits for their goroutines to exit.
func (e *Engine) Close() error {
	e.cancel()
	e.wg.Wait()
	return nil
}

func (e *Engine) pick(label string) *pool {
	if p, ok := e.byLabel[label]; ok {
		return p
	}
	n := e.next.Add(1) - 1
	return e.pools[n%uint64(len(e.pools))]
}

type job struct {
	id       string
	executor string
	inputs   []engine.Dependency
	outputs  []string
	stdout   string
	stderr   string
	run      func(ctx context.Context, stdout, stderr io.Writer) (any, error)
}

func (e *Engine) SubmitShell(ctx context.Context, task engine.ShellTask) (engine.Handle, error) {
	unit := model.ShellUnit{Command: task.Command, SuccessCodes: task.SuccessCodes}
	return e.submit(job{
		id:       task.ID,
		executor: task.Executor,
		inputs:   task.Inputs,
		outputs:  task.Outputs,
		stdout:   task.Stdout,
		stderr:   task.Stderr,
		run: func(ctx context.Context, stdout, stderr io.Writer) (any, error) {
			return e.runShell(ctx, task.ID, unit, stdout, stderr)
		},
	})
}

func (e *Engine) SubmitFunction(ctx context.Context, task engine.FunctionTask) (engine.Handle, error) {
	fn := task.Func
	if fn == nil {
		fn = e.funcs[task.Function]
	}
	if fn == nil {
		return nil, fmt.Errorf("function %q is not registered", task.Function)
	}
	call := model.Call{
		Args:    task.Args,
		Kwargs:  task.Kwargs,
		Inputs:  e.resolveAll(dependencyPaths(task.Inputs)),
		Outputs: e.resolveAll(task.Outputs),
	}
	return e.submit(job{
		id:       task.ID,
		executor: task.Executor,
		inputs:   task.Inputs,
		outputs:  task.Outputs,
		stdout:   task.Stdout,
		stderr:   task.Stderr,
		run: func(ctx context.Context, stdout, stderr io.Writer) (value any, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &engine.TaskError{Kind: engine.ErrExecutionFailed, TaskID: task.ID, Reason: fmt.Sprintf("panic: %v", r)}
				}
			}()
			call.Stdout, call.Stderr = stdout, stderr
			value, err = fn(ctx, call)
			if err != nil {
				return nil, &engine.TaskError{Kind: engine.ErrExecutionFailed, TaskID: task.ID, Reason: err.Error(), Err: err}
			}
			return value, nil
		},
	})
}

func (e *Engine) submit(j job) (engine.Handle, error) {
	if err := e.base.Err(); err != nil {
		return nil, fmt.Errorf("engine is closed: %w", err)
	}
	f := engine.NewFuture(j.id, j.outputs)
	p := e.pick(j.executor)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		f.Complete(e.execute(p, f, j))
	}()
	return f, nil
}

func (e *Engine) execute(p *pool, f *engine.Future, j job) (any, error) {
	ctx := e.base

	if err := waitDependencies(ctx, j.inputs); err != nil {
		return nil, &engine.TaskError{Kind: engine.ErrDependencyFailed, TaskID: j.id, Err: err}
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, &engine.TaskError{Kind: engine.ErrBackend, TaskID: j.id, Reason: "failed to acquire worker", Err: err}
	}
	defer p.sem.Release(1)
	f.Start()

	stdout, closeOut, err := openStream(j.stdout)
	if err != nil {
		return nil, &engine.TaskError{Kind: engine.ErrBackend, TaskID: j.id, Err: err}
	}
	defer closeOut()
	stderr, closeErr, err := openStream(j.stderr)
	if err != nil {
		return nil, &engine.TaskError{Kind: engine.ErrBackend, TaskID: j.id, Err: err}
	}
	defer closeErr()

	value, err := j.run(ctx, stdout, stderr)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, out := range j.outputs {
		if _, err := os.Stat(e.resolve(out)); err != nil {
			missing = append(missing, out)
		}
	}
	if len(missing) > 0 {
		return nil, &engine.TaskError{Kind: engine.ErrMissingOutputs, TaskID: j.id, Missing: missing}
	}
	return value, nil
}

func (e *Engine) runShell(ctx context.Context, id string, unit model.ShellUnit, stdout, stderr io.Writer) (any, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", unit.Command)
	cmd.Dir = e.WorkDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	code := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, &engine.TaskError{Kind: engine.ErrExecutionFailed, TaskID: id, Reason: "failed to start command", Err: err}
		}
		code = exitErr.ExitCode()
	}
	if !unit.Succeeded(code) {
		return nil, &engine.TaskError{Kind: engine.ErrExecutionFailed, TaskID: id, Reason: fmt.Sprintf("exit code %d", code)}
	}
	return code, nil
}

func (e *Engine) resolve(path string) string {
	if filepath.IsAbs(path) || e.WorkDir == "" {
		return path
	}
	return filepath.Join(e.WorkDir, path)
}

func (e *Engine) resolveAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = e.resolve(p)
	}
	return out
}

func waitDependencies(ctx context.Context, deps []engine.Dependency) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range deps {
		if d.Handle == nil {
			continue
		}
		h := d.Handle
		g.Go(func() error {
			if _, err := h.Result(gctx); err != nil {
				return fmt.Errorf("%s: %w", h.TaskID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func openStream(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create stream directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open stream file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func dependencyPaths(deps []engine.Dependency) []string {
	paths := make([]string, 0, len(deps))
	for _, d := range deps {
		if d.Path != "" {
			paths = append(paths, d.Path)
		}
	}
	return paths
}
