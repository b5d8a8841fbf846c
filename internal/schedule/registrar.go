package schedule

import (
	"context"
	"fmt"

	"github.com/sourceplane/flowline/internal/engine"
	"github.com/sourceplane/flowline/internal/logging"
	"github.com/sourceplane/flowline/internal/model"
	"github.com/sourceplane/flowline/internal/planner"
)

// Graph is the view of the workflow graph the registrar walks.
type Graph interface {
	WorkIDs() []string
	Blueprint(id string) (*model.Blueprint, bool)
	Artifact(path string) (model.Artifact, bool)
	Producers(path string) []string
}

// Registered is a unit that was handed to the engine.
type Registered struct {
	ID       string
	Name     string
	Executor string
	Handle   engine.Handle
}

// Registration is the result of registering a workflow.
type Registration struct {
	// Units are in registration order.
	Units []Registered
	// Temporary lists produced paths flagged temporary.
	Temporary []string
}

type frame struct {
	id       string
	expanded bool
}

type registrar struct {
	g        Graph
	eng      engine.Engine
	sel      Selector
	handles  map[string]engine.Handle
	produced map[string]engine.Handle
	tempSeen map[string]bool
	result   *Registration
}

// RegisterWorkflow submits every work unit of g to eng exactly once, producers and
// wait_on targets before the units that depend on them.
func RegisterWorkflow(ctx context.Context, g Graph, eng engine.Engine, sel Selector) (*Registration, error) {
	r := &registrar{
		g:        g,
		eng:      eng,
		sel:      sel,
		handles:  make(map[string]engine.Handle),
		produced: make(map[string]engine.Handle),
		tempSeen: make(map[string]bool),
		result:   &Registration{},
	}

	for _, id := range g.WorkIDs() {
		if _, done := r.handles[id]; done {
			continue
		}
		if err := r.walk(ctx, id); err != nil {
			return r.result, err
		}
	}
	return r.result, nil
}

// walk is a depth-first traversal with an explicit stack. A frame is expanded once,
// pushing its unregistered prerequisites; it is submitted when it surfaces again.
// Expanded frames still on the stack form the current path.
func (r *registrar) walk(ctx context.Context, root string) error {
	stack := []frame{{id: root}}
	onPath := make(map[string]bool)

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if _, done := r.handles[top.id]; done {
			stack = stack[:len(stack)-1]
			continue
		}

		if !top.expanded {
			top.expanded = true
			onPath[top.id] = true
			deps, err := r.prerequisites(top.id)
			if err != nil {
				return err
			}
			for i := len(deps) - 1; i >= 0; i-- {
				dep := deps[i]
				if _, done := r.handles[dep]; done {
					continue
				}
				if onPath[dep] {
					return planner.CycleError(cyclePath(stack, dep))
				}
				stack = append(stack, frame{id: dep})
			}
			continue
		}

		if err := r.submit(ctx, top.id); err != nil {
			return err
		}
		onPath[top.id] = false
		stack = stack[:len(stack)-1]
	}
	return nil
}

func cyclePath(stack []frame, dep string) []string {
	var path []string
	started := false
	for _, f := range stack {
		if !f.expanded {
			continue
		}
		if f.id == dep {
			started = true
		}
		if started {
			path = append(path, f.id)
		}
	}
	return append(path, dep)
}

// prerequisites lists producers of inputs with a non-zero in-degree, then wait_on targets.
func (r *registrar) prerequisites(id string) ([]string, error) {
	bp, ok := r.g.Blueprint(id)
	if !ok {
		return nil, fmt.Errorf("unit %s is not in the workflow graph", id)
	}
	seen := make(map[string]bool)
	var deps []string
	for _, in := range bp.Inputs {
		for _, p := range r.g.Producers(in) {
			if !seen[p] {
				seen[p] = true
				deps = append(deps, p)
			}
		}
	}
	for _, w := range bp.WaitOn {
		if _, ok := r.g.Blueprint(w); !ok {
			return nil, fmt.Errorf("unit %s waits on unknown unit %s", id, w)
		}
		if !seen[w] {
			seen[w] = true
			deps = append(deps, w)
		}
	}
	return deps, nil
}

func (r *registrar) inputs(bp *model.Blueprint) []engine.Dependency {
	deps := make([]engine.Dependency, 0, len(bp.Inputs)+len(bp.WaitOn))
	for _, in := range bp.Inputs {
		deps = append(deps, engine.Dependency{Path: in, Handle: r.produced[in]})
	}
	for _, w := range bp.WaitOn {
		deps = append(deps, engine.Dependency{Handle: r.handles[w]})
	}
	return deps
}

func (r *registrar) submit(ctx context.Context, id string) error {
	logger := logging.FromContext(ctx)
	bp, _ := r.g.Blueprint(id)
	executor := r.sel.Select(bp.ExecutorHint)
	inputs := r.inputs(bp)

	var (
		handle engine.Handle
		err    error
	)
	switch unit := bp.Unit.(type) {
	case model.ShellUnit:
		handle, err = r.eng.SubmitShell(ctx, engine.ShellTask{
			ID:           bp.ID,
			Name:         bp.Label(),
			Command:      unit.Command,
			SuccessCodes: unit.SuccessCodes,
			Inputs:       inputs,
			Outputs:      bp.Outputs,
			Stdout:       bp.Stdout,
			Stderr:       bp.Stderr,
			Executor:     executor,
		})
	case model.FunctionUnit:
		handle, err = r.eng.SubmitFunction(ctx, engine.FunctionTask{
			ID:       bp.ID,
			Name:     bp.Label(),
			Function: unit.Name,
			Func:     unit.Func,
			Args:     unit.Args,
			Kwargs:   unit.Kwargs,
			Inputs:   inputs,
			Outputs:  bp.Outputs,
			Stdout:   bp.Stdout,
			Stderr:   bp.Stderr,
			Executor: executor,
		})
	default:
		return fmt.Errorf("unit %s has unsupported kind %T", id, bp.Unit)
	}
	if err != nil {
		return fmt.Errorf("failed to submit %s: %w", id, err)
	}

	r.handles[id] = handle
	r.result.Units = append(r.result.Units, Registered{ID: id, Name: bp.Label(), Executor: executor, Handle: handle})
	logger.Debug(fmt.Sprintf("%s assigned to executor %s, task id %s", bp.Label(), executor, handle.TaskID()))

	outs := handle.Outputs()
	for _, path := range bp.Outputs {
		if _, exists := r.produced[path]; exists {
			continue
		}
		h, ok := outs[path]
		if !ok {
			h = handle
		}
		r.produced[path] = h
		if art, ok := r.g.Artifact(path); ok && art.Temporary && !r.tempSeen[path] {
			r.tempSeen[path] = true
			r.result.Temporary = append(r.result.Temporary, path)
		}
	}
	return nil
}
