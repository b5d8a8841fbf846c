package expand

import (
	"github.com/sourceplane/flowline/internal/model"
)

// DependencyResolver answers dependency questions about pipeline steps. A step
// depends on the steps it waits on and on the steps declaring its inputs as outputs.
type DependencyResolver struct {
	steps     []model.Step
	producers map[string][]string // output path template -> step names
}

// NewDependencyResolver creates a new dependency resolver
func NewDependencyResolver(normalized *model.NormalizedPipeline) *DependencyResolver {
	dr := &DependencyResolver{
		steps:     normalized.Steps,
		producers: make(map[string][]string),
	}
	for _, step := range normalized.Steps {
		for _, out := range step.Outputs {
			dr.producers[out.Path] = append(dr.producers[out.Path], step.Name)
		}
	}
	return dr
}

func (dr *DependencyResolver) step(name string) (model.Step, bool) {
	for _, s := range dr.steps {
		if s.Name == name {
			return s, true
		}
	}
	return model.Step{}, false
}

// GetDependencies returns all direct dependencies of a step
func (dr *DependencyResolver) GetDependencies(stepName string) []string {
	step, exists := dr.step(stepName)
	if !exists {
		return []string{}
	}

	deps := make([]string, 0)
	for _, in := range step.Inputs {
		for _, p := range dr.producers[in] {
			if p != stepName && !contains(deps, p) {
				deps = append(deps, p)
			}
		}
	}
	for _, w := range step.WaitOn {
		if !contains(deps, w) {
			deps = append(deps, w)
		}
	}
	return deps
}

// GetDependents returns all steps that depend on the given step
func (dr *DependencyResolver) GetDependents(stepName string) []string {
	dependents := make([]string, 0)

	for _, s := range dr.steps {
		if contains(dr.GetDependencies(s.Name), stepName) {
			dependents = append(dependents, s.Name)
		}
	}

	return dependents
}

// GetTransitiveDependencies returns all transitive dependencies of a step
func (dr *DependencyResolver) GetTransitiveDependencies(stepName string) map[string]bool {
	return dr.closure(stepName, dr.GetDependencies)
}

// GetTransitiveDependents returns all steps that transitively depend on the given step
func (dr *DependencyResolver) GetTransitiveDependents(stepName string) map[string]bool {
	return dr.closure(stepName, dr.GetDependents)
}

func (dr *DependencyResolver) closure(start string, next func(string) []string) map[string]bool {
	result := make(map[string]bool)
	visited := map[string]bool{start: true}
	stack := []string{start}

	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range next(name) {
			if n != start {
				result[n] = true
			}
			if !visited[n] {
				visited[n] = true
				stack = append(stack, n)
			}
		}
	}
	return result
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
