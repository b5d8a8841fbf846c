package expand

import (
	"fmt"
	"sort"

	"github.com/sourceplane/flowline/internal/model"
)

// StepSummary is a step with its resolved target and dependencies
type StepSummary struct {
	Name       string
	Kind       model.UnitKind
	Target     string
	Executor   string
	Inputs     []string
	Outputs    []model.OutputSpec
	WaitOn     []string
	DependsOn  []string
	NeededBy   []string
	Upstream   []string
	Downstream []string
}

// StepAnalyzer provides analysis of pipeline steps and their relationships
type StepAnalyzer struct {
	normalized *model.NormalizedPipeline
	resolver   *DependencyResolver
}

// NewStepAnalyzer creates a new step analyzer
func NewStepAnalyzer(normalized *model.NormalizedPipeline) *StepAnalyzer {
	return &StepAnalyzer{
		normalized: normalized,
		resolver:   NewDependencyResolver(normalized),
	}
}

// GetStepByName returns the summary of a single step
func (sa *StepAnalyzer) GetStepByName(name string) (*StepSummary, error) {
	step, ok := sa.normalized.Step(name)
	if !ok {
		return nil, fmt.Errorf("step not found: %s", name)
	}
	return sa.summarize(step), nil
}

// ListAll lists every step in declaration order
func (sa *StepAnalyzer) ListAll() []*StepSummary {
	result := make([]*StepSummary, 0, len(sa.normalized.Steps))
	for _, step := range sa.normalized.Steps {
		result = append(result, sa.summarize(step))
	}
	return result
}

func (sa *StepAnalyzer) summarize(step model.Step) *StepSummary {
	target := step.Software
	if step.Kind() == model.KindFunction {
		target = step.Function
	}
	return &StepSummary{
		Name:       step.Name,
		Kind:       step.Kind(),
		Target:     target,
		Executor:   step.Executor,
		Inputs:     step.Inputs,
		Outputs:    step.Outputs,
		WaitOn:     step.WaitOn,
		DependsOn:  sa.resolver.GetDependencies(step.Name),
		NeededBy:   sa.resolver.GetDependents(step.Name),
		Upstream:   sortedKeys(sa.resolver.GetTransitiveDependencies(step.Name)),
		Downstream: sortedKeys(sa.resolver.GetTransitiveDependents(step.Name)),
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
