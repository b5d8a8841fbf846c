package normalize

import (
	"fmt"

	"github.com/sourceplane/flowline/internal/model"
)

// NormalizePipeline transforms a raw pipeline definition into canonical form
func NormalizePipeline(p *model.Pipeline) (*model.NormalizedPipeline, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if p.Metadata.Name == "" {
		return nil, fmt.Errorf("pipeline must have a name")
	}

	normalized := &model.NormalizedPipeline{
		Metadata:        p.Metadata,
		Parameters:      p.Spec.Parameters,
		Software:        p.Spec.Software,
		Executors:       p.Spec.Executors,
		DefaultExecutor: p.Spec.DefaultExecutor,
		Runtime:         p.Spec.Runtime,
		Steps:           make([]model.Step, 0, len(p.Spec.Steps)),
		StepIndex:       make(map[string]int, len(p.Spec.Steps)),
	}

	// Initialize empty maps
	if normalized.Parameters == nil {
		normalized.Parameters = make(map[string]interface{})
	}
	if normalized.Software == nil {
		normalized.Software = make(map[string]model.Software)
	}
	if normalized.Executors == nil {
		normalized.Executors = make(map[string]model.ExecutorPool)
	}

	for _, step := range p.Spec.Steps {
		if step.Name == "" {
			return nil, fmt.Errorf("step must have a name")
		}
		if _, exists := normalized.StepIndex[step.Name]; exists {
			return nil, fmt.Errorf("duplicate step name: %s", step.Name)
		}
		if (step.Software == "") == (step.Function == "") {
			return nil, fmt.Errorf("step %s must set exactly one of software or function", step.Name)
		}

		if step.Kwargs == nil {
			step.Kwargs = make(map[string]interface{})
		}
		if step.Resources == nil {
			step.Resources = make(map[string]string)
		}
		if step.Executor == "" {
			step.Executor = normalized.DefaultExecutor
		}

		normalized.StepIndex[step.Name] = len(normalized.Steps)
		normalized.Steps = append(normalized.Steps, step)
	}

	// Validate waitOn references once every step is indexed
	for _, step := range normalized.Steps {
		for _, dep := range step.WaitOn {
			if _, ok := normalized.StepIndex[dep]; !ok {
				return nil, fmt.Errorf("step %s waits on unknown step %s", step.Name, dep)
			}
			if dep == step.Name {
				return nil, fmt.Errorf("step %s waits on itself", step.Name)
			}
		}
	}

	if normalized.DefaultExecutor != "" && len(normalized.Executors) > 0 {
		if _, ok := normalized.Executors[normalized.DefaultExecutor]; !ok {
			return nil, fmt.Errorf("default executor %s is not declared in executors", normalized.DefaultExecutor)
		}
	}

	return normalized, nil
}
