package model

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Pipeline is the top-level pipeline definition document
type Pipeline struct {
	APIVersion string       `yaml:"apiVersion" json:"apiVersion"`
	Kind       string       `yaml:"kind" json:"kind"`
	Metadata   Metadata     `yaml:"metadata" json:"metadata"`
	Spec       PipelineSpec `yaml:"spec" json:"spec"`
}

// Metadata holds standard object metadata
type Metadata struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// PipelineSpec declares parameters, software, executor pools and steps
type PipelineSpec struct {
	Parameters      map[string]interface{}  `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Software        map[string]Software     `yaml:"software,omitempty" json:"software,omitempty"`
	Executors       map[string]ExecutorPool `yaml:"executors,omitempty" json:"executors,omitempty"`
	DefaultExecutor string                  `yaml:"defaultExecutor,omitempty" json:"defaultExecutor,omitempty"`
	Runtime         *RuntimeConfig          `yaml:"runtime,omitempty" json:"runtime,omitempty"`
	Steps           []Step                  `yaml:"steps" json:"steps"`
}

// Software is a named executable a step can run
type Software struct {
	Path       string `yaml:"path,omitempty" json:"path,omitempty"`
	Subprogram string `yaml:"subprogram,omitempty" json:"subprogram,omitempty"`
	SuccessOn  []int  `yaml:"successOn,omitempty" json:"successOn,omitempty"`
}

// ExecutorPool is a logical pool the pipeline may route steps to
type ExecutorPool struct {
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Resources   map[string]string `yaml:"resources,omitempty" json:"resources,omitempty"`
}

// Step declares one unit of work in the pipeline definition
type Step struct {
	Name       string                 `yaml:"name" json:"name"`
	Action     string                 `yaml:"action,omitempty" json:"action,omitempty"`
	Software   string                 `yaml:"software,omitempty" json:"software,omitempty"`
	Function   string                 `yaml:"function,omitempty" json:"function,omitempty"`
	Subprogram string                 `yaml:"subprogram,omitempty" json:"subprogram,omitempty"`
	Args       []string               `yaml:"args,omitempty" json:"args,omitempty"`
	Kwargs     map[string]interface{} `yaml:"kwargs,omitempty" json:"kwargs,omitempty"`
	Inputs     []string               `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs    []OutputSpec           `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	WaitOn     []string               `yaml:"waitOn,omitempty" json:"waitOn,omitempty"`
	Stdout     string                 `yaml:"stdout,omitempty" json:"stdout,omitempty"`
	Stderr     string                 `yaml:"stderr,omitempty" json:"stderr,omitempty"`
	Executor   string                 `yaml:"executor,omitempty" json:"executor,omitempty"`
	SuccessOn  []int                  `yaml:"successOn,omitempty" json:"successOn,omitempty"`
	Resources  map[string]string      `yaml:"resources,omitempty" json:"resources,omitempty"`
}

// Kind reports whether the step runs software or a function
func (s Step) Kind() UnitKind {
	if s.Function != "" {
		return KindFunction
	}
	return KindShell
}

// OutputSpec is an output path, optionally flagged temporary.
// It decodes from either a plain string or a {path, temporary} mapping.
type OutputSpec struct {
	Path      string `yaml:"path" json:"path"`
	Temporary bool   `yaml:"temporary,omitempty" json:"temporary,omitempty"`
}

// UnmarshalYAML accepts the scalar shorthand for non-temporary outputs
func (o *OutputSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		o.Path = value.Value
		o.Temporary = false
		return nil
	case yaml.MappingNode:
		type plain OutputSpec
		var p plain
		if err := value.Decode(&p); err != nil {
			return err
		}
		*o = OutputSpec(p)
		return nil
	default:
		return fmt.Errorf("output at line %d must be a path or a mapping", value.Line)
	}
}

// RuntimeConfig describes the executor topology handed to the engine
type RuntimeConfig struct {
	Executors []ExecutorConfig `yaml:"executors" json:"executors"`
}

// ExecutorConfig is one engine executor and its concurrency
type ExecutorConfig struct {
	Label   string `yaml:"label" json:"label"`
	Workers int    `yaml:"workers" json:"workers"`
}

// Labels returns executor labels in declaration order
func (r *RuntimeConfig) Labels() []string {
	if r == nil {
		return nil
	}
	labels := make([]string, 0, len(r.Executors))
	for _, e := range r.Executors {
		labels = append(labels, e.Label)
	}
	return labels
}

// PipelineConfig carries per-installation settings for a pipeline
type PipelineConfig struct {
	Software map[string]Software `yaml:"software,omitempty" json:"software,omitempty"`
	Runtime  *RuntimeConfig      `yaml:"runtime,omitempty" json:"runtime,omitempty"`
}

// NormalizedPipeline is the canonical internal representation
type NormalizedPipeline struct {
	Metadata        Metadata
	Parameters      map[string]interface{}
	Software        map[string]Software
	Executors       map[string]ExecutorPool
	DefaultExecutor string
	Runtime         *RuntimeConfig
	Steps           []Step
	StepIndex       map[string]int // for fast lookup
}

// Step returns a step by name
func (p *NormalizedPipeline) Step(name string) (Step, bool) {
	i, ok := p.StepIndex[name]
	if !ok {
		return Step{}, false
	}
	return p.Steps[i], true
}

// PoolNames returns the executor pool names declared by the pipeline, sorted
func (p *NormalizedPipeline) PoolNames() []string {
	names := make([]string, 0, len(p.Executors))
	for name := range p.Executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instance is one parameter set a pipeline is run with
type Instance struct {
	Label  string
	Params map[string]interface{}
}
