package planner

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"dario.cat/mergo"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sourceplane/flowline/internal/model"
	"github.com/sourceplane/flowline/internal/registry"
)

// templateCacheSize bounds parsed templates kept across instances of a batch run.
const templateCacheSize = 512

// StepPlanner binds pipeline steps to software and functions and registers
// one blueprint per step and instance
type StepPlanner struct {
	pipeline      *model.NormalizedPipeline
	config        *model.PipelineConfig
	functions     map[string]model.Func
	templateCache *lru.Cache[string, *template.Template]
}

// Assembly is the outcome of planning a pipeline into a registry
type Assembly struct {
	// IDs are blueprint ids in registration order
	IDs []string
	// ByStep maps a step label (name plus instance suffix) to its blueprint id
	ByStep map[string]string
}

// NewStepPlanner creates a planner for a normalized pipeline
func NewStepPlanner(pipeline *model.NormalizedPipeline, config *model.PipelineConfig, functions map[string]model.Func) *StepPlanner {
	if config == nil {
		config = &model.PipelineConfig{}
	}
	cache, _ := lru.New[string, *template.Template](templateCacheSize)
	return &StepPlanner{
		pipeline:      pipeline,
		config:        config,
		functions:     functions,
		templateCache: cache,
	}
}

// Plan registers blueprints for every instance into reg
func (sp *StepPlanner) Plan(reg *registry.Registry, instances []model.Instance) (*Assembly, error) {
	if len(instances) == 0 {
		instances = []model.Instance{{Params: sp.pipeline.Parameters}}
	}

	ordered, err := sp.orderSteps()
	if err != nil {
		return nil, err
	}

	asm := &Assembly{ByStep: make(map[string]string)}
	for _, inst := range instances {
		ids := make(map[string]string, len(ordered))
		for _, step := range ordered {
			bp, prefix, temps, err := sp.blueprint(step, inst)
			if err != nil {
				return nil, fmt.Errorf("failed to plan step %s: %w", stepLabel(step.Name, inst.Label), err)
			}
			for _, w := range step.WaitOn {
				bp.WaitOn = append(bp.WaitOn, ids[w])
			}

			id, err := reg.Register(prefix, bp)
			if err != nil {
				return nil, fmt.Errorf("failed to register step %s: %w", bp.Name, err)
			}
			for _, path := range temps {
				reg.Declare(path, model.ModeOutput, true)
			}

			ids[step.Name] = id
			asm.IDs = append(asm.IDs, id)
			asm.ByStep[bp.Name] = id
		}
	}
	return asm, nil
}

// orderSteps sorts steps so that waitOn targets come first, keeping
// declaration order among independent steps (Kahn's algorithm)
func (sp *StepPlanner) orderSteps() ([]model.Step, error) {
	steps := sp.pipeline.Steps
	inDegree := make([]int, len(steps))
	dependents := make([][]int, len(steps))

	for i, step := range steps {
		for _, dep := range step.WaitOn {
			j, ok := sp.pipeline.StepIndex[dep]
			if !ok {
				return nil, invalidf("step %s waits on unknown step %s", step.Name, dep)
			}
			inDegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	queue := make([]int, 0)
	for i, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, i)
		}
	}

	ordered := make([]model.Step, 0, len(steps))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ordered = append(ordered, steps[current])

		for _, dep := range dependents[current] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = insertSorted(queue, dep)
			}
		}
	}

	if len(ordered) != len(steps) {
		var stuck []string
		for i, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, steps[i].Name)
			}
		}
		return nil, CycleError(stuck)
	}
	return ordered, nil
}

func insertSorted(queue []int, v int) []int {
	i := 0
	for i < len(queue) && queue[i] < v {
		i++
	}
	queue = append(queue, 0)
	copy(queue[i+1:], queue[i:])
	queue[i] = v
	return queue
}

func (sp *StepPlanner) blueprint(step model.Step, inst model.Instance) (*model.Blueprint, string, []string, error) {
	ctx := templateContext(inst)
	render := func(field string, i int, text string) (string, error) {
		return sp.render(step.Name, fmt.Sprintf("%s.%d", field, i), text, ctx)
	}

	resources, err := sp.resources(step)
	if err != nil {
		return nil, "", nil, err
	}
	bp := &model.Blueprint{
		Name:         stepLabel(step.Name, inst.Label),
		ExecutorHint: step.Executor,
		Resources:    resources,
	}

	for i, in := range step.Inputs {
		path, err := render("inputs", i, in)
		if err != nil {
			return nil, "", nil, err
		}
		bp.Inputs = append(bp.Inputs, path)
	}
	var temps []string
	for i, out := range step.Outputs {
		path, err := render("outputs", i, out.Path)
		if err != nil {
			return nil, "", nil, err
		}
		bp.Outputs = append(bp.Outputs, path)
		if out.Temporary {
			temps = append(temps, path)
		}
	}
	if bp.Stdout, err = render("stdout", 0, step.Stdout); err != nil {
		return nil, "", nil, err
	}
	if bp.Stderr, err = render("stderr", 0, step.Stderr); err != nil {
		return nil, "", nil, err
	}

	args := make([]string, 0, len(step.Args))
	for i, a := range step.Args {
		arg, err := render("args", i, a)
		if err != nil {
			return nil, "", nil, err
		}
		args = append(args, arg)
	}

	switch step.Kind() {
	case model.KindFunction:
		fn, ok := sp.functions[step.Function]
		if !ok {
			return nil, "", nil, fmt.Errorf("unknown function %s", step.Function)
		}
		anyArgs := make([]any, len(args))
		for i, a := range args {
			anyArgs[i] = a
		}
		bp.Unit = model.FunctionUnit{Name: step.Function, Func: fn, Args: anyArgs, Kwargs: step.Kwargs}
		return bp, step.Function, temps, nil

	default:
		sw, path, err := sp.software(step.Software)
		if err != nil {
			return nil, "", nil, err
		}
		subprogram := step.Subprogram
		if subprogram == "" {
			subprogram = sw.Subprogram
		}
		if subprogram, err = render("subprogram", 0, subprogram); err != nil {
			return nil, "", nil, err
		}
		parts := []string{path}
		if subprogram != "" {
			parts = append(parts, subprogram)
		}
		parts = append(parts, args...)

		codes := step.SuccessOn
		if len(codes) == 0 {
			codes = sw.SuccessOn
		}
		if len(codes) == 0 {
			codes = model.DefaultSuccessCodes
		}
		bp.Unit = model.ShellUnit{Command: strings.Join(parts, " "), SuccessCodes: append([]int(nil), codes...)}
		return bp, filepath.Base(path), temps, nil
	}
}

// software resolves a software entry; the pipeline definition's path wins,
// then the pipeline config's
func (sp *StepPlanner) software(name string) (model.Software, string, error) {
	sw := sp.pipeline.Software[name]
	if cfg, ok := sp.config.Software[name]; ok {
		if err := mergo.Merge(&sw, cfg); err != nil {
			return sw, "", fmt.Errorf("failed to merge software %s: %w", name, err)
		}
	}
	if sw.Path == "" {
		return sw, "", fmt.Errorf("software %s has no path in the pipeline or pipeline config", name)
	}
	return sw, sw.Path, nil
}

// resources overlays step resources on the resources of its executor pool
func (sp *StepPlanner) resources(step model.Step) (map[string]string, error) {
	res := make(map[string]string, len(step.Resources))
	for k, v := range step.Resources {
		res[k] = v
	}
	if pool, ok := sp.pipeline.Executors[step.Executor]; ok && len(pool.Resources) > 0 {
		if err := mergo.Merge(&res, pool.Resources); err != nil {
			return nil, fmt.Errorf("failed to merge resources of executor %s: %w", step.Executor, err)
		}
	}
	return res, nil
}

// render executes a field template. Parsed templates are cached by step and field.
func (sp *StepPlanner) render(step, field, text string, ctx map[string]interface{}) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	cacheKey := fmt.Sprintf("%s:%s", step, field)

	tmpl, exists := sp.templateCache.Get(cacheKey)
	if !exists {
		var err error
		tmpl, err = template.New(cacheKey).Option("missingkey=error").Parse(text)
		if err != nil {
			return "", fmt.Errorf("invalid template in %s: %w", field, err)
		}
		sp.templateCache.Add(cacheKey, tmpl)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("failed to execute template in %s: %w", field, err)
	}
	return buf.String(), nil
}

func templateContext(inst model.Instance) map[string]interface{} {
	ctx := make(map[string]interface{}, len(inst.Params)+1)
	for k, v := range inst.Params {
		ctx[k] = v
	}
	ctx["Instance"] = inst.Label
	return ctx
}

func stepLabel(name, instance string) string {
	if instance == "" {
		return name
	}
	return fmt.Sprintf("%s[%s]", name, instance)
}
