// Package runner loads a pipeline, assembles its workflow graph and drives a
// monitored run on the local engine.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"

	"github.com/sourceplane/flowline/internal/config"
	"github.com/sourceplane/flowline/internal/engine/local"
	"github.com/sourceplane/flowline/internal/expand"
	"github.com/sourceplane/flowline/internal/loader"
	"github.com/sourceplane/flowline/internal/logging"
	"github.com/sourceplane/flowline/internal/model"
	"github.com/sourceplane/flowline/internal/monitor"
	"github.com/sourceplane/flowline/internal/normalize"
	"github.com/sourceplane/flowline/internal/planner"
	"github.com/sourceplane/flowline/internal/registry"
	"github.com/sourceplane/flowline/internal/render"
	"github.com/sourceplane/flowline/internal/schedule"
)

// Options configures loading and running a pipeline.
type Options struct {
	PipelineFile       string
	PipelineConfigFile string
	RuntimeConfigFile  string
	// InputMatrix makes the run a batch run, one instance per row.
	InputMatrix string
	Overrides   map[string]interface{}

	Home        string
	WorkDir     string
	LogsDir     string
	RunName     string
	LogLevel    string
	ReportFile  string
	MetricsFile string
	// Command is the command line logged in the run header.
	Command []string

	Functions    map[string]model.Func
	PollInterval time.Duration
	Console      io.Writer
}

func defaultOptions() Options {
	return Options{
		WorkDir:      ".",
		RunName:      "run",
		LogLevel:     "info",
		PollInterval: monitor.DefaultPollInterval,
		Console:      os.Stderr,
	}
}

// Workflow is a pipeline assembled into blueprints and a graph.
type Workflow struct {
	Pipeline      *model.NormalizedPipeline
	Config        *model.PipelineConfig
	Instances     []model.Instance
	Registry      *registry.Registry
	Assembly      *planner.Assembly
	Graph         *planner.WorkflowGraph
	Runtime       *model.RuntimeConfig
	RuntimeSource string
}

// Runner executes pipelines.
type Runner struct {
	opts      Options
	loader    *loader.Loader
	functions map[string]model.Func
}

// NewRunner creates a runner, filling unset options with defaults.
func NewRunner(opts Options) (*Runner, error) {
	if opts.PipelineFile == "" {
		return nil, fmt.Errorf("pipeline file is required")
	}
	if err := mergo.Merge(&opts, defaultOptions()); err != nil {
		return nil, fmt.Errorf("failed to apply default options: %w", err)
	}
	if opts.Home == "" {
		opts.Home = config.Home()
	}

	l, err := loader.New()
	if err != nil {
		return nil, err
	}

	functions := local.Builtins()
	for name, fn := range opts.Functions {
		functions[name] = fn
	}

	return &Runner{opts: opts, loader: l, functions: functions}, nil
}

// Load reads the pipeline and its configs, expands instances and assembles the
// workflow graph. Default stream captures are placed under captureDir.
func (r *Runner) Load(ctx context.Context, captureDir, behavior string) (*Workflow, error) {
	logger := logging.FromContext(ctx)

	pipeline, err := r.loader.LoadPipeline(r.opts.PipelineFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline: %w", err)
	}
	normalized, err := normalize.NormalizePipeline(pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize pipeline: %w", err)
	}
	pipelineConfig, err := r.loader.LoadPipelineConfig(r.opts.PipelineConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline config: %w", err)
	}

	instances, err := r.instances(normalized)
	if err != nil {
		return nil, err
	}

	reg := registry.New(captureDir)
	asm, err := planner.NewStepPlanner(normalized, pipelineConfig, r.functions).Plan(reg, instances)
	if err != nil {
		return nil, err
	}
	g, err := planner.BuildGraph(ctx, reg.Blueprints(), reg)
	if err != nil {
		return nil, err
	}
	logger.Debug(fmt.Sprintf("Assembled %d units over %d artifacts (%d graph nodes)", len(asm.IDs), len(g.Artifacts()), g.Order()))

	rt, source, err := r.runtime(pipelineConfig, normalized, behavior)
	if err != nil {
		return nil, err
	}

	return &Workflow{
		Pipeline:      normalized,
		Config:        pipelineConfig,
		Instances:     instances,
		Registry:      reg,
		Assembly:      asm,
		Graph:         g,
		Runtime:       rt,
		RuntimeSource: source,
	}, nil
}

func (r *Runner) instances(normalized *model.NormalizedPipeline) ([]model.Instance, error) {
	expander := expand.NewExpander(normalized)
	if r.opts.InputMatrix == "" {
		return expander.Single(r.opts.Overrides)
	}
	rows, err := loader.LoadInputMatrix(r.opts.InputMatrix)
	if err != nil {
		return nil, err
	}
	return expander.Batch(r.opts.Overrides, rows)
}

func (r *Runner) runtime(pipelineConfig *model.PipelineConfig, normalized *model.NormalizedPipeline, behavior string) (*model.RuntimeConfig, string, error) {
	var src config.RuntimeSources
	var err error

	if r.opts.RuntimeConfigFile != "" {
		if src.CommandLine, err = r.loader.LoadRuntimeConfig(r.opts.RuntimeConfigFile); err != nil {
			return nil, "", err
		}
	}
	src.PipelineConfig = pipelineConfig.Runtime
	if path := config.HomeRuntimePath(r.opts.Home); path != "" {
		if src.HomeDefault, err = r.loader.LoadRuntimeConfig(path); err != nil {
			return nil, "", err
		}
	}
	src.PipelineDefault = normalized.Runtime

	return config.ChooseRuntime(src, behavior)
}

// Run executes the pipeline and blocks until every unit resolves or ctx is
// cancelled. The returned report is non-nil whenever the run started.
func (r *Runner) Run(ctx context.Context) (*model.RunReport, error) {
	settings, err := config.LoadSettings(r.opts.Home)
	if err != nil {
		return nil, err
	}

	loggers, err := logging.Setup(logging.Options{
		Dir:     r.opts.LogsDir,
		RunName: r.opts.RunName,
		Level:   logging.ParseLevel(r.opts.LogLevel),
		Console: r.opts.Console,
	})
	if err != nil {
		return nil, err
	}
	defer loggers.Close()

	logger := loggers.Logger
	ctx = logging.WithLogger(ctx, logger)
	r.logHeader(logger)

	captureDir, err := os.MkdirTemp(r.opts.LogsDir, "*__flowline")
	if err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}
	defer os.RemoveAll(captureDir)

	wf, err := r.Load(ctx, captureDir, settings.NoRuntimeConfigBehavior)
	if err != nil {
		return nil, err
	}
	logger.Debug(fmt.Sprintf("Using runtime config from %s with executors %s",
		wf.RuntimeSource, strings.Join(wf.Runtime.Labels(), ", ")))

	eng, err := local.New(wf.Runtime, local.WithFunctions(r.functions), local.WithWorkDir(r.opts.WorkDir))
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	sel := schedule.Selector{
		PipelinePools:    wf.Pipeline.PoolNames(),
		BackendExecutors: eng.Executors(),
		DefaultPool:      wf.Pipeline.DefaultExecutor,
	}
	registration, err := schedule.RegisterWorkflow(ctx, wf.Graph, eng, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to register workflow: %w", err)
	}

	metrics := monitor.NewMetrics()
	mon := monitor.New(monitor.Config{
		Pipeline:        wf.Pipeline.Metadata.Name,
		RunID:           uuid.New(),
		PollInterval:    r.opts.PollInterval,
		DeleteTemporary: settings.DeleteTemporary(),
		StreamLogger:    loggers.StreamLogger,
		Metrics:         metrics,
	})
	report := mon.Watch(ctx, registration.Units, r.resolveAll(registration.Temporary), wf.Registry.Captures())

	if r.opts.ReportFile != "" {
		if err := render.WriteReport(report, r.opts.ReportFile); err != nil {
			return report, err
		}
	}
	if r.opts.MetricsFile != "" {
		if err := metrics.WriteTextfile(r.opts.MetricsFile); err != nil {
			return report, err
		}
	}
	if loggers.Path != "" {
		logger.Debug("Run log written to " + loggers.Path)
	}
	return report, nil
}

func (r *Runner) logHeader(logger *slog.Logger) {
	if len(r.opts.Command) > 0 {
		logger.Info("Executing: flowline " + strings.Join(r.opts.Command, " "))
	}

	who := "unknown"
	if u, err := user.Current(); err == nil {
		who = u.Username
	}
	host, _ := os.Hostname()
	cwd, _ := os.Getwd()
	logger.Info(fmt.Sprintf("Who and where: %s@%s:%s", who, host, cwd))

	if r.opts.RunName != "run" {
		logger.Info("Run name: " + r.opts.RunName)
	}
}

// resolveAll makes relative paths relative to the working directory.
func (r *Runner) resolveAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if filepath.IsAbs(p) {
			out[i] = p
		} else {
			out[i] = filepath.Join(r.opts.WorkDir, p)
		}
	}
	return out
}
