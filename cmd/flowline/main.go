package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sourceplane/flowline/internal/config"
	"github.com/sourceplane/flowline/internal/expand"
	"github.com/sourceplane/flowline/internal/loader"
	"github.com/sourceplane/flowline/internal/model"
	"github.com/sourceplane/flowline/internal/normalize"
	"github.com/sourceplane/flowline/internal/runner"
)

func main() {
	config.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// newRunner builds a runner from the global and run flags.
func newRunner(extra func(*runner.Options)) (*runner.Runner, error) {
	overrides, err := expand.ParseOverrides(setParams)
	if err != nil {
		return nil, err
	}
	opts := runner.Options{
		PipelineFile:       pipelineFile,
		PipelineConfigFile: pipelineConfigFile,
		RuntimeConfigFile:  runtimeConfigFile,
		Overrides:          overrides,
		LogLevel:           resolvedLogLevel(),
		Command:            os.Args[1:],
	}
	if extra != nil {
		extra(&opts)
	}
	return runner.NewRunner(opts)
}

// assemble loads the pipeline and builds its graph without running it.
func assemble(cmd *cobra.Command, matrix string) (*runner.Workflow, error) {
	settings, err := config.LoadSettings(config.Home())
	if err != nil {
		return nil, err
	}
	r, err := newRunner(func(o *runner.Options) { o.InputMatrix = matrix })
	if err != nil {
		return nil, err
	}
	return r.Load(cmd.Context(), filepath.Join(os.TempDir(), "flowline"), settings.NoRuntimeConfigBehavior)
}

func loadNormalized() (*model.NormalizedPipeline, error) {
	l, err := loader.New()
	if err != nil {
		return nil, err
	}
	pipeline, err := l.LoadPipeline(pipelineFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline: %w", err)
	}
	normalized, err := normalize.NormalizePipeline(pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize pipeline: %w", err)
	}
	return normalized, nil
}
