package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourceplane/flowline/internal/render"
	"github.com/sourceplane/flowline/internal/runner"
)

var (
	workDir     string
	logsDir     string
	runName     string
	reportFile  string
	metricsFile string
)

var errRunFailed = errors.New("pipeline run did not complete")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a pipeline",
	Long:  "Assemble the pipeline into a workflow graph, schedule every unit on the configured executors and wait for the run to finish.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, "")
	},
}

func registerRunCommand(root *cobra.Command) {
	root.AddCommand(runCmd)
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runtimeConfigFile, "runtime-config", "", "Runtime config file (executor labels and workers)")
	cmd.Flags().StringArrayVar(&setParams, "set", nil, "Override a pipeline parameter (key=value, repeatable)")
	cmd.Flags().StringVar(&workDir, "workdir", ".", "Working directory for units")
	cmd.Flags().StringVar(&logsDir, "logs-dir", ".", "Directory for the run log")
	cmd.Flags().StringVar(&runName, "run-name", "run", "Name of the run, used in the log file name")
	cmd.Flags().StringVar(&reportFile, "report", "", "Write the run report to this file (json or yaml)")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
}

func runPipeline(cmd *cobra.Command, matrix string) error {
	r, err := newRunner(func(o *runner.Options) {
		o.InputMatrix = matrix
		o.WorkDir = workDir
		o.LogsDir = logsDir
		o.RunName = runName
		o.ReportFile = reportFile
		o.MetricsFile = metricsFile
		o.Console = cmd.ErrOrStderr()
	})
	if err != nil {
		return err
	}

	report, err := r.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), render.Summary(report))
	if !report.Succeeded() {
		return errRunFailed
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Run complete")
	return nil
}
