package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sourceplane/flowline/internal/config"
	"github.com/sourceplane/flowline/internal/logging"
)

var (
	pipelineFile       string
	pipelineConfigFile string
	runtimeConfigFile  string
	logLevel           string
	setParams          []string
	longFormat         bool
)

var rootCmd = &cobra.Command{
	Use:   "flowline",
	Short: "Workflow engine: Pipeline → task graph → run",
	Long:  "flowline assembles pipeline steps into a dependency graph of work units and artifacts, schedules them on executor pools and monitors the run",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		slog.SetDefault(slog.New(logging.NewHandler(cmd.ErrOrStderr(), logging.LoggerName, logging.ParseLevel(resolvedLogLevel()))))
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&pipelineFile, "pipeline", "p", "pipeline.yaml", "Pipeline definition file")
	rootCmd.PersistentFlags().StringVar(&pipelineConfigFile, "pipeline-config", "", "Pipeline config file (software paths, runtime)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug/info/warn/error)")

	registerRunCommand(rootCmd)
	registerBatchRunCommand(rootCmd)
	registerValidateCommand(rootCmd)
	registerGraphCommand(rootCmd)
	registerStepsCommand(rootCmd)
	registerDebugCommand(rootCmd)
	registerSettingsCommand(rootCmd)
}

// resolvedLogLevel prefers the flag, then the environment, then info.
func resolvedLogLevel() string {
	if logLevel != "" {
		return logLevel
	}
	return config.LogLevel("info")
}
