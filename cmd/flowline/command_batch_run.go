package main

import "github.com/spf13/cobra"

var inputMatrix string

var batchRunCmd = &cobra.Command{
	Use:   "batch-run",
	Short: "Run a pipeline once per input matrix row",
	Long:  "Run every row of a tab-separated input matrix as one instance of the pipeline. All instances share one graph and one set of executors.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, inputMatrix)
	},
}

func registerBatchRunCommand(root *cobra.Command) {
	root.AddCommand(batchRunCmd)
	addRunFlags(batchRunCmd)

	batchRunCmd.Flags().StringVar(&inputMatrix, "input-matrix", "", "Tab-separated file with a header row of parameter names")
	batchRunCmd.MarkFlagRequired("input-matrix")
}
