package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a pipeline and assemble its graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		return validatePipeline(cmd)
	},
}

func registerValidateCommand(root *cobra.Command) {
	root.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&runtimeConfigFile, "runtime-config", "", "Runtime config file to validate with the pipeline")
	validateCmd.Flags().StringArrayVar(&setParams, "set", nil, "Override a pipeline parameter (key=value, repeatable)")
}

func validatePipeline(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "□ Validating pipeline...")
	if _, err := loadNormalized(); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Pipeline is valid")

	fmt.Fprintln(out, "□ Assembling workflow graph...")
	wf, err := assemble(cmd, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ %d units, %d artifacts, runtime from %s\n", len(wf.Assembly.IDs), len(wf.Graph.Artifacts()), wf.RuntimeSource)

	fmt.Fprintln(out, "✓ All validation passed")
	return nil
}
