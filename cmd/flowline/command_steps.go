package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sourceplane/flowline/internal/expand"
)

var stepsCmd = &cobra.Command{
	Use:     "steps [step-name]",
	Aliases: []string{"step"},
	Short:   "List and analyze pipeline steps",
	Long:    "List all steps with their kind and executor. Use 'flowline steps <name>' for inputs, outputs and dependencies.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listSteps(cmd, args)
	},
}

func registerStepsCommand(root *cobra.Command) {
	root.AddCommand(stepsCmd)

	stepsCmd.Flags().BoolVarP(&longFormat, "long", "l", false, "Show detailed information")
}

func listSteps(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	normalized, err := loadNormalized()
	if err != nil {
		return err
	}
	analyzer := expand.NewStepAnalyzer(normalized)

	if len(args) > 0 {
		step, err := analyzer.GetStepByName(args[0])
		if err != nil {
			return err
		}
		printStepDetails(out, step)
		return nil
	}

	steps := analyzer.ListAll()
	fmt.Fprintln(out, "Steps:")
	for _, step := range steps {
		if longFormat {
			printStepDetails(out, step)
			continue
		}
		fmt.Fprintf(out, "  %s (%s: %s, executor: %s, dependencies: %d)\n",
			step.Name, step.Kind, step.Target, orDash(step.Executor), len(step.DependsOn))
	}

	if !longFormat {
		fmt.Fprintln(out, "\nRun 'flowline steps <name>' for detailed information")
	}
	return nil
}

func printStepDetails(out io.Writer, step *expand.StepSummary) {
	fmt.Fprintf(out, "\n[Step] %s\n", step.Name)
	fmt.Fprintf(out, "  Kind:       %s\n", step.Kind)
	fmt.Fprintf(out, "  Target:     %s\n", step.Target)
	fmt.Fprintf(out, "  Executor:   %s\n", orDash(step.Executor))

	if len(step.Inputs) > 0 {
		fmt.Fprintf(out, "  Inputs:     %s\n", strings.Join(step.Inputs, ", "))
	}
	if len(step.Outputs) > 0 {
		fmt.Fprintf(out, "  Outputs:\n")
		for _, o := range step.Outputs {
			if o.Temporary {
				fmt.Fprintf(out, "    %s (temporary)\n", o.Path)
			} else {
				fmt.Fprintf(out, "    %s\n", o.Path)
			}
		}
	}
	if len(step.DependsOn) > 0 {
		fmt.Fprintf(out, "  Depends on: %s\n", strings.Join(step.DependsOn, ", "))
	}
	if len(step.NeededBy) > 0 {
		fmt.Fprintf(out, "  Needed by:  %s\n", strings.Join(step.NeededBy, ", "))
	}
	if len(step.Upstream) > len(step.DependsOn) {
		fmt.Fprintf(out, "  Upstream:   %s\n", strings.Join(step.Upstream, ", "))
	}
	if len(step.Downstream) > len(step.NeededBy) {
		fmt.Fprintf(out, "  Downstream: %s\n", strings.Join(step.Downstream, ", "))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
