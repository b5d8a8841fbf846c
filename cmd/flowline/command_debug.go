package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debug pipeline processing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return debugPipeline(cmd)
	},
}

func registerDebugCommand(root *cobra.Command) {
	root.AddCommand(debugCmd)

	debugCmd.Flags().StringVar(&runtimeConfigFile, "runtime-config", "", "Runtime config file")
}

func debugPipeline(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "□ Loading and normalizing...")

	wf, err := assemble(cmd, "")
	if err != nil {
		return err
	}
	p := wf.Pipeline

	fmt.Fprintf(out, "\nMetadata: %+v\n", p.Metadata)

	fmt.Fprintf(out, "Parameters: %d\n", len(p.Parameters))
	for _, k := range sortedKeys(p.Parameters) {
		fmt.Fprintf(out, "  - %s: %v\n", k, p.Parameters[k])
	}

	fmt.Fprintf(out, "Software: %d\n", len(p.Software))
	for name, sw := range p.Software {
		resolved := sw.Path
		if cfg, ok := wf.Config.Software[name]; ok && resolved == "" {
			resolved = cfg.Path + " (pipeline config)"
		}
		fmt.Fprintf(out, "  - %s: path=%s, subprogram=%s, successOn=%v\n", name, resolved, sw.Subprogram, sw.SuccessOn)
	}

	fmt.Fprintf(out, "Executor pools: %d (default: %s)\n", len(p.Executors), orDash(p.DefaultExecutor))
	for _, name := range p.PoolNames() {
		fmt.Fprintf(out, "  - %s: resources=%v\n", name, p.Executors[name].Resources)
	}

	fmt.Fprintf(out, "Runtime (%s): %v\n", wf.RuntimeSource, wf.Runtime.Labels())

	fmt.Fprintf(out, "Steps: %d\n", len(p.Steps))
	for _, step := range p.Steps {
		fmt.Fprintf(out, "  - %s: kind=%s, executor=%s, inputs=%d, outputs=%d, waitOn=%v\n",
			step.Name, step.Kind(), orDash(step.Executor), len(step.Inputs), len(step.Outputs), step.WaitOn)
	}

	fmt.Fprintf(out, "Graph: %d nodes, %d artifacts\n", wf.Graph.Order(), len(wf.Graph.Artifacts()))
	for _, art := range wf.Graph.Artifacts() {
		if n := wf.Graph.InDegree(art.Path); n > 1 {
			fmt.Fprintf(out, "  - %s: %d producers %v\n", art.Path, n, wf.Graph.Producers(art.Path))
		}
	}

	fmt.Fprintf(out, "Units: %d\n", len(wf.Assembly.IDs))
	for _, id := range wf.Assembly.IDs {
		bp, _ := wf.Registry.Get(id)
		fmt.Fprintf(out, "  - %s: %s, prerequisites=%v\n", id, bp.Label(), wf.Graph.Prerequisites(id))
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
