package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sourceplane/flowline/internal/render"
)

var (
	graphFormat string
	graphOutput string
	graphMatrix string
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the workflow graph of a pipeline",
	Long:  "Assemble the pipeline and print its workflow graph as a tree, an artifact listing, Graphviz DOT or cytoscape JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showGraph(cmd)
	},
}

func registerGraphCommand(root *cobra.Command) {
	root.AddCommand(graphCmd)

	graphCmd.Flags().StringVarP(&graphFormat, "format", "f", "tree", "Output format (tree/artifacts/dot/json)")
	graphCmd.Flags().StringVarP(&graphOutput, "output", "o", "", "Write to file instead of stdout")
	graphCmd.Flags().StringVar(&graphMatrix, "input-matrix", "", "Assemble one instance per input matrix row")
	graphCmd.Flags().StringArrayVar(&setParams, "set", nil, "Override a pipeline parameter (key=value, repeatable)")
}

func showGraph(cmd *cobra.Command) error {
	wf, err := assemble(cmd, graphMatrix)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if graphOutput != "" {
		f, err := os.Create(graphOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", graphOutput, err)
		}
		defer f.Close()
		w = f
	}

	viewer := render.NewGraphViewer(wf.Graph)
	switch graphFormat {
	case "tree":
		tree, err := viewer.ViewTree()
		if err != nil {
			return err
		}
		fmt.Fprint(w, tree)
	case "artifacts":
		fmt.Fprint(w, viewer.ViewArtifacts())
	case "dot":
		if err := wf.Graph.WriteDOT(w); err != nil {
			return fmt.Errorf("failed to render DOT: %w", err)
		}
	case "json":
		data, err := wf.Graph.JSON()
		if err != nil {
			return fmt.Errorf("failed to render JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))
	default:
		return fmt.Errorf("unknown graph format %q", graphFormat)
	}

	if graphOutput != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved to: %s\n", graphOutput)
	}
	return nil
}
