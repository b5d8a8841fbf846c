package render

import (
	"fmt"
	"strings"

	"github.com/sourceplane/flowline/internal/planner"
)

// GraphViewer provides human-readable visualization of a workflow graph
type GraphViewer struct {
	graph *planner.WorkflowGraph
}

// NewGraphViewer creates a new graph viewer
func NewGraphViewer(g *planner.WorkflowGraph) *GraphViewer {
	return &GraphViewer{graph: g}
}

// ViewTree returns a tree of units in dependency order, each with the units it
// depends on and the artifacts it reads and writes
func (gv *GraphViewer) ViewTree() (string, error) {
	ids, err := gv.graph.TopologicalWorkOrder()
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "No units in workflow", nil
	}

	var sb strings.Builder
	for i, id := range ids {
		bp, _ := gv.graph.Blueprint(id)
		isLastUnit := i == len(ids)-1

		unitPrefix := "├─ "
		connector := "│  "
		if isLastUnit {
			unitPrefix = "└─ "
			connector = "   "
		}

		line := fmt.Sprintf("%s%s (%s)", unitPrefix, bp.Label(), id)
		if bp.ExecutorHint != "" {
			line += fmt.Sprintf(" [%s]", bp.ExecutorHint)
		}
		sb.WriteString(line + "\n")

		var children []string
		for _, dep := range gv.graph.Prerequisites(id) {
			label := dep
			if depBp, ok := gv.graph.Blueprint(dep); ok {
				label = depBp.Label()
			}
			children = append(children, "(depends on) "+label)
		}
		for _, in := range bp.Inputs {
			children = append(children, "(reads) "+in)
		}
		for _, out := range bp.Outputs {
			entry := "(writes) " + out
			if art, ok := gv.graph.Artifact(out); ok && art.Temporary {
				entry += " [temporary]"
			}
			children = append(children, entry)
		}

		for j, child := range children {
			childPrefix := connector + "├─ "
			if j == len(children)-1 {
				childPrefix = connector + "└─ "
			}
			sb.WriteString(childPrefix + child + "\n")
		}
	}

	sb.WriteString("═══════════════════════════════════════════════════════════\n")
	sb.WriteString(fmt.Sprintf("Summary: %d units, %d artifacts\n", len(ids), len(gv.graph.Artifacts())))
	return sb.String(), nil
}

// ViewArtifacts lists every artifact with its producers and consumers
func (gv *GraphViewer) ViewArtifacts() string {
	artifacts := gv.graph.Artifacts()
	if len(artifacts) == 0 {
		return "No artifacts in workflow"
	}

	var sb strings.Builder
	sb.WriteString("Artifacts\n")
	sb.WriteString("═══════════════════════════════════════════════════════════\n\n")

	for i, art := range artifacts {
		prefix := "├─ "
		if i == len(artifacts)-1 {
			prefix = "└─ "
		}
		sb.WriteString(fmt.Sprintf("%s%s\n", prefix, art.Path))

		producers := gv.graph.Producers(art.Path)
		consumers := gv.graph.Consumers(art.Path)
		if len(producers) == 0 {
			sb.WriteString("   (external input)\n")
		} else if n := gv.graph.InDegree(art.Path); n > 1 {
			sb.WriteString(fmt.Sprintf("   produced by %s (%d producers)\n", strings.Join(producers, ", "), n))
		} else {
			sb.WriteString(fmt.Sprintf("   produced by %s\n", strings.Join(producers, ", ")))
		}
		if len(consumers) > 0 {
			sb.WriteString(fmt.Sprintf("   read by %s\n", strings.Join(consumers, ", ")))
		}
	}
	return sb.String()
}
