package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/flowline/internal/logging"
	"github.com/sourceplane/flowline/internal/model"
	"github.com/sourceplane/flowline/internal/registry"
)

func bp(id string, inputs, outputs []string, waitOn ...string) *model.Blueprint {
	return &model.Blueprint{
		ID:      id,
		Unit:    model.ShellUnit{Command: "true"},
		Inputs:  inputs,
		Outputs: outputs,
		WaitOn:  waitOn,
	}
}

func TestBuildGraphDeduplicatesArtifactsByPath(t *testing.T) {
	g, err := BuildGraph(context.Background(), []*model.Blueprint{
		bp("a", nil, []string{"x.txt"}),
		bp("b", []string{"x.txt"}, []string{"y.txt"}),
		bp("c", []string{"x.txt", "y.txt"}, nil),
	}, nil)
	require.NoError(t, err)

	var paths []string
	for _, a := range g.Artifacts() {
		paths = append(paths, a.Path)
	}
	assert.Equal(t, []string{"x.txt", "y.txt"}, paths)
	assert.Equal(t, 5, g.Order())
	assert.Equal(t, []string{"b", "c"}, g.Consumers("x.txt"))
	assert.Equal(t, 1, g.InDegree("x.txt"))
}

func TestBuildGraphCopiesArtifactDeclarations(t *testing.T) {
	reg := registry.New(t.TempDir())
	reg.Declare("tmp.bam", model.ModeOutput, true)

	g, err := BuildGraph(context.Background(), []*model.Blueprint{bp("a", nil, []string{"tmp.bam"})}, reg)
	require.NoError(t, err)

	a, ok := g.Artifact("tmp.bam")
	require.True(t, ok)
	assert.True(t, a.Temporary)
	assert.Equal(t, model.ModeOutput, a.Mode)
}

func TestBuildGraphRejectsUnknownWaitOn(t *testing.T) {
	_, err := BuildGraph(context.Background(), []*model.Blueprint{bp("a", nil, nil, "ghost_9")}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidGraph))
	assert.Contains(t, err.Error(), "ghost_9")
}

func TestBuildGraphRejectsDuplicateIDs(t *testing.T) {
	_, err := BuildGraph(context.Background(), []*model.Blueprint{bp("a", nil, nil), bp("a", nil, nil)}, nil)
	require.ErrorIs(t, err, ErrInvalidGraph)
}

func TestBuildGraphDetectsCycles(t *testing.T) {
	tests := []struct {
		name       string
		blueprints []*model.Blueprint
	}{
		{
			name: "through artifacts",
			blueprints: []*model.Blueprint{
				bp("a", []string{"y"}, []string{"x"}),
				bp("b", []string{"x"}, []string{"y"}),
			},
		},
		{
			name: "through wait_on",
			blueprints: []*model.Blueprint{
				bp("a", nil, nil, "b"),
				bp("b", nil, nil, "a"),
			},
		},
		{
			name:       "self wait",
			blueprints: []*model.Blueprint{bp("a", nil, nil, "a")},
		},
		{
			name:       "reads own output",
			blueprints: []*model.Blueprint{bp("a", []string{"x"}, []string{"x"})},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildGraph(context.Background(), tt.blueprints, nil)
			require.Error(t, err)
			var ge *GraphError
			require.True(t, errors.As(err, &ge))
			assert.ErrorIs(t, err, ErrCycle)
			assert.Contains(t, err.Error(), "a")
		})
	}
}

func TestPrerequisitesListProducersThenWaitOn(t *testing.T) {
	g, err := BuildGraph(context.Background(), []*model.Blueprint{
		bp("p1", nil, []string{"shared"}),
		bp("p2", nil, []string{"shared"}),
		bp("w", nil, nil),
		bp("c", []string{"shared", "raw.txt"}, nil, "w"),
	}, nil)
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"p1", "p2", "w"}, g.Prerequisites("c")); diff != "" {
		t.Fatalf("prerequisites mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, g.Producers("raw.txt"))
}

func TestTopologicalWorkOrder(t *testing.T) {
	g, err := BuildGraph(context.Background(), []*model.Blueprint{
		bp("c", []string{"b.out"}, nil),
		bp("b", []string{"a.out"}, []string{"b.out"}),
		bp("a", nil, []string{"a.out"}),
	}, nil)
	require.NoError(t, err)

	order, err := g.TopologicalWorkOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestJSONExport(t *testing.T) {
	g, err := BuildGraph(context.Background(), []*model.Blueprint{bp("a", []string{"in"}, []string{"out"})}, nil)
	require.NoError(t, err)

	raw, err := g.JSON()
	require.NoError(t, err)

	var doc struct {
		Nodes []struct {
			Data map[string]any `json:"data"`
		} `json:"nodes"`
		Edges []struct {
			Data map[string]string `json:"data"`
		} `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Nodes, 3)
	assert.Equal(t, "a", doc.Nodes[0].Data["id"])
	assert.Equal(t, true, doc.Nodes[0].Data["haveblueprint"])
	assert.Equal(t, "artifact", doc.Nodes[1].Data["type"])
	require.Len(t, doc.Edges, 2)
	assert.Equal(t, map[string]string{"source": "in", "target": "a"}, doc.Edges[0].Data)
	assert.Equal(t, map[string]string{"source": "a", "target": "out"}, doc.Edges[1].Data)
}

func TestWriteDOT(t *testing.T) {
	g, err := BuildGraph(context.Background(), []*model.Blueprint{bp("a", nil, []string{"out"})}, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, g.WriteDOT(&buf))
	assert.Contains(t, buf.String(), "digraph")
	assert.Contains(t, buf.String(), "work:a")
}

func TestBuildGraphWarnsOnSharedOutputs(t *testing.T) {
	var logs bytes.Buffer
	ctx := logging.WithLogger(context.Background(), slog.New(logging.NewHandler(&logs, logging.LoggerName, slog.LevelInfo)))

	g, err := BuildGraph(ctx, []*model.Blueprint{
		bp("a", nil, []string{"shared.txt"}),
		bp("b", nil, []string{"shared.txt"}),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, g.InDegree("shared.txt"))
	assert.Contains(t, logs.String(), "artifact has more than one producer")
	assert.Contains(t, logs.String(), "producers=a,b")
}
