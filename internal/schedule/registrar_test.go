package schedule

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/flowline/internal/engine"
	"github.com/sourceplane/flowline/internal/engine/enginetest"
	"github.com/sourceplane/flowline/internal/model"
	"github.com/sourceplane/flowline/internal/planner"
	"github.com/sourceplane/flowline/internal/registry"
)

func shellBP(id string, inputs, outputs []string, waitOn ...string) *model.Blueprint {
	return &model.Blueprint{ID: id, Unit: model.ShellUnit{Command: id}, Inputs: inputs, Outputs: outputs, WaitOn: waitOn}
}

func build(t *testing.T, bps ...*model.Blueprint) *planner.WorkflowGraph {
	t.Helper()
	g, err := planner.BuildGraph(context.Background(), bps, nil)
	require.NoError(t, err)
	return g
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

func TestRegisterDiamondExactlyOnce(t *testing.T) {
	g := build(t,
		shellBP("d", []string{"b.out", "c.out"}, nil),
		shellBP("b", []string{"a.out"}, []string{"b.out"}),
		shellBP("c", []string{"a.out"}, []string{"c.out"}),
		shellBP("a", nil, []string{"a.out"}),
	)
	eng := enginetest.New("local")

	reg, err := RegisterWorkflow(context.Background(), g, eng, Selector{})
	require.NoError(t, err)

	order := eng.Order()
	require.Len(t, order, 4)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, order)
	assert.Equal(t, 0, indexOf(order, "a"))
	assert.Equal(t, 3, indexOf(order, "d"))
	require.Len(t, reg.Units, 4)
	for i, u := range reg.Units {
		assert.Equal(t, order[i], u.ID)
		assert.Equal(t, "all", u.Executor)
	}
}

func TestRegisterChainIsMonotonic(t *testing.T) {
	g := build(t,
		shellBP("c", []string{"b.out"}, nil),
		shellBP("a", nil, []string{"a.out"}),
		shellBP("b", []string{"a.out"}, []string{"b.out"}),
	)
	eng := enginetest.New()

	_, err := RegisterWorkflow(context.Background(), g, eng, Selector{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, eng.Order())
}

func TestRegisterPassesDependencies(t *testing.T) {
	g := build(t,
		shellBP("w", nil, nil),
		shellBP("p", nil, []string{"mid.txt"}),
		shellBP("c", []string{"raw.txt", "mid.txt"}, nil, "w"),
	)
	eng := enginetest.New()

	_, err := RegisterWorkflow(context.Background(), g, eng, Selector{})
	require.NoError(t, err)

	subs := eng.Submissions()
	var consumer enginetest.Submission
	for _, s := range subs {
		if s.ID == "c" {
			consumer = s
		}
	}
	require.Len(t, consumer.Inputs, 3)

	assert.Equal(t, "raw.txt", consumer.Inputs[0].Path)
	assert.Nil(t, consumer.Inputs[0].Handle)

	assert.Equal(t, "mid.txt", consumer.Inputs[1].Path)
	require.NotNil(t, consumer.Inputs[1].Handle)
	assert.Same(t, eng.Future("p").Outputs()["mid.txt"], consumer.Inputs[1].Handle)

	assert.Empty(t, consumer.Inputs[2].Path)
	assert.Equal(t, engine.Handle(eng.Future("w")), consumer.Inputs[2].Handle)

	assert.Less(t, indexOf(eng.Order(), "w"), indexOf(eng.Order(), "c"))
	assert.Less(t, indexOf(eng.Order(), "p"), indexOf(eng.Order(), "c"))
}

func TestRegisterFirstProducerWins(t *testing.T) {
	g := build(t,
		shellBP("p1", nil, []string{"shared"}),
		shellBP("p2", nil, []string{"shared"}),
		shellBP("c", []string{"shared"}, nil),
	)
	eng := enginetest.New()

	_, err := RegisterWorkflow(context.Background(), g, eng, Selector{})
	require.NoError(t, err)

	assert.Equal(t, []string{"p1", "p2", "c"}, eng.Order())
	subs := eng.Submissions()
	assert.Equal(t, eng.Future("p1").Outputs()["shared"], subs[2].Inputs[0].Handle)
}

func TestRegisterCollectsTemporaryArtifacts(t *testing.T) {
	reg := registry.New(t.TempDir())
	reg.Declare("tmp.sam", model.ModeOutput, true)
	g, err := planner.BuildGraph(context.Background(), []*model.Blueprint{
		shellBP("a", nil, []string{"tmp.sam", "keep.txt"}),
		shellBP("b", []string{"tmp.sam"}, []string{"final.bam"}),
	}, reg)
	require.NoError(t, err)

	res, err := RegisterWorkflow(context.Background(), g, enginetest.New(), Selector{})
	require.NoError(t, err)
	assert.Equal(t, []string{"tmp.sam"}, res.Temporary)
}

func TestRegisterUsesSelector(t *testing.T) {
	a := shellBP("a", nil, nil)
	a.ExecutorHint = "big"
	b := shellBP("b", nil, nil)
	b.ExecutorHint = "missing"
	g := build(t, a, b)
	eng := enginetest.New("small", "big")

	res, err := RegisterWorkflow(context.Background(), g, eng, Selector{
		PipelinePools:    []string{"small", "big"},
		BackendExecutors: eng.Executors(),
		DefaultPool:      "small",
	})
	require.NoError(t, err)
	assert.Equal(t, "big", res.Units[0].Executor)
	assert.Equal(t, "small", res.Units[1].Executor)
	assert.Equal(t, "big", eng.Submissions()[0].Executor)
}

func TestRegisterFunctionUnits(t *testing.T) {
	g := build(t, &model.Blueprint{ID: "concat_0", Unit: model.FunctionUnit{Name: "concat"}, Outputs: []string{"out"}})
	eng := enginetest.New()

	_, err := RegisterWorkflow(context.Background(), g, eng, Selector{})
	require.NoError(t, err)
	assert.Equal(t, model.KindFunction, eng.Submissions()[0].Kind)
}

func TestRegisterSubmitErrorAborts(t *testing.T) {
	g := build(t, shellBP("a", nil, []string{"x"}), shellBP("b", []string{"x"}, nil))
	eng := enginetest.New()
	eng.RejectSubmit("a", errors.New("queue full"))

	_, err := RegisterWorkflow(context.Background(), g, eng, Selector{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
	assert.Empty(t, eng.Order())
}

// cyclicGraph bypasses the builder's cycle check.
type cyclicGraph map[string]*model.Blueprint

func (c cyclicGraph) WorkIDs() []string { return []string{"a", "b", "c"} }
func (c cyclicGraph) Blueprint(id string) (*model.Blueprint, bool) {
	bp, ok := c[id]
	return bp, ok
}
func (c cyclicGraph) Artifact(path string) (model.Artifact, bool) { return model.Artifact{Path: path}, true }
func (c cyclicGraph) Producers(path string) []string {
	for _, id := range c.WorkIDs() {
		for _, out := range c[id].Outputs {
			if out == path {
				return []string{id}
			}
		}
	}
	return nil
}

func TestRegisterDetectsCycle(t *testing.T) {
	g := cyclicGraph{
		"a": shellBP("a", []string{"c.out"}, []string{"a.out"}),
		"b": shellBP("b", []string{"a.out"}, []string{"b.out"}),
		"c": shellBP("c", []string{"b.out"}, []string{"c.out"}),
	}
	eng := enginetest.New()

	_, err := RegisterWorkflow(context.Background(), g, eng, Selector{})
	require.Error(t, err)
	assert.ErrorIs(t, err, planner.ErrCycle)
	assert.Contains(t, err.Error(), "a -> c -> b -> a")
	assert.Empty(t, eng.Order())
}
