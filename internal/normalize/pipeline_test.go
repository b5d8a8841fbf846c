package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/flowline/internal/model"
)

func pipeline(steps ...model.Step) *model.Pipeline {
	return &model.Pipeline{
		Metadata: model.Metadata{Name: "p"},
		Spec: model.PipelineSpec{
			Executors:       map[string]model.ExecutorPool{"small": {}, "big": {}},
			DefaultExecutor: "small",
			Steps:           steps,
		},
	}
}

func TestNormalizePipelineDefaults(t *testing.T) {
	n, err := NormalizePipeline(pipeline(
		model.Step{Name: "a", Software: "bwa"},
		model.Step{Name: "b", Function: "touch", Executor: "big", WaitOn: []string{"a"}},
	))
	require.NoError(t, err)

	a, ok := n.Step("a")
	require.True(t, ok)
	assert.Equal(t, "small", a.Executor)
	assert.NotNil(t, a.Kwargs)
	assert.NotNil(t, n.Parameters)

	b, _ := n.Step("b")
	assert.Equal(t, "big", b.Executor)
	assert.Equal(t, 1, n.StepIndex["b"])
	assert.ElementsMatch(t, []string{"small", "big"}, n.PoolNames())
}

func TestNormalizePipelineErrors(t *testing.T) {
	tests := map[string]*model.Pipeline{
		"unnamed step":     pipeline(model.Step{Software: "x"}),
		"duplicate":        pipeline(model.Step{Name: "a", Software: "x"}, model.Step{Name: "a", Software: "x"}),
		"both kinds":       pipeline(model.Step{Name: "a", Software: "x", Function: "touch"}),
		"no kind":          pipeline(model.Step{Name: "a"}),
		"unknown wait":     pipeline(model.Step{Name: "a", Software: "x", WaitOn: []string{"ghost"}}),
		"self wait":        pipeline(model.Step{Name: "a", Software: "x", WaitOn: []string{"a"}}),
		"unknown default":  {Metadata: model.Metadata{Name: "p"}, Spec: model.PipelineSpec{Executors: map[string]model.ExecutorPool{"a": {}}, DefaultExecutor: "zz", Steps: []model.Step{{Name: "a", Software: "x"}}}},
		"unnamed pipeline": {Spec: model.PipelineSpec{Steps: []model.Step{{Name: "a", Software: "x"}}}},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NormalizePipeline(p)
			assert.Error(t, err)
		})
	}

	_, err := NormalizePipeline(nil)
	assert.Error(t, err)
}
