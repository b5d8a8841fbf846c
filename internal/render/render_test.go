package render

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sourceplane/flowline/internal/model"
	"github.com/sourceplane/flowline/internal/planner"
	"github.com/sourceplane/flowline/internal/registry"
)

func sampleReport() *model.RunReport {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &model.RunReport{
		RunID:    uuid.MustParse("2b1e7c1a-8a0e-4c55-9d43-7f9a0c2d1e11"),
		Pipeline: "variants",
		Start:    start,
		End:      start.Add(90 * time.Second),
		Elapsed:  90 * time.Second,
		Units: []model.UnitStatus{
			{ID: "bwa_0", Name: "align", Executor: "local", State: model.StateCompleted, Started: true},
			{ID: "gatk_1", Name: "call", Executor: "local", State: model.StateFailed, Started: true, Error: "exit 2"},
			{ID: "touch_2", Name: "report", Executor: "local", State: model.StatePending},
		},
		Failed:   []string{"call"},
		NeverRan: []string{"report"},
	}
}

func TestWriteReportByExtension(t *testing.T) {
	dir := t.TempDir()
	report := sampleReport()

	jsonPath := filepath.Join(dir, "out", "report.json")
	require.NoError(t, WriteReport(report, jsonPath))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "variants", decoded["pipeline"])
	assert.Equal(t, []interface{}{"call"}, decoded["failed"])

	yamlPath := filepath.Join(dir, "report.yaml")
	require.NoError(t, WriteReport(report, yamlPath))
	data, err = os.ReadFile(yamlPath)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, "1m30s", doc["elapsed"])
	assert.Equal(t, []interface{}{"report"}, doc["neverRan"])

	assert.Error(t, WriteReport(nil, jsonPath))
}

func TestSummary(t *testing.T) {
	out := Summary(sampleReport())
	assert.Contains(t, out, "Units:     3 (1 completed)")
	assert.Contains(t, out, "Failed:    call")
	assert.Contains(t, out, "Never ran: report")
	assert.NotContains(t, out, "Interrupted")
}

func sampleGraph(t *testing.T) *planner.WorkflowGraph {
	t.Helper()
	reg := registry.New(t.TempDir())
	_, err := reg.Register("bwa", &model.Blueprint{
		Name:    "align",
		Unit:    model.ShellUnit{Command: "bwa mem ref.fa reads.fq"},
		Inputs:  []string{"reads.fq"},
		Outputs: []string{"reads.sam"},
	})
	require.NoError(t, err)
	reg.Declare("reads.sam", model.ModeOutput, true)
	_, err = reg.Register("samtools", &model.Blueprint{
		Name:         "sort",
		Unit:         model.ShellUnit{Command: "samtools sort reads.sam"},
		Inputs:       []string{"reads.sam"},
		Outputs:      []string{"reads.bam"},
		ExecutorHint: "big",
	})
	require.NoError(t, err)

	g, err := planner.BuildGraph(context.Background(), reg.Blueprints(), reg)
	require.NoError(t, err)
	return g
}

func TestViewTree(t *testing.T) {
	out, err := NewGraphViewer(sampleGraph(t)).ViewTree()
	require.NoError(t, err)

	assert.Contains(t, out, "├─ align (bwa_0)\n")
	assert.Contains(t, out, "│  ├─ (reads) reads.fq\n")
	assert.Contains(t, out, "│  └─ (writes) reads.sam [temporary]\n")
	assert.Contains(t, out, "└─ sort (samtools_1) [big]\n")
	assert.Contains(t, out, "   ├─ (depends on) align\n")
	assert.Contains(t, out, "Summary: 2 units, 3 artifacts")
}

func TestViewArtifacts(t *testing.T) {
	out := NewGraphViewer(sampleGraph(t)).ViewArtifacts()

	assert.Contains(t, out, "├─ reads.fq\n   (external input)\n   read by bwa_0\n")
	assert.Contains(t, out, "produced by bwa_0")
	assert.Contains(t, out, "└─ reads.bam\n   produced by samtools_1\n")
}

func TestViewArtifactsFlagsSharedOutputs(t *testing.T) {
	reg := registry.New(t.TempDir())
	for _, prefix := range []string{"touch", "touch"} {
		_, err := reg.Register(prefix, &model.Blueprint{
			Unit:    model.ShellUnit{Command: "touch shared.txt"},
			Outputs: []string{"shared.txt"},
		})
		require.NoError(t, err)
	}
	g, err := planner.BuildGraph(context.Background(), reg.Blueprints(), reg)
	require.NoError(t, err)

	out := NewGraphViewer(g).ViewArtifacts()
	assert.Contains(t, out, "└─ shared.txt\n   produced by touch_0, touch_1 (2 producers)\n")
}
