package runner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/flowline/internal/model"
)

const gatherPipeline = `
apiVersion: sourceplane.io/v1
kind: Pipeline
metadata:
  name: gather
spec:
  parameters:
    sample: s1
  steps:
    - name: part-a
      function: touch
      outputs: ["{{.sample}}.a"]
    - name: part-b
      function: touch
      outputs:
        - path: "{{.sample}}.b"
          temporary: true
    - name: part-c
      function: touch
      outputs: ["{{.sample}}.c"]
    - name: merge
      function: concat
      inputs: ["{{.sample}}.a", "{{.sample}}.b", "{{.sample}}.c"]
      outputs: ["{{.sample}}.merged"]
`

const missingPipeline = `
apiVersion: sourceplane.io/v1
kind: Pipeline
metadata:
  name: missing
spec:
  steps:
    - name: ghost
      function: echo
      args: [hello]
      outputs: [never.txt]
    - name: after-ghost
      function: touch
      inputs: [never.txt]
      outputs: [after.txt]
    - name: sibling
      function: touch
      outputs: [sibling.txt]
`

func newRunner(t *testing.T, doc string, console *bytes.Buffer, mutate func(*Options)) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	pipelineFile := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(pipelineFile, []byte(doc), 0644))

	workDir := filepath.Join(dir, "work")
	require.NoError(t, os.MkdirAll(workDir, 0755))

	opts := Options{
		PipelineFile: pipelineFile,
		Home:         filepath.Join(dir, "home"),
		WorkDir:      workDir,
		LogsDir:      filepath.Join(dir, "logs"),
		PollInterval: time.Millisecond,
		Console:      console,
		Command:      []string{"run", "-p", pipelineFile},
	}
	if mutate != nil {
		mutate(&opts)
	}
	r, err := NewRunner(opts)
	require.NoError(t, err)
	return r, workDir
}

func TestRunGatherPipeline(t *testing.T) {
	var console bytes.Buffer
	reportFile := filepath.Join(t.TempDir(), "report.json")
	r, workDir := newRunner(t, gatherPipeline, &console, func(o *Options) {
		o.ReportFile = reportFile
		o.MetricsFile = filepath.Join(filepath.Dir(reportFile), "flowline.prom")
	})

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.True(t, report.Succeeded())
	assert.Len(t, report.Units, 4)
	assert.Empty(t, report.Failed)
	assert.Empty(t, report.NeverRan)

	assert.FileExists(t, filepath.Join(workDir, "s1.merged"))
	assert.FileExists(t, filepath.Join(workDir, "s1.a"))
	assert.NoFileExists(t, filepath.Join(workDir, "s1.b"))
	assert.True(t, report.TemporaryDeleted)

	assert.FileExists(t, reportFile)
	assert.FileExists(t, filepath.Join(filepath.Dir(reportFile), "flowline.prom"))

	out := console.String()
	assert.Contains(t, out, "Executing: flowline run -p")
	assert.Contains(t, out, "Who and where: ")
	assert.Contains(t, out, "Started pipeline run\n@operon_start ")
	assert.Contains(t, out, "Failed apps: None")
	assert.Contains(t, out, "Apps never ran: None")
	assert.NotContains(t, out, "Run name:")
}

func TestRunMissingOutputs(t *testing.T) {
	var console bytes.Buffer
	r, workDir := newRunner(t, missingPipeline, &console, func(o *Options) { o.RunName = "nightly" })

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Succeeded())
	assert.Equal(t, []string{"echo_0", "touch_1"}, report.Failed)
	assert.FileExists(t, filepath.Join(workDir, "sibling.txt"))

	status := map[string]model.RunState{}
	for _, u := range report.Units {
		status[u.Name] = u.State
	}
	assert.Equal(t, model.StateCompleted, status["sibling"])

	out := console.String()
	assert.Contains(t, out, "Run name: nightly")
	assert.Contains(t, out, "ghost did not produce expected outputs")
	assert.Contains(t, out, "after-ghost had a dependency fail")
	assert.Contains(t, out, "Failed apps: echo_0 touch_1")

	var captured []string
	for _, c := range report.Captured {
		if c.Stream == "stdout" && strings.Contains(c.Content, "hello") {
			captured = append(captured, c.Unit)
		}
	}
	assert.Equal(t, []string{"echo_0"}, captured)
}

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	matrix := filepath.Join(dir, "matrix.tsv")
	require.NoError(t, os.WriteFile(matrix, []byte("sample\nA\nB\n"), 0644))

	r, workDir := newRunner(t, gatherPipeline, &bytes.Buffer{}, func(o *Options) { o.InputMatrix = matrix })

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Succeeded())
	assert.Len(t, report.Units, 8)
	assert.FileExists(t, filepath.Join(workDir, "A.merged"))
	assert.FileExists(t, filepath.Join(workDir, "B.merged"))

	_, ok := report.Status("touch_4")
	assert.True(t, ok)
}

func TestLoadFailsWhenRuntimeRequired(t *testing.T) {
	r, _ := newRunner(t, gatherPipeline, &bytes.Buffer{}, nil)

	_, err := r.Load(context.Background(), t.TempDir(), "fail")
	assert.Error(t, err)

	wf, err := r.Load(context.Background(), t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, "built-in default", wf.RuntimeSource)
	assert.Len(t, wf.Assembly.IDs, 4)
	assert.Equal(t, 4, len(wf.Graph.WorkIDs()))
}

func TestNewRunnerRequiresPipeline(t *testing.T) {
	_, err := NewRunner(Options{})
	assert.Error(t, err)
}
