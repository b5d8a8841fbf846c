package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/flowline/internal/model"
)

func shell(cmd string) model.Unit { return model.ShellUnit{Command: cmd} }

func TestRegisterAssignsSequentialIDs(t *testing.T) {
	r := New("/tmp/caps")

	id0, err := r.Register("/usr/bin/bwa", &model.Blueprint{Unit: shell("bwa")})
	require.NoError(t, err)
	id1, err := r.Register("concat", &model.Blueprint{Unit: model.FunctionUnit{Name: "concat"}})
	require.NoError(t, err)

	assert.Equal(t, "bwa_0", id0)
	assert.Equal(t, "concat_1", id1)
	assert.Equal(t, 2, r.Len())
}

func TestRegisterDefaultsStreamsToCaptureDir(t *testing.T) {
	r := New("/tmp/caps")
	id, err := r.Register("tool", &model.Blueprint{Name: "align", Unit: shell("x"), Stderr: "/logs/align.err"})
	require.NoError(t, err)

	bp, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, filepath.Join("/tmp/caps", id+".stdout"), bp.Stdout)
	assert.Equal(t, "/logs/align.err", bp.Stderr)

	caps := r.Captures()
	require.Len(t, caps, 1)
	assert.Equal(t, Capture{ID: id, Name: "align", Stream: "stdout", Path: bp.Stdout}, caps[0])
}

func TestRegisterRejectsMissingUnit(t *testing.T) {
	r := New(t.TempDir())
	_, err := r.Register("x", &model.Blueprint{Name: "empty"})
	require.Error(t, err)
	_, err = r.Register("x", nil)
	require.Error(t, err)
}

func TestDeclareLastModeWinsAndTemporaryIsSticky(t *testing.T) {
	r := New(t.TempDir())
	r.Declare("a.bam", model.ModeOutput, true)
	_, err := r.Register("sort", &model.Blueprint{Unit: shell("sort"), Inputs: []string{"a.bam"}})
	require.NoError(t, err)

	a, ok := r.Artifact("a.bam")
	require.True(t, ok)
	assert.Equal(t, model.ModeInput, a.Mode)
	assert.True(t, a.Temporary)
}

func TestBlueprintsAreCopies(t *testing.T) {
	r := New(t.TempDir())
	src := &model.Blueprint{Unit: shell("x"), Outputs: []string{"out"}}
	id, err := r.Register("x", src)
	require.NoError(t, err)

	src.Outputs[0] = "mutated"
	got, _ := r.Get(id)
	assert.Equal(t, []string{"out"}, got.Outputs)

	got.Outputs[0] = "mutated again"
	again := r.Blueprints()
	assert.Equal(t, []string{"out"}, again[0].Outputs)
}

func TestArtifactsKeepFirstSeenOrder(t *testing.T) {
	r := New(t.TempDir())
	_, err := r.Register("a", &model.Blueprint{Unit: shell("a"), Inputs: []string{"in"}, Outputs: []string{"mid"}})
	require.NoError(t, err)
	_, err = r.Register("b", &model.Blueprint{Unit: shell("b"), Inputs: []string{"mid"}, Outputs: []string{"out"}})
	require.NoError(t, err)

	var paths []string
	for _, a := range r.Artifacts() {
		paths = append(paths, a.Path)
	}
	assert.Equal(t, []string{"in", "mid", "out"}, paths)
}
