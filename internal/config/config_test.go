package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/flowline/internal/model"
)

func TestHomeFromEnv(t *testing.T) {
	t.Setenv(EnvHome, "/srv/flowline")
	assert.Equal(t, "/srv/flowline", Home())

	t.Setenv(EnvHome, "")
	assert.Equal(t, ".flowline", filepath.Base(Home()))
}

func TestLogLevelFromEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	assert.Equal(t, "debug", LogLevel("info"))
	t.Setenv(EnvLogLevel, "")
	assert.Equal(t, "info", LogLevel("info"))
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), *s)
	assert.True(t, s.DeleteTemporary())
}

func TestLoadSettingsMergesFile(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, "settings.yaml"), []byte("delete_temporary_files: \"no\"\n"), 0644))

	s, err := LoadSettings(home)
	require.NoError(t, err)
	assert.False(t, s.DeleteTemporary())
	assert.Equal(t, BehaviorUsePackageDefault, s.NoRuntimeConfigBehavior)
}

func TestLoadSettingsRejectsInvalidValues(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, "settings.yaml"), []byte("delete_temporary_files: sometimes\n"), 0644))

	_, err := LoadSettings(home)
	require.Error(t, err)
}

func TestSetAndSaveSettings(t *testing.T) {
	home := filepath.Join(t.TempDir(), "nested")
	s := DefaultSettings()

	require.Error(t, s.Set("colour", "blue"))
	require.Error(t, s.Set(KeyDeleteTemporaryFiles, "maybe"))
	require.NoError(t, s.Set(KeyNoRuntimeConfigBehavior, BehaviorFail))
	require.NoError(t, s.Save(home))

	loaded, err := LoadSettings(home)
	require.NoError(t, err)
	v, err := loaded.Get(KeyNoRuntimeConfigBehavior)
	require.NoError(t, err)
	assert.Equal(t, BehaviorFail, v)
	assert.Equal(t, []string{KeyDeleteTemporaryFiles, KeyNoRuntimeConfigBehavior}, SettingKeys())
	assert.Equal(t, []string{"yes", "no"}, Options(KeyDeleteTemporaryFiles))
}

func rt(label string) *model.RuntimeConfig {
	return &model.RuntimeConfig{Executors: []model.ExecutorConfig{{Label: label, Workers: 1}}}
}

func TestChooseRuntimePrecedence(t *testing.T) {
	tests := []struct {
		name   string
		src    RuntimeSources
		want   string
		source string
	}{
		{"command line wins", RuntimeSources{rt("cli"), rt("pc"), rt("home"), rt("pd")}, "cli", "command line"},
		{"pipeline config", RuntimeSources{nil, rt("pc"), rt("home"), rt("pd")}, "pc", "pipeline config"},
		{"home default", RuntimeSources{nil, nil, rt("home"), rt("pd")}, "home", "home default"},
		{"pipeline default", RuntimeSources{nil, &model.RuntimeConfig{}, nil, rt("pd")}, "pd", "pipeline default"},
		{"builtin", RuntimeSources{}, "local", "built-in default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, source, err := ChooseRuntime(tt.src, BehaviorUsePackageDefault)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Executors[0].Label)
			assert.Equal(t, tt.source, source)
		})
	}
}

func TestChooseRuntimeFailBehavior(t *testing.T) {
	_, _, err := ChooseRuntime(RuntimeSources{}, BehaviorFail)
	assert.ErrorIs(t, err, ErrNoRuntimeConfig)

	cfg, _, err := ChooseRuntime(RuntimeSources{HomeDefault: rt("home")}, BehaviorFail)
	require.NoError(t, err)
	assert.Equal(t, "home", cfg.Executors[0].Label)

	_, _, err = ChooseRuntime(RuntimeSources{}, "bogus")
	assert.Error(t, err)
}

func TestHomeRuntimePath(t *testing.T) {
	home := t.TempDir()
	assert.Empty(t, HomeRuntimePath(home))
	require.NoError(t, os.WriteFile(filepath.Join(home, "runtime.yaml"), []byte("executors: [{label: a}]\n"), 0644))
	assert.Equal(t, filepath.Join(home, "runtime.yaml"), HomeRuntimePath(home))
}
