package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sourceplane/flowline/internal/model"
)

// ErrNoRuntimeConfig is returned when no runtime config is found and the
// settings forbid falling back to the built-in default.
var ErrNoRuntimeConfig = errors.New("no runtime config found")

const homeRuntimeFile = "runtime.yaml"

// RuntimeSources are the candidate runtime configs, nil when absent.
type RuntimeSources struct {
	CommandLine     *model.RuntimeConfig
	PipelineConfig  *model.RuntimeConfig
	HomeDefault     *model.RuntimeConfig
	PipelineDefault *model.RuntimeConfig
}

// BuiltinRuntime is one local executor with two workers.
func BuiltinRuntime() *model.RuntimeConfig {
	return &model.RuntimeConfig{Executors: []model.ExecutorConfig{{Label: "local", Workers: 2}}}
}

// HomeRuntimePath returns the path of the user's default runtime config, or ""
// when the file does not exist.
func HomeRuntimePath(home string) string {
	path := filepath.Join(home, homeRuntimeFile)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// ChooseRuntime picks the runtime config in order of precedence: command line,
// pipeline config, home default, pipeline default, then the built-in default.
// It returns the config and a description of where it came from.
func ChooseRuntime(src RuntimeSources, behavior string) (*model.RuntimeConfig, string, error) {
	candidates := []struct {
		cfg    *model.RuntimeConfig
		source string
	}{
		{src.CommandLine, "command line"},
		{src.PipelineConfig, "pipeline config"},
		{src.HomeDefault, "home default"},
		{src.PipelineDefault, "pipeline default"},
	}
	for _, c := range candidates {
		if c.cfg != nil && len(c.cfg.Executors) > 0 {
			return c.cfg, c.source, nil
		}
	}

	switch behavior {
	case "", BehaviorUsePackageDefault:
		return BuiltinRuntime(), "built-in default", nil
	case BehaviorFail:
		return nil, "", ErrNoRuntimeConfig
	default:
		return nil, "", fmt.Errorf("invalid %s setting %q", KeyNoRuntimeConfigBehavior, behavior)
	}
}
