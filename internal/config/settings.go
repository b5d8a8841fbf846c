package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

const settingsFile = "settings.yaml"

const (
	KeyDeleteTemporaryFiles    = "delete_temporary_files"
	KeyNoRuntimeConfigBehavior = "no_runtime_config_behavior"

	BehaviorUsePackageDefault = "use_package_default"
	BehaviorFail              = "fail"
)

// settingOptions lists the accepted values for each setting.
var settingOptions = map[string][]string{
	KeyDeleteTemporaryFiles:    {"yes", "no"},
	KeyNoRuntimeConfigBehavior: {BehaviorUsePackageDefault, BehaviorFail},
}

// Settings are user preferences stored in the flowline home.
type Settings struct {
	DeleteTemporaryFiles    string `yaml:"delete_temporary_files"`
	NoRuntimeConfigBehavior string `yaml:"no_runtime_config_behavior"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		DeleteTemporaryFiles:    "yes",
		NoRuntimeConfigBehavior: BehaviorUsePackageDefault,
	}
}

// LoadSettings reads <home>/settings.yaml and fills unset values from the defaults.
func LoadSettings(home string) (*Settings, error) {
	s := &Settings{}
	data, err := os.ReadFile(filepath.Join(home, settingsFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read settings: %w", err)
	default:
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("failed to parse settings: %w", err)
		}
	}

	if err := mergo.Merge(s, DefaultSettings()); err != nil {
		return nil, fmt.Errorf("failed to apply default settings: %w", err)
	}
	for _, key := range SettingKeys() {
		v, _ := s.Get(key)
		if err := checkOption(key, v); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Save writes the settings to <home>/settings.yaml.
func (s *Settings) Save(home string) error {
	if err := os.MkdirAll(home, 0755); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(filepath.Join(home, settingsFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// SettingKeys returns every known setting key, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingOptions))
	for k := range settingOptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Options returns the accepted values for a key.
func Options(key string) []string {
	return append([]string(nil), settingOptions[key]...)
}

// Get returns the value of a setting by key.
func (s *Settings) Get(key string) (string, error) {
	switch key {
	case KeyDeleteTemporaryFiles:
		return s.DeleteTemporaryFiles, nil
	case KeyNoRuntimeConfigBehavior:
		return s.NoRuntimeConfigBehavior, nil
	default:
		return "", fmt.Errorf("unknown setting %q", key)
	}
}

// Set validates and assigns a setting.
func (s *Settings) Set(key, value string) error {
	if err := checkOption(key, value); err != nil {
		return err
	}
	switch key {
	case KeyDeleteTemporaryFiles:
		s.DeleteTemporaryFiles = value
	case KeyNoRuntimeConfigBehavior:
		s.NoRuntimeConfigBehavior = value
	}
	return nil
}

// DeleteTemporary reports whether temporary artifacts are removed after a run.
func (s *Settings) DeleteTemporary() bool {
	return s.DeleteTemporaryFiles == "yes"
}

func checkOption(key, value string) error {
	opts, ok := settingOptions[key]
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	for _, o := range opts {
		if o == value {
			return nil
		}
	}
	return fmt.Errorf("invalid value %q for %s, expected one of %v", value, key, opts)
}
