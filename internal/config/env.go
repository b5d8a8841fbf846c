// Package config resolves the flowline home directory, user settings and the
// executor topology for a run.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvHome     = "FLOWLINE_HOME"
	EnvLogLevel = "FLOWLINE_LOG_LEVEL"
)

// LoadEnv loads a .env file from the working directory when present.
func LoadEnv() {
	_ = godotenv.Load()
}

// Home returns the flowline home directory.
func Home() string {
	if h := strings.TrimSpace(os.Getenv(EnvHome)); h != "" {
		return h
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".flowline"
	}
	return filepath.Join(userHome, ".flowline")
}

// LogLevel returns the level requested through the environment, or fallback.
func LogLevel(fallback string) string {
	return firstNonEmpty(strings.TrimSpace(os.Getenv(EnvLogLevel)), fallback)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
