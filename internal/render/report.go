package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sourceplane/flowline/internal/model"
)

// RenderJSON renders a run report as JSON
func RenderJSON(report *model.RunReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// RenderYAML renders a run report as YAML
func RenderYAML(report *model.RunReport) ([]byte, error) {
	return yaml.Marshal(report)
}

// WriteReport writes a run report to file (JSON or YAML based on extension)
func WriteReport(report *model.RunReport, path string) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	var data []byte
	var err error
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = RenderYAML(report)
	default:
		data, err = RenderJSON(report)
	}
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// Summary is a short human-readable account of a finished run
func Summary(report *model.RunReport) string {
	var sb strings.Builder

	completed := 0
	for _, u := range report.Units {
		if u.State == model.StateCompleted {
			completed++
		}
	}

	sb.WriteString(fmt.Sprintf("Run %s of %s\n", report.RunID, report.Pipeline))
	sb.WriteString(fmt.Sprintf("  Units:     %d (%d completed)\n", len(report.Units), completed))
	if len(report.Failed) > 0 {
		sb.WriteString(fmt.Sprintf("  Failed:    %s\n", strings.Join(report.Failed, ", ")))
	}
	if len(report.NeverRan) > 0 {
		sb.WriteString(fmt.Sprintf("  Never ran: %s\n", strings.Join(report.NeverRan, ", ")))
	}
	if report.Interrupted {
		sb.WriteString("  Interrupted by user\n")
	}
	return sb.String()
}
