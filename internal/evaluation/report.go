package evaluation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tepstack/tep-sentinel/internal/models"
)

// WriteReport persists the metrics artifact as indented JSON. Per-class map
// keys serialise as strings of the fault id, matching what the dashboard
// layer expects.
func WriteReport(report models.MetricsReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// LoadReport reads a previously persisted metrics artifact.
func LoadReport(path string) (models.MetricsReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.MetricsReport{}, fmt.Errorf("load report %s: %w", path, err)
	}
	var report models.MetricsReport
	if err := json.Unmarshal(data, &report); err != nil {
		return models.MetricsReport{}, fmt.Errorf("parse report %s: %w", path, err)
	}
	return report, nil
}
