package output

import (
	"fmt"
	"os"

	"github.com/wegman-software/osmrel-go/internal/assemble"
	"gopkg.in/yaml.v3"
)

// ReportEntry describes one relation that never completed.
type ReportEntry struct {
	ID      int64    `yaml:"id"`
	Needed  int      `yaml:"needed"`
	Missing []string `yaml:"missing"`
}

// Report is the document written to incomplete.yaml.
type Report struct {
	Policy    string        `yaml:"policy"`
	Count     int           `yaml:"count"`
	Relations []ReportEntry `yaml:"relations"`
}

// NewReport builds a report from the engine's incomplete list.
func NewReport(policy assemble.IncompletePolicy, list []assemble.Incomplete) Report {
	r := Report{Policy: policy.String(), Count: len(list), Relations: make([]ReportEntry, len(list))}
	for i, inc := range list {
		missing := make([]string, len(inc.Missing))
		for j, k := range inc.Missing {
			missing[j] = k.String()
		}
		r.Relations[i] = ReportEntry{ID: int64(inc.ID), Needed: inc.Meta.Needed, Missing: missing}
	}
	return r
}

// WriteReport writes the report as YAML to path.
func WriteReport(path string, r Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (Report, error) {
	var r Report
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("failed to read report: %w", err)
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return r, nil
}
