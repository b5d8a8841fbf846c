package expand

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sourceplane/flowline/internal/model"
)

// Expander turns parameter defaults, command line overrides and batch rows into run instances
type Expander struct {
	normalized *model.NormalizedPipeline
}

// NewExpander creates a new expander
func NewExpander(normalized *model.NormalizedPipeline) *Expander {
	return &Expander{normalized: normalized}
}

// Single produces the one instance of a plain run
func (e *Expander) Single(overrides map[string]interface{}) ([]model.Instance, error) {
	if err := e.checkKeys(overrides, "override"); err != nil {
		return nil, err
	}
	return []model.Instance{{Params: e.mergeInputs(overrides, nil)}}, nil
}

// Batch produces one instance per input matrix row, labelled by row number
func (e *Expander) Batch(overrides map[string]interface{}, rows []map[string]string) ([]model.Instance, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("input matrix has no rows")
	}
	if err := e.checkKeys(overrides, "override"); err != nil {
		return nil, err
	}

	instances := make([]model.Instance, 0, len(rows))
	for i, row := range rows {
		values := make(map[string]interface{}, len(row))
		for k, v := range row {
			values[k] = v
		}
		if err := e.checkKeys(values, fmt.Sprintf("input matrix row %d column", i+1)); err != nil {
			return nil, err
		}
		instances = append(instances, model.Instance{
			Label:  strconv.Itoa(i + 1),
			Params: e.mergeInputs(overrides, values),
		})
	}
	return instances, nil
}

// mergeInputs applies the merge precedence order
func (e *Expander) mergeInputs(overrides, row map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{})

	// 1. Pipeline parameter defaults
	for k, v := range e.normalized.Parameters {
		merged[k] = v
	}

	// 2. Command line overrides
	for k, v := range overrides {
		merged[k] = v
	}

	// 3. Batch row values (highest priority)
	for k, v := range row {
		merged[k] = v
	}

	return merged
}

// checkKeys rejects values for parameters the pipeline does not declare
func (e *Expander) checkKeys(values map[string]interface{}, what string) error {
	var unknown []string
	for k := range values {
		if _, ok := e.normalized.Parameters[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("unknown parameter in %s: %s", what, strings.Join(unknown, ", "))
}

// ParseOverrides parses key=value pairs from the command line
func ParseOverrides(pairs []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
