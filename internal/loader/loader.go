package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sourceplane/flowline/internal/model"
	"github.com/sourceplane/flowline/internal/schema"
)

// ErrSchema marks documents that fail schema validation.
var ErrSchema = errors.New("schema validation failed")

// Loader reads and validates pipeline documents
type Loader struct {
	validator *schema.Validator
}

// New creates a loader with the embedded schemas compiled
func New() (*Loader, error) {
	v, err := schema.NewValidator()
	if err != nil {
		return nil, err
	}
	return &Loader{validator: v}, nil
}

// LoadPipeline loads, validates and parses a pipeline definition file
func (l *Loader) LoadPipeline(path string) (*model.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	return l.ParsePipeline(data)
}

// ParsePipeline validates and parses a pipeline definition document
func (l *Loader) ParsePipeline(data []byte) (*model.Pipeline, error) {
	if err := l.validator.ValidatePipeline(data); err != nil {
		return nil, fmt.Errorf("%w: pipeline: %v", ErrSchema, err)
	}

	var pipeline model.Pipeline
	if err := yaml.Unmarshal(data, &pipeline); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline YAML: %w", err)
	}
	return &pipeline, nil
}

// LoadPipelineConfig loads a pipeline config file. An empty path yields an empty config.
func (l *Loader) LoadPipelineConfig(path string) (*model.PipelineConfig, error) {
	if path == "" {
		return &model.PipelineConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline config file: %w", err)
	}
	if err := l.validator.ValidatePipelineConfig(data); err != nil {
		return nil, fmt.Errorf("%w: pipeline config: %v", ErrSchema, err)
	}

	var cfg model.PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline config YAML: %w", err)
	}
	return &cfg, nil
}

// LoadRuntimeConfig loads an executor topology file
func (l *Loader) LoadRuntimeConfig(path string) (*model.RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime config file: %w", err)
	}
	if err := l.validator.ValidateRuntime(data); err != nil {
		return nil, fmt.Errorf("%w: runtime config: %v", ErrSchema, err)
	}

	var cfg model.RuntimeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse runtime config YAML: %w", err)
	}
	return &cfg, nil
}

// LoadInputMatrix reads a tab-separated batch input file. The first row names
// the parameters; each later row becomes one instance.
func LoadInputMatrix(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input matrix: %w", err)
	}
	defer f.Close()
	return ParseInputMatrix(f)
}

// ParseInputMatrix parses tab-separated rows with a header line
func ParseInputMatrix(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse input matrix: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("input matrix is empty")
	}

	header := records[0]
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if header[i] == "" {
			return nil, fmt.Errorf("input matrix column %d has no name", i+1)
		}
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for n, rec := range records[1:] {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("input matrix row %d has %d fields, expected %d", n+2, len(rec), len(header))
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			row[h] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}
