package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.yaml
var schemaFS embed.FS

// Validator handles JSON schema validation of pipeline documents
type Validator struct {
	pipelineSchema       *jsonschema.Schema
	pipelineConfigSchema *jsonschema.Schema
	runtimeSchema        *jsonschema.Schema
}

// NewValidator compiles the embedded schemas
func NewValidator() (*Validator, error) {
	v := &Validator{}

	var err error
	if v.pipelineSchema, err = loadSchema("pipeline"); err != nil {
		return nil, fmt.Errorf("failed to load pipeline schema: %w", err)
	}
	if v.pipelineConfigSchema, err = loadSchema("pipeline-config"); err != nil {
		return nil, fmt.Errorf("failed to load pipeline config schema: %w", err)
	}
	if v.runtimeSchema, err = loadSchema("runtime"); err != nil {
		return nil, fmt.Errorf("failed to load runtime schema: %w", err)
	}

	return v, nil
}

// ValidatePipeline validates a pipeline definition document (YAML or JSON bytes)
func (v *Validator) ValidatePipeline(data []byte) error {
	return validate(v.pipelineSchema, data)
}

// ValidatePipelineConfig validates a pipeline config document
func (v *Validator) ValidatePipelineConfig(data []byte) error {
	return validate(v.pipelineConfigSchema, data)
}

// ValidateRuntime validates a runtime config document
func (v *Validator) ValidateRuntime(data []byte) error {
	return validate(v.runtimeSchema, data)
}

func validate(schema *jsonschema.Schema, data []byte) error {
	if schema == nil {
		return fmt.Errorf("schema not loaded")
	}
	doc, err := toJSONValue(data)
	if err != nil {
		return err
	}
	return schema.Validate(doc)
}

// toJSONValue decodes YAML and re-reads it as JSON so numbers and maps have the
// types the schema validator expects
func toJSONValue(data []byte) (interface{}, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert document to JSON: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// loadSchema compiles an embedded YAML schema by name
func loadSchema(name string) (*jsonschema.Schema, error) {
	data, err := schemaFS.ReadFile(fmt.Sprintf("schemas/%s.schema.yaml", name))
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	// Parse YAML to interface{} (supports both YAML and JSON)
	var schemaData interface{}
	if err := yaml.Unmarshal(data, &schemaData); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	// Convert to JSON for schema compiler
	jsonData, err := json.Marshal(schemaData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	schemaURI := fmt.Sprintf("flowline://schemas/%s.schema.json", name)
	compiler := jsonschema.NewCompiler()
	compiler.LoadURL = func(url string) (io.ReadCloser, error) {
		if url == schemaURI {
			return io.NopCloser(strings.NewReader(string(jsonData))), nil
		}
		return nil, fmt.Errorf("external schema reference not supported: %s", url)
	}

	schema, err := compiler.Compile(schemaURI)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return schema, nil
}
