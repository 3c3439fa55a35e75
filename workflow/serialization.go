package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToJSON converts a WorkflowDefinition to an indented JSON string
func (d *WorkflowDefinition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML converts a WorkflowDefinition to a YAML string
func (d *WorkflowDefinition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// DefinitionFromJSON parses and validates a WorkflowDefinition
func DefinitionFromJSON(data []byte) (*WorkflowDefinition, error) {
	var def WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from JSON: %w", err)
	}
	if err := ValidateDefinition(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// DefinitionFromYAML parses and validates a WorkflowDefinition
func DefinitionFromYAML(data []byte) (*WorkflowDefinition, error) {
	var def WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from YAML: %w", err)
	}
	if err := ValidateDefinition(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadDefinitionFile loads a definition, choosing the decoder by extension.
// .json is decoded as JSON; anything else as YAML.
func LoadDefinitionFile(path string) (*WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return DefinitionFromJSON(data)
	}
	return DefinitionFromYAML(data)
}

// SaveToFile writes the definition, choosing the encoder by extension.
func (d *WorkflowDefinition) SaveToFile(path string) error {
	var (
		out string
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		out, err = d.ToJSON()
	} else {
		out, err = d.ToYAML()
	}
	if err != nil {
		return fmt.Errorf("marshal workflow %s: %w", d.ID, err)
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
