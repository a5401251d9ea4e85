package config

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// Load decodes a YAML (or JSON) document, applies defaults and validates it.
// Unknown fields are errors.
func Load(data []byte) (*Document, error) {
	doc, err := loadRaw(data)
	if err != nil {
		return nil, err
	}
	setDefaults(doc)
	if err := validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadFile reads and loads the document at path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q - %w", path, err)
	}
	doc, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func loadRaw(data []byte) (*Document, error) {
	doc := &Document{}
	if err := yaml.UnmarshalStrict(data, doc); err != nil {
		return nil, fmt.Errorf("the configuration is invalid - %w", err)
	}
	return doc, nil
}
