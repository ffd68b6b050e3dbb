package payload

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// MajorPayloadVersion is the container format version this package writes.
const MajorPayloadVersion = 2

// PayloadVersion carries the format version parameters of a payload.
type PayloadVersion struct {
	Major uint64 `json:"major"`
}

// GenerationConfig establishes the version and format parameters for a
// payload generation run.
type GenerationConfig struct {
	Version PayloadVersion `json:"version"`
}

// LoadGenerationConfig reads a GenerationConfig from a YAML or JSON file.
func LoadGenerationConfig(path string) (GenerationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GenerationConfig{}, fmt.Errorf("read generation config: %w", err)
	}
	var cfg GenerationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return GenerationConfig{}, fmt.Errorf("parse generation config %q: %w", path, err)
	}
	return cfg, nil
}
