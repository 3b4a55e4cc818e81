package cmd

import (
	"fmt"
	"os"

	"github.com/Velocidex/yaml"
)

// Limits are the operator-tunable scan bounds. Zero values keep the
// built-in defaults.
type Limits struct {
	MaxFileSize int64 `yaml:"max_file_size"`
	Workers     int   `yaml:"workers"`
}

func loadLimits(path string) (Limits, error) {
	var limits Limits
	if path == "" {
		return limits, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return limits, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &limits); err != nil {
		return limits, fmt.Errorf("decoding %s: %w", path, err)
	}
	if limits.MaxFileSize < 0 {
		return limits, fmt.Errorf("max_file_size must not be negative")
	}
	if limits.Workers < 0 {
		return limits, fmt.Errorf("workers must not be negative")
	}
	return limits, nil
}
