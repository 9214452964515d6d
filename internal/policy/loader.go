package policy

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Load reads schedule configuration from a YAML file, applies built-in
// defaults for unset fields and validates the result.
func Load(path string, logger *zap.Logger) (*Schedules, error) {
	logger.Info("Loading TTL schedules", zap.String("path", path))

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schedules file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var schedules Schedules
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&schedules); err != nil {
		return nil, fmt.Errorf("failed to decode YAML schedules: %w", err)
	}

	schedules.applyDefaults()
	if err := schedules.validate(); err != nil {
		return nil, fmt.Errorf("schedules validation failed: %w", err)
	}

	return &schedules, nil
}
