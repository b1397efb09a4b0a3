package config

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// LoadFromYamlBytes runs the full config chain on raw YAML: unmarshal,
// map to the base Config, apply env overrides and validation. Callers
// own reading the file (or embedding it).
func LoadFromYamlBytes(raw []byte, logger *slog.Logger) (*Config, error) {
	var yamlCfg YamlConfig
	if err := yaml.Unmarshal(raw, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml config: %w", err)
	}

	baseCfg, err := NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		return nil, err
	}
	return UpdateConfigWithEnvOverrides(baseCfg, logger)
}
