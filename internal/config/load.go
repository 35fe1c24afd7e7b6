package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// LoadFile reads and parses the configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	var cfg Config
	if err := mapstructure.Decode(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.UniverseDomain == "" {
		cfg.UniverseDomain = "googleapis.com"
	}
	if cfg.ScontrolPath == "" {
		cfg.ScontrolPath = "scontrol"
	}

	// Backfill nodeset names from their map keys.
	for key, ns := range cfg.Nodesets {
		if ns.Name == "" {
			ns.Name = key
		}
		if ns.ZoneTargetShape == "" {
			ns.ZoneTargetShape = "ANY_SINGLE_ZONE"
		}
		cfg.Nodesets[key] = ns
	}
	for key, ns := range cfg.AcceleratorNodesets {
		if ns.Name == "" {
			ns.Name = key
		}
		cfg.AcceleratorNodesets[key] = ns
	}
}
