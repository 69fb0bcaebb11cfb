package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a simulator behavior config from a YAML file, layered
// over the defaults so a config file only has to name what it changes.
func LoadConfig(path string) (SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SimConfig{}, fmt.Errorf("reading simulator config: %w", err)
	}

	config := NewDefaultSimConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return SimConfig{}, fmt.Errorf("parsing simulator config %s: %w", path, err)
	}
	return config, nil
}
