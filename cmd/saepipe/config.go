package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/josephtey/predictive-saes/storage"
)

// RunConfig is the optional YAML configuration shared by subcommands.
// Flags override nothing here; the file only carries settings that are
// awkward as flags (artifact storage credentials).
type RunConfig struct {
	// Artifacts configures optional upload of run folders to
	// S3-compatible storage after training.
	Artifacts *ArtifactsConfig `yaml:"artifacts,omitempty"`
}

// ArtifactsConfig names the bucket and credentials for run uploads.
type ArtifactsConfig struct {
	Credentials storage.Credentials `yaml:"credentials"`
	Bucket      string              `yaml:"bucket"`
	Prefix      string              `yaml:"prefix"`
}

// loadRunConfig reads the config file if one was given.
func loadRunConfig() (*RunConfig, error) {
	if flagConfig == "" {
		return &RunConfig{}, nil
	}
	data, err := os.ReadFile(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}
