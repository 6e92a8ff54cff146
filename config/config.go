// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package config loads lite-client configuration from YAML files with
// environment variable substitution and overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the lite client.
type Config struct {
	Network NetworkSettings `yaml:"network"`
	Storage StorageSettings `yaml:"storage"`
	Logging LoggingSettings `yaml:"logging"`
}

// NetworkSettings identifies the network and how to reach its indexer.
//
// ZerostateRootHash and FirstMasterBlockRootHash pin the network UID; when
// left empty the engine resolves them from the indexer on first use.
// TrustedKeyBlock is the hard-configured trust anchor and is required.
type NetworkSettings struct {
	Name                     string               `yaml:"name"`
	Endpoint                 string               `yaml:"endpoint"`
	QueryTimeout             Duration             `yaml:"query_timeout"`
	ZerostateRootHash        string               `yaml:"zerostate_root_hash"`
	FirstMasterBlockRootHash string               `yaml:"first_master_block_root_hash"`
	TrustedKeyBlock          TrustedBlockSettings `yaml:"trusted_key_block"`
}

// TrustedBlockSettings is the configured trust anchor: a masterchain
// key-block the client accepts as ground truth.
type TrustedBlockSettings struct {
	SeqNo    uint32 `yaml:"seq_no"`
	RootHash string `yaml:"root_hash"`
}

// StorageSettings configures the persistent proof store.
type StorageSettings struct {
	Path string `yaml:"path"` // directory for the database files
	Name string `yaml:"name"` // database name, default "proofs"
}

// LoggingSettings configures the structured logger.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration wraps time.Duration for YAML parsing of values like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DefaultConfig returns a configuration with sane defaults and no network
// selected.
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkSettings{
			QueryTimeout: Duration(60 * time.Second),
		},
		Storage: StorageSettings{
			Path: "data",
			Name: "proofs",
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads configuration from a YAML file. ${VAR} references in the file
// are substituted from the environment before parsing, and a small set of
// environment variables override file values afterwards:
//
//	LITECLIENT_ENDPOINT   overrides network.endpoint
//	LITECLIENT_DB_PATH    overrides storage.path
//	LITECLIENT_LOG_LEVEL  overrides logging.level
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	expanded := os.Expand(string(raw), func(name string) string {
		return os.Getenv(name)
	})

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LITECLIENT_ENDPOINT"); v != "" {
		cfg.Network.Endpoint = v
	}
	if v := os.Getenv("LITECLIENT_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("LITECLIENT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks that required settings are present and well-formed.
func (c *Config) Validate() error {
	if c.Network.Endpoint == "" {
		return fmt.Errorf("network.endpoint is required")
	}
	if c.Network.TrustedKeyBlock.SeqNo == 0 {
		return fmt.Errorf("network.trusted_key_block.seq_no is required")
	}
	if err := validateHash("network.trusted_key_block.root_hash", c.Network.TrustedKeyBlock.RootHash, true); err != nil {
		return err
	}
	if err := validateHash("network.zerostate_root_hash", c.Network.ZerostateRootHash, false); err != nil {
		return err
	}
	if err := validateHash("network.first_master_block_root_hash", c.Network.FirstMasterBlockRootHash, false); err != nil {
		return err
	}
	if c.Storage.Name == "" {
		c.Storage.Name = "proofs"
	}
	return nil
}

func validateHash(field, value string, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	if len(value) != 64 {
		return fmt.Errorf("%s must be 64 hex characters, got %d", field, len(value))
	}
	for _, r := range value {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') && (r < 'A' || r > 'F') {
			return fmt.Errorf("%s must be a hex string", field)
		}
	}
	return nil
}
