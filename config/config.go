// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure
type Config struct {
	Environment string `yaml:"environment" json:"environment"`

	// HashLen is the session identifier length in bytes carried in
	// every PublicHeader (HASH_LEN in the wire format).
	HashLen int `yaml:"hash_len" json:"hash_len"`

	// PreSharedSecretPath points at the bootstrap secret fed into
	// DeriveSharedSecret alongside the ECDHE output.
	PreSharedSecretPath string `yaml:"pre_shared_secret_path" json:"pre_shared_secret_path"`

	// ListenAddr is the bind address for the server's transport.
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	Session *SessionConfig `yaml:"session" json:"session"`
	Logging *LoggingConfig `yaml:"logging" json:"logging"`
	Metrics *MetricsConfig `yaml:"metrics" json:"metrics"`
}

// SessionConfig is the retention policy applied to established sessions
// by pkg/session.Manager.
type SessionConfig struct {
	MaxAge      time.Duration `yaml:"max_age" json:"max_age"`
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxMessages int           `yaml:"max_messages" json:"max_messages"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// LoadFromFile loads configuration from a file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	// Try to parse as YAML first
	if err := yaml.Unmarshal(data, cfg); err != nil {
		// Try JSON if YAML fails
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	// Set defaults
	setDefaults(cfg)

	return cfg, nil
}

// SaveToFile saves configuration to a file
func SaveToFile(cfg *Config, path string) error {
	// Determine format by extension
	var data []byte
	var err error

	if len(path) > 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setDefaults sets default values for configuration
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HashLen == 0 {
		cfg.HashLen = 32
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":7430"
	}

	if cfg.Session == nil {
		cfg.Session = &SessionConfig{}
	}
	if cfg.Session.MaxAge == 0 {
		cfg.Session.MaxAge = time.Hour
	}
	if cfg.Session.IdleTimeout == 0 {
		cfg.Session.IdleTimeout = 10 * time.Minute
	}
	if cfg.Session.MaxMessages == 0 {
		cfg.Session.MaxMessages = 10000
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9464"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// ValidationIssue is a single configuration problem found by ValidateConfiguration.
type ValidationIssue struct {
	Field   string
	Message string
	Level   string // "error" or "warning"
}

// ValidateConfiguration checks cfg for values that would break the
// datagram core or session manager at runtime.
func ValidateConfiguration(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.HashLen <= 0 {
		issues = append(issues, ValidationIssue{
			Field: "hash_len", Message: "must be positive", Level: "error",
		})
	}
	if cfg.PreSharedSecretPath == "" {
		issues = append(issues, ValidationIssue{
			Field: "pre_shared_secret_path", Message: "no pre-shared secret configured, handshake will fail", Level: "warning",
		})
	}
	if cfg.ListenAddr == "" {
		issues = append(issues, ValidationIssue{
			Field: "listen_addr", Message: "must not be empty", Level: "error",
		})
	}
	if cfg.Session != nil && cfg.Session.MaxMessages < 0 {
		issues = append(issues, ValidationIssue{
			Field: "session.max_messages", Message: "must not be negative", Level: "error",
		})
	}

	return issues
}
