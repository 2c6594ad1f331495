package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration
type Config struct {
	Version      string `yaml:"version"`
	TemplateDir  string `yaml:"template_dir"`
	AuditDir     string `yaml:"audit_dir"`
	ListenAddr   string `yaml:"listen_addr"`
	OTELEndpoint string `yaml:"otel_endpoint,omitempty"`
	LogLevel     string `yaml:"log_level,omitempty"`
	Environment  string `yaml:"environment,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Version:     "1",
		TemplateDir: "policies/templates",
		AuditDir:    "compliance",
		ListenAddr:  ":8080",
		LogLevel:    "info",
		Environment: "dev",
	}
}

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate ensures config has required fields
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.TemplateDir == "" {
		return fmt.Errorf("template_dir is required")
	}
	if c.AuditDir == "" {
		return fmt.Errorf("audit_dir is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	return nil
}
