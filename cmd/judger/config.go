package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"chiko/internal/judge/sandbox/engine"
	"chiko/internal/judge/sandbox/pipeline"
	"chiko/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	driverLinux = "linux"
	driverHost  = "host"
)

// AppConfig holds the judger configuration.
type AppConfig struct {
	Logger   logger.Config   `yaml:"logger"`
	Sandbox  SandboxConfig   `yaml:"sandbox"`
	Pipeline pipeline.Config `yaml:"pipeline"`
	Metrics  MetricsConfig   `yaml:"metrics"`
}

// SandboxConfig selects and configures the engine.
type SandboxConfig struct {
	// Driver is "linux" for full confinement or "host" for unconfined runs.
	Driver        string `yaml:"driver"`
	engine.Config `yaml:",inline"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// Textfile receives the registry in text format after each command.
	Textfile string `yaml:"textfile"`
}

func loadAppConfig(path string, required bool) (*AppConfig, error) {
	cfg := &AppConfig{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "console"
	}
	// stdout carries results.
	if c.Logger.OutputPath == "" {
		c.Logger.OutputPath = "stderr"
	}
	c.Sandbox.Driver = strings.ToLower(strings.TrimSpace(c.Sandbox.Driver))
	if c.Sandbox.Driver == "" {
		c.Sandbox.Driver = driverLinux
	}
}

func (c *AppConfig) validate() error {
	switch c.Sandbox.Driver {
	case driverLinux, driverHost:
		return nil
	default:
		return fmt.Errorf("unsupported sandbox driver: %s", c.Sandbox.Driver)
	}
}
