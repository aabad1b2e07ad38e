package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variables.
const EnvPrefix = "GOPCIBUS_"

var ErrInvalidConfig = errors.New("invalid configuration")

// Loader loads configuration in order: defaults -> file -> environment
// variables, with later sources overriding earlier ones.
type Loader struct {
	configPath string
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a loader. If configPath is empty, only defaults and
// environment variables are used.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envPrefix:  EnvPrefix,
		getenv:     os.Getenv,
	}
}

// WithEnv replaces the environment lookup.
func (l *Loader) WithEnv(getenv func(string) string) *Loader {
	l.getenv = getenv

	return l
}

func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, err
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadAndValidate is Load followed by Validate.
func (l *Loader) LoadAndValidate() (*Config, error) {
	cfg, err := l.Load()
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile replaces the default topology when the file describes
// one; every other section overrides field by field.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	cfg.Topology = nil

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", l.configPath, err)
	}

	if cfg.Topology == nil {
		cfg.Topology = DefaultTopology()
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	if v := l.getenv(l.envPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := l.getenv(l.envPrefix + "NO_COLOR"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sNO_COLOR: %w", l.envPrefix, err)
		}

		cfg.NoColor = b
	}

	if v := l.getenv(l.envPrefix + "MODE"); v != "" {
		cfg.Mode = v
	}

	if v := l.getenv(l.envPrefix + "LEGACY_IO"); v != "" {
		cfg.LegacyIO = v
	}

	if v := l.getenv(l.envPrefix + "BRIDGE_IO_ALIGNMENT"); v != "" {
		a, err := ParseSize(v, "")
		if err != nil {
			return fmt.Errorf("%sBRIDGE_IO_ALIGNMENT: %w", l.envPrefix, err)
		}

		cfg.BridgeIOAlignment = Size(a)
	}

	if v := l.getenv(l.envPrefix + "MAX_RESOURCES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_RESOURCES: %w", l.envPrefix, err)
		}

		cfg.MaxResources = n
	}

	return nil
}
