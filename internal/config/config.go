// Package config loads context-memory settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/context-memory/internal/memory"
	"github.com/rcliao/context-memory/internal/privacy"
)

// Environment variables consulted after the file is read.
const (
	EnvDBPath     = "CONTEXT_MEMORY_DB"
	EnvPassphrase = "CONTEXT_MEMORY_PASSPHRASE"
	EnvConfig     = "CONTEXT_MEMORY_CONFIG"
)

// Config is the top-level configuration structure.
type Config struct {
	DBPath     string           `yaml:"db_path"`
	LogLevel   string           `yaml:"log_level"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Privacy    PrivacyConfig    `yaml:"privacy"`
	Retention  RetentionConfig  `yaml:"retention"`
}

type EncryptionConfig struct {
	Passphrase string `yaml:"passphrase"`
}

type PrivacyConfig struct {
	BlockedKeywords  []string `yaml:"blocked_keywords"`
	MaxContentLength int      `yaml:"max_content_length"`
	MaxContextLength int      `yaml:"max_context_length"`
}

type RetentionConfig struct {
	// Days is the retention period. 0 keeps memories forever.
	Days     int           `yaml:"days"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DBPath:   DefaultDBPath(),
		LogLevel: "warn",
		Privacy: PrivacyConfig{
			MaxContentLength: privacy.DefaultMaxContentLength,
			MaxContextLength: privacy.DefaultMaxContextLength,
		},
		Retention: RetentionConfig{Interval: memory.DefaultRetentionInterval},
	}
}

// DefaultDir is ~/.context-memory.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".context-memory")
}

func DefaultDBPath() string { return filepath.Join(DefaultDir(), "memory.db") }

func DefaultPath() string { return filepath.Join(DefaultDir(), "config.yaml") }

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a YAML config file over the defaults, substitutes environment
// variable references and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	cfg := Default()
	if err := yaml.Unmarshal([]byte(resolved), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOptional loads path if it exists. An empty path means the default
// location; a missing default file yields the defaults.
func LoadOptional(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfig)
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath()
	}
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		cfg.ApplyEnv()
		return cfg, cfg.Validate()
	}
	return nil, err
}

// ApplyEnv lets the environment override the database path and passphrase.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvPassphrase); v != "" {
		c.Encryption.Passphrase = v
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.DBPath == "":
		return errors.New("db_path is required")
	case c.Retention.Days < 0:
		return errors.New("retention.days must not be negative")
	case c.Retention.Interval < 0:
		return errors.New("retention.interval must not be negative")
	case c.Privacy.MaxContentLength < 0:
		return errors.New("privacy.max_content_length must not be negative")
	case c.Privacy.MaxContextLength < 0:
		return errors.New("privacy.max_context_length must not be negative")
	}
	return nil
}

// Memory converts the file settings into the engine configuration.
func (c *Config) Memory() memory.Config {
	return memory.Config{
		DBPath:            c.DBPath,
		Passphrase:        c.Encryption.Passphrase,
		BlockedKeywords:   c.Privacy.BlockedKeywords,
		RetentionDays:     c.Retention.Days,
		RetentionInterval: c.Retention.Interval,
		MaxContentLength:  c.Privacy.MaxContentLength,
		MaxContextLength:  c.Privacy.MaxContextLength,
	}
}
