// Package config loads embedlab settings from an optional .env file, an
// optional YAML file, and EMBEDLAB_* environment variables, in increasing
// order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the server settings.
type Config struct {
	Port        int    `yaml:"port"`
	DBPath      string `yaml:"db_path"`
	CatalogDir  string `yaml:"catalog_dir"`
	StaticDir   string `yaml:"static_dir"`
	PublicURL   string `yaml:"public_url"`
	MaxSessions int    `yaml:"max_sessions"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// Environment variable names.
const (
	EnvPort        = "EMBEDLAB_PORT"
	EnvDBPath      = "EMBEDLAB_DB_PATH"
	EnvCatalogDir  = "EMBEDLAB_CATALOG_DIR"
	EnvStaticDir   = "EMBEDLAB_STATIC_DIR"
	EnvPublicURL   = "EMBEDLAB_PUBLIC_URL"
	EnvMaxSessions = "EMBEDLAB_MAX_SESSIONS"
	EnvLogLevel    = "LOG_LEVEL"
	EnvLogFormat   = "LOG_FORMAT"
)

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:        8080,
		DBPath:      "embedlab.db",
		PublicURL:   "http://localhost:8080",
		MaxSessions: 256,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load builds the configuration. A missing YAML file is not an error.
func Load(yamlPath string) (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	if yamlPath != "" {
		fileCfg, err := readFile(yamlPath)
		if err != nil {
			return Config{}, err
		}
		cfg = MergeConfigs(cfg, fileCfg)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// readFile decodes a YAML config file. Unknown keys are rejected so a
// misspelt setting does not silently fall back to its default.
func readFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// MergeConfigs overlays the non-zero fields of override onto base.
func MergeConfigs(base, override Config) Config {
	out := base
	if override.Port != 0 {
		out.Port = override.Port
	}
	if override.DBPath != "" {
		out.DBPath = override.DBPath
	}
	if override.CatalogDir != "" {
		out.CatalogDir = override.CatalogDir
	}
	if override.StaticDir != "" {
		out.StaticDir = override.StaticDir
	}
	if override.PublicURL != "" {
		out.PublicURL = override.PublicURL
	}
	if override.MaxSessions != 0 {
		out.MaxSessions = override.MaxSessions
	}
	if override.LogLevel != "" {
		out.LogLevel = override.LogLevel
	}
	if override.LogFormat != "" {
		out.LogFormat = override.LogFormat
	}
	return out
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		port, err := strconv.Atoi(strings.TrimPrefix(v, ":"))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Port = port
	}
	if v := strings.TrimSpace(os.Getenv(EnvMaxSessions)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxSessions, v, err)
		}
		c.MaxSessions = n
	}

	strs := []struct {
		env string
		dst *string
	}{
		{EnvDBPath, &c.DBPath},
		{EnvCatalogDir, &c.CatalogDir},
		{EnvStaticDir, &c.StaticDir},
		{EnvPublicURL, &c.PublicURL},
		{EnvLogLevel, &c.LogLevel},
		{EnvLogFormat, &c.LogFormat},
	}
	for _, s := range strs {
		if v := strings.TrimSpace(os.Getenv(s.env)); v != "" {
			*s.dst = v
		}
	}
	return nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range 1-65535", c.Port))
	}
	if c.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("max_sessions must be at least 1, got %d", c.MaxSessions))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// JSONLogs reports whether logs should be written as JSON lines.
func (c Config) JSONLogs() bool {
	return strings.EqualFold(c.LogFormat, "json")
}
