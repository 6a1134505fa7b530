// Package config loads settings from the TOML config file and the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/james-see/practicetrack/pkg/practice"
	"github.com/joho/godotenv"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Practice PracticeConfig `toml:"practice"`
	Server   ServerConfig   `toml:"server"`
	Project  ProjectConfig  `toml:"project"`
}

// PracticeConfig maps the dialog defaults
type PracticeConfig struct {
	Duplicates  *int    `toml:"duplicates"`
	SilenceBars *int    `toml:"silence-bars"`
	Gaps        *string `toml:"gaps"`
}

// ServerConfig maps the API server settings
type ServerConfig struct {
	Port *int `toml:"port"`
}

// ProjectConfig maps where projects are read from
type ProjectConfig struct {
	Database *string `toml:"database"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Options merges the [practice] section over the built-in defaults
func (c FileConfig) Options() (practice.Options, error) {
	opts := practice.DefaultOptions()
	if c.Practice.Duplicates != nil {
		opts.DuplicateCount = *c.Practice.Duplicates
	}
	if c.Practice.SilenceBars != nil {
		opts.SilenceBars = *c.Practice.SilenceBars
	}
	if c.Practice.Gaps != nil {
		g, err := practice.ParseGapPolicy(*c.Practice.Gaps)
		if err != nil {
			return opts, err
		}
		opts.Gaps = g
	}
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("config [practice]: %w", err)
	}
	return opts, nil
}

// Env holds settings that come from the environment
type Env struct {
	Environment string
	SentryDSN   string
	Port        int
	Debug       bool
}

// LoadEnv reads an optional .env file, then the environment. fallbackPort
// applies when PRACTICETRACK_PORT is unset or not a number.
func LoadEnv(fallbackPort int) Env {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PRACTICETRACK_PORT", ""))
	if err != nil || port <= 0 {
		port = fallbackPort
	}
	return Env{
		Environment: getEnv("PRACTICETRACK_ENV", "development"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),
		Port:        port,
		Debug:       getEnv("PRACTICETRACK_DEBUG", "false") == "true",
	}
}

// Port returns the configured server port or def
func (c FileConfig) Port(def int) int {
	if c.Server.Port != nil && *c.Server.Port > 0 {
		return *c.Server.Port
	}
	return def
}

// Database returns the configured project database or DefaultDBPath
func (c FileConfig) Database() string {
	if c.Project.Database != nil && *c.Project.Database != "" {
		return *c.Project.Database
	}
	return DefaultDBPath()
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}
