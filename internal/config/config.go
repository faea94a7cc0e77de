// Package config loads application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jobtrackhq/jobtrack/pkg/logger"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds database connection settings. An empty DSN selects the
// in-memory store, which is intended for local development and tests.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	Secret   string `yaml:"secret"`
	TokenTTL int    `yaml:"token_ttl"` // minutes
}

// CORSConfig holds allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  logger.Config  `yaml:"logging"`
	CORS     CORSConfig     `yaml:"cors"`
}

// Load reads configuration from the path in JOBTRACK_CONFIG (falling back to
// config.yaml when present), then applies environment overrides. A missing
// file is not an error; defaults plus environment are enough to run.
func Load() (*Config, error) {
	cfg := defaults()

	path := strings.TrimSpace(os.Getenv("JOBTRACK_CONFIG"))
	explicit := path != ""
	if path == "" {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// fall through to defaults + environment
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth secret is required (set auth.secret or JOBTRACK_JWT_SECRET)")
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 5001},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Auth:    AuthConfig{TokenTTL: 24 * 60},
		Logging: logger.Config{Level: "info", Format: "text", Output: "stdout"},
		CORS:    CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("JOBTRACK_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("JOBTRACK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("JOBTRACK_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("JOBTRACK_JWT_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("JOBTRACK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("JOBTRACK_ALLOWED_ORIGINS"); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		cfg.CORS.AllowedOrigins = origins
	}
}
