package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the runtime settings for the catalog service.
type Config struct {
	Port              int    `yaml:"port"`
	DBDriver          string `yaml:"db_driver"`
	DBPath            string `yaml:"db_path"`
	TMDBAPIKey        string `yaml:"tmdb_api_key"`
	TMDBBaseURL       string `yaml:"tmdb_base_url"`
	LogLevel          string `yaml:"log_level"`
	MaxImageDimension int    `yaml:"max_image_dimension"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Port:              8080,
		DBDriver:          DriverSQLite,
		DBPath:            "catalog.db",
		TMDBBaseURL:       "https://api.themoviedb.org/3",
		LogLevel:          "info",
		MaxImageDimension: 1024,
	}
}

// Load reads the optional YAML file at path, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - path comes from the operator
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.DBDriver = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("TMDB_API_KEY"); v != "" {
		c.TMDBAPIKey = v
	}
	if v := os.Getenv("TMDB_BASE_URL"); v != "" {
		c.TMDBBaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("MAX_IMAGE_DIMENSION"); v != "" {
		dim, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_IMAGE_DIMENSION %q: %w", v, err)
		}
		c.MaxImageDimension = dim
	}
	return nil
}

// Validate checks that the configuration can be used to start the service.
func (c Config) Validate() error {
	switch strings.ToLower(c.DBDriver) {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported db driver: %s", c.DBDriver)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db path must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.MaxImageDimension < 1 {
		return fmt.Errorf("max image dimension must be positive, got %d", c.MaxImageDimension)
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
