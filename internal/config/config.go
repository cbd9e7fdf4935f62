package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/matt-primrose/blob-download-task/pkg/models"
)

// DefaultPath is the config file read when no path is given
const DefaultPath = "config.yaml"

// Config represents the complete task configuration
type Config struct {
	Source        models.Source        `yaml:"source" json:"source"`
	Destination   models.Destination   `yaml:"destination" json:"destination"`
	Content       ContentConfig        `yaml:"content" json:"content"`
	Download      DownloadConfig       `yaml:"download" json:"download"`
	Jobs          []models.DownloadJob `yaml:"jobs" json:"jobs"`
	Observability ObservabilityConfig  `yaml:"observability" json:"observability"`
}

type ContentConfig struct {
	Encoding string `yaml:"encoding" json:"encoding"`
}

type DownloadConfig struct {
	ChunkSizeKB       int `yaml:"chunk_size_kb" json:"chunk_size_kb"`
	JobTimeoutSeconds int `yaml:"job_timeout_seconds" json:"job_timeout_seconds"`
}

type ObservabilityConfig struct {
	LogLevel        string `yaml:"log_level" json:"log_level"`
	MetricsTextfile string `yaml:"metrics_textfile" json:"metrics_textfile"`
}

// Default returns the configuration used before any file or environment is applied
func Default() *Config {
	return &Config{
		Destination: models.Destination{
			Directory:       ".",
			CollisionPolicy: models.PolicyOverwrite,
		},
		Download: DownloadConfig{
			ChunkSizeKB:       4096,
			JobTimeoutSeconds: 3600,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

// Load loads configuration from .env, the YAML file at path and environment variables,
// in that order of increasing precedence. A missing file at path is ignored.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	// .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	cfg := Default()

	yamlFile, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(yamlFile, cfg); err != nil {
			return nil, fmt.Errorf("error parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(cfg *Config) error {
	// Source
	if val := os.Getenv("BLOB_SOURCE_CONNECTION_STRING"); val != "" {
		cfg.Source.ConnectionString = val
	}
	if val := os.Getenv("BLOB_SOURCE_CONTAINER"); val != "" {
		cfg.Source.ContainerName = val
	}
	if val := os.Getenv("BLOB_SOURCE_NAME"); val != "" {
		cfg.Source.BlobName = val
	}
	if val := os.Getenv("BLOB_SOURCE_KIND"); val != "" {
		kind, err := models.ParseBlobKind(val)
		if err != nil {
			return fmt.Errorf("BLOB_SOURCE_KIND: %w", err)
		}
		cfg.Source.BlobKind = kind
	}

	// Destination
	if val := os.Getenv("BLOB_DESTINATION_DIRECTORY"); val != "" {
		cfg.Destination.Directory = val
	}
	if val := os.Getenv("BLOB_DESTINATION_POLICY"); val != "" {
		policy, err := models.ParseCollisionPolicy(val)
		if err != nil {
			return fmt.Errorf("BLOB_DESTINATION_POLICY: %w", err)
		}
		cfg.Destination.CollisionPolicy = policy
	}

	// Content
	if val := os.Getenv("BLOB_CONTENT_ENCODING"); val != "" {
		cfg.Content.Encoding = val
	}

	// Download
	if val := os.Getenv("DOWNLOAD_CHUNK_SIZE_KB"); val != "" {
		size, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("DOWNLOAD_CHUNK_SIZE_KB: %w", err)
		}
		cfg.Download.ChunkSizeKB = size
	}
	if val := os.Getenv("DOWNLOAD_JOB_TIMEOUT_SECONDS"); val != "" {
		timeout, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("DOWNLOAD_JOB_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Download.JobTimeoutSeconds = timeout
	}

	// Jobs (JSON)
	if val := os.Getenv("JOBS"); val != "" {
		var jobs []models.DownloadJob
		if err := json.Unmarshal([]byte(val), &jobs); err != nil {
			return fmt.Errorf("JOBS: %w", err)
		}
		cfg.Jobs = jobs
	}

	// Observability
	if val := os.Getenv("OBSERVABILITY_LOG_LEVEL"); val != "" {
		cfg.Observability.LogLevel = strings.ToLower(val)
	}
	if val := os.Getenv("OBSERVABILITY_METRICS_TEXTFILE"); val != "" {
		cfg.Observability.MetricsTextfile = val
	}

	return nil
}

// Validate performs basic configuration validation. Source fields are not
// required here because they may come from command line flags or jobs.
func (cfg *Config) Validate() error {
	if cfg.Download.ChunkSizeKB <= 0 {
		return fmt.Errorf("chunk size must be positive: %d", cfg.Download.ChunkSizeKB)
	}

	if cfg.Download.JobTimeoutSeconds < 0 {
		return fmt.Errorf("job timeout must not be negative: %d", cfg.Download.JobTimeoutSeconds)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	valid := false
	for _, l := range validLogLevels {
		if cfg.Observability.LogLevel == l {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log level: %s", cfg.Observability.LogLevel)
	}

	for i, job := range cfg.Jobs {
		switch job.Mode {
		case "", models.JobModeDownload, models.JobModeRead, models.JobModeExists:
		default:
			return fmt.Errorf("job %d: invalid mode %q", i, job.Mode)
		}
	}

	return nil
}

// ChunkSize returns the configured chunk size in bytes
func (cfg *Config) ChunkSize() int {
	return cfg.Download.ChunkSizeKB * 1024
}
