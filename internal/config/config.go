// Package config loads process configuration from an optional YAML or .env
// file and the environment, in that order of precedence (environment wins).
//
// Typical usage:
//
//	cfg, err := config.Load("vendorport.yaml")
//	if issues := config.Validate(*cfg); config.HasErrors(issues) { ... }
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full process configuration.
type Config struct {
	Storage Storage `yaml:"storage"`
	Ingest  Ingest  `yaml:"ingest"`
	HTTP    HTTP    `yaml:"http"`
	Log     Log     `yaml:"log"`
	Metrics Metrics `yaml:"metrics"`
}

// Storage selects the database.
type Storage struct {
	Kind     string `yaml:"kind" env:"VP_STORAGE_KIND" env-default:"sqlite" env-description:"postgres, mysql, sqlite or mssql"`
	DSN      string `yaml:"-" env:"VP_DSN" env-default:"vendorport.db" env-description:"driver connection string"` // Secret - not in YAML
	MaxConns int    `yaml:"max_conns" env:"VP_MAX_CONNS" env-default:"0"`
}

// Ingest tunes ingestion runs.
type Ingest struct {
	ChunkSize      int    `yaml:"chunk_size" env:"VP_CHUNK_SIZE" env-default:"1000"`
	TablePrefix    string `yaml:"table_prefix" env:"VP_TABLE_PREFIX" env-default:"imported_data_"`
	UniqueSuffix   bool   `yaml:"unique_suffix" env:"VP_UNIQUE_SUFFIX" env-default:"false"`
	UploadDir      string `yaml:"upload_dir" env:"VP_UPLOAD_DIR" env-default:"uploads"`
	SkipDir        string `yaml:"skip_dir" env:"VP_SKIP_DIR" env-default:"skipped"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"VP_MAX_UPLOAD_BYTES" env-default:"52428800"`
	Encoding       string `yaml:"encoding" env:"VP_ENCODING" env-default:"utf-8"`
	Delimiter      string `yaml:"delimiter" env:"VP_DELIMITER" env-default:","`
	Parallel       int    `yaml:"parallel" env:"VP_PARALLEL" env-default:"1"`
}

// HTTP configures the web server.
type HTTP struct {
	Addr string `yaml:"addr" env:"VP_HTTP_ADDR" env-default:":8080"`
}

// Log configures the logger.
type Log struct {
	Level  string `yaml:"level" env:"VP_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"VP_LOG_FORMAT" env-default:"json"`
}

// Metrics selects a metrics backend.
type Metrics struct {
	Backend        string   `yaml:"backend" env:"VP_METRICS_BACKEND" env-default:"none" env-description:"none, pushgateway or datadog"`
	PushgatewayURL string   `yaml:"pushgateway_url" env:"VP_PUSHGATEWAY_URL"`
	Job            string   `yaml:"job" env:"VP_METRICS_JOB" env-default:"vendorport"`
	DatadogAddr    string   `yaml:"datadog_addr" env:"VP_DATADOG_ADDR" env-default:"127.0.0.1:8125"`
	DatadogTags    []string `yaml:"datadog_tags" env:"VP_DATADOG_TAGS" env-separator:","`
}

// Load reads path when it exists (YAML, JSON, TOML or .env by extension),
// then the environment. An empty path reads the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
			return cfg, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return cfg, nil
}

// Usage describes every environment variable, for --help output.
func Usage() string {
	desc, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return ""
	}
	return desc
}
