// Package config loads and validates the publisher service configuration.
// Configuration is read from an optional YAML file and overridden by
// environment variables; the resulting Config value object is passed into
// each component's constructor so that no component reads process state
// directly.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultReadTimeoutSeconds is the default HTTP read timeout in seconds
	DefaultReadTimeoutSeconds = 10
	// DefaultWriteTimeoutSeconds is the default HTTP write timeout in seconds
	DefaultWriteTimeoutSeconds = 30
	// DefaultPollInterval is the default pause between publish cycles
	DefaultPollInterval = 30 * time.Second
)

type Config struct {
	Debug     bool            `yaml:"debug"` // Controls log level and format
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	GeoServer GeoServerConfig `yaml:"geoserver"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Service   ServiceConfig   `yaml:"service"`
}

// StorageConfig describes the MinIO bucket that carries publish requests.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
	ProxyURL  string `yaml:"proxy_url"` // Public browser URL used in catalog distributions
}

// GeoServerConfig describes the map-server REST endpoint.
type GeoServerConfig struct {
	URL       string `yaml:"url"`
	PublicURL string `yaml:"public_url"` // Externally reachable base URL for WMS links
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	// DataRoot is where the staging mirror is mounted inside the map
	// server, used to build file-reference datastores.
	DataRoot string `yaml:"data_root"`
}

// CatalogConfig describes the optional catalog broker. An empty URL
// disables catalog publication entirely.
type CatalogConfig struct {
	URL                      string `yaml:"url"`
	DistributionTemplatePath string `yaml:"distribution_template_path"`
	DatasetTemplatePath      string `yaml:"dataset_template_path"`
}

type ServiceConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	StagingDir   string        `yaml:"staging_dir"` // Local mirror of the object store, filled by the sync sidecar
}

type ServerConfig struct {
	Address      string        `yaml:"address"` // e.g., ":8080"
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Validate checks that the configuration is complete enough to start.
func (c *Config) Validate() error {
	if c.Storage.Endpoint == "" {
		return errors.New("storage.endpoint is required")
	}
	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required")
	}
	if c.GeoServer.URL == "" {
		return errors.New("geoserver.url is required")
	}
	if c.Service.PollInterval <= 0 {
		return fmt.Errorf("service.poll_interval must be positive, got %v", c.Service.PollInterval)
	}
	if c.Service.StagingDir == "" {
		return errors.New("service.staging_dir is required")
	}
	return nil
}

// CatalogEnabled reports whether a catalog broker is configured.
func (c *Config) CatalogEnabled() bool {
	return c.Catalog.URL != ""
}

func setDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeoutSeconds * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeoutSeconds * time.Second
	}
	if cfg.Storage.Endpoint == "" {
		cfg.Storage.Endpoint = "minio:9000"
	}
	if cfg.Storage.AccessKey == "" {
		cfg.Storage.AccessKey = "minioadmin"
	}
	if cfg.Storage.SecretKey == "" {
		cfg.Storage.SecretKey = "minioadmin"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "geodata"
	}
	if cfg.Storage.ProxyURL == "" {
		cfg.Storage.ProxyURL = "http://localhost:9090"
	}
	if cfg.GeoServer.URL == "" {
		cfg.GeoServer.URL = "http://geoserver:8080/geoserver"
	}
	if cfg.GeoServer.Username == "" {
		cfg.GeoServer.Username = "admin"
	}
	if cfg.GeoServer.Password == "" {
		cfg.GeoServer.Password = "geoserver"
	}
	if cfg.GeoServer.DataRoot == "" {
		cfg.GeoServer.DataRoot = "/opt/geoserver_data"
	}
	if cfg.Catalog.DistributionTemplatePath == "" {
		cfg.Catalog.DistributionTemplatePath = "/app/distribution_template.json"
	}
	if cfg.Catalog.DatasetTemplatePath == "" {
		cfg.Catalog.DatasetTemplatePath = "/app/dataset_template.json"
	}
	if cfg.Service.PollInterval == 0 {
		cfg.Service.PollInterval = DefaultPollInterval
	}
	if cfg.Service.StagingDir == "" {
		cfg.Service.StagingDir = "/data"
	}
	// WMS links default to the internal URL when no public one is set
	if cfg.GeoServer.PublicURL == "" {
		cfg.GeoServer.PublicURL = cfg.GeoServer.URL
	}
}

func overrideWithEnvVars(cfg *Config) {
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("MINIO_SECURE"); v != "" {
		cfg.Storage.Secure = parseBool(v)
	}
	if v := os.Getenv("MINIO_PROXY_URL"); v != "" {
		cfg.Storage.ProxyURL = v
	}
	if v := os.Getenv("GEOSERVER_URL"); v != "" {
		cfg.GeoServer.URL = v
	}
	if v := os.Getenv("GEOSERVER_PUBLIC_URL"); v != "" {
		cfg.GeoServer.PublicURL = v
	}
	if v := os.Getenv("GEOSERVER_USER"); v != "" {
		cfg.GeoServer.Username = v
	}
	if v := os.Getenv("GEOSERVER_PASSWORD"); v != "" {
		cfg.GeoServer.Password = v
	}
	if v := os.Getenv("GEOSERVER_DATA_ROOT"); v != "" {
		cfg.GeoServer.DataRoot = v
	}
	if v := os.Getenv("IDRA_URL"); v != "" {
		cfg.Catalog.URL = v
	}
	if v := os.Getenv("DISTRIBUTION_TEMPLATE_PATH"); v != "" {
		cfg.Catalog.DistributionTemplatePath = v
	}
	if v := os.Getenv("DATASET_TEMPLATE_PATH"); v != "" {
		cfg.Catalog.DatasetTemplatePath = v
	}
	if v := os.Getenv("TARGET_DIR"); v != "" {
		cfg.Service.StagingDir = v
	}
	if v := os.Getenv("PUBLISH_INTERVAL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Service.PollInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("APP_DEBUG"); v != "" {
		cfg.Debug = parseBool(v)
	}
	if v := os.Getenv("PUBLISHER_PORT"); v != "" {
		cfg.Server.Address = ":" + v
	}
}

// Load reads the configuration file at path (if it exists), applies
// defaults and environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if unmarshalErr := yaml.Unmarshal(data, &cfg); unmarshalErr != nil {
			return nil, fmt.Errorf("parse config: %w", unmarshalErr)
		}
	case os.IsNotExist(err):
		// Environment-only deployments run without a config file
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	overrideWithEnvVars(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// parseBool parses a string value as a boolean.
// Returns true for "true", "1", "yes" (case-insensitive), false otherwise.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
