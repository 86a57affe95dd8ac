package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for semlens-engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables; environment variables always override YAML values. Secrets
// (passwords) must only come from environment variables.
type Config struct {
	// Server configuration (HTTP glue around the resolver service)
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8460"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Catalog database holding the nine catalog relations
	Catalog CatalogConfig `yaml:"catalog"`

	// External shared graph store (Neo4j)
	GraphStore GraphStoreConfig `yaml:"graph_store"`

	// Optional join-path result cache
	Redis RedisConfig `yaml:"redis"`
}

// CatalogConfig holds catalog database configuration. Driver selects the
// backend: "postgres" or "mssql".
type CatalogConfig struct {
	Driver         string `yaml:"driver" env:"CATALOG_DRIVER" env-default:"postgres"`
	Host           string `yaml:"host" env:"CATALOG_HOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"CATALOG_PORT" env-default:"5432"`
	User           string `yaml:"user" env:"CATALOG_USER" env-default:"semlens"`
	Password       string `yaml:"-" env:"CATALOG_PASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"CATALOG_DATABASE" env-default:"semlens_catalog"`
	SSLMode        string `yaml:"ssl_mode" env:"CATALOG_SSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"CATALOG_MAX_CONNECTIONS" env-default:"10"`
}

// ConnectionString returns a connection string for the configured driver.
func (c *CatalogConfig) ConnectionString() string {
	if c.Driver == "mssql" {
		return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
			c.User, c.Password, c.Host, c.Port, c.Database)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// GraphStoreConfig holds Neo4j connection settings for the persistence
// adapter. BatchSize bounds the UNWIND batches used during persist.
type GraphStoreConfig struct {
	URI            string `yaml:"uri" env:"GRAPH_STORE_URI" env-default:""`
	User           string `yaml:"user" env:"GRAPH_STORE_USER" env-default:"neo4j"`
	Password       string `yaml:"-" env:"GRAPH_STORE_PASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"GRAPH_STORE_DATABASE" env-default:""`
	BatchSize      int    `yaml:"batch_size" env:"GRAPH_STORE_BATCH_SIZE" env-default:"500"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"GRAPH_STORE_TIMEOUT_SECONDS" env-default:"10"`
}

// IsConfigured returns true if a graph store endpoint is set.
func (c *GraphStoreConfig) IsConfigured() bool {
	return c.URI != ""
}

// RedisConfig holds the optional join-path cache settings. An empty host
// disables caching.
type RedisConfig struct {
	Host       string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port       int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password   string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB         int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	TTLSeconds int    `yaml:"ttl_seconds" env:"REDIS_TTL_SECONDS" env-default:"600"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on
// the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Catalog.Driver {
	case "postgres", "mssql":
	default:
		return fmt.Errorf("catalog driver must be postgres or mssql, got %q", c.Catalog.Driver)
	}
	if c.GraphStore.BatchSize <= 0 {
		return fmt.Errorf("graph store batch_size must be positive, got %d", c.GraphStore.BatchSize)
	}
	return nil
}
