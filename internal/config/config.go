// Package config loads the dbparser YAML configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.yaml.in/yaml/v3"
)

// Cache backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMinIO    = "minio"
)

// Config is the top-level YAML document.
type Config struct {
	Database Database `yaml:"database"`
	Cache    Cache    `yaml:"cache"`
	Log      Log      `yaml:"log"`
	Server   Server   `yaml:"server"`
}

// Database describes the introspected MySQL database.
type Database struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// Cache selects and tunes the cache backend.
type Cache struct {
	Backend  string        `yaml:"backend"`
	Prefix   string        `yaml:"prefix"`
	ListTTL  time.Duration `yaml:"list_ttl"`
	TableTTL time.Duration `yaml:"table_ttl"`
	LockTTL  time.Duration `yaml:"lock_ttl"`

	// ComputeTimeout bounds one shared table load; zero means lock_ttl.
	ComputeTimeout time.Duration `yaml:"compute_timeout"`
	// PurgeInterval is how often serve reclaims expired entries on
	// backends that keep them (memory, postgres, minio). Zero disables it.
	PurgeInterval time.Duration `yaml:"purge_interval"`

	Redis    Redis    `yaml:"redis"`
	Postgres Postgres `yaml:"postgres"`
	MinIO    MinIO    `yaml:"minio"`
}

// Redis holds go-redis client settings.
type Redis struct {
	Addr      string `yaml:"addr"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`
}

// Postgres holds the cache database settings.
type Postgres struct {
	DSN      string `yaml:"dsn"`
	Table    string `yaml:"table"`
	Unlogged *bool  `yaml:"unlogged"`
}

// MinIO holds object-store settings.
type MinIO struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// Log configures the zerolog logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration that only lacks a DSN.
func Default() *Config {
	return &Config{
		Database: Database{
			Driver:          "mysql",
			MaxConns:        5,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			ConnectTimeout:  10 * time.Second,
			QueryTimeout:    30 * time.Second,
		},
		Cache: Cache{
			Backend:       BackendMemory,
			ListTTL:       24 * time.Hour,
			TableTTL:      30 * 24 * time.Hour,
			LockTTL:       30 * time.Second,
			PurgeInterval: time.Hour,
			Redis:         Redis{Addr: "localhost:6379", Namespace: "dbparser"},
			Postgres:      Postgres{Table: "dbparser_cache"},
			MinIO:         MinIO{Bucket: "dbparser-cache"},
		},
		Log:    Log{Level: "info", Format: "json"},
		Server: Server{Addr: ":8080"},
	}
}

// Load reads and parses a YAML config file. Values absent from the file
// keep their defaults, then empty fields are filled from the environment.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv fills in empty fields from environment variables.
// YAML values take precedence; env vars are used only as fallback.
func (c *Config) applyEnv() {
	setString(&c.Database.DSN, "DBPARSER_DSN", "MYSQL_DSN")
	setString(&c.Cache.Prefix, "DBPARSER_CACHE_PREFIX")
	if v := envOr("DBPARSER_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := envOr("DBPARSER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	setString(&c.Cache.Redis.Password, "REDIS_PASSWORD")
	if v := envOr("REDIS_ADDR"); v != "" && c.Cache.Redis.Addr == Default().Cache.Redis.Addr {
		c.Cache.Redis.Addr = v
	}
	if c.Cache.Redis.DB == 0 {
		if s := envOr("REDIS_DB"); s != "" {
			if n, err := strconv.Atoi(s); err == nil {
				c.Cache.Redis.DB = n
			}
		}
	}

	setString(&c.Cache.Postgres.DSN, "DBPARSER_CACHE_PG_DSN", "DATABASE_URL")
	setString(&c.Cache.MinIO.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Cache.MinIO.AccessKey, "MINIO_ACCESS_KEY", "MINIO_ROOT_USER")
	setString(&c.Cache.MinIO.SecretKey, "MINIO_SECRET_KEY", "MINIO_ROOT_PASSWORD")
}

// Validate rejects configurations the application cannot start with.
func (c *Config) Validate() error {
	if c.Database.Driver != "mysql" {
		return fmt.Errorf("database.driver %q is not supported, only mysql", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required (or set DBPARSER_DSN)")
	}
	if c.Cache.ListTTL <= 0 || c.Cache.TableTTL <= 0 {
		return fmt.Errorf("cache.list_ttl and cache.table_ttl must be positive")
	}
	if c.Cache.ComputeTimeout < 0 || c.Cache.PurgeInterval < 0 {
		return fmt.Errorf("cache.compute_timeout and cache.purge_interval must not be negative")
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required")
		}
	case BackendPostgres:
		if c.Cache.Postgres.DSN == "" {
			return fmt.Errorf("cache.postgres.dsn is required")
		}
	case BackendMinIO:
		if c.Cache.MinIO.Endpoint == "" || c.Cache.MinIO.Bucket == "" {
			return fmt.Errorf("cache.minio.endpoint and cache.minio.bucket are required")
		}
	default:
		return fmt.Errorf("cache.backend %q is not one of memory, redis, postgres, minio", c.Cache.Backend)
	}
	return nil
}

func setString(dst *string, keys ...string) {
	if *dst == "" {
		*dst = envOr(keys...)
	}
}

// envOr returns the first non-empty environment variable among keys.
func envOr(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
