// Package config loads the service configuration: built-in defaults, then a
// YAML file, then command-line flags, then secrets from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/stagepass"
)

// Environment variables that override secrets from the file.
const (
	EnvSigningKey  = "STAGEPASS_SIGNING_KEY"
	EnvDatabaseURL = "DATABASE_URL"
)

// Store backends for refresh and single-use tokens. Users always live in
// Postgres unless the backend is memory.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config is the full service configuration. The engine settings sit at the
// top level of the file.
type Config struct {
	stagepass.Config `koanf:",squash"`

	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Store    StoreConfig    `koanf:"store"`
	Log      LogConfig      `koanf:"log"`
	HTTP     HTTPConfig     `koanf:"http"`
}

type DatabaseConfig struct {
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"max_conns"`
}

// RedisConfig is optional. When Addr is set the rate limiter counts in
// Redis so limits hold across replicas.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

type StoreConfig struct {
	Backend string `koanf:"backend"`
}

type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	MetricsAddr     string        `koanf:"metrics_addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Config:   stagepass.DefaultConfig(),
		Database: DatabaseConfig{MaxConns: 10},
		Redis:    RedisConfig{Prefix: "sp"},
		Store:    StoreConfig{Backend: BackendPostgres},
		Log:      LogConfig{Format: "json", Level: "info"},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			MetricsAddr:     ":9100",
			ShutdownTimeout: 15 * time.Second,
		},
	}
}

// RegisterFlags adds the flags Load understands to fs. Flag names are the
// dotted config keys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http.addr", "", "API listen address")
	fs.String("http.metrics_addr", "", "metrics and health listen address")
	fs.String("store.backend", "", "token store backend: postgres, redis or memory")
	fs.String("database.url", "", "Postgres connection URL")
	fs.String("redis.addr", "", "Redis address")
	fs.String("log.level", "", "log level: debug, info, warn or error")
	fs.String("log.format", "", "log format: json or text")
}

// Load builds the configuration. path may be empty; fs may be nil. Only
// flags the user set override the file.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return f.Name, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
	}

	if v := os.Getenv(EnvSigningKey); v != "" {
		cfg.JWT.SigningKey = v
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.Database.URL = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return &cfg, nil
}

// Validate checks the engine settings and the backend wiring.
func (c *Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url (or %s) is required for the postgres backend", EnvDatabaseURL)
		}
	case BackendRedis:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url (or %s) is required for user storage", EnvDatabaseURL)
		}
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not one of postgres, redis, memory", c.Store.Backend)
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}
