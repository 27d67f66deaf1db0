// Package config loads server settings from defaults, an optional YAML file
// and the environment, in that order.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendRedis  = "redis"
	BackendMySQL  = "mysql"
	BackendSQLite = "sqlite"

	CartStoreRedis  = "redis"
	CartStoreMemory = "memory"
)

type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	GRPC    GRPCConfig    `yaml:"grpc"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	MySQL   MySQLConfig   `yaml:"mysql"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	Session SessionConfig `yaml:"session"`
	Admin   AdminConfig   `yaml:"admin"`
	NATS    NATSConfig    `yaml:"nats"`
	Log     LogConfig     `yaml:"log"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

type GRPCConfig struct {
	// Addr empty disables the admin gRPC listener
	Addr string `yaml:"addr"`
}

type StorageConfig struct {
	// Backend is one of redis, mysql, sqlite
	Backend string `yaml:"backend"`
	// Timeout bounds every store call made by a service
	Timeout time.Duration `yaml:"timeout"`
	// CartTTL is the sliding expiry of a session cart
	CartTTL time.Duration `yaml:"cart_ttl"`
	// SeedOnStart fills an empty catalog with the sample products
	SeedOnStart bool `yaml:"seed_on_start"`
	// CartStore is redis or memory; empty picks redis for the redis backend
	// and memory otherwise
	CartStore string `yaml:"cart_store"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MySQLConfig struct {
	DSN string `yaml:"dsn"`
	// BreakerFailures consecutive failures open the circuit breaker
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type SessionConfig struct {
	Key    string        `yaml:"key"`
	Secure bool          `yaml:"secure"`
	MaxAge time.Duration `yaml:"max_age"`
}

type AdminConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type NATSConfig struct {
	// URL empty disables event publishing
	URL string `yaml:"url"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		GRPC: GRPCConfig{Addr: ":50051"},
		Storage: StorageConfig{
			Backend:     BackendRedis,
			Timeout:     5 * time.Second,
			CartTTL:     24 * time.Hour,
			SeedOnStart: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 100,
		},
		MySQL: MySQLConfig{
			DSN:             "root:root@tcp(localhost:3306)/biosalim",
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		SQLite: SQLiteConfig{Path: "biosalim.db"},
		Session: SessionConfig{
			MaxAge: 7 * 24 * time.Hour,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.Session.Key == "" {
		key, err := randomKey()
		if err != nil {
			return nil, err
		}
		cfg.Session.Key = key
		slog.Warn("SESSION_KEY not set, using a random key; sessions will not survive a restart")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.GRPC.Addr = getEnv("GRPC_ADDR", c.GRPC.Addr)
	c.Storage.Backend = strings.ToLower(getEnv("STORAGE_BACKEND", c.Storage.Backend))
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.MySQL.DSN = getEnv("MYSQL_DSN", c.MySQL.DSN)
	c.SQLite.Path = getEnv("SQLITE_PATH", c.SQLite.Path)
	c.Session.Key = getEnv("SESSION_KEY", c.Session.Key)
	c.Admin.Email = getEnv("ADMIN_EMAIL", c.Admin.Email)
	c.Admin.Password = getEnv("ADMIN_PASSWORD", c.Admin.Password)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("COOKIE_SECURE: %w", err)
		}
		c.Session.Secure = secure
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	case BackendMySQL:
		if c.MySQL.DSN == "" {
			return fmt.Errorf("mysql.dsn is required for the mysql backend")
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend must be redis, mysql or sqlite, got %q", c.Storage.Backend)
	}

	switch c.Storage.CartStore {
	case "", CartStoreRedis, CartStoreMemory:
	default:
		return fmt.Errorf("storage.cart_store must be redis or memory, got %q", c.Storage.CartStore)
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Storage.Timeout <= 0 {
		return fmt.Errorf("storage.timeout must be positive")
	}
	if c.Storage.CartTTL <= 0 {
		return fmt.Errorf("storage.cart_ttl must be positive")
	}
	if len(c.Session.Key) < 32 {
		return fmt.Errorf("session.key must be at least 32 bytes")
	}
	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		return fmt.Errorf("admin.email and admin.password must be set together")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// CartBackend resolves the effective cart store.
func (c *Config) CartBackend() string {
	if c.Storage.CartStore != "" {
		return c.Storage.CartStore
	}
	if c.Storage.Backend == BackendRedis {
		return CartStoreRedis
	}
	return CartStoreMemory
}

// AdminEnabled reports whether admin credentials are configured. Without
// them every admin login is refused.
func (c *Config) AdminEnabled() bool {
	return c.Admin.Email != "" && c.Admin.Password != ""
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func randomKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
