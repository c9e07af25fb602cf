package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type GRPC struct {
	Addr string `yaml:"addr"`
}

type HTTP struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdownTimeout"` // 10s
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // classroom-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
}

type Store struct {
	Backend  string   `yaml:"backend"`  // file|postgres
	DataDir  string   `yaml:"dataDir"`  // ./data
	Filename string   `yaml:"filename"` // test-data.json
	Postgres Postgres `yaml:"postgres"`
}

type Rooms struct {
	DefaultCapacity int    `yaml:"defaultCapacity"` // 30
	GraceWindow     string `yaml:"graceWindow"`     // 24h
	CleanupInterval string `yaml:"cleanupInterval"` // 10m
}

type Config struct {
	HTTP    HTTP    `yaml:"http"`
	GRPC    GRPC    `yaml:"grpc"`
	Logging Logging `yaml:"logging"`
	Store   Store   `yaml:"store"`
	Rooms   Rooms   `yaml:"rooms"`
}

// LoadConfig reads CONFIG_PATH, or ./config/config.yaml when it is unset.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	switch c.Store.Backend {
	case "":
		c.Store.Backend = BackendFile
	case BackendFile, BackendPostgres:
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	if c.Store.Backend == BackendPostgres && c.Store.Postgres.DSN == "" {
		return errors.New("store.postgres.dsn is required for the postgres backend")
	}
	if c.Store.DataDir == "" {
		c.Store.DataDir = "./data"
	}
	if c.Store.Filename == "" {
		c.Store.Filename = "test-data.json"
	}

	for name, v := range map[string]string{
		"http.shutdownTimeout":  c.HTTP.ShutdownTimeout,
		"rooms.graceWindow":     c.Rooms.GraceWindow,
		"rooms.cleanupInterval": c.Rooms.CleanupInterval,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return fmt.Errorf("%s: invalid duration %q", name, v)
		}
	}
	if c.Rooms.DefaultCapacity < 0 {
		return errors.New("rooms.defaultCapacity must not be negative")
	}

	if c.Logging.Service == "" {
		c.Logging.Service = "classroom-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	return nil
}

func (c *Config) ShutdownTimeout() time.Duration {
	return parseDurationOr(10*time.Second, c.HTTP.ShutdownTimeout)
}

func (c *Config) GraceWindow() time.Duration {
	return parseDurationOr(24*time.Hour, c.Rooms.GraceWindow)
}

func (c *Config) CleanupInterval() time.Duration {
	return parseDurationOr(10*time.Minute, c.Rooms.CleanupInterval)
}

func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
