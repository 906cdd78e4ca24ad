package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	DB         DBConfig        `yaml:"db"`
	Log        LogConfig       `yaml:"log"`
	Transport  TransportConfig `yaml:"transport"`
	Auth       AuthConfig      `yaml:"auth"`
	Cache      CacheConfig     `yaml:"cache"`
	Gardener   ServiceConfig   `yaml:"gardener"`
	OpenStack  OpenStackConfig `yaml:"openstack"`
	CloudKitty ServiceConfig   `yaml:"cloudkitty"`
	Tasks      TasksConfig     `yaml:"tasks"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// TransportConfig selects how MCP is served: "http" or "stdio".
type TransportConfig struct {
	Mode string `yaml:"mode"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
	// BootstrapAdminToken, when set, creates an admin user owning this token
	// on startup if no such token exists.
	BootstrapAdminToken string `yaml:"bootstrap_admin_token"`
}

// CacheConfig configures the usage report cache.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend  string        `yaml:"backend"`
	MaxBytes int64         `yaml:"max_bytes"`
	TTL      time.Duration `yaml:"ttl"`
	Redis    RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ServiceConfig points at an upstream HTTP API. An empty URL disables the
// integration.
type ServiceConfig struct {
	URL       string        `yaml:"url"`
	Token     string        `yaml:"token"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
}

type OpenStackConfig struct {
	ServiceConfig `yaml:",inline"`
	MemberRoles   []string `yaml:"member_roles"`
	GPUQuota      int      `yaml:"gpu_quota"`
}

type TasksConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "projectd.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		Cache: CacheConfig{
			Backend:  "memory",
			MaxBytes: 64 << 20,
			TTL:      time.Hour,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "projectd:",
			},
		},
		OpenStack: OpenStackConfig{
			MemberRoles: []string{"member"},
		},
		Tasks: TasksConfig{
			Workers:   4,
			QueueSize: 1024,
			Timeout:   2 * time.Minute,
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("PROJECTD_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Transport.Mode {
	case "http", "stdio":
	default:
		return fmt.Errorf("invalid transport mode %q", c.Transport.Mode)
	}
	switch c.Cache.Backend {
	case "memory":
		if c.Cache.MaxBytes <= 0 {
			return fmt.Errorf("cache.max_bytes must be positive")
		}
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Tasks.Workers <= 0 {
		return fmt.Errorf("tasks.workers must be positive")
	}
	if c.Tasks.QueueSize <= 0 {
		return fmt.Errorf("tasks.queue_size must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	setBool := func(key string, dst *bool) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = b
		return nil
	}
	setDuration := func(key string, dst *time.Duration) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	setString("PROJECTD_SERVER_HOST", &cfg.Server.Host)
	setString("PROJECTD_DB_PATH", &cfg.DB.Path)
	setString("PROJECTD_LOG_LEVEL", &cfg.Log.Level)
	setString("PROJECTD_TRANSPORT", &cfg.Transport.Mode)
	setString("PROJECTD_BOOTSTRAP_ADMIN_TOKEN", &cfg.Auth.BootstrapAdminToken)
	setString("PROJECTD_CACHE_BACKEND", &cfg.Cache.Backend)
	setString("PROJECTD_REDIS_ADDR", &cfg.Cache.Redis.Addr)
	setString("PROJECTD_REDIS_PASSWORD", &cfg.Cache.Redis.Password)
	setString("PROJECTD_GARDENER_URL", &cfg.Gardener.URL)
	setString("PROJECTD_GARDENER_TOKEN", &cfg.Gardener.Token)
	setString("PROJECTD_OPENSTACK_URL", &cfg.OpenStack.URL)
	setString("PROJECTD_OPENSTACK_TOKEN", &cfg.OpenStack.Token)
	setString("PROJECTD_CLOUDKITTY_URL", &cfg.CloudKitty.URL)
	setString("PROJECTD_CLOUDKITTY_TOKEN", &cfg.CloudKitty.Token)
	if roles := os.Getenv("PROJECTD_OPENSTACK_MEMBER_ROLES"); roles != "" {
		cfg.OpenStack.MemberRoles = splitList(roles)
	}

	for _, f := range []func() error{
		func() error { return setInt("PROJECTD_SERVER_PORT", &cfg.Server.Port) },
		func() error { return setInt("PROJECTD_REDIS_DB", &cfg.Cache.Redis.DB) },
		func() error { return setInt("PROJECTD_OPENSTACK_GPU_QUOTA", &cfg.OpenStack.GPUQuota) },
		func() error { return setInt("PROJECTD_TASK_WORKERS", &cfg.Tasks.Workers) },
		func() error { return setInt("PROJECTD_TASK_QUEUE_SIZE", &cfg.Tasks.QueueSize) },
		func() error { return setBool("PROJECTD_AUTH_ENABLED", &cfg.Auth.Enabled) },
		func() error { return setDuration("PROJECTD_CACHE_TTL", &cfg.Cache.TTL) },
		func() error { return setDuration("PROJECTD_TASK_TIMEOUT", &cfg.Tasks.Timeout) },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
