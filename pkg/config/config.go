package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store backends
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendFile     = "file"
	BackendMemory   = "memory"
)

// Config holds the application configuration
type Config struct {
	Environment          string        `yaml:"environment"`
	ServerPort           int           `yaml:"server_port"`
	Log                  LogConfig     `yaml:"log"`
	StoreBackend         string        `yaml:"store_backend"`
	DatabaseURL          string        `yaml:"database_url"`
	RedisURL             string        `yaml:"redis_url"`
	DataDir              string        `yaml:"data_dir"`
	BlobKeyPrefix        string        `yaml:"blob_key_prefix"`
	JWTSecret            string        `yaml:"jwt_secret"`
	TokenTTLHours        int           `yaml:"token_ttl_hours"`
	LoginDomain          string        `yaml:"login_domain"`
	SeedAdminUsername    string        `yaml:"seed_admin_username"`
	SeedAdminPassword    string        `yaml:"seed_admin_password"`
	SweepIntervalSeconds int           `yaml:"sweep_interval_seconds"`
	RateLimitPerMinute   int           `yaml:"rate_limit_per_minute"`
	CORSAllowedOrigins   []string      `yaml:"cors_allowed_origins"`
	TrustedProxies       []string      `yaml:"trusted_proxies"` // IPs or CIDRs allowed to set X-Forwarded-For
	Tracing              TracingConfig `yaml:"tracing"`
}

// TracingConfig controls the OTLP exporter; an empty endpoint disables tracing
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the development defaults
func Default() *Config {
	return &Config{
		Environment:  "development",
		ServerPort:   8080,
		Log:          LogConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 30},
		StoreBackend: BackendFile,
		DataDir:      "data",
		// Key prefix of existing darknova data exports
		BlobKeyPrefix:        "darknova",
		TokenTTLHours:        24,
		LoginDomain:          "darknova.app",
		SeedAdminUsername:    "admin",
		SweepIntervalSeconds: 60,
		RateLimitPerMinute:   100,
		CORSAllowedOrigins: []string{
			"http://localhost:5173",
			"http://localhost:3000",
		},
		Tracing: TracingConfig{SampleRatio: 1},
	}
}

// Load reads defaults, then the optional YAML file, then environment variables
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("FARMORDERS_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", cfg.StoreBackend))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.BlobKeyPrefix = getEnv("BLOB_KEY_PREFIX", cfg.BlobKeyPrefix)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.LoginDomain = getEnv("LOGIN_DOMAIN", cfg.LoginDomain)
	cfg.SeedAdminUsername = getEnv("SEED_ADMIN_USERNAME", cfg.SeedAdminUsername)
	cfg.SeedAdminPassword = getEnv("SEED_ADMIN_PASSWORD", cfg.SeedAdminPassword)
	cfg.CORSAllowedOrigins = parseCSVEnv("CORS_ALLOWED_ORIGINS", cfg.CORSAllowedOrigins)
	cfg.TrustedProxies = parseCSVEnv("TRUSTED_PROXIES", cfg.TrustedProxies)
	cfg.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	if v := os.Getenv("TRACE_SAMPLE_RATIO"); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TRACE_SAMPLE_RATIO %q: %w", v, err)
		}
		cfg.Tracing.SampleRatio = ratio
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SERVER_PORT", &cfg.ServerPort},
		{"TOKEN_TTL_HOURS", &cfg.TokenTTLHours},
		{"SWEEP_INTERVAL_SECONDS", &cfg.SweepIntervalSeconds},
		{"RATE_LIMIT_PER_MINUTE", &cfg.RateLimitPerMinute},
		{"LOG_MAX_SIZE_MB", &cfg.Log.MaxSizeMB},
		{"LOG_MAX_BACKUPS", &cfg.Log.MaxBackups},
		{"LOG_MAX_AGE_DAYS", &cfg.Log.MaxAgeDays},
	}
	for _, v := range ints {
		if err := getEnvInt(v.key, v.dst); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on configuration the server cannot start with
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis store")
		}
	case BackendFile:
		if c.DataDir == "" {
			return errors.New("DATA_DIR is required for the file store")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.ServerPort <= 0 {
		return fmt.Errorf("invalid SERVER_PORT %d", c.ServerPort)
	}
	if c.TokenTTLHours <= 0 {
		return fmt.Errorf("invalid TOKEN_TTL_HOURS %d", c.TokenTTLHours)
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("invalid SWEEP_INTERVAL_SECONDS %d", c.SweepIntervalSeconds)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATIO must be between 0 and 1, got %v", c.Tracing.SampleRatio)
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE %d", c.RateLimitPerMinute)
	}
	if c.JWTSecret == "" && !c.IsDevelopment() {
		return errors.New("JWT_SECRET is required outside development")
	}
	for _, p := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return fmt.Errorf("invalid TRUSTED_PROXIES entry %q", p)
		}
	}
	if c.LoginDomain == "" {
		return errors.New("LOGIN_DOMAIN must not be empty")
	}
	return nil
}

// IsDevelopment reports whether the server runs in the development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Addr is the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, dst *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
