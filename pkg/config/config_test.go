package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend != BackendFile || cfg.ServerPort != 8080 || cfg.LoginDomain != "darknova.app" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "server_port: 9090\nstore_backend: redis\nredis_url: redis://cache:6379\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SERVER_PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerPort != 7070 {
		t.Fatalf("expected env to override file port, got %d", cfg.ServerPort)
	}
	if cfg.StoreBackend != BackendRedis || cfg.RedisURL != "redis://cache:6379" {
		t.Fatalf("expected redis settings from file, got %+v", cfg)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug level, got %s", cfg.Log.Level)
	}
}

func TestLoadFailsFastWithoutEndpoint(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected missing DATABASE_URL to fail")
	}

	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected missing REDIS_URL to fail")
	}
}

func TestLoadRejectsBadInt(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected invalid SERVER_PORT error")
	}
}

func TestJWTSecretRequiredInProduction(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected missing JWT_SECRET to fail outside development")
	}
}

func TestTracingSettings(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("TRACE_SAMPLE_RATIO", "0.25")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tracing.Endpoint != "collector:4318" || cfg.Tracing.SampleRatio != 0.25 {
		t.Fatalf("unexpected tracing config %+v", cfg.Tracing)
	}

	for _, bad := range []string{"1.5", "-0.1", "half"} {
		t.Setenv("TRACE_SAMPLE_RATIO", bad)
		if _, err := Load(""); err == nil {
			t.Fatalf("expected TRACE_SAMPLE_RATIO=%s to fail", bad)
		}
	}
}

func TestRateLimitMustBePositive(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "0")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected RATE_LIMIT_PER_MINUTE=0 to fail")
	}
}

func TestTrustedProxies(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 172.16.0.0/12")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[1] != "172.16.0.0/12" {
		t.Fatalf("unexpected proxies %v", cfg.TrustedProxies)
	}

	t.Setenv("TRUSTED_PROXIES", "proxy.internal")
	if _, err := Load(""); err == nil {
		t.Fatal("expected hostnames to be rejected")
	}
}
