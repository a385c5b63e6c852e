package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaultStorageBaseURL(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("STORE_BACKEND", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:8080/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Fatalf("StoreBackend mismatch: got %q", cfg.StoreBackend)
	}
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:1919/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}
}

func TestLoadConfigBackendRequirements(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected postgres backend to require DATABASE_URL")
	}

	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_ADDR", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected redis backend to require REDIS_ADDR")
	}
	t.Setenv("REDIS_ADDR", "localhost:6379")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StoreBackend != BackendRedis {
		t.Fatalf("StoreBackend mismatch: got %q", cfg.StoreBackend)
	}

	t.Setenv("STORE_BACKEND", "etcd")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected unknown backend to be rejected")
	}
}

func TestLoadConfigParsesDurationsAndLists(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("JOB_TIMEOUT", "90s")
	t.Setenv("POLL_DEADLINE", "not-a-duration")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092 ,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JobTimeout != 90*time.Second {
		t.Fatalf("JobTimeout mismatch: got %s", cfg.JobTimeout)
	}
	if cfg.PollDeadline != 10*time.Minute {
		t.Fatalf("invalid duration should fall back, got %s", cfg.PollDeadline)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("KafkaBrokers mismatch: %#v", cfg.KafkaBrokers)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins, got %#v", cfg.CORSAllowedOrigins)
	}
}
