package config

import (
	"os"
	"testing"
)

func clearVectorEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"VECTOR_HTTP_ADDR", "VECTOR_DATA_DIR", "VECTOR_METRIC",
		"VECTOR_MAX_REQUEST_SIZE", "VECTOR_BADGER_MEMTABLE_MB",
		"VECTOR_BADGER_VALUE_LOG_MB", "VECTOR_BADGER_BLOCK_CACHE_MB",
		"VECTOR_BADGER_SYNC_WRITES", "VECTOR_LOG_LEVEL",
	}
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearVectorEnv(t)
	cfg := LoadFromEnv()

	if cfg.HTTPAddr != "127.0.0.1:8444" {
		t.Errorf("HTTPAddr = %q, want 127.0.0.1:8444", cfg.HTTPAddr)
	}
	if cfg.DataDir != "data/rocksdb" {
		t.Errorf("DataDir = %q, want data/rocksdb", cfg.DataDir)
	}
	if cfg.DefaultMetric != "" {
		t.Errorf("DefaultMetric = %q, want empty", cfg.DefaultMetric)
	}
	if cfg.MaxRequestSize != 10<<20 {
		t.Errorf("MaxRequestSize = %d, want %d", cfg.MaxRequestSize, 10<<20)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	clearVectorEnv(t)
	os.Setenv("VECTOR_HTTP_ADDR", "0.0.0.0:9000")
	os.Setenv("VECTOR_METRIC", "Cosine")
	os.Setenv("VECTOR_BADGER_SYNC_WRITES", "true")

	cfg := LoadFromEnv()
	if cfg.HTTPAddr != "0.0.0.0:9000" {
		t.Errorf("HTTPAddr = %q, want 0.0.0.0:9000", cfg.HTTPAddr)
	}
	if cfg.DefaultMetric != "Cosine" {
		t.Errorf("DefaultMetric = %q, want Cosine", cfg.DefaultMetric)
	}
	if !cfg.Badger.SyncWrites {
		t.Error("Badger.SyncWrites = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsBadMetric(t *testing.T) {
	clearVectorEnv(t)
	cfg := LoadFromEnv()
	cfg.DefaultMetric = "manhattan"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for bad metric")
	}
}

func TestValidateRejectsNonPositiveMaxRequestSize(t *testing.T) {
	clearVectorEnv(t)
	cfg := LoadFromEnv()
	cfg.MaxRequestSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for non-positive max request size")
	}
}

func TestStringDoesNotPanic(t *testing.T) {
	clearVectorEnv(t)
	cfg := LoadFromEnv()
	if cfg.String() == "" {
		t.Error("String() returned empty")
	}
}
