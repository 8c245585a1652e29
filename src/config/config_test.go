package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Protocol-Lattice/go-dbagent/src/history"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("FromEnv returned error: %v", err)
	}
	if cfg.Addr != ":8000" || cfg.Provider != "openai" || cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.History.Backend != history.BackendMemory || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"PORT":                   "9090",
		"LLM_PROVIDER":           "Gemini",
		"LLM_MODEL":              "gemini-1.5-pro",
		"MAX_CONCURRENT_QUERIES": "3",
		"SHUTDOWN_TIMEOUT":       "2s",
		"HISTORY_BACKEND":        "MONGO",
		"HISTORY_URL":            "mongodb://localhost:27017",
		"HISTORY_DB":             "audit",
		"LOG_LEVEL":              "DEBUG",
		"LOG_PRETTY":             "true",
		"API_NINJA_KEY":          "k",
	}))
	if err != nil {
		t.Fatalf("FromEnv returned error: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.Provider != "gemini" || cfg.Model != "gemini-1.5-pro" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.MaxConcurrentQueries != 3 || cfg.ShutdownTimeout != 2*time.Second {
		t.Fatalf("unexpected limits %+v", cfg)
	}
	if cfg.History.Backend != "mongo" || cfg.History.URL != "mongodb://localhost:27017" || cfg.History.Database != "audit" {
		t.Fatalf("unexpected history %+v", cfg.History)
	}
	if cfg.LogLevel != "debug" || !cfg.LogPretty || cfg.HoroscopeAPIKey != "k" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestFromEnvSQLSettings(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("FromEnv returned error: %v", err)
	}
	if cfg.SQLRowLimit != 0 || cfg.SchemaCacheTTL != 5*time.Minute {
		t.Fatalf("unexpected sql defaults %+v", cfg)
	}

	cfg, err = FromEnv(envMap(map[string]string{"SQL_ROW_LIMIT": "25", "SCHEMA_CACHE_TTL": "0"}))
	if err != nil {
		t.Fatalf("FromEnv returned error: %v", err)
	}
	if cfg.SQLRowLimit != 25 || cfg.SchemaCacheTTL != 0 {
		t.Fatalf("unexpected sql settings %+v", cfg)
	}
}

func TestFromEnvAddrWinsOverPort(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{"ADDR": "127.0.0.1:7000", "PORT": "9090"}))
	if err != nil {
		t.Fatalf("FromEnv returned error: %v", err)
	}
	if cfg.Addr != "127.0.0.1:7000" {
		t.Fatalf("expected ADDR to win, got %q", cfg.Addr)
	}
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"concurrency": {"MAX_CONCURRENT_QUERIES": "many"},
		"negative":    {"MAX_CONCURRENT_QUERIES": "-1"},
		"timeout":     {"SHUTDOWN_TIMEOUT": "soon"},
		"pretty":      {"LOG_PRETTY": "maybe"},
		"per session": {"HISTORY_PER_SESSION": "x"},
		"row limit":   {"SQL_ROW_LIMIT": "-5"},
		"cache ttl":   {"SCHEMA_CACHE_TTL": "forever"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromEnv(envMap(env)); err == nil {
				t.Fatalf("expected error for %v", env)
			}
		})
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("DBAGENT_TEST_ONLY=1\nLLM_MODEL=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("LLM_MODEL", "")
	os.Unsetenv("LLM_MODEL")
	t.Setenv("DBAGENT_TEST_ONLY", "")
	os.Unsetenv("DBAGENT_TEST_ONLY")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Model != "from-file" {
		t.Fatalf("expected model from env file, got %q", cfg.Model)
	}
}

func TestLoadIgnoresMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored, got %v", err)
	}
}
