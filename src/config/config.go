// Package config loads runtime settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Protocol-Lattice/go-dbagent/src/history"
	"github.com/joho/godotenv"
)

// Config holds everything the server and CLI read from the environment.
type Config struct {
	Addr     string
	Provider string
	Model    string

	MaxConcurrentQueries int
	ShutdownTimeout      time.Duration

	// SQLRowLimit caps rows per query when the model gives no limit. Zero
	// keeps the toolkit default.
	SQLRowLimit int
	// SchemaCacheTTL bounds how long table listings are reused; zero disables.
	SchemaCacheTTL time.Duration

	History history.Config

	LogLevel  string
	LogPretty bool

	HoroscopeURL    string
	HoroscopeAPIKey string
	ShellDir        string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Addr:            ":8000",
		Provider:        "openai",
		ShutdownTimeout: 10 * time.Second,
		SchemaCacheTTL:  5 * time.Minute,
		History:         history.Config{Backend: history.BackendMemory},
		LogLevel:        "info",
		HoroscopeURL:    "https://api.api-ninjas.com/v1/horoscope",
	}
}

// Load reads envFiles (".env" when none are given) into the process
// environment without overriding it, then builds a Config. Missing files are
// ignored.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, starting from Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	switch {
	case get("ADDR") != "":
		cfg.Addr = get("ADDR")
	case get("PORT") != "":
		cfg.Addr = ":" + get("PORT")
	}
	if v := get("LLM_PROVIDER"); v != "" {
		cfg.Provider = strings.ToLower(v)
	}
	cfg.Model = get("LLM_MODEL")

	if v := get("MAX_CONCURRENT_QUERIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("MAX_CONCURRENT_QUERIES: invalid value %q", v)
		}
		cfg.MaxConcurrentQueries = n
	}
	if v := get("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("SHUTDOWN_TIMEOUT: invalid duration %q", v)
		}
		cfg.ShutdownTimeout = d
	}
	if v := get("SQL_ROW_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("SQL_ROW_LIMIT: invalid value %q", v)
		}
		cfg.SQLRowLimit = n
	}
	if v := get("SCHEMA_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("SCHEMA_CACHE_TTL: invalid duration %q", v)
		}
		cfg.SchemaCacheTTL = d
	}

	if v := get("HISTORY_BACKEND"); v != "" {
		cfg.History.Backend = strings.ToLower(v)
	}
	cfg.History.URL = get("HISTORY_URL")
	cfg.History.Database = get("HISTORY_DB")
	cfg.History.Username = get("HISTORY_USER")
	cfg.History.Password = get("HISTORY_PASSWORD")
	if v := get("HISTORY_PER_SESSION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("HISTORY_PER_SESSION: invalid value %q", v)
		}
		cfg.History.PerSession = n
	}

	if v := get("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := get("LOG_PRETTY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("LOG_PRETTY: invalid value %q", v)
		}
		cfg.LogPretty = b
	}

	if v := get("HOROSCOPE_URL"); v != "" {
		cfg.HoroscopeURL = v
	}
	cfg.HoroscopeAPIKey = get("API_NINJA_KEY")
	cfg.ShellDir = get("SHELL_DIR")
	return cfg, nil
}
