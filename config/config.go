// Package config loads ConvoMesh configuration from environment variables,
// with .env file support for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the engine and its collaborators need at
// startup.
type Config struct {
	Env       string
	LogLevel  string
	LogFormat string
	HTTPAddr  string

	DB       DBConfig
	Reasoner ReasonerConfig
	Routing  RoutingConfig
	Engine   EngineConfig
}

// DBConfig configures the postgres-backed stores. An empty DSN selects the
// in-memory stores instead.
type DBConfig struct {
	DSN string
}

// ReasonerConfig selects and configures the reasoning provider.
type ReasonerConfig struct {
	Provider  string // "openai" or "anthropic"
	APIKey    string
	Model     string
	MaxTokens int
}

// RoutingConfig configures the admission side.
type RoutingConfig struct {
	DefaultTarget string
	LedgerTTL     time.Duration
	SweepInterval time.Duration
}

// EngineConfig configures the dispatch side.
type EngineConfig struct {
	Workers               int
	MaxInteractions       int
	AutomationHandlerName string
}

// Load reads configuration from the environment. In development it first
// loads a .env file from the working directory if one exists.
func Load() (Config, error) {
	if getEnv("CONVOMESH_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env:       getEnv("CONVOMESH_ENV", "development"),
		LogLevel:  getEnv("CONVOMESH_LOG_LEVEL", "info"),
		LogFormat: getEnv("CONVOMESH_LOG_FORMAT", "text"),
		HTTPAddr:  getEnv("CONVOMESH_HTTP_ADDR", ":8080"),
		DB: DBConfig{
			DSN: getEnv("CONVOMESH_DATABASE_URL", ""),
		},
		Reasoner: ReasonerConfig{
			Provider:  getEnv("CONVOMESH_REASONER_PROVIDER", "openai"),
			APIKey:    getEnv("CONVOMESH_REASONER_API_KEY", ""),
			Model:     getEnv("CONVOMESH_REASONER_MODEL", ""),
			MaxTokens: getEnvInt("CONVOMESH_REASONER_MAX_TOKENS", 4096),
		},
		Routing: RoutingConfig{
			DefaultTarget: getEnv("CONVOMESH_DEFAULT_TARGET", ""),
			LedgerTTL:     getEnvDuration("CONVOMESH_LEDGER_TTL", 24*time.Hour),
			SweepInterval: getEnvDuration("CONVOMESH_SWEEP_INTERVAL", 15*time.Minute),
		},
		Engine: EngineConfig{
			Workers:               getEnvInt("CONVOMESH_WORKERS", 8),
			MaxInteractions:       getEnvInt("CONVOMESH_MAX_INTERACTIONS", 10),
			AutomationHandlerName: getEnv("CONVOMESH_AUTOMATION_HANDLER", "convomesh"),
		},
	}

	if cfg.Reasoner.Provider != "openai" && cfg.Reasoner.Provider != "anthropic" {
		return Config{}, fmt.Errorf("unsupported reasoner provider %q", cfg.Reasoner.Provider)
	}
	if cfg.Engine.Workers < 1 {
		return Config{}, fmt.Errorf("CONVOMESH_WORKERS must be at least 1")
	}
	return cfg, nil
}

// IsProduction reports whether the environment is production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesPostgres reports whether a database DSN is configured.
func (c Config) UsesPostgres() bool {
	return c.DB.DSN != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
