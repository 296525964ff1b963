package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Upstream string

const (
	UpstreamOpenAI Upstream = "openai"
	UpstreamGemini Upstream = "gemini"
)

type Config struct {
	Port string

	// Process-wide upstream defaults. Requests may replace them with their
	// own complete config, or override only the model.
	DefaultAPIURL    string
	DefaultAPIKey    string
	DefaultModelName string
	Upstream         Upstream

	// Shared secret that unlocks the defaults without a daily quota.
	AccessPassword string

	DailyUsageLimit int
	MaxTurns        int
	MaxInputChars   int
	ContextTurns    int

	StorageBackend string // "memory", "file", "sqlite" or "firestore"
	StoragePath    string
	GCPProjectID   string

	LogLevel   string
	EnableOTLP bool
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getIntEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Load reads an optional .env file and then the environment. Values are
// read once at startup and not changed afterwards.
func Load(envFiles ...string) *Config {
	// Missing .env files are fine, the environment may be set directly.
	_ = godotenv.Load(envFiles...)

	return &Config{
		Port: getEnv("MERMAID_PORT", "8080"),

		DefaultAPIURL:    getEnv("AI_API_URL", ""),
		DefaultAPIKey:    getEnv("AI_API_KEY", ""),
		DefaultModelName: getEnv("AI_MODEL_NAME", ""),
		Upstream:         Upstream(strings.ToLower(getEnv("MERMAID_UPSTREAM", string(UpstreamOpenAI)))),

		AccessPassword: getEnv("ACCESS_PASSWORD", ""),

		DailyUsageLimit: getIntEnv("MERMAID_DAILY_USAGE_LIMIT", 50),
		MaxTurns:        getIntEnv("MERMAID_MAX_TURNS", 10),
		MaxInputChars:   getIntEnv("MERMAID_MAX_CHARS", 20000),
		ContextTurns:    getIntEnv("MERMAID_CONTEXT_TURNS", 5),

		StorageBackend: getEnv("MERMAID_STORAGE_BACKEND", "memory"),
		StoragePath:    getEnv("MERMAID_STORAGE_PATH", "sessions.json"),
		GCPProjectID:   getEnv("MERMAID_GCP_PROJECT", ""),

		LogLevel:   getEnv("MERMAID_LOG_LEVEL", "info"),
		EnableOTLP: getBoolEnv("MERMAID_OTLP", false),
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Upstream {
	case UpstreamOpenAI, UpstreamGemini:
	default:
		return fmt.Errorf("MERMAID_UPSTREAM must be openai or gemini, got %q", c.Upstream)
	}

	switch c.StorageBackend {
	case "memory":
	case "file", "sqlite":
		if c.StoragePath == "" {
			return fmt.Errorf("MERMAID_STORAGE_PATH is required for %s storage", c.StorageBackend)
		}
	case "firestore":
		if c.GCPProjectID == "" {
			return fmt.Errorf("MERMAID_GCP_PROJECT is required for firestore storage")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	if c.MaxTurns <= 0 {
		return fmt.Errorf("MERMAID_MAX_TURNS must be positive, got %d", c.MaxTurns)
	}
	if c.MaxInputChars <= 0 {
		return fmt.Errorf("MERMAID_MAX_CHARS must be positive, got %d", c.MaxInputChars)
	}
	if c.ContextTurns < 0 {
		return fmt.Errorf("MERMAID_CONTEXT_TURNS must not be negative, got %d", c.ContextTurns)
	}
	return nil
}
