package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all client configuration.
type Config struct {
	APIBaseURL  string
	HTTPTimeout time.Duration
	LogLevel    string
	LogFormat   string

	// Draft store selection. Backend is "file" or "redis".
	DraftBackend string
	DraftDir     string
	RedisURL     string
	DraftTTL     time.Duration

	// Session timers.
	AutosaveInterval time.Duration

	// Optional proctoring monitor endpoint (ws:// or wss://).
	// Empty disables proctor reporting.
	ProctorURL string

	// Pre-issued bearer token. Empty means the CLI prompts for login.
	Token string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		APIBaseURL:       getEnv("API_BASE_URL", "http://localhost:8000/api/v1"),
		HTTPTimeout:      getEnvDuration("HTTP_TIMEOUT_SECONDS", 15*time.Second),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "pretty"),
		DraftBackend:     getEnv("DRAFT_BACKEND", "file"),
		DraftDir:         getEnv("DRAFT_DIR", defaultDraftDir()),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DraftTTL:         time.Duration(getEnvInt("DRAFT_TTL_HOURS", 7*24)) * time.Hour,
		AutosaveInterval: getEnvDuration("AUTOSAVE_INTERVAL_SECONDS", 30*time.Second),
		ProctorURL:       getEnv("PROCTOR_WS_URL", ""),
		Token:            getEnv("LMS_TOKEN", ""),
	}
}

// defaultDraftDir keeps drafts under the user's cache dir so they survive
// process restarts, mirroring the browser client's localStorage.
func defaultDraftDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return "./.lms-drafts"
	}
	return base + "/lms-exam-client/drafts"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration reads a whole-seconds env var into a time.Duration.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
