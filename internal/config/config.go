package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Gemini / Veo
	GeminiAPIKey      string
	VeoModel          string
	PollInterval      time.Duration
	GenerationTimeout time.Duration

	// Worker pool
	WorkerCount int
	QueueSize   int

	// Uploads
	MaxUploadBytes int64

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),
		// The key may also be supplied at runtime through the key endpoint,
		// so an empty value here is not an error.
		GeminiAPIKey:      getEnvOrDefault("GEMINI_API_KEY", ""),
		VeoModel:          getEnvOrDefault("VEO_MODEL", "veo-2.0-generate-001"),
		PollInterval:      time.Duration(getEnvAsIntOrDefault("VEO_POLL_INTERVAL_MS", 5000)) * time.Millisecond,
		GenerationTimeout: time.Duration(getEnvAsIntOrDefault("GENERATION_TIMEOUT_SECONDS", 600)) * time.Second,
		WorkerCount:       getEnvAsIntOrDefault("WORKER_COUNT", 4),
		QueueSize:         getEnvAsIntOrDefault("JOB_QUEUE_SIZE", 256),
		MaxUploadBytes:    int64(getEnvAsIntOrDefault("MAX_UPLOAD_MB", 10)) << 20,
		FrontendURL:       getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
