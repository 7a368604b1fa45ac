package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	StoragePath    string
	StorageBaseURL string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	OpenAIOrg     string

	VisionEndpoint string
	VisionAPIKey   string

	SpeechRegion  string
	SpeechAPIKey  string
	SpeechBaseURL string

	NarrativeTimeout time.Duration
	VisionTimeout    time.Duration
	SpeechTimeout    time.Duration

	WorkerCount       int
	QueuePollInterval time.Duration
	QueueLeaseTimeout time.Duration
	JobRetention      time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:     os.Getenv("OPENAI_ORG"),

		VisionEndpoint: os.Getenv("VISION_ENDPOINT"),
		VisionAPIKey:   os.Getenv("VISION_API_KEY"),

		SpeechRegion:  os.Getenv("SPEECH_REGION"),
		SpeechAPIKey:  os.Getenv("SPEECH_API_KEY"),
		SpeechBaseURL: os.Getenv("SPEECH_BASE_URL"),

		NarrativeTimeout: time.Second * time.Duration(getEnvInt("NARRATIVE_TIMEOUT_SECONDS", 60)),
		VisionTimeout:    time.Second * time.Duration(getEnvInt("VISION_TIMEOUT_SECONDS", 30)),
		SpeechTimeout:    time.Second * time.Duration(getEnvInt("SPEECH_TIMEOUT_SECONDS", 30)),

		WorkerCount:       getEnvInt("WORKER_COUNT", 4),
		QueuePollInterval: time.Second * time.Duration(getEnvInt("QUEUE_POLL_INTERVAL_SECONDS", 2)),
		QueueLeaseTimeout: time.Second * time.Duration(getEnvInt("QUEUE_LEASE_TIMEOUT_SECONDS", 300)),
		JobRetention:      time.Hour * time.Duration(getEnvInt("JOB_RETENTION_HOURS", 24*7)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		AllowedOrigins:   splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
