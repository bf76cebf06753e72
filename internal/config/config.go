package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all environment-sourced settings for the service.
type Config struct {
	AppEnv           string
	LogLevel         string
	HTTPListenAddr   string
	PublicBasePath   string
	MetricsNamespace string

	DatabaseURL    string
	DatabaseSchema string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	GeminiAPIKeys  []string
	GeminiModel    string
	GeminiTimeout  time.Duration
	GeminiCooldown time.Duration

	WhatsAppStorePath string
	WhatsAppLogLevel  string

	AdminToken string
}

// Load reads configuration from the environment, applying defaults where a
// value is optional. Missing DATABASE_URL or WA_STORE_PATH is not an error:
// the corresponding subsystem is started inert and a warning is logged by
// the caller.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8080"),
		PublicBasePath:    os.Getenv("PUBLIC_BASE_PATH"),
		MetricsNamespace:  getEnv("METRICS_NAMESPACE", "studybot"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DatabaseSchema:    os.Getenv("DATABASE_SCHEMA"),
		RedisAddr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		WhatsAppStorePath: os.Getenv("WA_STORE_PATH"),
		WhatsAppLogLevel:  getEnv("WA_LOG_LEVEL", "INFO"),
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
	}

	for _, key := range strings.Split(os.Getenv("GEMINI_API_KEYS"), ",") {
		key = strings.TrimSpace(key)
		if key != "" {
			cfg.GeminiAPIKeys = append(cfg.GeminiAPIKeys, key)
		}
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RedisTLS, err = getEnvBool("REDIS_TLS", false); err != nil {
		return nil, err
	}
	if cfg.GeminiTimeout, err = getEnvDuration("GEMINI_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.GeminiCooldown, err = getEnvDuration("GEMINI_COOLDOWN", time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
