package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ServerConfig configures the HTTP host. Empty DatabaseURL or RabbitMQURL
// run the host without that collaborator.
type ServerConfig struct {
	HTTPAddr       string
	DatabaseURL    string
	RabbitMQURL    string
	EngineConfig   string
	LogLevel       string
	LogDevelopment bool
	SubmitDelay    time.Duration
	SubmitTimeout  time.Duration
}

// FromEnv reads the server configuration from the environment.
func FromEnv() (ServerConfig, error) {
	cfg := ServerConfig{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RabbitMQURL:  getEnv("RABBITMQ_URL", ""),
		EngineConfig: getEnv("ENGINE_CONFIG", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.LogDevelopment, err = strconv.ParseBool(getEnv("LOG_DEVELOPMENT", "false")); err != nil {
		return cfg, fmt.Errorf("invalid LOG_DEVELOPMENT: %w", err)
	}
	if cfg.SubmitDelay, err = time.ParseDuration(getEnv("SUBMIT_DELAY", "1500ms")); err != nil {
		return cfg, fmt.Errorf("invalid SUBMIT_DELAY: %w", err)
	}
	if cfg.SubmitTimeout, err = time.ParseDuration(getEnv("SUBMIT_TIMEOUT", "30s")); err != nil {
		return cfg, fmt.Errorf("invalid SUBMIT_TIMEOUT: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
