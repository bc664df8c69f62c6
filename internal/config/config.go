package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	ServerPort      int
	DatabasePath    string
	DashboardOrigin string // CORS origin of the dashboard frontend

	// Push-delivery collaborator. Push is disabled when the URL is empty.
	PushGatewayURL string
	PushGatewayKey string

	// Timeout for externally-bound calls (store queries, push sends).
	QueryTimeout time.Duration
	PushTimeout  time.Duration

	// Store whose events the host monitor captures. Empty disables the monitor.
	MonitorStoreID string

	// Retention sweep: cron expression and horizon in days.
	RetentionCron string
	RetentionDays int
}

// Load loads configuration from the environment, reading a .env file first
// when one is present.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments configure through the environment.
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, err
	}

	return &Config{
		ServerPort:      port,
		DatabasePath:    getEnv("DATABASE_PATH", "./storeguard.db"),
		DashboardOrigin: getEnv("DASHBOARD_ORIGIN", "http://localhost:3000"),
		PushGatewayURL:  getEnv("PUSH_GATEWAY_URL", ""),
		PushGatewayKey:  getEnv("PUSH_GATEWAY_KEY", ""),
		QueryTimeout:    time.Duration(getEnvInt("QUERY_TIMEOUT_SECONDS", 5)) * time.Second,
		PushTimeout:     time.Duration(getEnvInt("PUSH_TIMEOUT_SECONDS", 5)) * time.Second,
		MonitorStoreID:  getEnv("MONITOR_STORE_ID", ""),
		RetentionCron:   getEnv("RETENTION_CRON", "0 4 * * *"),
		RetentionDays:   getEnvInt("RETENTION_DAYS", 90),
	}, nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
