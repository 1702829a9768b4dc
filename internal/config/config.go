package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port string
	Env  string // "development", "production"

	// Database
	DatabaseURL string

	// BaseURL anchors the threshold-lowering links embedded in
	// notification bodies.
	BaseURL string

	// CORS
	AllowedOrigins []string

	// Session pool
	MaxSessions     int           // concurrent browser sessions per pass
	Proxy           string        // optional outbound proxy, passed through unmodified
	BrowserHeadless bool          // run the browser headless
	PageTimeout     time.Duration // per-tab navigation timeout

	// Checker
	CheckerEnabled bool
	CheckSchedule  string        // Cron expression (e.g., "*/15 * * * *")
	CheckTimeout   time.Duration // Timeout for a complete monitoring pass
}

func Load() *Config {
	return &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/farewatch?sslmode=disable"),

		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),

		// Session pool
		MaxSessions:     getIntEnv("MAX_SESSIONS", 5),
		Proxy:           os.Getenv("PROXY"),
		BrowserHeadless: getBoolEnv("BROWSER_HEADLESS", true),
		PageTimeout:     getDurationEnv("PAGE_TIMEOUT", 2*time.Minute),

		// Checker
		CheckerEnabled: getBoolEnv("CHECKER_ENABLED", true),
		CheckSchedule:  getEnv("CHECK_SCHEDULE", "*/15 * * * *"),
		CheckTimeout:   getDurationEnv("CHECK_TIMEOUT", 30*time.Minute),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
