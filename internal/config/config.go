package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Database
	SQLiteDBPath string

	// AMQP audit sink; empty URL disables publishing.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Dorm the ops entrypoint maintains.
	DormID int64

	// Logging
	LogLevel string
}

func Load() *Config {
	return &Config{
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/dormy.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "dormy"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "audit_events"),

		DormID: getEnvInt64("DORM_ID", 1),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if c.SQLiteDBPath == "" {
		errs = append(errs, "SQLite database path cannot be empty")
	}

	if c.DormID < 1 {
		errs = append(errs, fmt.Sprintf("invalid dorm id %d: must be positive", c.DormID))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
