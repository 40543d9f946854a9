package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPPort     int
	SMTPPort     int
	Domain       string
	AuthSecret   string
	SeedAccounts bool
}

func Load() Config {
	return Config{
		HTTPPort:     getEnvInt("HTTP_PORT", 5000),
		SMTPPort:     getEnvInt("SMTP_PORT", 2525),
		Domain:       getEnvString("DOMAIN", "openmail.org"),
		AuthSecret:   getEnvString("AUTH_SECRET", ""),
		SeedAccounts: getEnvBool("SEED_ACCOUNTS", true),
	}
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}
