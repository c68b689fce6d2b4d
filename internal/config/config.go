// Package config provides configuration for the inboxagent server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the server configuration.
type Config struct {
	// Server settings
	HTTPPort    int
	FrontendURL string

	// Google OAuth settings
	GoogleClientID     string
	GoogleClientSecret string
	OAuthRedirectURL   string
	TokenFile          string

	// Gmail settings
	MaxUnread int

	// Groq settings
	GroqAPIKey  string
	GroqBaseURL string
	GroqModel   string
	GenTimeout  time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:           getEnvInt("HTTP_PORT", 8000),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:3000"),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		OAuthRedirectURL:   getEnv("OAUTH_REDIRECT_URL", "http://localhost:8000/oauth2callback"),
		TokenFile:          getEnv("TOKEN_FILE", "token.json"),
		MaxUnread:          getEnvInt("MAX_UNREAD", 10),
		GroqAPIKey:         getEnv("GROQ_API_KEY", ""),
		GroqBaseURL:        getEnv("GROQ_BASE_URL", "https://api.groq.com/openai"),
		GroqModel:          getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
		GenTimeout:         time.Duration(getEnvInt("GEN_TIMEOUT_MS", 30000)) * time.Millisecond,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
