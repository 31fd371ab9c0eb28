// internal/config/config.go

// Package config collects the server's environment-driven settings.
// Values come from the process environment (a .env file is loaded by
// cmd/server via godotenv autoload).
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the server reads at startup.
type Config struct {
	// Addr is the listen address, derived from PORT.
	Addr string

	// MaxClients bounds the client registry table.
	MaxClients int

	// MaxRooms bounds the pre-allocated room table.
	MaxRooms int

	// ChatHistory is the per-room chat ring buffer capacity.
	ChatHistory int

	// RematchTimeout is how long an unresolved rematch vote may sit
	// before the room is closed with a timeout result.
	RematchTimeout time.Duration

	// RedisAddr enables the match-event feed when non-empty.
	RedisAddr   string
	RedisDB     int
	EventsQueue string

	LogLevel string
}

// Load reads the environment and fills in defaults.
func Load() Config {
	return Config{
		Addr:           ":" + getEnv("PORT", "8080"),
		MaxClients:     getEnvInt("MAX_CLIENTS", 100),
		MaxRooms:       getEnvInt("MAX_ROOMS", 50),
		ChatHistory:    getEnvInt("CHAT_HISTORY", 100),
		RematchTimeout: getEnvDuration("REMATCH_TIMEOUT", 30*time.Second),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		EventsQueue:    getEnv("EVENTS_QUEUE_NAME", "othello_match_events"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvDuration parses an environment variable with time.ParseDuration,
// else returns a default value.
func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
