// Package config loads server settings from the environment and an optional
// .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/warp/loan-engine/strategies"
)

// Config holds application configuration
type Config struct {
	Port              int
	DBPath            string
	LogLevel          string
	LogFormat         string // json, text
	ReprocessSchedule string // cron spec; empty disables the scheduler
	CORSOrigins       []string
	DefaultStrategy   string
}

// Load reads files (".env" when none are given) into the environment and
// builds a Config from it. Missing files are not an error; variables
// already set in the environment win over file values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("PORT must be a port number, got %q", os.Getenv("PORT"))
	}

	cfg := &Config{
		Port:              port,
		DBPath:            getEnv("DB_PATH", "loans.db"),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "json")),
		ReprocessSchedule: getEnv("REPROCESS_SCHEDULE", "0 2 * * *"),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "")),
		DefaultStrategy:   getEnv("DEFAULT_STRATEGY", string(strategies.Default)),
	}

	if cfg.DBPath == "" {
		return nil, fmt.Errorf("DB_PATH is required")
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("LOG_FORMAT must be json or text, got %q", cfg.LogFormat)
	}
	if _, ok := strategies.Describe(cfg.DefaultStrategy); !ok {
		return nil, fmt.Errorf("DEFAULT_STRATEGY %q is not a known strategy", cfg.DefaultStrategy)
	}
	return cfg, nil
}

// NewLogger returns a logrus logger configured with the level and format.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if c.LogFormat == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
