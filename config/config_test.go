package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{"PORT", "DB_PATH", "LOG_LEVEL", "LOG_FORMAT", "REPROCESS_SCHEDULE", "CORS_ORIGINS", "DEFAULT_STRATEGY"}

// clearEnv unsets every key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "loans.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "0 2 * * *", cfg.ReprocessSchedule)
	assert.Empty(t, cfg.CORSOrigins)
	assert.Equal(t, "mifos-standard", cfg.DefaultStrategy)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("REPROCESS_SCHEDULE", "")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("DEFAULT_STRATEGY", "creocore")

	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Empty(t, cfg.ReprocessSchedule, "an empty schedule disables the scheduler")
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, "creocore", cfg.DefaultStrategy)

	log := cfg.NewLogger()
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "eighty"},
		{"PORT", "70000"},
		{"DB_PATH", ""},
		{"LOG_LEVEL", "loud"},
		{"LOG_FORMAT", "xml"},
		{"DEFAULT_STRATEGY", "round-robin"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := FromEnv()

			assert.Error(t, err)
		})
	}
}

func TestLoad_ReadsDotEnvWithoutOverriding(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=7070\nDB_PATH=/tmp/from-file.db\n"), 0o600))
	t.Setenv("DB_PATH", "/tmp/from-env.db")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "/tmp/from-env.db", cfg.DBPath)
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}
