package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_TTL_HOURS", "")
	t.Setenv("REDIS_ADDR", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 72*time.Hour, cfg.JWTTTL)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, time.Second, cfg.WSReconnectDelay)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_TTL_HOURS", "2")
	t.Setenv("LOG_JSON", "true")
	t.Setenv("WS_RECONNECT_ATTEMPTS", "9")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_PASSWORD", "p")
	t.Setenv("DB_NAME", "n")

	cfg := Load()

	assert.Equal(t, 2*time.Hour, cfg.JWTTTL)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, 9, cfg.WSReconnectAttempts)
	assert.Equal(t, "pgx5://u:p@db:6543/n?sslmode=disable", cfg.MigrateURL())
	assert.Contains(t, cfg.DSN(), "host=db port=6543")
}

func TestGetInt_Malformed(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	assert.Equal(t, 4, getInt("SOME_INT", 4))
}
