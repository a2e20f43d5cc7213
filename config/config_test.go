package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, DriverJSON, cfg.Store.Driver)
	assert.Equal(t, "data.json", cfg.Store.JSONPath)
	assert.Equal(t, int64(15), cfg.Leveling.ActivityMin)
	assert.Equal(t, int64(25), cfg.Leveling.ActivityMax)
	assert.Equal(t, 10, cfg.Leveling.LeaderboardLimit)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	assert.False(t, cfg.Backup.Enabled)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"STORE_DRIVER":    "Postgres",
		"DATABASE_URL":    "postgres://u:p@db:5432/weaver",
		"REDIS_ENABLED":   "true",
		"BACKUP_ENABLED":  "true",
		"BACKUP_BUCKET":   "weaver-backups",
		"BACKUP_INTERVAL": "30m",
		"APP_ENV":         "production",
	})
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Backup.Interval)
	assert.True(t, cfg.IsProduction())
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	_, err := LoadFrom(map[string]string{
		"STORE_DRIVER":          "mongo",
		"LEVELING_ACTIVITY_MIN": "30",
		"LEVELING_ACTIVITY_MAX": "20",
		"BACKUP_ENABLED":        "true",
		"LOG_FORMAT":            "xml",
	})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, `STORE_DRIVER "mongo"`)
	assert.Contains(t, msg, "LEVELING_ACTIVITY_MIN/MAX")
	assert.Contains(t, msg, "BACKUP_BUCKET")
	assert.Contains(t, msg, "LOG_FORMAT")
}

func TestValidate_DriverRequirements(t *testing.T) {
	_, err := LoadFrom(map[string]string{"STORE_DRIVER": "postgres"})
	assert.ErrorContains(t, err, "DATABASE_URL")

	_, err = LoadFrom(map[string]string{"STORE_DRIVER": "memory", "APP_ENV": "production"})
	assert.ErrorContains(t, err, "memory driver")
}

func TestLoadFrom_BadValue(t *testing.T) {
	_, err := LoadFrom(map[string]string{"REDIS_CACHE_TTL": "soon"})
	assert.ErrorContains(t, err, "parse env")
}
