package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("MINIO_ACCESS_KEY_ID", "minio")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "minio-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, SectionsStoreDatabase, cfg.Sections.Store)
	assert.Equal(t, "data/home_sections.json", cfg.Sections.FilePath)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 5, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.RateLimit.Block)
	assert.Equal(t, 3*time.Hour, cfg.Admin.TokenTTL())
	assert.False(t, cfg.Admin.AllowLegacyCookie)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SECTIONS_STORE", " File ")
	t.Setenv("SECTIONS_FILE_PATH", "/tmp/home.json")
	t.Setenv("ADMIN_PASSWORD", "hunter2")
	t.Setenv("ADMIN_TOKEN_TTL_MINUTES", "45")
	t.Setenv("LOGIN_RATE_MAX_ATTEMPTS", "3")
	t.Setenv("DATABASE_CONN_MAX_LIFETIME", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SectionsStoreFile, cfg.Sections.Store)
	assert.Equal(t, "/tmp/home.json", cfg.Sections.FilePath)
	assert.Equal(t, "hunter2", cfg.Admin.Password)
	assert.Equal(t, 45*time.Minute, cfg.Admin.TokenTTL())
	assert.Equal(t, 3, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"missing jwt secret":  {"JWT_SECRET": ""},
		"unknown store":       {"SECTIONS_STORE": "s3"},
		"bad rate limit":      {"LOGIN_RATE_MAX_ATTEMPTS": "0"},
		"missing minio creds": {"MINIO_ACCESS_KEY_ID": ""},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestAdminConfig_TokenTTLMinimumOneHour(t *testing.T) {
	assert.Equal(t, time.Hour, AdminConfig{TokenTTLHours: 0}.TokenTTL())
	assert.Equal(t, time.Hour, AdminConfig{TokenTTLHours: -4}.TokenTTL())
	assert.Equal(t, 12*time.Hour, AdminConfig{TokenTTLHours: 12}.TokenTTL())
}
