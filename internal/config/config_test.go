package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"/dashboard", "/projects"}, cfg.Auth.ProtectedPrefixes)
	assert.Equal(t, []string{"/dashboard"}, cfg.Auth.AdminPrefixes)
	assert.Equal(t, 30, cfg.Digest.MaxItems)
	assert.Equal(t, "__session", cfg.Auth.SessionCookie)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	body := `
port: "9090"
digest:
  from_email: "vahti@tyomaat.fi"
  cron_enabled: true
geocoder:
  requests_per_second: 0.5
cleanup:
  retention_days: 7
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "vahti@tyomaat.fi", cfg.Digest.FromEmail)
	assert.True(t, cfg.Digest.CronEnabled)
	assert.Equal(t, 0.5, cfg.Geocoder.RequestsPerSecond)
	assert.Equal(t, 7, cfg.Cleanup.RetentionDays)
	// untouched sections keep their defaults
	assert.Equal(t, 500, cfg.Cleanup.MaxDeletionCount)
	assert.Equal(t, "/login", cfg.Auth.LoginPath)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DB_TYPE", "mysql")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("CRON_SECRET", "s3cret")
	t.Setenv("ADMIN_EMAILS", " Admin@Tyomaat.fi , ops@tyomaat.fi,,")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOG_FORMAT", "json")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "db.internal", cfg.Database.MySQL.Host)
	assert.Equal(t, 3307, cfg.Database.MySQL.Port)
	assert.Equal(t, "s3cret", cfg.Digest.CronSecret)
	assert.Equal(t, []string{"Admin@Tyomaat.fi", "ops@tyomaat.fi"}, cfg.Auth.AdminEmails)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestApplyEnv_PostgresTarget(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DB_NAME", "legacy")
	t.Setenv("DB_PORT", "not-a-number")

	cfg := DefaultConfig()
	cfg.Database.Postgres.Port = 5432
	cfg.ApplyEnv()

	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "legacy", cfg.Database.Postgres.Database)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Empty(t, cfg.Database.MySQL.Database)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TYOMAAT_TEST_DOTENV=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TYOMAAT_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("TYOMAAT_TEST_DOTENV"))
}

func TestMissingDigestSettings(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{"CRON_SECRET", "RESEND_API_KEY", "DIGEST_FROM_EMAIL"}, cfg.MissingDigestSettings())

	cfg.Digest.CronSecret = "x"
	cfg.Mail.ResendAPIKey = "re_123"
	cfg.Digest.FromEmail = "vahti@tyomaat.fi"
	assert.Empty(t, cfg.MissingDigestSettings())
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 120*time.Hour, cfg.Auth.SessionTTL())
	assert.Equal(t, time.Hour, cfg.Auth.RefreshAfter())
	assert.Equal(t, 10*time.Second, cfg.Geocoder.GetTimeout())
	assert.Equal(t, time.Minute, cfg.Redis.GetCatalogTTL())
}
