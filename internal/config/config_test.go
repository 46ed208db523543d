package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("CM_TEST_PASS", "from-env")
	t.Setenv(EnvDBPath, "")
	t.Setenv(EnvPassphrase, "")

	path := writeConfig(t, `
db_path: /tmp/cm/memory.db
log_level: info
encryption:
  passphrase: ${CM_TEST_PASS}
privacy:
  blocked_keywords: [secret, password]
  max_content_length: 500
retention:
  days: 90
  interval: 30m
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/cm/memory.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "from-env", cfg.Encryption.Passphrase)
	assert.Equal(t, []string{"secret", "password"}, cfg.Privacy.BlockedKeywords)
	assert.Equal(t, 500, cfg.Privacy.MaxContentLength)
	// Unset fields keep their defaults.
	assert.Equal(t, 1000, cfg.Privacy.MaxContextLength)
	assert.Equal(t, 90, cfg.Retention.Days)
	assert.Equal(t, 30*time.Minute, cfg.Retention.Interval)

	mc := cfg.Memory()
	assert.Equal(t, "from-env", mc.Passphrase)
	assert.Equal(t, 90, mc.RetentionDays)
	assert.Equal(t, 30*time.Minute, mc.RetentionInterval)
}

func TestLoadEnvDefaultValue(t *testing.T) {
	t.Setenv("CM_UNSET_VAR", "")
	path := writeConfig(t, "db_path: ${CM_UNSET_VAR:/var/lib/cm.db}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/cm.db", cfg.DBPath)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvDBPath, "/override.db")
	t.Setenv(EnvPassphrase, "env-pass")
	path := writeConfig(t, "db_path: /file.db\nencryption:\n  passphrase: file-pass\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/override.db", cfg.DBPath)
	assert.Equal(t, "env-pass", cfg.Encryption.Passphrase)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, "retention:\n  days: -1\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "privacy: [not, a, map]\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadOptional(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvDBPath, "")
	t.Setenv(EnvPassphrase, "")

	cfg, err := LoadOptional("")
	require.NoError(t, err)
	assert.Equal(t, DefaultDBPath(), cfg.DBPath)
	assert.Equal(t, "warn", cfg.LogLevel)

	_, err = LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	path := writeConfig(t, "db_path: /from/env/config.db\n")
	t.Setenv(EnvConfig, path)
	cfg, err = LoadOptional("")
	require.NoError(t, err)
	assert.Equal(t, "/from/env/config.db", cfg.DBPath)
}
