package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roomcast.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestReadConfiguration(t *testing.T) {
	path := writeConfig(t, `
log_level = "DEBUG"

[history]
history_size = 50

[auth]
mode = "jwt"
jwt_secret = "sekrit"

[persistence]
type = "buntdb"
dsn = ":memory:"

[mentions]
pattern = "email"
cache_size = 64

[ephemeral]
require_existing_room = true
reap_schedule = "@every 5m"

[notifications]
type = "log"
queue_size = 32
`)
	cfg, err := ReadConfiguration(path, GetFlagSet())
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, 50, cfg.HistoryConfig.HistorySize)
	assert.Equal(t, "sekrit", cfg.AuthConfig.JWTSecret)
	assert.Equal(t, "buntdb", cfg.PersistenceConfig.Type)
	assert.Equal(t, ":memory:", cfg.PersistenceConfig.DSN)
	assert.Equal(t, "email", cfg.MentionConfig.Pattern)
	assert.True(t, cfg.EphemeralConfig.RequireExistingRoom)
	assert.Equal(t, "@every 5m", cfg.EphemeralConfig.ReapSchedule)
	assert.Equal(t, 32, cfg.NotificationsConfig.QueueSize)
}

func TestReadConfigurationDefaults(t *testing.T) {
	path := writeConfig(t, `
[auth]
jwt_secret = "sekrit"
`)
	cfg, err := ReadConfiguration(path, GetFlagSet())
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, defaultHistorySize, cfg.HistoryConfig.HistorySize)
	assert.Equal(t, "jwt", cfg.AuthConfig.Mode)
	assert.Equal(t, defaultPersistenceType, cfg.PersistenceConfig.Type)
	assert.Equal(t, defaultMentionPattern, cfg.MentionConfig.Pattern)
	assert.Equal(t, defaultMentionCacheSize, cfg.MentionConfig.CacheSize)
	assert.False(t, cfg.EphemeralConfig.RequireExistingRoom)
	assert.Equal(t, defaultReapSchedule, cfg.EphemeralConfig.ReapSchedule)
}

func TestReadConfigurationRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, `
[auth]
jwt_secret = "sekrit"

[persistence]
type = "etcd"
dsn = "etcd://localhost:2379"
`)
	_, err := ReadConfiguration(path, GetFlagSet())
	assert.Error(t, err)
}

func TestReadConfigurationRequiresJWTSecretInJWTMode(t *testing.T) {
	path := writeConfig(t, `
[auth]
mode = "jwt"
`)
	_, err := ReadConfiguration(path, GetFlagSet())
	assert.Error(t, err)
}
