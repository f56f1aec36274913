package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "memory", cfg.StorageMode)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 10*time.Second, cfg.WSWriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.WSPingInterval)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "debug")
	t.Setenv("HTTP_ADDR", ":9100")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("WS_PING_INTERVAL", "15s")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")
	t.Setenv("KAFKA_TOPIC_PREFIX", "staging.")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Env)
	assert.Equal(t, ":9100", cfg.HTTPAddr)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 15*time.Second, cfg.WSPingInterval)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "staging.", cfg.KafkaTopicPrefix)
}

func TestLoadMongoModeRequiresURI(t *testing.T) {
	t.Setenv("STORAGE_MODE", "mongo")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.StorageMode)
	assert.Equal(t, "marketchat", cfg.MongoDB)
}

func TestLoadRejectsUnknownStorageMode(t *testing.T) {
	t.Setenv("STORAGE_MODE", "postgres")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("SESSION_TTL", "not-a-duration")
	_, err := Load()
	assert.Error(t, err)
}
