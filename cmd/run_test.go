package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"coinflip/config"
	"coinflip/repository"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureLogging(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)
	defer log.SetFormatter(&log.TextFormatter{})

	cfg := config.NewTestConfig()
	cfg.LogFormat = "json"
	require.NoError(t, configureLogging(cfg))
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)

	cfg.LogLevel = "loud"
	assert.Error(t, configureLogging(cfg))

	cfg.LogLevel = "warn"
	cfg.LogFormat = "xml"
	assert.Error(t, configureLogging(cfg))
}

func TestOpenLocalStore_Memory(t *testing.T) {
	store, closeStore, err := openLocalStore(context.Background(), config.NewTestConfig())
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &repository.MemoryLocalStore{}, store)
}

func TestOpenLocalStore_SQLite(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.StorageType = config.StorageSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "state.db")

	ctx := context.Background()
	store, closeStore, err := openLocalStore(ctx, cfg)
	require.NoError(t, err)
	defer closeStore()

	require.NoError(t, store.Put(ctx, "0xa1", "bet_history", "[]"))
	value, ok, err := store.Get(ctx, "0xa1", "bet_history")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", value)
}

func TestOpenLocalStore_Unknown(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.StorageType = "etcd"
	_, _, err := openLocalStore(context.Background(), cfg)
	assert.Error(t, err)
}

func TestOpenDeduplicator_DefaultsToMemory(t *testing.T) {
	dedup, closeDedup, err := openDeduplicator(context.Background(), config.NewTestConfig())
	require.NoError(t, err)
	defer closeDedup()

	assert.True(t, dedup.TryClaim("a"))
	assert.False(t, dedup.TryClaim("a"))
}
