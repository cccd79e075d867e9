package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("STORAGE_TYPE", "")
	t.Setenv("POLL_INTERVAL_SECONDS", "")
	t.Setenv("HISTORY_LIMIT", "")

	cfg, err := load()
	require.NoError(t, err)

	assert.Equal(t, StorageSQLite, cfg.StorageType)
	assert.Equal(t, 4, cfg.PollIntervalSeconds)
	assert.Equal(t, 3, cfg.EventPollIntervalSeconds)
	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("CHAIN_ID", "8453")
	t.Setenv("STORAGE_TYPE", "Postgres")
	t.Setenv("POLL_INTERVAL_SECONDS", "9")
	t.Setenv("HISTORY_LIMIT", "not-a-number")

	cfg, err := load()
	require.NoError(t, err)

	assert.Equal(t, int64(8453), cfg.ChainID)
	assert.Equal(t, StoragePostgres, cfg.StorageType)
	assert.Equal(t, 9, cfg.PollIntervalSeconds)
	assert.Equal(t, 10, cfg.HistoryLimit, "unparseable values fall back to the default")
}

func TestLoad_InvalidChainID(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("CHAIN_ID", "base")

	_, err := load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := NewTestConfig()
		cfg.RPCURL = "http://localhost:8545"
		cfg.ContractAddress = "0x0000000000000000000000000000000000000001"
		cfg.PlayerPrivateKey = "deadbeef"
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing rpc", func(t *testing.T) {
		cfg := valid()
		cfg.RPCURL = ""
		assert.ErrorContains(t, cfg.Validate(), "RPC_URL")
	})

	t.Run("postgres without url", func(t *testing.T) {
		cfg := valid()
		cfg.StorageType = StoragePostgres
		assert.ErrorContains(t, cfg.Validate(), "DATABASE_URL")
	})

	t.Run("unknown storage", func(t *testing.T) {
		cfg := valid()
		cfg.StorageType = "s3"
		assert.Error(t, cfg.Validate())
	})

	t.Run("discord token without channel", func(t *testing.T) {
		cfg := valid()
		cfg.DiscordToken = "token"
		assert.ErrorContains(t, cfg.Validate(), "DISCORD_CHANNEL_ID")
	})
}

func TestSetTestConfig(t *testing.T) {
	t.Cleanup(ResetConfig)

	cfg := NewTestConfig()
	cfg.BackendURL = "http://backend.test"
	SetTestConfig(cfg)

	assert.Same(t, cfg, Get())
}
