package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Storage backends for persisted local state
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	// Chain configuration
	RPCURL           string
	ChainID          int64
	ContractAddress  string
	PlayerPrivateKey string

	// Backend stats API
	BackendURL string

	// Local state storage
	StorageType  string
	SQLitePath   string
	DatabaseURL  string
	DatabaseName string
	RedisURL     string // optional, enables cross-process settlement dedup

	// Lifecycle tuning
	PollIntervalSeconds      int
	EventPollIntervalSeconds int
	HistoryLimit             int

	// Discord notifications (optional)
	DiscordToken     string
	DiscordChannelID string

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.RWMutex
)

// Get returns the global configuration instance
func Get() *Config {
	mu.RLock()
	if instance != nil {
		defer mu.RUnlock()
		return instance
	}
	mu.RUnlock()

	once.Do(func() {
		cfg, err := load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
		mu.Lock()
		instance = cfg
		mu.Unlock()
	})

	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// load loads configuration from environment variables
func load() (*Config, error) {
	// A missing .env file is fine; the process environment wins either way
	_ = godotenv.Load()

	config := &Config{
		RPCURL:           os.Getenv("RPC_URL"),
		ContractAddress:  os.Getenv("CONTRACT_ADDRESS"),
		PlayerPrivateKey: os.Getenv("PLAYER_PRIVATE_KEY"),

		BackendURL: getEnvWithDefault("BACKEND_URL", "http://localhost:8080"),

		StorageType:  getEnvWithDefault("STORAGE_TYPE", StorageSQLite),
		SQLitePath:   getEnvWithDefault("SQLITE_PATH", "coinflip.db"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),
		RedisURL:     os.Getenv("REDIS_URL"),

		PollIntervalSeconds:      getEnvIntWithDefault("POLL_INTERVAL_SECONDS", 4),
		EventPollIntervalSeconds: getEnvIntWithDefault("EVENT_POLL_INTERVAL_SECONDS", 3),
		HistoryLimit:             getEnvIntWithDefault("HISTORY_LIMIT", 10),

		DiscordToken:     os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID: os.Getenv("DISCORD_CHANNEL_ID"),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if chainID := os.Getenv("CHAIN_ID"); chainID != "" {
		parsed, err := strconv.ParseInt(chainID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid CHAIN_ID: %w", err)
		}
		config.ChainID = parsed
	}

	config.StorageType = strings.ToLower(strings.TrimSpace(config.StorageType))

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if err := config.Validate(); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// Validate checks that the configuration can drive a live client
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("CHAIN_ID is required")
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("CONTRACT_ADDRESS is required")
	}
	if c.PlayerPrivateKey == "" {
		return fmt.Errorf("PLAYER_PRIVATE_KEY is required")
	}
	switch c.StorageType {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_TYPE=postgres")
		}
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType)
	}
	if c.DiscordToken != "" && c.DiscordChannelID == "" {
		return fmt.Errorf("DISCORD_CHANNEL_ID is required when DISCORD_TOKEN is set")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive")
	}
	return nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:              "test",
		ChainID:                  84532,
		StorageType:              StorageMemory,
		PollIntervalSeconds:      1,
		EventPollIntervalSeconds: 1,
		HistoryLimit:             10,
		LogLevel:                 "debug",
		LogFormat:                "text",
	}
}
