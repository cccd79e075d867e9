package cmd

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"coinflip/backend"
	"coinflip/bot"
	"coinflip/chain"
	"coinflip/config"
	"coinflip/database"
	"coinflip/events"
	"coinflip/repository"
	"coinflip/service"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"
)

// configureLogging applies the configured level and format to logrus
func configureLogging(cfg *config.Config) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q", cfg.LogFormat)
	}
	return nil
}

// openLocalStore opens the configured storage backend and brings its schema
// up to date. The returned func releases it.
func openLocalStore(ctx context.Context, cfg *config.Config) (service.LocalStore, func(), error) {
	switch cfg.StorageType {
	case config.StorageMemory:
		log.Warn("Using in-memory storage; history is lost on exit")
		return repository.NewMemoryLocalStore(), func() {}, nil

	case config.StorageSQLite:
		if err := database.RunSQLiteMigrations(cfg.SQLitePath); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
		}
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.WithFields(log.Fields{
			"path": cfg.SQLitePath,
		}).Info("SQLite storage opened")
		return repository.NewSQLiteLocalStore(db), func() { db.Close() }, nil

	case config.StoragePostgres:
		databaseURL := database.ConstructDatabaseURL(cfg.DatabaseURL, cfg.DatabaseName)
		if err := database.RunMigrationsWithURL(databaseURL); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate postgres database: %w", err)
		}
		db, err := database.NewConnection(ctx, databaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info("Postgres storage connected")
		return repository.NewPostgresLocalStore(db), db.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage type %q", cfg.StorageType)
}

// openDeduplicator returns the redis claim registry when REDIS_URL is set
// and the in-process one otherwise
func openDeduplicator(ctx context.Context, cfg *config.Config) (service.EventDeduplicator, func(), error) {
	if cfg.RedisURL == "" {
		return service.NewMemoryDeduplicator(), func() {}, nil
	}
	rdb, err := repository.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Redis settlement dedup enabled")
	return repository.NewRedisDeduplicator(rdb, 0), func() { rdb.Close() }, nil
}

// Run initializes and starts the client
func Run(ctx context.Context) error {
	cfg := config.Get()
	if err := configureLogging(cfg); err != nil {
		return err
	}
	log.Info("Starting coinflip client...")

	store, closeStore, err := openLocalStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	dedup, closeDedup, err := openDeduplicator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDedup()

	log.WithFields(log.Fields{
		"chainID": cfg.ChainID,
	}).Info("Connecting to RPC endpoint...")
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	defer client.Close()

	if !common.IsHexAddress(cfg.ContractAddress) {
		return fmt.Errorf("invalid CONTRACT_ADDRESS %q", cfg.ContractAddress)
	}
	contract := chain.NewContract(common.HexToAddress(cfg.ContractAddress), client)

	key, err := chain.ParsePrivateKey(cfg.PlayerPrivateKey)
	if err != nil {
		return err
	}
	wallet, err := chain.NewWallet(key, big.NewInt(cfg.ChainID), contract, client)
	if err != nil {
		return err
	}

	eventBus := events.NewBus()
	backendClient := backend.NewClient(cfg.BackendURL)
	history := service.NewBetHistoryStore(store, cfg.HistoryLimit)
	stats := service.NewUserStatsAggregator(backendClient, history)

	controller := service.NewLifecycleController(service.LifecycleDeps{
		Reader:  service.NewContractStateReader(contract),
		Wallet:  wallet,
		History: history,
		Dedup:   dedup,
		Stats:   stats,
		Backend: backendClient,
		Bus:     eventBus,
	})

	eventBus.Subscribe(events.EventTypePhaseChanged, func(ctx context.Context, event events.Event) {
		if e, ok := event.(events.PhaseChangedEvent); ok {
			log.WithFields(log.Fields{
				"account": e.Account,
				"from":    e.OldPhase,
				"to":      e.NewPhase,
				"txHash":  e.TxHash,
			}).Info("Bet phase changed")
		}
	})

	if err := controller.Connect(ctx, wallet.Address()); err != nil {
		return fmt.Errorf("failed to connect wallet: %w", err)
	}
	log.WithFields(log.Fields{
		"account":  wallet.Address().Hex(),
		"contract": contract.Address().Hex(),
	}).Info("Wallet connected")

	var discordBot *bot.Bot
	if cfg.DiscordToken != "" {
		discordBot, err = bot.New(ctx, bot.Config{
			Token:     cfg.DiscordToken,
			ChannelID: cfg.DiscordChannelID,
		}, controller, stats, history, eventBus)
		if err != nil {
			return fmt.Errorf("failed to initialize Discord bot: %w", err)
		}
	}

	var wg sync.WaitGroup
	poller := service.NewLifecyclePoller(controller, time.Duration(cfg.PollIntervalSeconds)*time.Second)
	watcher := chain.NewWatcher(client, controller, chain.WatcherConfig{
		Contract:     contract.Address(),
		Player:       wallet.Address(),
		PollInterval: time.Duration(cfg.EventPollIntervalSeconds) * time.Second,
	})

	wg.Add(2)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Error("Event watcher stopped")
		}
	}()

	log.Infof("Client is running in %s mode...", cfg.Environment)
	<-ctx.Done()

	log.Info("Shutting down client...")
	wg.Wait()

	if discordBot != nil {
		if err := discordBot.Close(); err != nil {
			log.Errorf("Error closing Discord bot: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		eventBus.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("Shutdown completed")
	case <-time.After(10 * time.Second):
		log.Warn("Shutdown timeout exceeded")
	}
	return nil
}
