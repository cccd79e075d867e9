package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"coinflip/service"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultEventPollInterval is the log polling interval
	DefaultEventPollInterval = 3 * time.Second

	// maxBlockRange bounds one eth_getLogs query
	maxBlockRange = 2000
)

// logSource is the subset of *ethclient.Client the watcher needs
type logSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// WatcherConfig configures a Watcher
type WatcherConfig struct {
	Contract     common.Address
	Player       common.Address
	PollInterval time.Duration
	StartBlock   uint64 // 0 = latest
}

// Watcher polls the contract's logs for one player and feeds every
// BetPlaced, BetSettled and BetRefunded event to the dispatcher
type Watcher struct {
	source     logSource
	dispatcher service.Dispatcher
	config     WatcherConfig
	lastBlock  uint64
}

// NewWatcher creates a log watcher
func NewWatcher(source logSource, dispatcher service.Dispatcher, cfg WatcherConfig) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultEventPollInterval
	}
	return &Watcher{
		source:     source,
		dispatcher: dispatcher,
		config:     cfg,
	}
}

// Run polls until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	if w.config.StartBlock == 0 {
		block, err := w.source.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to get block number: %w", err)
		}
		w.lastBlock = block
	} else {
		w.lastBlock = w.config.StartBlock - 1
	}

	log.WithFields(log.Fields{
		"contract":   w.config.Contract.Hex(),
		"player":     w.config.Player.Hex(),
		"startBlock": w.lastBlock,
		"interval":   w.config.PollInterval,
	}).Info("Chain event watcher started")

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Chain event watcher stopped")
			return nil
		case <-ticker.C:
			if err := w.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithFields(log.Fields{
					"error": err,
				}).Warn("Chain event poll failed")
			}
		}
	}
}

// Poll fetches the logs of every block since the last poll
func (w *Watcher) Poll(ctx context.Context) error {
	current, err := w.source.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}

	for w.lastBlock < current {
		from := w.lastBlock + 1
		to := current
		if to-from+1 > maxBlockRange {
			to = from + maxBlockRange - 1
		}

		logs, err := w.source.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{w.config.Contract},
			Topics: [][]common.Hash{
				eventTopics(),
				{common.BytesToHash(w.config.Player.Bytes())},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to filter logs %d-%d: %w", from, to, err)
		}

		for _, lg := range logs {
			w.handle(ctx, lg)
		}
		w.lastBlock = to
	}
	return nil
}

func (w *Watcher) handle(ctx context.Context, lg types.Log) {
	if lg.Removed {
		return
	}

	msg, err := DecodeLog(lg)
	if err != nil {
		log.WithFields(log.Fields{
			"txHash": lg.TxHash.Hex(),
			"index":  lg.Index,
			"error":  err,
		}).Warn("Skipping undecodable log")
		return
	}

	if err := w.dispatcher.Dispatch(ctx, msg); err != nil {
		log.WithFields(log.Fields{
			"txHash": lg.TxHash.Hex(),
			"index":  lg.Index,
			"error":  err,
		}).Error("Failed to dispatch chain event")
	}
}
