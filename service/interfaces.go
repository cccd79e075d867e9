package service

import (
	"context"
	"math/big"

	"coinflip/models"

	"github.com/ethereum/go-ethereum/common"
)

// LocalStore defines durable per-account key/value storage. Values are JSON
// documents; accounts are already lowercased by the caller.
type LocalStore interface {
	// Get returns the stored value and whether it exists
	Get(ctx context.Context, account, key string) (string, bool, error)

	// Put stores a value, replacing any existing one
	Put(ctx context.Context, account, key, value string) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, account, key string) error

	// Update atomically replaces a value with fn(current). The current value
	// is re-read inside the write so concurrent writers never lose updates.
	Update(ctx context.Context, account, key string, fn func(current string, exists bool) (string, error)) error
}

// EventDeduplicator is the process-wide claim registry for handled events
type EventDeduplicator interface {
	// TryClaim returns true exactly once per distinct id
	TryClaim(id string) bool
}

// ContractCaller defines the read-only view methods of the coin flip contract
type ContractCaller interface {
	GetAllowedBetAmounts(ctx context.Context) ([]*big.Int, error)
	HasPendingBet(ctx context.Context, player common.Address) (models.PendingBetStatus, error)
	GetBetDetails(ctx context.Context, player common.Address) (models.BetDetails, error)
	IsWhitelistedForFreeBet(ctx context.Context, player common.Address) (bool, error)
	HasUsedFreeBet(ctx context.Context, player common.Address) (bool, error)
	GetCurrentPythFee(ctx context.Context) (*big.Int, error)
}

// ContractCall is one contract write
type ContractCall struct {
	Method string
	Args   []interface{}
	Value  *big.Int
}

// TransactionSubmitter defines the wallet layer
type TransactionSubmitter interface {
	// Submit signs and broadcasts the call and returns its hash
	Submit(ctx context.Context, call ContractCall) (common.Hash, error)

	// WaitReceipt blocks until the transaction is mined. A reverted
	// transaction is reported as an error.
	WaitReceipt(ctx context.Context, hash common.Hash) error
}

// BackendClient defines the bet-recording and stats API
type BackendClient interface {
	// RecordBet posts one settled bet
	RecordBet(ctx context.Context, record models.BetRecord) error

	// GetUserStats returns the aggregate stats for an address. An unknown
	// address yields zeroed stats, not an error.
	GetUserStats(ctx context.Context, address string) (*models.PlayerStats, error)

	// GetLeaderboard returns one leaderboard page
	GetLeaderboard(ctx context.Context, query models.LeaderboardQuery) (*models.LeaderboardPage, error)
}

// Dispatcher accepts lifecycle messages from watchers and pollers
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}
