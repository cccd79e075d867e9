package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Result is the outcome of a settled bet
type Result string

const (
	ResultWin  Result = "win"
	ResultLose Result = "lose"
)

// ResultFor maps the contract's playerWon flag to a Result
func ResultFor(won bool) Result {
	if won {
		return ResultWin
	}
	return ResultLose
}

// BetHistoryEntry is one settled bet in the per-account history. Entries are
// never mutated after creation.
type BetHistoryEntry struct {
	Result        Result          `json:"result"`
	DisplayAmount decimal.Decimal `json:"displayAmount"`
	Timestamp     time.Time       `json:"timestamp"`
	IsFree        bool            `json:"isFree"`
	Choice        Choice          `json:"choice"`
}

// ForceReset is the persisted "force reset" session marker
type ForceReset struct {
	Active    bool      `json:"active"`
	Timestamp time.Time `json:"timestamp"`
}

// InFlightBet is the persisted part of an unsettled bet, kept so that a
// restarted client can resume it with the right choice and free-bet flag
type InFlightBet struct {
	Choice Choice          `json:"choice"`
	Amount decimal.Decimal `json:"amount"`
	IsFree bool            `json:"isFree"`
	TxHash string          `json:"txHash,omitempty"`

	// Set once settleBet has been broadcast. A restart that finds the bet
	// settled on chain settles it locally instead of dropping it.
	RevealTxHash string `json:"revealTxHash,omitempty"`
	PlacedAt     uint64 `json:"placedAt,omitempty"`
}
