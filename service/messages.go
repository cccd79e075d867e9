package service

import (
	"math/big"
	"time"

	"coinflip/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Message is one input to the lifecycle transition function. User commands,
// write results, polled reads and chain events all arrive as messages.
type Message interface {
	messageName() string
}

// txKind tells place and settle writes apart
type txKind string

const (
	txPlace     txKind = "place"
	txFreePlace txKind = "free_place"
	txSettle    txKind = "settle"
)

// placeRequested starts a place or free-bet write
type placeRequested struct {
	choice models.Choice
	amount decimal.Decimal
	free   bool
}

// revealRequested starts a settle write
type revealRequested struct{}

// resetRequested is the explicit "play again"
type resetRequested struct {
	at time.Time
}

// txSubmitted reports the hash returned by the wallet
type txSubmitted struct {
	kind txKind
	hash common.Hash
}

// txFailed reports a wallet rejection or a reverted transaction
type txFailed struct {
	kind txKind
	err  error
}

// txConfirmed reports a mined transaction
type txConfirmed struct {
	kind txKind
	hash common.Hash
}

// resumeChecked is the first pending-bet read of a session
type resumeChecked struct {
	status   models.PendingBetStatus
	details  models.BetDetails
	inFlight *models.InFlightBet
}

// PendingStatusRead carries a polled hasPendingBet result
type PendingStatusRead struct {
	Status models.PendingBetStatus
}

// BetDetailsRead carries a polled getBetDetails result
type BetDetailsRead struct {
	Details models.BetDetails
}

// BetPlacedLog is an observed BetPlaced event
type BetPlacedLog struct {
	EventID     string
	Player      common.Address
	Amount      *big.Int
	BlockNumber uint64
}

// BetSettledLog is an observed BetSettled event
type BetSettledLog struct {
	EventID string
	Player  common.Address
	Amount  *big.Int
	Won     bool
	FeePaid *big.Int
}

// BetRefundedLog is an observed BetRefunded event
type BetRefundedLog struct {
	EventID string
	Player  common.Address
	Amount  *big.Int
	Reason  string
}

func (placeRequested) messageName() string    { return "place_requested" }
func (revealRequested) messageName() string   { return "reveal_requested" }
func (resetRequested) messageName() string    { return "reset_requested" }
func (txSubmitted) messageName() string       { return "tx_submitted" }
func (txFailed) messageName() string          { return "tx_failed" }
func (txConfirmed) messageName() string       { return "tx_confirmed" }
func (resumeChecked) messageName() string     { return "resume_checked" }
func (PendingStatusRead) messageName() string { return "pending_status_read" }
func (BetDetailsRead) messageName() string    { return "bet_details_read" }
func (BetPlacedLog) messageName() string      { return "bet_placed_log" }
func (BetSettledLog) messageName() string     { return "bet_settled_log" }
func (BetRefundedLog) messageName() string    { return "bet_refunded_log" }
