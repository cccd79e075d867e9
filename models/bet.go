package models

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Choice is the coin side a player bets on. The numeric value is what the
// contract expects as the placeBet/placeFreeBet argument.
type Choice uint8

const (
	ChoiceHeads Choice = 0
	ChoiceTails Choice = 1
)

// String returns the display name of the choice
func (c Choice) String() string {
	switch c {
	case ChoiceHeads:
		return "Heads"
	case ChoiceTails:
		return "Tails"
	default:
		return fmt.Sprintf("Choice(%d)", uint8(c))
	}
}

// Valid reports whether c is one of the two coin sides
func (c Choice) Valid() bool {
	return c == ChoiceHeads || c == ChoiceTails
}

// MarshalText encodes the choice as "Heads" or "Tails"
func (c Choice) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid choice %d", uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes "Heads"/"Tails" (case-insensitive)
func (c *Choice) UnmarshalText(text []byte) error {
	parsed, err := ParseChoice(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseChoice parses a choice name
func ParseChoice(s string) (Choice, error) {
	switch s {
	case "Heads", "heads", "HEADS", "0":
		return ChoiceHeads, nil
	case "Tails", "tails", "TAILS", "1":
		return ChoiceTails, nil
	}
	return 0, fmt.Errorf("unknown choice %q", s)
}

// Bet is the in-flight bet owned by the lifecycle controller
type Bet struct {
	Choice          Choice
	AmountRequested decimal.Decimal
	IsFreeBet       bool
	TxHash          string
	Phase           Phase

	// RevealRejected is set when a settle attempt failed; the bet stays in
	// AwaitingReveal so the reveal can be retried.
	RevealRejected bool
	LastError      error
	RefundReason   string
}

// PendingBetStatus mirrors hasPendingBet(player)
type PendingBetStatus struct {
	HasActiveBet bool
	TargetBlock  uint64
	CurrentBlock uint64
}

// RevealReady reports whether the reveal window has opened
func (s PendingBetStatus) RevealReady() bool {
	return s.HasActiveBet && s.CurrentBlock >= s.TargetBlock
}

// BetDetails mirrors getBetDetails(player)
type BetDetails struct {
	AmountWei         *big.Int
	BlockNumber       uint64
	PlacedAtTimestamp uint64
	IsSettled         bool
	PlayerWon         bool
}

// BetRecord is the body of POST /api/bet
type BetRecord struct {
	PlayerAddress string  `json:"player_address" validate:"required,eth_addr"`
	WagerAmount   float64 `json:"wager_amount" validate:"gt=0,wager_amount"`
	IsWin         *bool   `json:"is_win"`
	PlacedAt      uint64  `json:"placed_at"`
}

// DisplayPhase is the phase shown to the player. A failed reveal keeps the
// bet in AwaitingReveal but is shown as Rejected until retried.
func (b Bet) DisplayPhase() Phase {
	if b.Phase == PhaseAwaitingReveal && b.RevealRejected {
		return PhaseRejected
	}
	if b.Phase == "" {
		return PhaseIdle
	}
	return b.Phase
}
