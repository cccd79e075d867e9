package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"coinflip/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// ContractSnapshot is the last successfully read contract view state
type ContractSnapshot struct {
	AllowedAmounts []decimal.Decimal
	Pending        models.PendingBetStatus
	Details        models.BetDetails
	Whitelisted    bool
	UsedFreeBet    bool
	PythFee        *big.Int
}

// ContractStateReader caches contract reads. Getters never block on the
// network; Refetch* replace the cached value when the read succeeds.
type ContractStateReader struct {
	caller ContractCaller

	mu       sync.RWMutex
	snapshot ContractSnapshot
}

// NewContractStateReader creates a reader over a ContractCaller
func NewContractStateReader(caller ContractCaller) *ContractStateReader {
	return &ContractStateReader{caller: caller}
}

// Snapshot returns a copy of the cached state
func (r *ContractStateReader) Snapshot() ContractSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := r.snapshot
	snap.AllowedAmounts = append([]decimal.Decimal(nil), r.snapshot.AllowedAmounts...)
	if r.snapshot.PythFee != nil {
		snap.PythFee = new(big.Int).Set(r.snapshot.PythFee)
	}
	if r.snapshot.Details.AmountWei != nil {
		snap.Details.AmountWei = new(big.Int).Set(r.snapshot.Details.AmountWei)
	}
	return snap
}

// AllowedAmounts returns the cached bet denominations
func (r *ContractStateReader) AllowedAmounts() []decimal.Decimal {
	return r.Snapshot().AllowedAmounts
}

// PendingStatus returns the cached pending-bet status
func (r *ContractStateReader) PendingStatus() models.PendingBetStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot.Pending
}

// Details returns the cached bet details
func (r *ContractStateReader) Details() models.BetDetails {
	return r.Snapshot().Details
}

// IsAllowedAmount reports whether amount is one of the cached denominations
func (r *ContractStateReader) IsAllowedAmount(amount decimal.Decimal) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, allowed := range r.snapshot.AllowedAmounts {
		if allowed.Equal(amount) {
			return true
		}
	}
	return false
}

// Reset clears the cached state, e.g. when the account changes
func (r *ContractStateReader) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	allowed := r.snapshot.AllowedAmounts
	r.snapshot = ContractSnapshot{AllowedAmounts: allowed}
}

func logRefetchError(method string, player common.Address, err error) {
	log.WithFields(log.Fields{
		"method": method,
		"player": player.Hex(),
		"error":  err,
	}).Warn("Contract read failed, keeping cached value")
}

// RefetchAllowedAmounts reads getAllowedBetAmounts
func (r *ContractStateReader) RefetchAllowedAmounts(ctx context.Context) ([]decimal.Decimal, error) {
	raw, err := r.caller.GetAllowedBetAmounts(ctx)
	if err != nil {
		logRefetchError("getAllowedBetAmounts", common.Address{}, err)
		return nil, fmt.Errorf("failed to read allowed bet amounts: %w", err)
	}

	amounts := make([]decimal.Decimal, 0, len(raw))
	for _, wei := range raw {
		amounts = append(amounts, NormalizeAmount(WeiToEther(wei)))
	}

	r.mu.Lock()
	r.snapshot.AllowedAmounts = amounts
	r.mu.Unlock()
	return append([]decimal.Decimal(nil), amounts...), nil
}

// RefetchPendingStatus reads hasPendingBet
func (r *ContractStateReader) RefetchPendingStatus(ctx context.Context, player common.Address) (models.PendingBetStatus, error) {
	status, err := r.caller.HasPendingBet(ctx, player)
	if err != nil {
		logRefetchError("hasPendingBet", player, err)
		return r.PendingStatus(), fmt.Errorf("failed to read pending bet: %w", err)
	}

	r.mu.Lock()
	r.snapshot.Pending = status
	r.mu.Unlock()
	return status, nil
}

// RefetchBetDetails reads getBetDetails. The most recently completed read wins.
func (r *ContractStateReader) RefetchBetDetails(ctx context.Context, player common.Address) (models.BetDetails, error) {
	details, err := r.caller.GetBetDetails(ctx, player)
	if err != nil {
		logRefetchError("getBetDetails", player, err)
		return r.Details(), fmt.Errorf("failed to read bet details: %w", err)
	}

	r.mu.Lock()
	r.snapshot.Details = details
	r.mu.Unlock()
	return details, nil
}

// RefetchFreeBetStatus reads isWhitelistedForFreeBet and hasUsedFreeBet
func (r *ContractStateReader) RefetchFreeBetStatus(ctx context.Context, player common.Address) (whitelisted, used bool, err error) {
	whitelisted, err = r.caller.IsWhitelistedForFreeBet(ctx, player)
	if err != nil {
		logRefetchError("isWhitelistedForFreeBet", player, err)
		return false, false, fmt.Errorf("failed to read free bet whitelist: %w", err)
	}
	used, err = r.caller.HasUsedFreeBet(ctx, player)
	if err != nil {
		logRefetchError("hasUsedFreeBet", player, err)
		return false, false, fmt.Errorf("failed to read free bet usage: %w", err)
	}

	r.mu.Lock()
	r.snapshot.Whitelisted = whitelisted
	r.snapshot.UsedFreeBet = used
	r.mu.Unlock()
	return whitelisted, used, nil
}

// RefetchPythFee reads getCurrentPythFee
func (r *ContractStateReader) RefetchPythFee(ctx context.Context) (*big.Int, error) {
	fee, err := r.caller.GetCurrentPythFee(ctx)
	if err != nil {
		logRefetchError("getCurrentPythFee", common.Address{}, err)
		return nil, fmt.Errorf("failed to read pyth fee: %w", err)
	}
	if fee == nil {
		fee = new(big.Int)
	}

	r.mu.Lock()
	r.snapshot.PythFee = new(big.Int).Set(fee)
	r.mu.Unlock()
	return fee, nil
}

// RefetchAll refreshes every read for player. The first error is returned
// after all reads have been attempted.
func (r *ContractStateReader) RefetchAll(ctx context.Context, player common.Address) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	_, err := r.RefetchAllowedAmounts(ctx)
	keep(err)
	_, err = r.RefetchPendingStatus(ctx, player)
	keep(err)
	_, err = r.RefetchBetDetails(ctx, player)
	keep(err)
	_, _, err = r.RefetchFreeBetStatus(ctx, player)
	keep(err)
	_, err = r.RefetchPythFee(ctx)
	keep(err)

	return firstErr
}
