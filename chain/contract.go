package chain

import (
	"context"
	"fmt"
	"math/big"

	"coinflip/models"
	"coinflip/service"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var _ service.ContractCaller = (*Contract)(nil)

// Contract is the go-ethereum binding of the coin flip contract
type Contract struct {
	address common.Address
	bound   *bind.BoundContract
}

// NewContract binds the contract at address. backend is usually an
// *ethclient.Client.
func NewContract(address common.Address, backend bind.ContractBackend) *Contract {
	return &Contract{
		address: address,
		bound:   bind.NewBoundContract(address, contractABI, backend, backend, backend),
	}
}

// Address returns the contract address
func (c *Contract) Address() common.Address {
	return c.address
}

func (c *Contract) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	return out, nil
}

func bigOut(method string, out []interface{}, i int) (*big.Int, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("%s returned %d values, want more than %d", method, len(out), i)
	}
	v, ok := out[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s value %d has type %T, want *big.Int", method, i, out[i])
	}
	return v, nil
}

func boolOut(method string, out []interface{}, i int) (bool, error) {
	if i >= len(out) {
		return false, fmt.Errorf("%s returned %d values, want more than %d", method, len(out), i)
	}
	v, ok := out[i].(bool)
	if !ok {
		return false, fmt.Errorf("%s value %d has type %T, want bool", method, i, out[i])
	}
	return v, nil
}

// GetAllowedBetAmounts reads the allowed wager denominations in wei
func (c *Contract) GetAllowedBetAmounts(ctx context.Context) ([]*big.Int, error) {
	out, err := c.call(ctx, "getAllowedBetAmounts")
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getAllowedBetAmounts returned %d values", len(out))
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getAllowedBetAmounts returned %T", out[0])
	}
	return amounts, nil
}

// HasPendingBet reads the player's pending bet and reveal window
func (c *Contract) HasPendingBet(ctx context.Context, player common.Address) (models.PendingBetStatus, error) {
	const method = "hasPendingBet"
	out, err := c.call(ctx, method, player)
	if err != nil {
		return models.PendingBetStatus{}, err
	}

	active, err := boolOut(method, out, 0)
	if err != nil {
		return models.PendingBetStatus{}, err
	}
	target, err := bigOut(method, out, 1)
	if err != nil {
		return models.PendingBetStatus{}, err
	}
	current, err := bigOut(method, out, 2)
	if err != nil {
		return models.PendingBetStatus{}, err
	}

	return models.PendingBetStatus{
		HasActiveBet: active,
		TargetBlock:  target.Uint64(),
		CurrentBlock: current.Uint64(),
	}, nil
}

// GetBetDetails reads the player's latest bet
func (c *Contract) GetBetDetails(ctx context.Context, player common.Address) (models.BetDetails, error) {
	const method = "getBetDetails"
	out, err := c.call(ctx, method, player)
	if err != nil {
		return models.BetDetails{}, err
	}

	var details models.BetDetails
	var blockNumber, placedAt *big.Int
	if details.AmountWei, err = bigOut(method, out, 0); err != nil {
		return models.BetDetails{}, err
	}
	if blockNumber, err = bigOut(method, out, 1); err != nil {
		return models.BetDetails{}, err
	}
	if placedAt, err = bigOut(method, out, 2); err != nil {
		return models.BetDetails{}, err
	}
	if details.IsSettled, err = boolOut(method, out, 3); err != nil {
		return models.BetDetails{}, err
	}
	if details.PlayerWon, err = boolOut(method, out, 4); err != nil {
		return models.BetDetails{}, err
	}
	details.BlockNumber = blockNumber.Uint64()
	details.PlacedAtTimestamp = placedAt.Uint64()
	return details, nil
}

// IsWhitelistedForFreeBet reads the free-bet whitelist
func (c *Contract) IsWhitelistedForFreeBet(ctx context.Context, player common.Address) (bool, error) {
	out, err := c.call(ctx, "isWhitelistedForFreeBet", player)
	if err != nil {
		return false, err
	}
	return boolOut("isWhitelistedForFreeBet", out, 0)
}

// HasUsedFreeBet reads whether the player spent their free bet
func (c *Contract) HasUsedFreeBet(ctx context.Context, player common.Address) (bool, error) {
	out, err := c.call(ctx, "hasUsedFreeBet", player)
	if err != nil {
		return false, err
	}
	return boolOut("hasUsedFreeBet", out, 0)
}

// GetCurrentPythFee reads the entropy fee added to every place
func (c *Contract) GetCurrentPythFee(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, "getCurrentPythFee")
	if err != nil {
		return nil, err
	}
	return bigOut("getCurrentPythFee", out, 0)
}

// Transact sends a write to the contract
func (c *Contract) Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error) {
	return c.bound.Transact(opts, method, params...)
}
