package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"coinflip/service"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
)

var _ service.TransactionSubmitter = (*Wallet)(nil)

// ErrReverted is returned by WaitReceipt for a mined but failed transaction
var ErrReverted = errors.New("transaction reverted")

// DefaultReceiptPollInterval is how often WaitReceipt asks for the receipt
const DefaultReceiptPollInterval = 2 * time.Second

// transactor sends contract writes; *Contract implements it
type transactor interface {
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
}

// receiptFetcher is the receipt lookup of an *ethclient.Client
type receiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Wallet signs contract writes with a local private key
type Wallet struct {
	contract     transactor
	receipts     receiptFetcher
	auth         *bind.TransactOpts
	pollInterval time.Duration

	// one write at a time keeps nonces in order
	mu sync.Mutex
}

// ParsePrivateKey decodes a hex private key with or without the 0x prefix
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// NewWallet creates a keyed wallet for chainID
func NewWallet(key *ecdsa.PrivateKey, chainID *big.Int, contract transactor, receipts receiptFetcher) (*Wallet, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	return &Wallet{
		contract:     contract,
		receipts:     receipts,
		auth:         auth,
		pollInterval: DefaultReceiptPollInterval,
	}, nil
}

// Address returns the account the wallet signs for
func (w *Wallet) Address() common.Address {
	return w.auth.From
}

// Submit signs and broadcasts call
func (w *Wallet) Submit(ctx context.Context, call service.ContractCall) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	opts := *w.auth
	opts.Context = ctx
	opts.Value = call.Value

	tx, err := w.contract.Transact(&opts, call.Method, call.Args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send %s: %w", call.Method, err)
	}

	log.WithFields(log.Fields{
		"method": call.Method,
		"txHash": tx.Hash().Hex(),
		"nonce":  tx.Nonce(),
		"value":  call.Value,
	}).Debug("Broadcast contract write")
	return tx.Hash(), nil
}

// WaitReceipt polls for the receipt of hash until it is mined or ctx ends
func (w *Wallet) WaitReceipt(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.receipts.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: %s in block %d", ErrReverted, hash.Hex(), receipt.BlockNumber)
			}
			log.WithFields(log.Fields{
				"txHash":  hash.Hex(),
				"block":   receipt.BlockNumber,
				"gasUsed": receipt.GasUsed,
			}).Debug("Transaction mined")
			return nil
		case errors.Is(err, ethereum.NotFound):
			// not mined yet
		default:
			log.WithFields(log.Fields{
				"txHash": hash.Hex(),
				"error":  err,
			}).Warn("Receipt lookup failed, retrying")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
