package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"coinflip/service"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known throwaway development key
const testKeyHex = "0xb71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

type recordingTransactor struct {
	mu     sync.Mutex
	opts   []bind.TransactOpts
	method []string
	args   [][]interface{}
	err    error
	nonce  uint64
}

func (r *recordingTransactor) Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.opts = append(r.opts, *opts)
	r.method = append(r.method, method)
	r.args = append(r.args, params)
	tx := types.NewTx(&types.LegacyTx{Nonce: r.nonce, Value: opts.Value, Gas: 21000, GasPrice: big.NewInt(1)})
	r.nonce++
	return tx, nil
}

// scriptedReceipts returns NotFound until ready, then the receipt
type scriptedReceipts struct {
	mu      sync.Mutex
	pending int
	receipt *types.Receipt
	err     error
	lookups int
}

func (s *scriptedReceipts) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.err != nil {
		return nil, s.err
	}
	if s.pending > 0 {
		s.pending--
		return nil, ethereum.NotFound
	}
	return s.receipt, nil
}

func newTestWallet(t *testing.T, tr transactor, receipts receiptFetcher) *Wallet {
	t.Helper()
	key, err := ParsePrivateKey(testKeyHex)
	require.NoError(t, err)
	w, err := NewWallet(key, big.NewInt(84532), tr, receipts)
	require.NoError(t, err)
	w.pollInterval = time.Millisecond
	return w
}

func TestParsePrivateKey(t *testing.T) {
	withPrefix, err := ParsePrivateKey(testKeyHex)
	require.NoError(t, err)
	without, err := ParsePrivateKey(testKeyHex[2:])
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(withPrefix.PublicKey), crypto.PubkeyToAddress(without.PublicKey))

	_, err = ParsePrivateKey("not-a-key")
	assert.Error(t, err)
}

func TestWallet_Submit(t *testing.T) {
	tr := &recordingTransactor{}
	w := newTestWallet(t, tr, &scriptedReceipts{})
	ctx := context.Background()

	value := big.NewInt(501000000000000000)
	hash, err := w.Submit(ctx, service.ContractCall{Method: "placeBet", Args: []interface{}{uint8(1)}, Value: value})
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)

	require.Len(t, tr.opts, 1)
	assert.Equal(t, "placeBet", tr.method[0])
	assert.Equal(t, []interface{}{uint8(1)}, tr.args[0])
	assert.Equal(t, value, tr.opts[0].Value)
	assert.Equal(t, w.Address(), tr.opts[0].From)
	assert.Equal(t, ctx, tr.opts[0].Context)

	// the shared transactor options are never mutated
	assert.Nil(t, w.auth.Value)
}

func TestWallet_SubmitError(t *testing.T) {
	boom := errors.New("insufficient funds for gas * price + value")
	w := newTestWallet(t, &recordingTransactor{err: boom}, &scriptedReceipts{})

	_, err := w.Submit(context.Background(), service.ContractCall{Method: "settleBet"})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "settleBet")
}

func TestWallet_WaitReceipt(t *testing.T) {
	t.Run("mined after polling", func(t *testing.T) {
		receipts := &scriptedReceipts{
			pending: 3,
			receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)},
		}
		w := newTestWallet(t, &recordingTransactor{}, receipts)

		require.NoError(t, w.WaitReceipt(context.Background(), common.HexToHash("0x01")))
		assert.Equal(t, 4, receipts.lookups)
	})

	t.Run("reverted", func(t *testing.T) {
		receipts := &scriptedReceipts{
			receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(100)},
		}
		w := newTestWallet(t, &recordingTransactor{}, receipts)

		err := w.WaitReceipt(context.Background(), common.HexToHash("0x01"))
		assert.ErrorIs(t, err, ErrReverted)
	})

	t.Run("cancelled while pending", func(t *testing.T) {
		receipts := &scriptedReceipts{pending: 1 << 30}
		w := newTestWallet(t, &recordingTransactor{}, receipts)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := w.WaitReceipt(ctx, common.HexToHash("0x01"))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("lookup errors are retried", func(t *testing.T) {
		receipts := &scriptedReceipts{err: errors.New("connection reset")}
		w := newTestWallet(t, &recordingTransactor{}, receipts)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := w.WaitReceipt(ctx, common.HexToHash("0x01"))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Greater(t, receipts.lookups, 1)
	})
}
