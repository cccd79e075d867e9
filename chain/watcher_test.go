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
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogSource struct {
	mu      sync.Mutex
	head    uint64
	logs    []types.Log
	queries []ethereum.FilterQuery
	err     error
}

func (f *fakeLogSource) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeLogSource) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber >= q.FromBlock.Uint64() && lg.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, lg)
		}
	}
	return out, nil
}

func (f *fakeLogSource) setHead(head uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head = head
}

type recordingDispatcher struct {
	mu   sync.Mutex
	msgs []service.Message
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, msg service.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.msgs)
}

func TestWatcher_PollDispatchesNewLogs(t *testing.T) {
	ctx := context.Background()
	placed := eventLog(t, eventBetPlaced, testPlayer, weiOf("500000000000000000"), big.NewInt(101))
	placed.BlockNumber = 101
	settled := eventLog(t, eventBetSettled, testPlayer, weiOf("500000000000000000"), false, big.NewInt(0))
	settled.BlockNumber = 112
	settled.Index = 0
	removed := settled
	removed.Removed = true
	removed.Index = 5

	source := &fakeLogSource{head: 100, logs: []types.Log{placed, settled, removed}}
	dispatcher := &recordingDispatcher{}
	w := NewWatcher(source, dispatcher, WatcherConfig{Contract: testContract, Player: testPlayer, StartBlock: 100})
	w.lastBlock = 100

	source.setHead(105)
	require.NoError(t, w.Poll(ctx))
	require.Equal(t, 1, dispatcher.count())
	assert.IsType(t, service.BetPlacedLog{}, dispatcher.msgs[0])

	// head unchanged: nothing queried
	require.NoError(t, w.Poll(ctx))
	assert.Len(t, source.queries, 1)

	source.setHead(120)
	require.NoError(t, w.Poll(ctx))
	require.Equal(t, 2, dispatcher.count())
	assert.IsType(t, service.BetSettledLog{}, dispatcher.msgs[1])

	q := source.queries[0]
	assert.Equal(t, uint64(101), q.FromBlock.Uint64())
	assert.Equal(t, uint64(105), q.ToBlock.Uint64())
	assert.Equal(t, []common.Address{testContract}, q.Addresses)
	require.Len(t, q.Topics, 2)
	assert.Len(t, q.Topics[0], 3)
	assert.Equal(t, []common.Hash{common.BytesToHash(testPlayer.Bytes())}, q.Topics[1])
}

func TestWatcher_PollSplitsLargeRanges(t *testing.T) {
	source := &fakeLogSource{head: 4500}
	w := NewWatcher(source, &recordingDispatcher{}, WatcherConfig{Contract: testContract, Player: testPlayer})
	w.lastBlock = 0

	require.NoError(t, w.Poll(context.Background()))
	require.Len(t, source.queries, 3)
	assert.Equal(t, uint64(2000), source.queries[0].ToBlock.Uint64())
	assert.Equal(t, uint64(2001), source.queries[1].FromBlock.Uint64())
	assert.Equal(t, uint64(4500), source.queries[2].ToBlock.Uint64())
	assert.Equal(t, uint64(4500), w.lastBlock)
}

func TestWatcher_PollErrorKeepsPosition(t *testing.T) {
	source := &fakeLogSource{head: 50, err: errors.New("rate limited")}
	w := NewWatcher(source, &recordingDispatcher{}, WatcherConfig{Contract: testContract, Player: testPlayer})
	w.lastBlock = 40

	err := w.Poll(context.Background())
	assert.Error(t, err)
	assert.Equal(t, uint64(40), w.lastBlock)
}

func TestWatcher_RunStartsAtHead(t *testing.T) {
	old := eventLog(t, eventBetPlaced, testPlayer, weiOf("1"), big.NewInt(10))
	old.BlockNumber = 10
	source := &fakeLogSource{head: 100, logs: []types.Log{old}}
	dispatcher := &recordingDispatcher{}
	w := NewWatcher(source, dispatcher, WatcherConfig{
		Contract:     testContract,
		Player:       testPlayer,
		PollInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	require.NoError(t, w.Run(ctx))

	// logs before the starting head are never replayed
	assert.Zero(t, dispatcher.count())
}
