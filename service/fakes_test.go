package service

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"coinflip/events"
	"coinflip/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeLocalStore is an in-memory LocalStore
type fakeLocalStore struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func newFakeLocalStore() *fakeLocalStore {
	return &fakeLocalStore{data: make(map[string]map[string]string)}
}

func (s *fakeLocalStore) Get(ctx context.Context, account, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[account][key]
	return v, ok, nil
}

func (s *fakeLocalStore) Put(ctx context.Context, account, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(account, key, value)
	return nil
}

func (s *fakeLocalStore) put(account, key, value string) {
	if s.data[account] == nil {
		s.data[account] = make(map[string]string)
	}
	s.data[account][key] = value
}

func (s *fakeLocalStore) Delete(ctx context.Context, account, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[account], key)
	return nil
}

func (s *fakeLocalStore) Update(ctx context.Context, account, key string, fn func(string, bool) (string, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.data[account][key]
	next, err := fn(current, ok)
	if err != nil {
		return err
	}
	s.put(account, key, next)
	return nil
}

// fakeChain is a stateful ContractCaller
type fakeChain struct {
	mu          sync.Mutex
	allowed     []*big.Int
	pending     models.PendingBetStatus
	details     models.BetDetails
	whitelisted bool
	usedFree    bool
	fee         *big.Int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		allowed: []*big.Int{wei("0.25"), wei("0.5"), wei("1"), wei("2")},
		fee:     wei("0.001"),
	}
}

func (f *fakeChain) GetAllowedBetAmounts(ctx context.Context) ([]*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allowed, nil
}

func (f *fakeChain) HasPendingBet(ctx context.Context, player common.Address) (models.PendingBetStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending, nil
}

func (f *fakeChain) GetBetDetails(ctx context.Context, player common.Address) (models.BetDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.details, nil
}

func (f *fakeChain) IsWhitelistedForFreeBet(ctx context.Context, player common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.whitelisted, nil
}

func (f *fakeChain) HasUsedFreeBet(ctx context.Context, player common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usedFree, nil
}

func (f *fakeChain) GetCurrentPythFee(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fee, nil
}

func (f *fakeChain) setPending(status models.PendingBetStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = status
}

func (f *fakeChain) setDetails(details models.BetDetails) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details = details
}

func wei(amount string) *big.Int {
	return EtherToWei(decimal.RequireFromString(amount))
}

var (
	testAccount      = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	testAccountLower = "0x00000000000000000000000000000000000000a1"
)

// controllerHarness wires a controller to fakes and mocks
type controllerHarness struct {
	ctrl    *LifecycleController
	chain   *fakeChain
	wallet  *MockTransactionSubmitter
	backend *MockBackendClient
	store   *fakeLocalStore
	history *BetHistoryStore
	stats   *UserStatsAggregator
	bus     *events.Bus
}

func newControllerHarness(t *testing.T) *controllerHarness {
	t.Helper()

	h := &controllerHarness{
		chain:   newFakeChain(),
		wallet:  new(MockTransactionSubmitter),
		backend: new(MockBackendClient),
		store:   newFakeLocalStore(),
		bus:     events.NewBus(),
	}
	h.history = NewBetHistoryStore(h.store, DefaultHistoryLimit)
	h.stats = NewUserStatsAggregator(h.backend, h.history)
	h.ctrl = NewLifecycleController(LifecycleDeps{
		Reader:  NewContractStateReader(h.chain),
		Wallet:  h.wallet,
		History: h.history,
		Dedup:   NewMemoryDeduplicator(),
		Stats:   h.stats,
		Backend: h.backend,
		Bus:     h.bus,
	})
	h.ctrl.now = func() time.Time { return time.Unix(1700000000, 0) }
	t.Cleanup(h.bus.Wait)
	return h
}

// connect stubs the initial stats refresh and connects testAccount
func (h *controllerHarness) connect(t *testing.T) {
	t.Helper()
	h.backend.On("GetUserStats", mock.Anything, testAccountLower).Return(&models.PlayerStats{}, nil).Once()
	require.NoError(t, h.ctrl.Connect(context.Background(), testAccount))
}

func (h *controllerHarness) phase() models.Phase {
	return h.ctrl.State().DisplayPhase
}

// restart builds another controller over the same store, chain and backend,
// as a second process of the same player would
func (h *controllerHarness) restart(dedup EventDeduplicator) *controllerHarness {
	next := *h
	next.stats = NewUserStatsAggregator(h.backend, h.history)
	next.ctrl = NewLifecycleController(LifecycleDeps{
		Reader:  NewContractStateReader(h.chain),
		Wallet:  h.wallet,
		History: h.history,
		Dedup:   dedup,
		Stats:   next.stats,
		Backend: h.backend,
		Bus:     h.bus,
	})
	next.ctrl.now = h.ctrl.now
	return &next
}
