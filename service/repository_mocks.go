package service

import (
	"context"
	"math/big"

	"coinflip/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
)

// MockLocalStore is a mock implementation of LocalStore
type MockLocalStore struct {
	mock.Mock
}

func (m *MockLocalStore) Get(ctx context.Context, account, key string) (string, bool, error) {
	args := m.Called(ctx, account, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockLocalStore) Put(ctx context.Context, account, key, value string) error {
	args := m.Called(ctx, account, key, value)
	return args.Error(0)
}

func (m *MockLocalStore) Delete(ctx context.Context, account, key string) error {
	args := m.Called(ctx, account, key)
	return args.Error(0)
}

func (m *MockLocalStore) Update(ctx context.Context, account, key string, fn func(current string, exists bool) (string, error)) error {
	args := m.Called(ctx, account, key, fn)
	return args.Error(0)
}

// MockContractCaller is a mock implementation of ContractCaller
type MockContractCaller struct {
	mock.Mock
}

func (m *MockContractCaller) GetAllowedBetAmounts(ctx context.Context) ([]*big.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*big.Int), args.Error(1)
}

func (m *MockContractCaller) HasPendingBet(ctx context.Context, player common.Address) (models.PendingBetStatus, error) {
	args := m.Called(ctx, player)
	return args.Get(0).(models.PendingBetStatus), args.Error(1)
}

func (m *MockContractCaller) GetBetDetails(ctx context.Context, player common.Address) (models.BetDetails, error) {
	args := m.Called(ctx, player)
	return args.Get(0).(models.BetDetails), args.Error(1)
}

func (m *MockContractCaller) IsWhitelistedForFreeBet(ctx context.Context, player common.Address) (bool, error) {
	args := m.Called(ctx, player)
	return args.Bool(0), args.Error(1)
}

func (m *MockContractCaller) HasUsedFreeBet(ctx context.Context, player common.Address) (bool, error) {
	args := m.Called(ctx, player)
	return args.Bool(0), args.Error(1)
}

func (m *MockContractCaller) GetCurrentPythFee(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

// MockTransactionSubmitter is a mock implementation of TransactionSubmitter
type MockTransactionSubmitter struct {
	mock.Mock
}

func (m *MockTransactionSubmitter) Submit(ctx context.Context, call ContractCall) (common.Hash, error) {
	args := m.Called(ctx, call)
	return args.Get(0).(common.Hash), args.Error(1)
}

func (m *MockTransactionSubmitter) WaitReceipt(ctx context.Context, hash common.Hash) error {
	args := m.Called(ctx, hash)
	return args.Error(0)
}

// MockBackendClient is a mock implementation of BackendClient
type MockBackendClient struct {
	mock.Mock
}

func (m *MockBackendClient) RecordBet(ctx context.Context, record models.BetRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockBackendClient) GetUserStats(ctx context.Context, address string) (*models.PlayerStats, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlayerStats), args.Error(1)
}

func (m *MockBackendClient) GetLeaderboard(ctx context.Context, query models.LeaderboardQuery) (*models.LeaderboardPage, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LeaderboardPage), args.Error(1)
}
