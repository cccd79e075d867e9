package chain

import (
	"math/big"
	"testing"

	"coinflip/service"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventLog builds a log the way the contract would emit it
func eventLog(t *testing.T, name string, player common.Address, values ...interface{}) types.Log {
	t.Helper()
	event := contractABI.Events[name]
	data, err := event.Inputs.NonIndexed().Pack(values...)
	require.NoError(t, err)
	return types.Log{
		Address: testContract,
		Topics:  []common.Hash{event.ID, common.BytesToHash(player.Bytes())},
		Data:    data,
		TxHash:  common.HexToHash("0xABCDEF"),
		Index:   2,
	}
}

func TestDecodeLog_BetPlaced(t *testing.T) {
	lg := eventLog(t, eventBetPlaced, testPlayer, weiOf("500000000000000000"), big.NewInt(100))

	msg, err := DecodeLog(lg)
	require.NoError(t, err)
	placed, ok := msg.(service.BetPlacedLog)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, testPlayer, placed.Player)
	assert.Equal(t, uint64(100), placed.BlockNumber)
	assert.Equal(t, 0, weiOf("500000000000000000").Cmp(placed.Amount))
	assert.Equal(t, service.EventID(lg.TxHash.Hex(), 2), placed.EventID)
}

func TestDecodeLog_BetSettled(t *testing.T) {
	lg := eventLog(t, eventBetSettled, testPlayer, weiOf("980000000000000000"), true, weiOf("1000000000000000"))

	msg, err := DecodeLog(lg)
	require.NoError(t, err)
	settled, ok := msg.(service.BetSettledLog)
	require.True(t, ok, "got %T", msg)
	assert.True(t, settled.Won)
	assert.Equal(t, 0, weiOf("980000000000000000").Cmp(settled.Amount))
	assert.Equal(t, 0, weiOf("1000000000000000").Cmp(settled.FeePaid))
}

func TestDecodeLog_BetRefunded(t *testing.T) {
	lg := eventLog(t, eventBetRefunded, testPlayer, weiOf("250000000000000000"), "reveal window expired")

	msg, err := DecodeLog(lg)
	require.NoError(t, err)
	refunded, ok := msg.(service.BetRefundedLog)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, "reveal window expired", refunded.Reason)
	assert.Equal(t, testPlayer, refunded.Player)
}

func TestDecodeLog_Unknown(t *testing.T) {
	_, err := DecodeLog(types.Log{Topics: []common.Hash{common.HexToHash("0x1234"), {}}})
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = DecodeLog(types.Log{})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}
