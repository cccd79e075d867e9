package chain

import (
	"errors"
	"fmt"
	"math/big"

	"coinflip/service"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrUnknownEvent is returned for logs that are not coin flip events
var ErrUnknownEvent = errors.New("unknown event")

// eventTopics returns the topic0 of every event the watcher follows
func eventTopics() []common.Hash {
	return []common.Hash{
		contractABI.Events[eventBetPlaced].ID,
		contractABI.Events[eventBetSettled].ID,
		contractABI.Events[eventBetRefunded].ID,
	}
}

// DecodeLog turns one contract log into a lifecycle message
func DecodeLog(lg types.Log) (service.Message, error) {
	if len(lg.Topics) < 2 {
		return nil, fmt.Errorf("%w: log has %d topics", ErrUnknownEvent, len(lg.Topics))
	}
	event, err := contractABI.EventByID(lg.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, lg.Topics[0].Hex())
	}

	data := make(map[string]interface{})
	if err := contractABI.UnpackIntoMap(data, event.Name, lg.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", event.Name, err)
	}

	id := service.EventID(lg.TxHash.Hex(), lg.Index)
	player := common.BytesToAddress(lg.Topics[1].Bytes())

	switch event.Name {
	case eventBetPlaced:
		block, _ := data["blockNumber"].(*big.Int)
		msg := service.BetPlacedLog{
			EventID: id,
			Player:  player,
			Amount:  bigField(data, "amount"),
		}
		if block != nil {
			msg.BlockNumber = block.Uint64()
		}
		return msg, nil
	case eventBetSettled:
		won, _ := data["won"].(bool)
		return service.BetSettledLog{
			EventID: id,
			Player:  player,
			Amount:  bigField(data, "amount"),
			Won:     won,
			FeePaid: bigField(data, "feePaid"),
		}, nil
	case eventBetRefunded:
		reason, _ := data["reason"].(string)
		return service.BetRefundedLog{
			EventID: id,
			Player:  player,
			Amount:  bigField(data, "amount"),
			Reason:  reason,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, event.Name)
}

func bigField(data map[string]interface{}, name string) *big.Int {
	if v, ok := data[name].(*big.Int); ok {
		return v
	}
	return new(big.Int)
}
