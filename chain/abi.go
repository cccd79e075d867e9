package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// coinFlipABI holds the methods and events the client uses
const coinFlipABI = `[
	{"type":"function","name":"getAllowedBetAmounts","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256[]"}]},
	{"type":"function","name":"hasPendingBet","stateMutability":"view",
	 "inputs":[{"name":"player","type":"address"}],
	 "outputs":[{"name":"hasActiveBet","type":"bool"},{"name":"targetBlock","type":"uint256"},{"name":"currentBlock","type":"uint256"}]},
	{"type":"function","name":"getBetDetails","stateMutability":"view",
	 "inputs":[{"name":"player","type":"address"}],
	 "outputs":[{"name":"amount","type":"uint256"},{"name":"blockNumber","type":"uint256"},{"name":"placedAtTimestamp","type":"uint256"},{"name":"isSettled","type":"bool"},{"name":"playerWon","type":"bool"}]},
	{"type":"function","name":"isWhitelistedForFreeBet","stateMutability":"view",
	 "inputs":[{"name":"player","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"hasUsedFreeBet","stateMutability":"view",
	 "inputs":[{"name":"player","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getCurrentPythFee","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"placeBet","stateMutability":"payable",
	 "inputs":[{"name":"choice","type":"uint8"}],"outputs":[]},
	{"type":"function","name":"placeFreeBet","stateMutability":"payable",
	 "inputs":[{"name":"choice","type":"uint8"}],"outputs":[]},
	{"type":"function","name":"settleBet","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"event","name":"BetPlaced","anonymous":false,"inputs":[
		{"name":"player","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"blockNumber","type":"uint256","indexed":false}]},
	{"type":"event","name":"BetSettled","anonymous":false,"inputs":[
		{"name":"player","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"won","type":"bool","indexed":false},
		{"name":"feePaid","type":"uint256","indexed":false}]},
	{"type":"event","name":"BetRefunded","anonymous":false,"inputs":[
		{"name":"player","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"reason","type":"string","indexed":false}]}
]`

const (
	eventBetPlaced   = "BetPlaced"
	eventBetSettled  = "BetSettled"
	eventBetRefunded = "BetRefunded"
)

var contractABI = mustParseABI(coinFlipABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid coin flip ABI: %v", err))
	}
	return parsed
}

// ABI returns the parsed contract ABI
func ABI() abi.ABI {
	return contractABI
}
