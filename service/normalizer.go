package service

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// weiDecimals is the number of decimals of the native token
const weiDecimals = 18

// amountBucket maps [low, high) onto one canonical denomination
type amountBucket struct {
	low, high, value decimal.Decimal
}

var amountBuckets = []amountBucket{
	{decimal.RequireFromString("0.24"), decimal.RequireFromString("0.26"), decimal.RequireFromString("0.25")},
	{decimal.RequireFromString("0.48"), decimal.RequireFromString("0.52"), decimal.RequireFromString("0.5")},
	{decimal.RequireFromString("0.97"), decimal.RequireFromString("1.03"), decimal.NewFromInt(1)},
	{decimal.RequireFromString("1.94"), decimal.RequireFromString("2.06"), decimal.NewFromInt(2)},
}

// MinDenomination is the smallest wager the game offers
var MinDenomination = decimal.RequireFromString("0.25")

// NormalizeAmount maps a fee-skewed amount onto the denomination the player
// actually picked. Amounts outside every bucket round to the nearest integer.
func NormalizeAmount(raw decimal.Decimal) decimal.Decimal {
	for _, b := range amountBuckets {
		if raw.GreaterThanOrEqual(b.low) && raw.LessThan(b.high) {
			return b.value
		}
	}
	return raw.Round(0)
}

// DisplayAmount normalizes raw and, for free bets whose amount was consumed
// by protocol fees, shows the smallest denomination instead of zero.
func DisplayAmount(raw decimal.Decimal, isFree bool) decimal.Decimal {
	normalized := NormalizeAmount(raw)
	if isFree && normalized.IsZero() {
		return MinDenomination
	}
	return normalized
}

// WeiToEther converts a wei amount to whole tokens
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -weiDecimals)
}

// EtherToWei converts whole tokens to wei, truncating below one wei
func EtherToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(weiDecimals).BigInt()
}

// betPoints is the score for settling one bet of the given size
func betPoints(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(pointsPerUnit)).IntPart() + revealBonusPoints
}

const (
	pointsPerUnit     = 100
	revealBonusPoints = 10
)
