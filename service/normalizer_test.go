package service

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNormalizeAmount_Buckets(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{"0.249", "0.25"},
		{"0.24", "0.25"},
		{"0.2599", "0.25"},
		{"0.5", "0.5"},
		{"0.48", "0.5"},
		{"0.519", "0.5"},
		{"1.02", "1"},
		{"0.97", "1"},
		{"1.94", "2"},
		{"2.0599", "2"},
		{"3.3", "3"},
		{"3.5", "4"},
		{"0.26", "0"},
		{"0.1", "0"},
		{"0", "0"},
		{"2.06", "2"},
		{"7.49", "7"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := NormalizeAmount(d(tt.raw))
			assert.True(t, got.Equal(d(tt.expected)), "normalize(%s) = %s, want %s", tt.raw, got, tt.expected)
		})
	}
}

func TestNormalizeAmount_Idempotent(t *testing.T) {
	step := d("0.001")
	for x := decimal.Zero; x.LessThan(d("5")); x = x.Add(step) {
		once := NormalizeAmount(x)
		twice := NormalizeAmount(once)
		assert.True(t, once.Equal(twice), "normalize not idempotent at %s: %s then %s", x, once, twice)
	}
}

func TestDisplayAmount_FreeBetFeeConsumed(t *testing.T) {
	assert.True(t, DisplayAmount(d("0.0003"), true).Equal(d("0.25")))
	assert.True(t, DisplayAmount(d("0.0003"), false).IsZero())
	assert.True(t, DisplayAmount(d("0.251"), true).Equal(d("0.25")))
	assert.True(t, DisplayAmount(d("1.01"), true).Equal(d("1")))
}

func TestWeiConversions(t *testing.T) {
	halfEther, _ := new(big.Int).SetString("500000000000000000", 10)

	assert.True(t, WeiToEther(halfEther).Equal(d("0.5")))
	assert.Equal(t, halfEther, EtherToWei(d("0.5")))
	assert.True(t, WeiToEther(nil).IsZero())

	// fee-skewed amount survives the round trip exactly
	skewed, _ := new(big.Int).SetString("499123456789012345", 10)
	assert.Equal(t, skewed, EtherToWei(WeiToEther(skewed)))
	assert.True(t, NormalizeAmount(WeiToEther(skewed)).Equal(d("0.5")))
}

func TestBetPoints(t *testing.T) {
	assert.Equal(t, int64(35), betPoints(d("0.25")))
	assert.Equal(t, int64(60), betPoints(d("0.5")))
	assert.Equal(t, int64(110), betPoints(d("1")))
	assert.Equal(t, int64(210), betPoints(d("2")))
}
