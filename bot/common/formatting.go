package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatPoints formats a points total with thousand separators
func FormatPoints(points int64) string {
	str := fmt.Sprintf("%d", points)
	negative := strings.HasPrefix(str, "-")
	if negative {
		str = str[1:]
	}

	n := len(str)
	if n <= 3 {
		if negative {
			return "-" + str
		}
		return str
	}

	var result strings.Builder
	if negative {
		result.WriteRune('-')
	}
	for i, digit := range str {
		if i > 0 && (n-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(digit)
	}

	return result.String()
}

// FormatAmount formats an ETH amount, e.g. "0.25 ETH"
func FormatAmount(amount decimal.Decimal) string {
	return amount.String() + " ETH"
}

// FormatProfit formats a signed profit with an explicit sign
func FormatProfit(profit float64) string {
	if profit > 0 {
		return fmt.Sprintf("+%s ETH", decimal.NewFromFloat(profit).String())
	}
	return decimal.NewFromFloat(profit).String() + " ETH"
}

// ShortHash abbreviates a transaction hash or address for display
func ShortHash(hash string) string {
	if len(hash) <= 14 {
		return hash
	}
	return hash[:8] + "…" + hash[len(hash)-6:]
}

// FormatDiscordTimestamp formats a time as a Discord timestamp that displays in user's local timezone
// Format types: "t" = short time, "T" = long time, "d" = short date, "D" = long date,
// "f" = short date/time, "F" = long date/time, "R" = relative time
func FormatDiscordTimestamp(t time.Time, format string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), format)
}
