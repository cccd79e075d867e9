package models

import "github.com/shopspring/decimal"

// PlayerStats represents the aggregate stats returned by GET /api/user/:address
type PlayerStats struct {
	PlayerAddress            string  `json:"playerAddress,omitempty"`
	TotalBets                int     `json:"totalBets"`
	Wins                     int     `json:"wins"`
	Losses                   int     `json:"losses"`
	TotalProfit              float64 `json:"totalProfit"`
	WinPercentage            float64 `json:"winPercentage"`
	TotalWagered             float64 `json:"totalWagered"`
	PlayerRankByNetGain      int     `json:"playerRankByNetGain"`
	PlayerRankByTotalWagered int     `json:"playerRankByTotalWagered"`
}

// Pagination is the paging block of the leaderboard response
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"total_pages"`
}

// LeaderboardPage is the GET /api/leaderboard response
type LeaderboardPage struct {
	Data       []PlayerStats `json:"data"`
	Pagination Pagination    `json:"pagination"`
}

// LeaderboardQuery holds the leaderboard query parameters
type LeaderboardQuery struct {
	Page          int
	Limit         int
	PlayerAddress string
	SortBy        string
}

// UserStats is the locally held aggregate for the connected player. It is
// replaced wholesale by a backend refresh; optimistic deltas only bridge the
// gap until then.
type UserStats struct {
	Points         int64
	Wins           int
	Losses         int
	TotalWagered   decimal.Decimal
	TotalProfit    float64
	WinPercentage  float64
	RankByNetGain  int
	RankByWagered  int
	HasBackendData bool
}
