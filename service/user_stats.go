package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"coinflip/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// statsCacheTTL is how long a backend refresh is reused when not forced
const statsCacheTTL = 30 * time.Second

// UserStatsAggregator holds the connected player's points and rank
type UserStatsAggregator struct {
	backend BackendClient
	history *BetHistoryStore
	now     func() time.Time

	mu          sync.RWMutex
	account     string
	stats       models.UserStats
	refreshedAt time.Time
}

// NewUserStatsAggregator creates an aggregator over the backend API
func NewUserStatsAggregator(backend BackendClient, history *BetHistoryStore) *UserStatsAggregator {
	return &UserStatsAggregator{
		backend: backend,
		history: history,
		now:     time.Now,
	}
}

// SetAccount switches the aggregate to another account and drops the old one
func (a *UserStatsAggregator) SetAccount(account string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	account = strings.ToLower(account)
	if account == a.account {
		return
	}
	a.account = account
	a.stats = models.UserStats{TotalWagered: decimal.Zero}
	a.refreshedAt = time.Time{}
}

// Stats returns the current aggregate
func (a *UserStatsAggregator) Stats() models.UserStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// RestorePending carries points of settlements the backend had not yet
// counted over from an earlier session. They show until a backend refresh
// succeeds.
func (a *UserStatsAggregator) RestorePending(ctx context.Context) error {
	a.mu.RLock()
	account := a.account
	a.mu.RUnlock()

	if a.history == nil || account == "" {
		return nil
	}
	pending, err := a.history.PendingPoints(ctx, account)
	if err != nil {
		return fmt.Errorf("failed to restore pending points: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.account != account || a.stats.HasBackendData || pending <= a.stats.Points {
		return nil
	}
	a.stats.Points = pending
	return nil
}

// ApplyOptimisticDelta folds one settled bet into the local aggregate
// ahead of the next backend refresh
func (a *UserStatsAggregator) ApplyOptimisticDelta(ctx context.Context, amountWagered decimal.Decimal, won bool) {
	points := betPoints(amountWagered)

	a.mu.Lock()
	account := a.account
	a.stats.Points += points
	a.stats.TotalWagered = a.stats.TotalWagered.Add(amountWagered)
	if won {
		a.stats.Wins++
	} else {
		a.stats.Losses++
	}
	if total := a.stats.Wins + a.stats.Losses; total > 0 {
		a.stats.WinPercentage = float64(a.stats.Wins) / float64(total) * 100
	}
	a.mu.Unlock()

	if a.history != nil && account != "" {
		if err := a.history.AddPendingPoints(ctx, account, points); err != nil {
			log.WithFields(log.Fields{
				"account": account,
				"error":   err,
			}).Warn("Failed to persist pending points")
		}
	}

	log.WithFields(log.Fields{
		"account": account,
		"points":  points,
		"won":     won,
	}).Debug("Applied optimistic stats delta")
}

// Refresh replaces the local aggregate with the backend's. Without force a
// refresh within statsCacheTTL of the previous one is skipped.
func (a *UserStatsAggregator) Refresh(ctx context.Context, force bool) error {
	a.mu.RLock()
	account := a.account
	fresh := !a.refreshedAt.IsZero() && a.now().Sub(a.refreshedAt) < statsCacheTTL
	a.mu.RUnlock()

	if account == "" {
		return ErrWalletNotConnected
	}
	if fresh && !force {
		return nil
	}

	remote, err := a.backend.GetUserStats(ctx, account)
	if err != nil {
		return fmt.Errorf("failed to refresh user stats: %w", err)
	}

	totalWagered := decimal.NewFromFloat(remote.TotalWagered)
	stats := models.UserStats{
		Points:         totalWagered.Mul(decimal.NewFromInt(pointsPerUnit)).IntPart() + int64(remote.TotalBets)*revealBonusPoints,
		Wins:           remote.Wins,
		Losses:         remote.Losses,
		TotalWagered:   totalWagered,
		TotalProfit:    remote.TotalProfit,
		WinPercentage:  remote.WinPercentage,
		RankByNetGain:  remote.PlayerRankByNetGain,
		RankByWagered:  remote.PlayerRankByTotalWagered,
		HasBackendData: true,
	}

	a.mu.Lock()
	if a.account != account {
		// account switched while the request was in flight
		a.mu.Unlock()
		return nil
	}
	a.stats = stats
	a.refreshedAt = a.now()
	a.mu.Unlock()

	if a.history != nil {
		if err := a.history.ClearPendingPoints(ctx, account); err != nil {
			log.WithFields(log.Fields{
				"account": account,
				"error":   err,
			}).Warn("Failed to clear pending points")
		}
	}

	log.WithFields(log.Fields{
		"account": account,
		"points":  stats.Points,
		"rank":    stats.RankByNetGain,
	}).Debug("Refreshed user stats from backend")
	return nil
}

// Leaderboard fetches one leaderboard page
func (a *UserStatsAggregator) Leaderboard(ctx context.Context, query models.LeaderboardQuery) (*models.LeaderboardPage, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 10
	}
	page, err := a.backend.GetLeaderboard(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	return page, nil
}
