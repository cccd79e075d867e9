package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"coinflip/models"

	log "github.com/sirupsen/logrus"
)

// Keys inside an account namespace
const (
	keyBetHistory         = "bet_history"
	keyRecordedBetIDs     = "recorded_bet_ids"
	keyPendingPoints      = "pending_points"
	keyFreeBetNoticeShown = "free_bet_notice_dismissed"
	keyForceReset         = "force_reset"
	keyInFlightBet        = "in_flight_bet"
	keyUnrecordedBets     = "unrecorded_bets"
)

// DefaultHistoryLimit is the number of settled bets retained per account
const DefaultHistoryLimit = 10

// maxRecordedIDs bounds the recorded-bet set; ids older than this are never
// re-observed since the contract only exposes the latest bet
const maxRecordedIDs = 500

// BetHistoryStore is the per-account persisted ledger of settled bets
type BetHistoryStore struct {
	store LocalStore
	limit int
}

// NewBetHistoryStore creates a history store over a LocalStore
func NewBetHistoryStore(store LocalStore, limit int) *BetHistoryStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &BetHistoryStore{store: store, limit: limit}
}

func namespace(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}

// decodeHistory parses a stored history. Corrupt or non-array payloads
// yield an empty history.
func decodeHistory(account, raw string) []models.BetHistoryEntry {
	var entries []models.BetHistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		log.WithFields(log.Fields{
			"account": account,
			"error":   err,
		}).Debug("Discarding corrupt bet history")
		return []models.BetHistoryEntry{}
	}
	if entries == nil {
		return []models.BetHistoryEntry{}
	}
	return entries
}

// Append adds entry to the front of the account's history and persists it
// before returning
func (s *BetHistoryStore) Append(ctx context.Context, account string, entry models.BetHistoryEntry) error {
	ns := namespace(account)
	entry.DisplayAmount = NormalizeAmount(entry.DisplayAmount)

	err := s.store.Update(ctx, ns, keyBetHistory, func(current string, exists bool) (string, error) {
		entries := []models.BetHistoryEntry{}
		if exists {
			entries = decodeHistory(ns, current)
		}

		entries = append([]models.BetHistoryEntry{entry}, entries...)
		if len(entries) > s.limit {
			entries = entries[:s.limit]
		}

		data, err := json.Marshal(entries)
		if err != nil {
			return "", fmt.Errorf("failed to encode bet history: %w", err)
		}
		return string(data), nil
	})
	if err != nil {
		return fmt.Errorf("failed to append bet history: %w", err)
	}

	log.WithFields(log.Fields{
		"account": ns,
		"result":  entry.Result,
		"amount":  entry.DisplayAmount.String(),
		"isFree":  entry.IsFree,
	}).Debug("Appended bet history entry")
	return nil
}

// Load returns the account's history, newest first
func (s *BetHistoryStore) Load(ctx context.Context, account string) ([]models.BetHistoryEntry, error) {
	ns := namespace(account)
	raw, ok, err := s.store.Get(ctx, ns, keyBetHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to load bet history: %w", err)
	}
	if !ok {
		return []models.BetHistoryEntry{}, nil
	}
	return decodeHistory(ns, raw), nil
}

// accountOfBetID extracts the account namespace from a SettlementID
func accountOfBetID(betID string) string {
	account, _, _ := strings.Cut(betID, ":")
	return namespace(account)
}

func decodeIDs(raw string) []string {
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}

// MarkRecorded remembers that betID has been sent to the backend
func (s *BetHistoryStore) MarkRecorded(ctx context.Context, betID string) error {
	err := s.store.Update(ctx, accountOfBetID(betID), keyRecordedBetIDs, func(current string, exists bool) (string, error) {
		var ids []string
		if exists {
			ids = decodeIDs(current)
		}
		for _, id := range ids {
			if id == betID {
				return current, nil
			}
		}

		ids = append(ids, betID)
		if len(ids) > maxRecordedIDs {
			ids = ids[len(ids)-maxRecordedIDs:]
		}

		data, err := json.Marshal(ids)
		if err != nil {
			return "", fmt.Errorf("failed to encode recorded bet ids: %w", err)
		}
		return string(data), nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark bet %s recorded: %w", betID, err)
	}
	return nil
}

// IsRecorded reports whether betID has already been sent to the backend
func (s *BetHistoryStore) IsRecorded(ctx context.Context, betID string) (bool, error) {
	raw, ok, err := s.store.Get(ctx, accountOfBetID(betID), keyRecordedBetIDs)
	if err != nil {
		return false, fmt.Errorf("failed to load recorded bet ids: %w", err)
	}
	if !ok {
		return false, nil
	}
	for _, id := range decodeIDs(raw) {
		if id == betID {
			return true, nil
		}
	}
	return false, nil
}

// AddPendingPoints accumulates points not yet reflected by the backend
func (s *BetHistoryStore) AddPendingPoints(ctx context.Context, account string, points int64) error {
	err := s.store.Update(ctx, namespace(account), keyPendingPoints, func(current string, exists bool) (string, error) {
		var total int64
		if exists {
			total, _ = strconv.ParseInt(strings.TrimSpace(current), 10, 64)
		}
		return strconv.FormatInt(total+points, 10), nil
	})
	if err != nil {
		return fmt.Errorf("failed to add pending points: %w", err)
	}
	return nil
}

// PendingPoints returns the unsynced point total
func (s *BetHistoryStore) PendingPoints(ctx context.Context, account string) (int64, error) {
	raw, ok, err := s.store.Get(ctx, namespace(account), keyPendingPoints)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending points: %w", err)
	}
	if !ok {
		return 0, nil
	}
	total, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, nil
	}
	return total, nil
}

// ClearPendingPoints resets the unsynced point total
func (s *BetHistoryStore) ClearPendingPoints(ctx context.Context, account string) error {
	if err := s.store.Delete(ctx, namespace(account), keyPendingPoints); err != nil {
		return fmt.Errorf("failed to clear pending points: %w", err)
	}
	return nil
}

// SetFreeBetNoticeDismissed persists the free-bet notice flag
func (s *BetHistoryStore) SetFreeBetNoticeDismissed(ctx context.Context, account string, dismissed bool) error {
	if err := s.store.Put(ctx, namespace(account), keyFreeBetNoticeShown, strconv.FormatBool(dismissed)); err != nil {
		return fmt.Errorf("failed to store free bet notice flag: %w", err)
	}
	return nil
}

// FreeBetNoticeDismissed returns the free-bet notice flag
func (s *BetHistoryStore) FreeBetNoticeDismissed(ctx context.Context, account string) (bool, error) {
	raw, ok, err := s.store.Get(ctx, namespace(account), keyFreeBetNoticeShown)
	if err != nil {
		return false, fmt.Errorf("failed to load free bet notice flag: %w", err)
	}
	if !ok {
		return false, nil
	}
	dismissed, _ := strconv.ParseBool(raw)
	return dismissed, nil
}

// SetForceReset records an explicit reset at ts
func (s *BetHistoryStore) SetForceReset(ctx context.Context, account string, ts time.Time) error {
	data, err := json.Marshal(models.ForceReset{Active: true, Timestamp: ts.UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode force reset marker: %w", err)
	}
	if err := s.store.Put(ctx, namespace(account), keyForceReset, string(data)); err != nil {
		return fmt.Errorf("failed to store force reset marker: %w", err)
	}
	return nil
}

// ForceReset returns the last reset marker. A missing or corrupt marker is
// reported as inactive.
func (s *BetHistoryStore) ForceReset(ctx context.Context, account string) (models.ForceReset, error) {
	raw, ok, err := s.store.Get(ctx, namespace(account), keyForceReset)
	if err != nil {
		return models.ForceReset{}, fmt.Errorf("failed to load force reset marker: %w", err)
	}
	if !ok {
		return models.ForceReset{}, nil
	}
	var marker models.ForceReset
	if err := json.Unmarshal([]byte(raw), &marker); err != nil {
		return models.ForceReset{}, nil
	}
	return marker, nil
}

// SaveInFlight persists the unsettled bet
func (s *BetHistoryStore) SaveInFlight(ctx context.Context, account string, bet models.InFlightBet) error {
	data, err := json.Marshal(bet)
	if err != nil {
		return fmt.Errorf("failed to encode in-flight bet: %w", err)
	}
	if err := s.store.Put(ctx, namespace(account), keyInFlightBet, string(data)); err != nil {
		return fmt.Errorf("failed to store in-flight bet: %w", err)
	}
	return nil
}

// LoadInFlight returns the persisted unsettled bet, if any
func (s *BetHistoryStore) LoadInFlight(ctx context.Context, account string) (*models.InFlightBet, error) {
	raw, ok, err := s.store.Get(ctx, namespace(account), keyInFlightBet)
	if err != nil {
		return nil, fmt.Errorf("failed to load in-flight bet: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var bet models.InFlightBet
	if err := json.Unmarshal([]byte(raw), &bet); err != nil {
		return nil, nil
	}
	return &bet, nil
}

// ClearInFlight forgets the unsettled bet
func (s *BetHistoryStore) ClearInFlight(ctx context.Context, account string) error {
	if err := s.store.Delete(ctx, namespace(account), keyInFlightBet); err != nil {
		return fmt.Errorf("failed to clear in-flight bet: %w", err)
	}
	return nil
}

func decodeUnrecorded(raw string) map[string]models.BetRecord {
	records := make(map[string]models.BetRecord)
	if err := json.Unmarshal([]byte(raw), &records); err != nil || records == nil {
		return make(map[string]models.BetRecord)
	}
	return records
}

func (s *BetHistoryStore) updateUnrecorded(ctx context.Context, betID string, fn func(map[string]models.BetRecord)) error {
	return s.store.Update(ctx, accountOfBetID(betID), keyUnrecordedBets, func(current string, exists bool) (string, error) {
		records := make(map[string]models.BetRecord)
		if exists {
			records = decodeUnrecorded(current)
		}
		fn(records)

		data, err := json.Marshal(records)
		if err != nil {
			return "", fmt.Errorf("failed to encode unrecorded bets: %w", err)
		}
		return string(data), nil
	})
}

// QueueUnrecorded persists a settlement whose backend recording failed
func (s *BetHistoryStore) QueueUnrecorded(ctx context.Context, betID string, record models.BetRecord) error {
	err := s.updateUnrecorded(ctx, betID, func(records map[string]models.BetRecord) {
		records[betID] = record
	})
	if err != nil {
		return fmt.Errorf("failed to queue unrecorded bet %s: %w", betID, err)
	}
	return nil
}

// DropUnrecorded removes betID from the retry queue
func (s *BetHistoryStore) DropUnrecorded(ctx context.Context, betID string) error {
	err := s.updateUnrecorded(ctx, betID, func(records map[string]models.BetRecord) {
		delete(records, betID)
	})
	if err != nil {
		return fmt.Errorf("failed to drop unrecorded bet %s: %w", betID, err)
	}
	return nil
}

// LoadUnrecorded returns the account's settlements still waiting for the
// backend, keyed by settlement id
func (s *BetHistoryStore) LoadUnrecorded(ctx context.Context, account string) (map[string]models.BetRecord, error) {
	raw, ok, err := s.store.Get(ctx, namespace(account), keyUnrecordedBets)
	if err != nil {
		return nil, fmt.Errorf("failed to load unrecorded bets: %w", err)
	}
	if !ok {
		return map[string]models.BetRecord{}, nil
	}
	return decodeUnrecorded(raw), nil
}
