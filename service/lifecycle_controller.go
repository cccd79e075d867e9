package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"coinflip/events"
	"coinflip/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// lastAction is the most recent write the player performed on the current bet
type lastAction string

const (
	actionNone   lastAction = ""
	actionPlace  lastAction = "place"
	actionSettle lastAction = "settle"
)

// effect is a side effect of a transition. Effects run after the state lock
// is released, in the order they were queued.
type effect func(ctx context.Context, tb *events.TransactionalBus)

// LifecycleState is a copy of the controller state
type LifecycleState struct {
	Account      common.Address
	Connected    bool
	Bet          models.Bet
	DisplayPhase models.Phase
	LastResetAt  uint64
	PlacedAt     uint64
}

// LifecycleDeps are the collaborators of a LifecycleController
type LifecycleDeps struct {
	Reader  *ContractStateReader
	Wallet  TransactionSubmitter
	History *BetHistoryStore
	Dedup   EventDeduplicator
	Stats   *UserStatsAggregator
	Backend BackendClient
	Bus     *events.Bus
}

// LifecycleController is the bet lifecycle state machine of one player.
// Every input goes through Dispatch; only transition mutates state.
type LifecycleController struct {
	reader  *ContractStateReader
	wallet  TransactionSubmitter
	history *BetHistoryStore
	dedup   EventDeduplicator
	seen    *MemoryDeduplicator
	stats   *UserStatsAggregator
	backend BackendClient
	bus     *events.Bus
	now     func() time.Time

	mu          sync.Mutex
	account     common.Address
	connected   bool
	bet         models.Bet
	lastAction  lastAction
	lastResetAt uint64
	placedAt    uint64
	unrecorded  map[string]models.BetRecord
}

// NewLifecycleController creates a controller in Idle with no wallet connected
func NewLifecycleController(deps LifecycleDeps) *LifecycleController {
	if deps.Dedup == nil {
		deps.Dedup = NewMemoryDeduplicator()
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	return &LifecycleController{
		reader:     deps.Reader,
		wallet:     deps.Wallet,
		history:    deps.History,
		dedup:      deps.Dedup,
		seen:       NewMemoryDeduplicator(),
		stats:      deps.Stats,
		backend:    deps.Backend,
		bus:        deps.Bus,
		now:        time.Now,
		bet:        models.Bet{Phase: models.PhaseIdle},
		unrecorded: make(map[string]models.BetRecord),
	}
}

// State returns a copy of the current state
func (c *LifecycleController) State() LifecycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return LifecycleState{
		Account:      c.account,
		Connected:    c.connected,
		Bet:          c.bet,
		DisplayPhase: c.bet.DisplayPhase(),
		LastResetAt:  c.lastResetAt,
		PlacedAt:     c.placedAt,
	}
}

// Account returns the connected account
func (c *LifecycleController) Account() (common.Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account, c.connected
}

// Outstanding reports whether a bet is on chain and not yet settled
func (c *LifecycleController) Outstanding() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.bet.Phase {
	case models.PhaseAwaitingConfirmation, models.PhaseAwaitingReveal, models.PhaseRevealing:
		return true
	}
	return false
}

// Dispatch feeds one message through the transition function. Validation
// errors are returned and leave state untouched.
func (c *LifecycleController) Dispatch(ctx context.Context, msg Message) error {
	tb := events.NewTransactionalBus(c.bus)

	c.mu.Lock()
	before := c.bet.DisplayPhase()
	effects, err := c.transition(msg, tb)
	after := c.bet.DisplayPhase()
	if err == nil && before != after {
		tb.Publish(events.PhaseChangedEvent{
			Account:  c.account.Hex(),
			OldPhase: before,
			NewPhase: after,
			TxHash:   c.bet.TxHash,
			Err:      c.bet.LastError,
		})
		log.WithFields(log.Fields{
			"account": c.account.Hex(),
			"message": msg.messageName(),
			"from":    before,
			"to":      after,
		}).Info("Bet phase changed")
	}
	c.mu.Unlock()

	if err != nil {
		tb.Discard()
		return err
	}

	for _, fx := range effects {
		fx(ctx, tb)
	}
	return tb.Flush(ctx)
}

// transition applies msg to state. Must be called with mu held.
func (c *LifecycleController) transition(msg Message, tb *events.TransactionalBus) ([]effect, error) {
	switch m := msg.(type) {
	case placeRequested:
		return c.onPlaceRequested(m)
	case revealRequested:
		return c.onRevealRequested()
	case resetRequested:
		return c.onResetRequested(m)
	case txSubmitted:
		return c.onTxSubmitted(m), nil
	case txFailed:
		return c.onTxFailed(m), nil
	case txConfirmed:
		c.onTxConfirmed(m)
		return nil, nil
	case resumeChecked:
		return c.onResumeChecked(m), nil
	case PendingStatusRead:
		c.onPendingStatus(m.Status)
		return nil, nil
	case BetDetailsRead:
		return c.onBetDetails(m.Details), nil
	case BetPlacedLog:
		c.onBetPlacedLog(m)
		return nil, nil
	case BetSettledLog:
		return c.onBetSettledLog(m), nil
	case BetRefundedLog:
		return c.onBetRefundedLog(m, tb), nil
	default:
		return nil, fmt.Errorf("unknown lifecycle message %T", msg)
	}
}

func (c *LifecycleController) ignore(msg Message, reason string) {
	log.WithFields(log.Fields{
		"account": c.account.Hex(),
		"message": msg.messageName(),
		"phase":   c.bet.Phase,
		"reason":  reason,
	}).Debug("Ignoring lifecycle message")
}

func (c *LifecycleController) onPlaceRequested(m placeRequested) ([]effect, error) {
	if !c.connected {
		return nil, ErrWalletNotConnected
	}
	if !m.choice.Valid() {
		return nil, ErrNoChoice
	}
	snap := c.reader.Snapshot()
	if m.free {
		if !snap.Whitelisted {
			return nil, ErrNotWhitelisted
		}
		if snap.UsedFreeBet {
			return nil, ErrFreeBetUsed
		}
	} else if !c.reader.IsAllowedAmount(m.amount) {
		return nil, ErrAmountNotAllowed
	}
	switch c.bet.Phase {
	case models.PhaseIdle:
	case models.PhaseSettled:
		return nil, ErrInvalidPhase
	default:
		return nil, ErrActiveBetPending
	}
	if snap.Pending.HasActiveBet {
		return nil, ErrActiveBetPending
	}

	amount := m.amount
	if m.free {
		amount = MinDenomination
	}
	c.bet = models.Bet{
		Choice:          m.choice,
		AmountRequested: amount,
		IsFreeBet:       m.free,
		Phase:           models.PhaseSubmitting,
	}
	c.lastAction = actionPlace
	c.placedAt = 0
	return nil, nil
}

func (c *LifecycleController) onRevealRequested() ([]effect, error) {
	if !c.connected {
		return nil, ErrWalletNotConnected
	}
	if c.bet.Phase != models.PhaseAwaitingReveal {
		return nil, ErrInvalidPhase
	}
	if !c.reader.PendingStatus().RevealReady() {
		return nil, ErrRevealNotReady
	}

	c.bet.Phase = models.PhaseRevealing
	c.bet.RevealRejected = false
	c.bet.LastError = nil
	c.lastAction = actionSettle
	return nil, nil
}

func (c *LifecycleController) onResetRequested(m resetRequested) ([]effect, error) {
	switch {
	case c.bet.Phase == models.PhaseIdle, c.bet.Phase == models.PhaseSettled:
	case c.bet.Phase == models.PhaseAwaitingReveal && c.bet.RevealRejected:
		// the contract allows one bet at a time; dropping a live one would
		// filter out its settlement as stale
		if c.reader.PendingStatus().HasActiveBet {
			return nil, ErrActiveBetPending
		}
	default:
		return nil, ErrInvalidPhase
	}

	c.bet = models.Bet{Phase: models.PhaseIdle}
	c.lastAction = actionNone
	c.lastResetAt = uint64(m.at.Unix())
	c.placedAt = 0

	if !c.connected {
		return nil, nil
	}
	account := c.account.Hex()
	return []effect{func(ctx context.Context, tb *events.TransactionalBus) {
		if err := c.history.SetForceReset(ctx, account, m.at); err != nil {
			c.syncFailed(tb, account, "store_reset", err)
		}
		if err := c.history.ClearInFlight(ctx, account); err != nil {
			c.syncFailed(tb, account, "clear_in_flight", err)
		}
	}}, nil
}

func (c *LifecycleController) onTxSubmitted(m txSubmitted) []effect {
	switch m.kind {
	case txPlace, txFreePlace:
		if c.bet.Phase != models.PhaseSubmitting {
			c.ignore(m, "not submitting")
			return nil
		}
		c.bet.Phase = models.PhaseAwaitingConfirmation
		c.bet.TxHash = m.hash.Hex()

		account := c.account.Hex()
		inFlight := models.InFlightBet{
			Choice: c.bet.Choice,
			Amount: c.bet.AmountRequested,
			IsFree: c.bet.IsFreeBet,
			TxHash: c.bet.TxHash,
		}
		return []effect{func(ctx context.Context, tb *events.TransactionalBus) {
			if err := c.history.SaveInFlight(ctx, account, inFlight); err != nil {
				c.syncFailed(tb, account, "store_in_flight", err)
			}
		}}
	case txSettle:
		if c.bet.Phase != models.PhaseRevealing {
			c.ignore(m, "not revealing")
			return nil
		}
		c.bet.TxHash = m.hash.Hex()

		account := c.account.Hex()
		inFlight := models.InFlightBet{
			Choice:       c.bet.Choice,
			Amount:       c.bet.AmountRequested,
			IsFree:       c.bet.IsFreeBet,
			RevealTxHash: c.bet.TxHash,
			PlacedAt:     c.placedAt,
		}
		return []effect{func(ctx context.Context, tb *events.TransactionalBus) {
			if err := c.history.SaveInFlight(ctx, account, inFlight); err != nil {
				c.syncFailed(tb, account, "store_in_flight", err)
			}
		}}
	}
	return nil
}

func (c *LifecycleController) onTxFailed(m txFailed) []effect {
	switch m.kind {
	case txPlace, txFreePlace:
		if c.bet.Phase != models.PhaseSubmitting && c.bet.Phase != models.PhaseAwaitingConfirmation {
			c.ignore(m, "no place in flight")
			return nil
		}
		c.bet = models.Bet{Phase: models.PhaseIdle, LastError: m.err}
		c.lastAction = actionNone

		account := c.account.Hex()
		return []effect{func(ctx context.Context, tb *events.TransactionalBus) {
			if err := c.history.ClearInFlight(ctx, account); err != nil {
				c.syncFailed(tb, account, "clear_in_flight", err)
			}
		}}
	case txSettle:
		if c.bet.Phase != models.PhaseRevealing {
			c.ignore(m, "no reveal in flight")
			return nil
		}
		c.bet.Phase = models.PhaseAwaitingReveal
		c.bet.RevealRejected = true
		c.bet.LastError = m.err
	}
	return nil
}

func (c *LifecycleController) onTxConfirmed(m txConfirmed) {
	switch m.kind {
	case txPlace, txFreePlace:
		if c.bet.Phase != models.PhaseAwaitingConfirmation {
			c.ignore(m, "not awaiting confirmation")
			return
		}
		c.bet.Phase = models.PhaseAwaitingReveal
	case txSettle:
		// Settlement is taken from the following details read or the
		// BetSettled event, whichever arrives first.
	}
}

func (c *LifecycleController) onResumeChecked(m resumeChecked) []effect {
	if c.bet.Phase != models.PhaseIdle {
		c.ignore(m, "already active")
		return nil
	}
	if !m.status.HasActiveBet {
		if m.inFlight == nil {
			return nil
		}
		if c.revealLanded(m.inFlight, m.details) {
			c.restore(m.inFlight)
			c.bet.Phase = models.PhaseRevealing
			c.bet.TxHash = m.inFlight.RevealTxHash
			c.lastAction = actionSettle
			log.WithFields(log.Fields{
				"account": c.account.Hex(),
				"txHash":  m.inFlight.RevealTxHash,
			}).Info("Reveal confirmed while offline, settling")
			return c.settle(m.details.PlacedAtTimestamp, WeiToEther(m.details.AmountWei), m.details.PlayerWon)
		}
		account := c.account.Hex()
		return []effect{func(ctx context.Context, tb *events.TransactionalBus) {
			if err := c.history.ClearInFlight(ctx, account); err != nil {
				c.syncFailed(tb, account, "clear_in_flight", err)
			}
		}}
	}

	c.restore(m.inFlight)
	c.lastAction = actionPlace
	return c.liftReset(m.details)
}

// restore rebuilds the bet of a previous session in AwaitingReveal
func (c *LifecycleController) restore(inFlight *models.InFlightBet) {
	c.bet = models.Bet{Phase: models.PhaseAwaitingReveal, AmountRequested: decimal.Zero}
	if inFlight != nil {
		c.bet.Choice = inFlight.Choice
		c.bet.AmountRequested = inFlight.Amount
		c.bet.IsFreeBet = inFlight.IsFree
		c.bet.TxHash = inFlight.TxHash
	}
}

// revealLanded reports whether a settleBet sent by an earlier session was
// mined for the bet recorded in inFlight
func (c *LifecycleController) revealLanded(inFlight *models.InFlightBet, d models.BetDetails) bool {
	if inFlight.RevealTxHash == "" || !d.IsSettled {
		return false
	}
	if d.PlacedAtTimestamp == 0 || d.PlacedAtTimestamp <= c.lastResetAt {
		return false
	}
	return inFlight.PlacedAt == 0 || inFlight.PlacedAt == d.PlacedAtTimestamp
}

// liftReset moves the reset marker below the bet a resume found live on
// chain. Markers written by older sessions can cover it; its settlement must
// not be filtered as stale.
func (c *LifecycleController) liftReset(d models.BetDetails) []effect {
	if d.IsSettled || d.PlacedAtTimestamp == 0 || d.PlacedAtTimestamp > c.lastResetAt {
		return nil
	}
	c.lastResetAt = d.PlacedAtTimestamp - 1
	account := c.account.Hex()
	resetAt := time.Unix(int64(c.lastResetAt), 0)

	log.WithFields(log.Fields{
		"account":  account,
		"placedAt": d.PlacedAtTimestamp,
	}).Warn("Reset marker covered a live bet, moving it back")

	return []effect{func(ctx context.Context, tb *events.TransactionalBus) {
		if err := c.history.SetForceReset(ctx, account, resetAt); err != nil {
			c.syncFailed(tb, account, "store_reset", err)
		}
	}}
}

func (c *LifecycleController) onPendingStatus(status models.PendingBetStatus) {
	// A read showing the bet on chain confirms the place even if the
	// receipt wait is still running
	if c.bet.Phase == models.PhaseAwaitingConfirmation && status.HasActiveBet {
		c.bet.Phase = models.PhaseAwaitingReveal
	}
}

func (c *LifecycleController) onBetDetails(d models.BetDetails) []effect {
	msg := BetDetailsRead{Details: d}
	if d.PlacedAtTimestamp <= c.lastResetAt {
		c.ignore(msg, "placed before last reset")
		return nil
	}

	active := c.bet.Phase == models.PhaseAwaitingReveal || c.bet.Phase == models.PhaseRevealing
	if !active {
		return nil
	}
	if !d.IsSettled {
		c.placedAt = d.PlacedAtTimestamp
		return nil
	}
	if c.lastAction != actionSettle {
		c.ignore(msg, "settled details without a reveal")
		return nil
	}
	return c.settle(d.PlacedAtTimestamp, WeiToEther(d.AmountWei), d.PlayerWon)
}

func (c *LifecycleController) onBetPlacedLog(m BetPlacedLog) {
	if m.Player != c.account || !c.seen.TryClaim(m.EventID) {
		return
	}
	if c.bet.Phase == models.PhaseAwaitingConfirmation {
		c.bet.Phase = models.PhaseAwaitingReveal
	}
}

func (c *LifecycleController) onBetSettledLog(m BetSettledLog) []effect {
	if m.Player != c.account || !c.seen.TryClaim(m.EventID) {
		return nil
	}
	active := c.bet.Phase == models.PhaseAwaitingReveal || c.bet.Phase == models.PhaseRevealing
	if !active || c.lastAction != actionSettle {
		c.ignore(m, "no reveal in flight")
		return nil
	}

	placedAt := c.placedAt
	if placedAt == 0 {
		placedAt = c.reader.Details().PlacedAtTimestamp
	}
	if placedAt == 0 || placedAt <= c.lastResetAt {
		c.ignore(m, "unknown or stale bet")
		return nil
	}
	return c.settle(placedAt, WeiToEther(m.Amount), m.Won)
}

func (c *LifecycleController) onBetRefundedLog(m BetRefundedLog, tb *events.TransactionalBus) []effect {
	if m.Player != c.account || !c.seen.TryClaim(m.EventID) {
		return nil
	}

	if c.placedAt > c.lastResetAt {
		c.lastResetAt = c.placedAt
	}
	c.bet = models.Bet{Phase: models.PhaseIdle, RefundReason: m.Reason}
	c.lastAction = actionNone
	c.placedAt = 0

	account := c.account.Hex()
	// other processes of the same player see the same log; one of them
	// announces it
	if c.dedup.TryClaim(m.EventID) {
		tb.Publish(events.BetRefundedEvent{
			Account: account,
			Amount:  WeiToEther(m.Amount),
			Reason:  m.Reason,
		})
	}
	log.WithFields(log.Fields{
		"account": account,
		"reason":  m.Reason,
	}).Warn("Bet refunded by contract")

	return []effect{func(ctx context.Context, tb *events.TransactionalBus) {
		if err := c.history.ClearInFlight(ctx, account); err != nil {
			c.syncFailed(tb, account, "clear_in_flight", err)
		}
	}}
}

// settle moves the bet to Settled. Downstream effects run only for the first
// claim of the settlement id.
func (c *LifecycleController) settle(placedAt uint64, raw decimal.Decimal, won bool) []effect {
	account := c.account.Hex()
	betID := SettlementID(account, placedAt)

	amount := DisplayAmount(raw, c.bet.IsFreeBet)
	if amount.IsZero() && !c.bet.AmountRequested.IsZero() {
		amount = NormalizeAmount(c.bet.AmountRequested)
	}
	entry := models.BetHistoryEntry{
		Result:        models.ResultFor(won),
		DisplayAmount: amount,
		Timestamp:     c.now().UTC(),
		IsFree:        c.bet.IsFreeBet,
		Choice:        c.bet.Choice,
	}

	c.bet.Phase = models.PhaseSettled
	c.bet.RevealRejected = false
	c.placedAt = placedAt

	if !c.dedup.TryClaim(betID) {
		log.WithFields(log.Fields{
			"account": account,
			"betID":   betID,
		}).Debug("Settlement already claimed")
		return nil
	}

	record := models.BetRecord{
		PlayerAddress: account,
		WagerAmount:   amount.InexactFloat64(),
		IsWin:         &won,
		PlacedAt:      placedAt,
	}

	return []effect{func(ctx context.Context, tb *events.TransactionalBus) {
		if err := c.history.Append(ctx, account, entry); err != nil {
			c.syncFailed(tb, account, "append_history", err)
		}
		if err := c.history.ClearInFlight(ctx, account); err != nil {
			c.syncFailed(tb, account, "clear_in_flight", err)
		}
		if c.stats != nil {
			c.stats.ApplyOptimisticDelta(ctx, amount, won)
		}

		tb.Publish(events.BetSettledEvent{
			Account:   account,
			BetID:     betID,
			Entry:     entry,
			AmountRaw: raw,
			PlacedAt:  placedAt,
		})

		c.recordBet(ctx, tb, betID, record)

		if c.stats != nil {
			if err := c.stats.Refresh(ctx, true); err != nil {
				c.syncFailed(tb, account, "refresh_stats", err)
			}
		}
	}}
}

// recordBet posts one settlement to the backend unless it was already
// recorded. Failures are queued for RetryUnrecorded.
func (c *LifecycleController) recordBet(ctx context.Context, tb *events.TransactionalBus, betID string, record models.BetRecord) {
	if c.backend == nil {
		return
	}

	recorded, err := c.history.IsRecorded(ctx, betID)
	if err != nil {
		c.syncFailed(tb, record.PlayerAddress, "check_recorded", err)
	}
	if recorded {
		c.dropUnrecorded(ctx, tb, betID)
		return
	}

	if err := c.backend.RecordBet(ctx, record); err != nil {
		c.mu.Lock()
		c.unrecorded[betID] = record
		c.mu.Unlock()
		c.syncFailed(tb, record.PlayerAddress, "record_bet", err)
		if err := c.history.QueueUnrecorded(ctx, betID, record); err != nil {
			c.syncFailed(tb, record.PlayerAddress, "queue_unrecorded", err)
		}
		return
	}

	if err := c.history.MarkRecorded(ctx, betID); err != nil {
		c.syncFailed(tb, record.PlayerAddress, "mark_recorded", err)
	}
	c.dropUnrecorded(ctx, tb, betID)

	log.WithFields(log.Fields{
		"account": record.PlayerAddress,
		"betID":   betID,
	}).Info("Recorded bet with backend")
}

func (c *LifecycleController) dropUnrecorded(ctx context.Context, tb *events.TransactionalBus, betID string) {
	c.mu.Lock()
	_, queued := c.unrecorded[betID]
	delete(c.unrecorded, betID)
	c.mu.Unlock()

	if !queued {
		return
	}
	if err := c.history.DropUnrecorded(ctx, betID); err != nil {
		c.syncFailed(tb, accountOfBetID(betID), "drop_unrecorded", err)
	}
}

// RetryUnrecorded re-sends settlements whose backend recording failed
func (c *LifecycleController) RetryUnrecorded(ctx context.Context) {
	c.mu.Lock()
	pending := make(map[string]models.BetRecord, len(c.unrecorded))
	for id, rec := range c.unrecorded {
		pending[id] = rec
	}
	c.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	tb := events.NewTransactionalBus(c.bus)
	for id, rec := range pending {
		c.recordBet(ctx, tb, id, rec)
	}
	tb.Flush(ctx)
}

// UnrecordedCount returns the number of settlements awaiting a backend retry
func (c *LifecycleController) UnrecordedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unrecorded)
}

func (c *LifecycleController) syncFailedNow(ctx context.Context, account, operation string, err error) {
	tb := events.NewTransactionalBus(c.bus)
	c.syncFailed(tb, account, operation, err)
	tb.Flush(ctx)
}

func (c *LifecycleController) syncFailed(tb *events.TransactionalBus, account, operation string, err error) {
	log.WithFields(log.Fields{
		"account":   account,
		"operation": operation,
		"error":     err,
	}).Error("Sync operation failed")
	tb.Publish(events.SyncFailedEvent{Account: account, Operation: operation, Err: err})
}

// Connect binds the controller to account and initializes it. Switching
// accounts drops all in-memory state of the previous one.
func (c *LifecycleController) Connect(ctx context.Context, account common.Address) error {
	c.mu.Lock()
	c.account = account
	c.connected = true
	c.bet = models.Bet{Phase: models.PhaseIdle}
	c.lastAction = actionNone
	c.lastResetAt = 0
	c.placedAt = 0
	c.unrecorded = make(map[string]models.BetRecord)
	c.mu.Unlock()

	c.reader.Reset()
	if c.stats != nil {
		c.stats.SetAccount(account.Hex())
	}
	return c.Initialize(ctx)
}

// Disconnect forgets the connected account
func (c *LifecycleController) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.account = common.Address{}
	c.bet = models.Bet{Phase: models.PhaseIdle}
	c.lastAction = actionNone
	c.placedAt = 0
}

// Initialize reads contract state and resumes an in-progress bet
func (c *LifecycleController) Initialize(ctx context.Context) error {
	account, ok := c.Account()
	if !ok {
		return ErrWalletNotConnected
	}

	if err := c.reader.RefetchAll(ctx, account); err != nil {
		log.WithFields(log.Fields{
			"account": account.Hex(),
			"error":   err,
		}).Warn("Initial contract read incomplete")
	}

	marker, err := c.history.ForceReset(ctx, account.Hex())
	if err != nil {
		return fmt.Errorf("failed to load reset marker: %w", err)
	}
	if marker.Active {
		c.mu.Lock()
		if resetAt := uint64(marker.Timestamp.Unix()); resetAt > c.lastResetAt {
			c.lastResetAt = resetAt
		}
		c.mu.Unlock()
	}

	inFlight, err := c.history.LoadInFlight(ctx, account.Hex())
	if err != nil {
		return fmt.Errorf("failed to load in-flight bet: %w", err)
	}

	queued, err := c.history.LoadUnrecorded(ctx, account.Hex())
	if err != nil {
		return fmt.Errorf("failed to load unrecorded bets: %w", err)
	}
	if len(queued) > 0 {
		c.mu.Lock()
		for id, rec := range queued {
			c.unrecorded[id] = rec
		}
		c.mu.Unlock()
		log.WithFields(log.Fields{
			"account": account.Hex(),
			"count":   len(queued),
		}).Info("Loaded settlements awaiting backend recording")
	}

	resume := resumeChecked{
		status:   c.reader.PendingStatus(),
		details:  c.reader.Details(),
		inFlight: inFlight,
	}
	if err := c.Dispatch(ctx, resume); err != nil {
		return err
	}
	if err := c.Dispatch(ctx, BetDetailsRead{Details: c.reader.Details()}); err != nil {
		return err
	}

	if c.stats != nil {
		if err := c.stats.RestorePending(ctx); err != nil {
			c.syncFailedNow(ctx, account.Hex(), "load_pending_points", err)
		}
		if err := c.stats.Refresh(ctx, false); err != nil {
			c.syncFailedNow(ctx, account.Hex(), "refresh_stats", err)
		}
	}
	return nil
}

// PlaceBet submits placeBet(choice) with amount plus the Pyth fee
func (c *LifecycleController) PlaceBet(ctx context.Context, choice models.Choice, amount decimal.Decimal) error {
	account, ok := c.Account()
	if !ok {
		return ErrWalletNotConnected
	}
	if len(c.reader.AllowedAmounts()) == 0 {
		c.reader.RefetchAllowedAmounts(ctx)
	}
	c.reader.RefetchPendingStatus(ctx, account)

	if err := c.Dispatch(ctx, placeRequested{choice: choice, amount: amount}); err != nil {
		return err
	}

	fee, err := c.reader.RefetchPythFee(ctx)
	if err != nil {
		c.Dispatch(ctx, txFailed{kind: txPlace, err: err})
		return err
	}
	value := new(big.Int).Add(EtherToWei(amount), fee)

	return c.submit(ctx, txPlace, ContractCall{
		Method: "placeBet",
		Args:   []interface{}{uint8(choice)},
		Value:  value,
	})
}

// PlaceFreeBet submits placeFreeBet(choice); only the Pyth fee is paid
func (c *LifecycleController) PlaceFreeBet(ctx context.Context, choice models.Choice) error {
	account, ok := c.Account()
	if !ok {
		return ErrWalletNotConnected
	}
	c.reader.RefetchFreeBetStatus(ctx, account)
	c.reader.RefetchPendingStatus(ctx, account)

	if err := c.Dispatch(ctx, placeRequested{choice: choice, free: true}); err != nil {
		return err
	}

	fee, err := c.reader.RefetchPythFee(ctx)
	if err != nil {
		c.Dispatch(ctx, txFailed{kind: txFreePlace, err: err})
		return err
	}

	if err := c.submit(ctx, txFreePlace, ContractCall{
		Method: "placeFreeBet",
		Args:   []interface{}{uint8(choice)},
		Value:  fee,
	}); err != nil {
		return err
	}
	if err := c.history.SetFreeBetNoticeDismissed(ctx, account.Hex(), true); err != nil {
		c.syncFailedNow(ctx, account.Hex(), "dismiss_free_bet_notice", err)
	}
	return nil
}

// FreeBetNotice reports whether the player should be told about an unused
// free bet. The notice is shown until dismissed or the free bet is used.
func (c *LifecycleController) FreeBetNotice(ctx context.Context) (bool, error) {
	account, ok := c.Account()
	if !ok {
		return false, ErrWalletNotConnected
	}
	snap := c.reader.Snapshot()
	if !snap.Whitelisted || snap.UsedFreeBet {
		return false, nil
	}
	dismissed, err := c.history.FreeBetNoticeDismissed(ctx, account.Hex())
	if err != nil {
		return false, err
	}
	return !dismissed, nil
}

// DismissFreeBetNotice stops the free-bet notice for the connected account
func (c *LifecycleController) DismissFreeBetNotice(ctx context.Context) error {
	account, ok := c.Account()
	if !ok {
		return ErrWalletNotConnected
	}
	return c.history.SetFreeBetNoticeDismissed(ctx, account.Hex(), true)
}

// RevealResults submits settleBet once the reveal window is open
func (c *LifecycleController) RevealResults(ctx context.Context) error {
	account, ok := c.Account()
	if !ok {
		return ErrWalletNotConnected
	}
	c.reader.RefetchPendingStatus(ctx, account)

	if err := c.Dispatch(ctx, revealRequested{}); err != nil {
		return err
	}

	return c.submit(ctx, txSettle, ContractCall{Method: "settleBet"})
}

// PlayAgain resets to Idle. History is kept. A bet still pending on chain
// cannot be abandoned; it has to be revealed.
func (c *LifecycleController) PlayAgain(ctx context.Context) error {
	if account, ok := c.Account(); ok {
		c.reader.RefetchPendingStatus(ctx, account)
	}
	return c.Dispatch(ctx, resetRequested{at: c.now()})
}

// submit runs one write through the wallet, feeding each result back in as a
// message. The state lock is never held while waiting on the wallet.
func (c *LifecycleController) submit(ctx context.Context, kind txKind, call ContractCall) error {
	hash, err := c.wallet.Submit(ctx, call)
	if err != nil {
		wrapped := fmt.Errorf("%w: %s: %w", ErrTxFailed, call.Method, err)
		c.Dispatch(ctx, txFailed{kind: kind, err: wrapped})
		return wrapped
	}
	c.Dispatch(ctx, txSubmitted{kind: kind, hash: hash})

	log.WithFields(log.Fields{
		"method": call.Method,
		"txHash": hash.Hex(),
	}).Info("Transaction submitted, waiting for receipt")

	if err := c.wallet.WaitReceipt(ctx, hash); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// the transaction may still be mined; the next session resumes it
			return err
		}
		wrapped := fmt.Errorf("%w: %s: %w", ErrTxFailed, call.Method, err)
		c.Dispatch(ctx, txFailed{kind: kind, err: wrapped})
		return wrapped
	}
	c.Dispatch(ctx, txConfirmed{kind: kind, hash: hash})

	if err := c.RefreshReads(ctx); err != nil {
		log.WithFields(log.Fields{
			"method": call.Method,
			"error":  err,
		}).Warn("Post-confirmation refetch failed")
	}
	return nil
}

// RefreshReads refetches pending status and bet details and feeds both
// through Dispatch
func (c *LifecycleController) RefreshReads(ctx context.Context) error {
	account, ok := c.Account()
	if !ok {
		return ErrWalletNotConnected
	}

	status, statusErr := c.reader.RefetchPendingStatus(ctx, account)
	if statusErr == nil {
		c.Dispatch(ctx, PendingStatusRead{Status: status})
	}
	details, detailsErr := c.reader.RefetchBetDetails(ctx, account)
	if detailsErr == nil {
		c.Dispatch(ctx, BetDetailsRead{Details: details})
	}
	return errors.Join(statusErr, detailsErr)
}
