package events

import (
	"context"
	"sync"

	"coinflip/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypePhaseChanged EventType = "phase_changed"
	EventTypeBetSettled   EventType = "bet_settled"
	EventTypeBetRefunded  EventType = "bet_refunded"
	EventTypeSyncFailed   EventType = "sync_failed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// PhaseChangedEvent is emitted on every lifecycle transition
type PhaseChangedEvent struct {
	Account  string
	OldPhase models.Phase
	NewPhase models.Phase
	TxHash   string
	Err      error
}

func (e PhaseChangedEvent) Type() EventType {
	return EventTypePhaseChanged
}

// BetSettledEvent represents a settlement that was claimed and recorded locally
type BetSettledEvent struct {
	Account   string
	BetID     string
	Entry     models.BetHistoryEntry
	AmountRaw decimal.Decimal
	PlacedAt  uint64
}

func (e BetSettledEvent) Type() EventType {
	return EventTypeBetSettled
}

// BetRefundedEvent represents a bet the contract refunded
type BetRefundedEvent struct {
	Account string
	Amount  decimal.Decimal
	Reason  string
}

func (e BetRefundedEvent) Type() EventType {
	return EventTypeBetRefunded
}

// SyncFailedEvent represents a failed backend call. It never affects the lifecycle.
type SyncFailedEvent struct {
	Account   string
	Operation string
	Err       error
}

func (e SyncFailedEvent) Type() EventType {
	return EventTypeSyncFailed
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	wg       sync.WaitGroup
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	// Call handlers asynchronously to avoid blocking the lifecycle
	for i, handler := range handlers {
		b.wg.Add(1)
		go func(h Handler, handlerIndex int) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// Wait blocks until every handler started so far has returned
func (b *Bus) Wait() {
	b.wg.Wait()
}

// TransactionalBus holds events produced by one lifecycle transition until
// the state lock is released. Flushes to the underlying event bus.
type TransactionalBus struct {
	real    *Bus
	pending []Event // stashed until Flush
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Pending returns the queued events without clearing them
func (b *TransactionalBus) Pending() []Event {
	out := make([]Event, len(b.pending))
	copy(out, b.pending)
	return out
}

// called once the transition has been committed to controller state
func (b *TransactionalBus) Flush(ctx context.Context) error {
	log.WithFields(log.Fields{
		"pendingEventCount": len(b.pending),
	}).Debug("Flushing pending events from transactional bus")

	// Handlers outlive the command that triggered them
	eventCtx := context.WithoutCancel(ctx)

	for _, ev := range b.pending {
		if b.real != nil {
			b.real.Emit(eventCtx, ev)
		}
	}
	b.pending = nil
	return nil
}

// called when a transition is abandoned
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
