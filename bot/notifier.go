package bot

import (
	"context"

	"coinflip/events"
	"coinflip/models"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// MessageSender is the part of *discordgo.Session the notifier posts through
type MessageSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts lifecycle events to a Discord channel
type Notifier struct {
	sender    MessageSender
	channelID string
}

// NewNotifier creates a notifier posting to channelID
func NewNotifier(sender MessageSender, channelID string) *Notifier {
	return &Notifier{sender: sender, channelID: channelID}
}

// Subscribe registers the notifier's handlers on bus
func (n *Notifier) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.EventTypePhaseChanged, n.handlePhaseChanged)
	bus.Subscribe(events.EventTypeBetSettled, n.handleBetSettled)
	bus.Subscribe(events.EventTypeBetRefunded, n.handleBetRefunded)
	bus.Subscribe(events.EventTypeSyncFailed, n.handleSyncFailed)
}

// notablePhase filters out the short-lived transitions that would only spam
// the channel
func notablePhase(e events.PhaseChangedEvent) bool {
	if e.Err != nil {
		return true
	}
	switch e.NewPhase {
	case models.PhaseAwaitingReveal, models.PhaseRejected:
		return true
	}
	return false
}

func (n *Notifier) handlePhaseChanged(ctx context.Context, event events.Event) {
	e, ok := event.(events.PhaseChangedEvent)
	if !ok || !notablePhase(e) {
		return
	}
	n.send(buildPhaseEmbed(e), event.Type())
}

func (n *Notifier) handleBetSettled(ctx context.Context, event events.Event) {
	if e, ok := event.(events.BetSettledEvent); ok {
		n.send(buildSettledEmbed(e), event.Type())
	}
}

func (n *Notifier) handleBetRefunded(ctx context.Context, event events.Event) {
	if e, ok := event.(events.BetRefundedEvent); ok {
		n.send(buildRefundEmbed(e), event.Type())
	}
}

func (n *Notifier) handleSyncFailed(ctx context.Context, event events.Event) {
	if e, ok := event.(events.SyncFailedEvent); ok {
		n.send(buildSyncFailedEmbed(e), event.Type())
	}
}

func (n *Notifier) send(embed *discordgo.MessageEmbed, eventType events.EventType) {
	if _, err := n.sender.ChannelMessageSendEmbed(n.channelID, embed); err != nil {
		log.WithFields(log.Fields{
			"channelID": n.channelID,
			"eventType": eventType,
			"error":     err,
		}).Error("Failed to send Discord notification")
	}
}
