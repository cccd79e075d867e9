package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"coinflip/bot/common"
	"coinflip/events"
	"coinflip/models"
	"coinflip/service"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// wagerChoices are the amounts offered by /flip
var wagerChoices = []string{"0.25", "0.5", "1", "2"}

// Config holds bot configuration
type Config struct {
	Token     string
	ChannelID string
	GuildID   string // empty registers global commands
}

// Lifecycle is the part of the lifecycle controller the bot drives
type Lifecycle interface {
	State() service.LifecycleState
	PlaceBet(ctx context.Context, choice models.Choice, amount decimal.Decimal) error
	PlaceFreeBet(ctx context.Context, choice models.Choice) error
	RevealResults(ctx context.Context) error
	PlayAgain(ctx context.Context) error
	FreeBetNotice(ctx context.Context) (bool, error)
	DismissFreeBetNotice(ctx context.Context) error
}

// StatsReader provides local stats and the leaderboard
type StatsReader interface {
	Stats() models.UserStats
	Leaderboard(ctx context.Context, query models.LeaderboardQuery) (*models.LeaderboardPage, error)
}

// HistoryReader provides the per-account bet history
type HistoryReader interface {
	Load(ctx context.Context, account string) ([]models.BetHistoryEntry, error)
}

// Session is the part of *discordgo.Session used to answer commands
type Session interface {
	common.Responder
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Bot serves slash commands for the connected player and posts lifecycle
// notifications to a channel
type Bot struct {
	config    Config
	session   *discordgo.Session
	lifecycle Lifecycle
	stats     StatsReader
	history   HistoryReader

	// ctx bounds command work that outlives the interaction
	ctx context.Context
	wg  sync.WaitGroup
}

func newBot(ctx context.Context, config Config, lifecycle Lifecycle, stats StatsReader, history HistoryReader) *Bot {
	return &Bot{
		config:    config,
		lifecycle: lifecycle,
		stats:     stats,
		history:   history,
		ctx:       ctx,
	}
}

// New opens a Discord session, registers the slash commands and subscribes
// the channel notifier to bus
func New(ctx context.Context, config Config, lifecycle Lifecycle, stats StatsReader, history HistoryReader, bus *events.Bus) (*Bot, error) {
	dg, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds

	bot := newBot(ctx, config, lifecycle, stats, history)
	bot.session = dg

	dg.AddHandler(bot.handleCommands)

	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}

	if err := bot.registerCommands(); err != nil {
		dg.Close()
		return nil, fmt.Errorf("error registering commands: %w", err)
	}

	NewNotifier(dg, config.ChannelID).Subscribe(bus)
	log.WithFields(log.Fields{
		"channelID": config.ChannelID,
	}).Info("Discord bot connected")

	return bot, nil
}

// Close waits for running commands and closes the session
func (b *Bot) Close() error {
	b.wg.Wait()
	if b.session == nil {
		return nil
	}
	return b.session.Close()
}

func (b *Bot) handleCommands(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.route(s, i)
}

func (b *Bot) route(s Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	switch data.Name {
	case "flip":
		b.handleFlip(s, i, data.Options)
	case "freebet":
		b.handleFreeBet(s, i, data.Options)
	case "reveal":
		b.runAction(s, i, "reveal", "Reveal confirmed. Watch the channel for the result.", b.lifecycle.RevealResults)
	case "playagain":
		b.handlePlayAgain(s, i)
	case "status":
		b.handleStatus(s, i)
	case "history":
		b.handleHistory(s, i)
	case "leaderboard":
		b.handleLeaderboard(s, i, data.Options)
	}
}

func optionString(options []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

func optionInt(options []*discordgo.ApplicationCommandInteractionDataOption, name string) int64 {
	for _, opt := range options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionInteger {
			return opt.IntValue()
		}
	}
	return 0
}

func (b *Bot) handleFlip(s Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	choice, err := models.ParseChoice(optionString(options, "choice"))
	if err != nil {
		common.RespondWithError(s, i, "Pick Heads or Tails.")
		return
	}
	amount, err := decimal.NewFromString(optionString(options, "amount"))
	if err != nil {
		common.RespondWithError(s, i, "Invalid amount.")
		return
	}

	b.runAction(s, i, "flip", fmt.Sprintf("Bet of %s on %s confirmed.", common.FormatAmount(amount), choice),
		func(ctx context.Context) error {
			return b.lifecycle.PlaceBet(ctx, choice, amount)
		})
}

func (b *Bot) handleFreeBet(s Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	choice, err := models.ParseChoice(optionString(options, "choice"))
	if err != nil {
		common.RespondWithError(s, i, "Pick Heads or Tails.")
		return
	}

	b.runAction(s, i, "freebet", fmt.Sprintf("Free bet on %s confirmed.", choice),
		func(ctx context.Context) error {
			return b.lifecycle.PlaceFreeBet(ctx, choice)
		})
}

func (b *Bot) handlePlayAgain(s Session, i *discordgo.InteractionCreate) {
	if err := b.lifecycle.PlayAgain(b.ctx); err != nil {
		common.RespondWithError(s, i, userMessage(err))
		return
	}
	if err := common.RespondWithSuccess(s, i, "Ready for a new bet.", true); err != nil {
		log.Errorf("Error responding to playagain command: %v", err)
	}
}

func (b *Bot) handleStatus(s Session, i *discordgo.InteractionCreate) {
	state := b.lifecycle.State()
	if !state.Connected {
		common.RespondWithError(s, i, userMessage(service.ErrWalletNotConnected))
		return
	}
	embed := buildStatusEmbed(state.DisplayPhase, state.Bet, b.stats.Stats())

	notice, err := b.lifecycle.FreeBetNotice(b.ctx)
	if err != nil {
		log.WithFields(log.Fields{
			"account": state.Account.Hex(),
			"error":   err,
		}).Warn("Failed to check free bet notice")
	}
	if notice {
		addFreeBetNotice(embed)
	}
	if err := common.RespondWithEmbed(s, i, embed, true); err != nil {
		log.Errorf("Error responding to status command: %v", err)
		return
	}

	// shown once
	if notice {
		if err := b.lifecycle.DismissFreeBetNotice(b.ctx); err != nil {
			log.WithFields(log.Fields{
				"account": state.Account.Hex(),
				"error":   err,
			}).Warn("Failed to dismiss free bet notice")
		}
	}
}

func (b *Bot) handleHistory(s Session, i *discordgo.InteractionCreate) {
	state := b.lifecycle.State()
	if !state.Connected {
		common.RespondWithError(s, i, userMessage(service.ErrWalletNotConnected))
		return
	}
	entries, err := b.history.Load(b.ctx, state.Account.Hex())
	if err != nil {
		log.WithFields(log.Fields{
			"account": state.Account.Hex(),
			"error":   err,
		}).Error("Failed to load bet history")
		common.RespondWithError(s, i, "Unable to load history. Please try again.")
		return
	}
	if err := common.RespondWithEmbed(s, i, buildHistoryEmbed(entries), true); err != nil {
		log.Errorf("Error responding to history command: %v", err)
	}
}

func (b *Bot) handleLeaderboard(s Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	query := models.LeaderboardQuery{
		Page:   int(optionInt(options, "page")),
		SortBy: optionString(options, "sort"),
	}
	if state := b.lifecycle.State(); state.Connected {
		query.PlayerAddress = state.Account.Hex()
	}

	page, err := b.stats.Leaderboard(b.ctx, query)
	if err != nil {
		log.WithFields(log.Fields{
			"page":  query.Page,
			"error": err,
		}).Error("Failed to fetch leaderboard")
		common.RespondWithError(s, i, "Unable to load the leaderboard. Please try again.")
		return
	}
	if err := common.RespondWithEmbed(s, i, buildLeaderboardEmbed(page), false); err != nil {
		log.Errorf("Error responding to leaderboard command: %v", err)
	}
}

// runAction defers the interaction and runs a contract write in the
// background. Writes block until the receipt arrives, well past Discord's
// initial response deadline.
func (b *Bot) runAction(s Session, i *discordgo.InteractionCreate, name, success string, action func(ctx context.Context) error) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Errorf("Error deferring %s command: %v", name, err)
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		content := "✅ " + success
		if err := action(b.ctx); err != nil {
			log.WithFields(log.Fields{
				"command": name,
				"error":   err,
			}).Warn("Command failed")
			content = "❌ " + userMessage(err)
		}

		_, err := s.FollowupMessageCreate(i.Interaction, false, &discordgo.WebhookParams{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		})
		if err != nil {
			log.Errorf("Error sending %s follow-up: %v", name, err)
		}
	}()
}

var userMessages = []struct {
	err error
	msg string
}{
	{service.ErrWalletNotConnected, "No wallet is connected."},
	{service.ErrNoChoice, "Pick Heads or Tails."},
	{service.ErrAmountNotAllowed, "That amount is not an allowed bet size."},
	{service.ErrActiveBetPending, "You already have an active bet. Reveal it first."},
	{service.ErrNotWhitelisted, "This account is not whitelisted for a free bet."},
	{service.ErrFreeBetUsed, "The free bet has already been used."},
	{service.ErrRevealNotReady, "The reveal window has not opened yet. Try again in a few blocks."},
	{service.ErrInvalidPhase, "That action is not available right now. Check /status."},
	{context.Canceled, "The client is shutting down. The bet will resume on restart."},
}

// userMessage maps lifecycle errors onto player-facing text
func userMessage(err error) string {
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	if errors.Is(err, service.ErrTxFailed) {
		return "Transaction failed: " + err.Error()
	}
	return "Unable to process request. Please try again."
}
