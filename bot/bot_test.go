package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"coinflip/models"
	"coinflip/service"

	"github.com/bwmarrin/discordgo"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLifecycle struct {
	mock.Mock
}

func (m *mockLifecycle) State() service.LifecycleState {
	return m.Called().Get(0).(service.LifecycleState)
}

func (m *mockLifecycle) PlaceBet(ctx context.Context, choice models.Choice, amount decimal.Decimal) error {
	return m.Called(ctx, choice, amount).Error(0)
}

func (m *mockLifecycle) PlaceFreeBet(ctx context.Context, choice models.Choice) error {
	return m.Called(ctx, choice).Error(0)
}

func (m *mockLifecycle) RevealResults(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockLifecycle) PlayAgain(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockLifecycle) FreeBetNotice(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockLifecycle) DismissFreeBetNotice(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockStats struct {
	mock.Mock
}

func (m *mockStats) Stats() models.UserStats {
	return m.Called().Get(0).(models.UserStats)
}

func (m *mockStats) Leaderboard(ctx context.Context, query models.LeaderboardQuery) (*models.LeaderboardPage, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LeaderboardPage), args.Error(1)
}

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) Load(ctx context.Context, account string) ([]models.BetHistoryEntry, error) {
	args := m.Called(ctx, account)
	return args.Get(0).([]models.BetHistoryEntry), args.Error(1)
}

// recordingSession captures interaction responses and follow-ups
type recordingSession struct {
	mu        sync.Mutex
	responses []*discordgo.InteractionResponse
	followups []*discordgo.WebhookParams
}

func (s *recordingSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp)
	return nil
}

func (s *recordingSession) FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followups = append(s.followups, data)
	return &discordgo.Message{}, nil
}

var testPlayer = common.HexToAddress("0x00000000000000000000000000000000000000A1")

func command(name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		Data: discordgo.ApplicationCommandInteractionData{Name: name, Options: options},
	}}
}

func stringOpt(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: value}
}

func connectedState(phase models.Phase) service.LifecycleState {
	return service.LifecycleState{
		Account:      testPlayer,
		Connected:    true,
		DisplayPhase: phase,
		Bet: models.Bet{
			Phase:           phase,
			Choice:          models.ChoiceTails,
			AmountRequested: decimal.RequireFromString("1"),
		},
	}
}

type botHarness struct {
	bot       *Bot
	session   *recordingSession
	lifecycle *mockLifecycle
	stats     *mockStats
	history   *mockHistory
}

func newBotHarness(t *testing.T) *botHarness {
	t.Helper()
	h := &botHarness{
		session:   &recordingSession{},
		lifecycle: new(mockLifecycle),
		stats:     new(mockStats),
		history:   new(mockHistory),
	}
	h.bot = newBot(context.Background(), Config{ChannelID: "chan-1"}, h.lifecycle, h.stats, h.history)
	return h
}

func TestBot_FlipPlacesBet(t *testing.T) {
	h := newBotHarness(t)
	h.lifecycle.On("PlaceBet", mock.Anything, models.ChoiceHeads, mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(decimal.RequireFromString("0.5"))
	})).Return(nil).Once()

	h.bot.route(h.session, command("flip", stringOpt("choice", "Heads"), stringOpt("amount", "0.5")))
	h.bot.wg.Wait()

	h.lifecycle.AssertExpectations(t)
	require.Len(t, h.session.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, h.session.responses[0].Type)
	require.Len(t, h.session.followups, 1)
	assert.Equal(t, "✅ Bet of 0.5 ETH on Heads confirmed.", h.session.followups[0].Content)
}

func TestBot_FlipReportsLifecycleErrors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{service.ErrActiveBetPending, "You already have an active bet"},
		{service.ErrAmountNotAllowed, "not an allowed bet size"},
		{fmt.Errorf("%w: placeBet: %w", service.ErrTxFailed, errors.New("insufficient funds")), "insufficient funds"},
		{errors.New("rpc down"), "Unable to process request"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := newBotHarness(t)
			h.lifecycle.On("PlaceBet", mock.Anything, models.ChoiceTails, mock.Anything).Return(tt.err).Once()

			h.bot.route(h.session, command("flip", stringOpt("choice", "tails"), stringOpt("amount", "1")))
			h.bot.wg.Wait()

			require.Len(t, h.session.followups, 1)
			assert.Contains(t, h.session.followups[0].Content, tt.want)
			assert.Equal(t, discordgo.MessageFlagsEphemeral, h.session.followups[0].Flags)
		})
	}
}

func TestBot_FlipRejectsBadOptions(t *testing.T) {
	h := newBotHarness(t)

	h.bot.route(h.session, command("flip", stringOpt("choice", "edge"), stringOpt("amount", "1")))
	h.bot.route(h.session, command("flip", stringOpt("choice", "Heads"), stringOpt("amount", "lots")))
	h.bot.wg.Wait()

	h.lifecycle.AssertNotCalled(t, "PlaceBet", mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, h.session.responses, 2)
	assert.Equal(t, "❌ Pick Heads or Tails.", h.session.responses[0].Data.Content)
	assert.Equal(t, "❌ Invalid amount.", h.session.responses[1].Data.Content)
}

func TestBot_FreeBetAndReveal(t *testing.T) {
	h := newBotHarness(t)
	h.lifecycle.On("PlaceFreeBet", mock.Anything, models.ChoiceTails).Return(nil).Once()
	h.lifecycle.On("RevealResults", mock.Anything).Return(service.ErrRevealNotReady).Once()

	h.bot.route(h.session, command("freebet", stringOpt("choice", "Tails")))
	h.bot.wg.Wait()
	h.bot.route(h.session, command("reveal"))
	h.bot.wg.Wait()

	h.lifecycle.AssertExpectations(t)
	require.Len(t, h.session.followups, 2)
	assert.Equal(t, "✅ Free bet on Tails confirmed.", h.session.followups[0].Content)
	assert.Contains(t, h.session.followups[1].Content, "reveal window has not opened")
}

func TestBot_PlayAgain(t *testing.T) {
	h := newBotHarness(t)
	h.lifecycle.On("PlayAgain", mock.Anything).Return(nil).Once()
	h.lifecycle.On("PlayAgain", mock.Anything).Return(service.ErrInvalidPhase).Once()

	h.bot.route(h.session, command("playagain"))
	h.bot.route(h.session, command("playagain"))

	require.Len(t, h.session.responses, 2)
	assert.Equal(t, "✅ Ready for a new bet.", h.session.responses[0].Data.Content)
	assert.Contains(t, h.session.responses[1].Data.Content, "not available right now")
}

func TestBot_Status(t *testing.T) {
	h := newBotHarness(t)
	h.lifecycle.On("State").Return(connectedState(models.PhaseSettled)).Once()
	h.stats.On("Stats").Return(models.UserStats{Points: 1234, Wins: 3, Losses: 1, TotalWagered: decimal.RequireFromString("2.5")})
	h.lifecycle.On("FreeBetNotice", mock.Anything).Return(false, nil).Once()

	h.bot.route(h.session, command("status"))

	require.Len(t, h.session.responses, 1)
	embed := h.session.responses[0].Data.Embeds[0]
	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "Settled", embed.Fields[0].Value)
	assert.Equal(t, "1 ETH on Tails", embed.Fields[1].Value)
	assert.Contains(t, embed.Fields[2].Value, "1,234")
	require.NotNil(t, embed.Footer)
	assert.Contains(t, embed.Footer.Text, "/playagain")
	h.lifecycle.AssertNotCalled(t, "DismissFreeBetNotice", mock.Anything)
}

func TestBot_StatusFreeBetNoticeShownOnce(t *testing.T) {
	h := newBotHarness(t)
	h.lifecycle.On("State").Return(connectedState(models.PhaseIdle)).Twice()
	h.stats.On("Stats").Return(models.UserStats{TotalWagered: decimal.Zero})
	h.lifecycle.On("FreeBetNotice", mock.Anything).Return(true, nil).Once()
	h.lifecycle.On("DismissFreeBetNotice", mock.Anything).Return(nil).Once()
	h.lifecycle.On("FreeBetNotice", mock.Anything).Return(false, nil).Once()

	h.bot.route(h.session, command("status"))
	h.bot.route(h.session, command("status"))

	require.Len(t, h.session.responses, 2)
	first := h.session.responses[0].Data.Embeds[0]
	last := first.Fields[len(first.Fields)-1]
	assert.Contains(t, last.Name, "Free Bet")
	assert.Contains(t, last.Value, "/freebet")

	for _, field := range h.session.responses[1].Data.Embeds[0].Fields {
		assert.NotContains(t, field.Name, "Free Bet")
	}
	h.lifecycle.AssertExpectations(t)
}

func TestBot_StatusWithoutWallet(t *testing.T) {
	h := newBotHarness(t)
	h.lifecycle.On("State").Return(service.LifecycleState{}).Once()

	h.bot.route(h.session, command("status"))

	require.Len(t, h.session.responses, 1)
	assert.Equal(t, "❌ No wallet is connected.", h.session.responses[0].Data.Content)
	h.stats.AssertNotCalled(t, "Stats")
}

func TestBot_History(t *testing.T) {
	h := newBotHarness(t)
	h.lifecycle.On("State").Return(connectedState(models.PhaseIdle)).Once()
	h.history.On("Load", mock.Anything, testPlayer.Hex()).Return([]models.BetHistoryEntry{
		{Result: models.ResultWin, DisplayAmount: decimal.RequireFromString("2"), Timestamp: time.Unix(1700000200, 0), Choice: models.ChoiceHeads},
		{Result: models.ResultLose, DisplayAmount: decimal.RequireFromString("0.25"), Timestamp: time.Unix(1700000100, 0), Choice: models.ChoiceTails, IsFree: true},
	}, nil).Once()

	h.bot.route(h.session, command("history"))

	require.Len(t, h.session.responses, 1)
	desc := h.session.responses[0].Data.Embeds[0].Description
	assert.Equal(t, "✅ 2 ETH on Heads <t:1700000200:R>\n❌ 0.25 ETH on Tails <t:1700000100:R> (free)", desc)
}

func TestBot_Leaderboard(t *testing.T) {
	h := newBotHarness(t)
	h.lifecycle.On("State").Return(connectedState(models.PhaseIdle)).Once()
	h.stats.On("Leaderboard", mock.Anything, models.LeaderboardQuery{
		Page: 2, SortBy: "total_wagered", PlayerAddress: testPlayer.Hex(),
	}).Return(&models.LeaderboardPage{
		Data:       []models.PlayerStats{{PlayerAddress: "0xabc", TotalProfit: 1.5, TotalBets: 4}},
		Pagination: models.Pagination{Total: 11, Page: 2, Limit: 10, TotalPages: 2},
	}, nil).Once()

	h.bot.route(h.session, command("leaderboard",
		&discordgo.ApplicationCommandInteractionDataOption{Name: "page", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(2)},
		stringOpt("sort", "total_wagered"),
	))

	h.stats.AssertExpectations(t)
	require.Len(t, h.session.responses, 1)
	embed := h.session.responses[0].Data.Embeds[0]
	assert.Equal(t, "**11.** 0xabc • +1.5 ETH • 4 bets", embed.Description)
	assert.Equal(t, "Page 2 of 2", embed.Footer.Text)
}

func TestBot_IgnoresNonCommandInteractions(t *testing.T) {
	h := newBotHarness(t)
	h.bot.route(h.session, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Type: discordgo.InteractionPing}})
	assert.Empty(t, h.session.responses)
}

func TestCommandDefinitions(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range commandDefinitions() {
		names[cmd.Name] = true
	}
	for _, want := range []string{"flip", "freebet", "reveal", "playagain", "status", "history", "leaderboard"} {
		assert.True(t, names[want], want)
	}
}
