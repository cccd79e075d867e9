package bot

import (
	"fmt"
	"strings"
	"time"

	"coinflip/bot/common"
	"coinflip/events"
	"coinflip/models"

	"github.com/bwmarrin/discordgo"
)

// Discord color constants
const (
	ColorPrimary = 0x5865F2 // Discord blurple
	ColorSuccess = 0x57F287 // Green
	ColorDanger  = 0xED4245 // Red
	ColorWarning = 0xFEE75C // Yellow
)

var phaseLabels = map[models.Phase]string{
	models.PhaseIdle:                 "Idle",
	models.PhaseSubmitting:           "Submitting transaction",
	models.PhaseAwaitingConfirmation: "Waiting for confirmation",
	models.PhaseAwaitingReveal:       "Waiting for the reveal window",
	models.PhaseRevealing:            "Revealing",
	models.PhaseSettled:              "Settled",
	models.PhaseRejected:             "Reveal rejected",
}

func phaseLabel(p models.Phase) string {
	if label, ok := phaseLabels[p]; ok {
		return label
	}
	return string(p)
}

// buildPhaseEmbed describes a lifecycle transition
func buildPhaseEmbed(e events.PhaseChangedEvent) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "🪙 Coin Flip",
		Description: fmt.Sprintf("%s → **%s**", phaseLabel(e.OldPhase), phaseLabel(e.NewPhase)),
		Color:       ColorPrimary,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Player", Value: common.ShortHash(e.Account), Inline: true},
		},
	}
	if e.TxHash != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Transaction", Value: common.ShortHash(e.TxHash), Inline: true,
		})
	}

	switch {
	case e.Err != nil:
		embed.Color = ColorDanger
		embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Err.Error()}
	case e.NewPhase == models.PhaseAwaitingReveal:
		embed.Color = ColorWarning
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Use /reveal once the target block is reached"}
	}
	return embed
}

// buildSettledEmbed announces a settled bet
func buildSettledEmbed(e events.BetSettledEvent) *discordgo.MessageEmbed {
	details := fmt.Sprintf("• Bet: **%s** on %s", common.FormatAmount(e.Entry.DisplayAmount), e.Entry.Choice)
	if e.Entry.IsFree {
		details += " (free bet)"
	}

	embed := &discordgo.MessageEmbed{
		Color: ColorDanger,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Bet Details", Value: details, Inline: false},
			{Name: "Player", Value: common.ShortHash(e.Account), Inline: true},
		},
		Timestamp: e.Entry.Timestamp.UTC().Format(time.RFC3339),
	}
	if e.Entry.Result == models.ResultWin {
		embed.Description = "🎉 **WINNER!** 🎉"
		embed.Color = ColorSuccess
	} else {
		embed.Description = "**LOSE**"
	}
	return embed
}

// buildRefundEmbed announces a refunded bet
func buildRefundEmbed(e events.BetRefundedEvent) *discordgo.MessageEmbed {
	reason := e.Reason
	if reason == "" {
		reason = "no reason given"
	}
	return &discordgo.MessageEmbed{
		Title:       "↩️ Bet Refunded",
		Description: fmt.Sprintf("**%s** returned to %s", common.FormatAmount(e.Amount), common.ShortHash(e.Account)),
		Color:       ColorWarning,
		Footer:      &discordgo.MessageEmbedFooter{Text: reason},
	}
}

// buildSyncFailedEmbed reports a backend failure. The bet itself is unaffected.
func buildSyncFailedEmbed(e events.SyncFailedEvent) *discordgo.MessageEmbed {
	msg := "unknown error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return &discordgo.MessageEmbed{
		Title:       "⚠️ Stats sync failed",
		Description: fmt.Sprintf("`%s` failed for %s: %s", e.Operation, common.ShortHash(e.Account), msg),
		Color:       ColorWarning,
	}
}

// buildStatusEmbed shows the current bet and local stats
func buildStatusEmbed(phase models.Phase, bet models.Bet, stats models.UserStats) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Phase", Value: phaseLabel(phase), Inline: true},
	}
	if phase != models.PhaseIdle {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Bet",
			Value:  fmt.Sprintf("%s on %s", common.FormatAmount(bet.AmountRequested), bet.Choice),
			Inline: true,
		})
	}
	fields = append(fields, &discordgo.MessageEmbedField{
		Name: "Stats",
		Value: fmt.Sprintf("• Points: **%s**\n• Wins: %d / Losses: %d\n• Wagered: %s",
			common.FormatPoints(stats.Points), stats.Wins, stats.Losses, common.FormatAmount(stats.TotalWagered)),
		Inline: false,
	})

	embed := &discordgo.MessageEmbed{
		Title:  "🪙 Coin Flip Status",
		Color:  ColorPrimary,
		Fields: fields,
	}
	if phase.Terminal() {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Use /playagain to start a new bet"}
	}
	return embed
}

func addFreeBetNotice(embed *discordgo.MessageEmbed) {
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "🎁 Free Bet Available",
		Value: "You have a free 0.25 ETH bet. Use `/freebet` to claim it.",
	})
}

// buildHistoryEmbed lists recent settled bets, newest first
func buildHistoryEmbed(entries []models.BetHistoryEntry) *discordgo.MessageEmbed {
	if len(entries) == 0 {
		return &discordgo.MessageEmbed{
			Title:       "📜 Recent Bets",
			Description: "No bets yet.",
			Color:       ColorPrimary,
		}
	}

	var lines []string
	for _, entry := range entries {
		icon := "❌"
		if entry.Result == models.ResultWin {
			icon = "✅"
		}
		line := fmt.Sprintf("%s %s on %s %s", icon, common.FormatAmount(entry.DisplayAmount), entry.Choice,
			common.FormatDiscordTimestamp(entry.Timestamp, "R"))
		if entry.IsFree {
			line += " (free)"
		}
		lines = append(lines, line)
	}
	return &discordgo.MessageEmbed{
		Title:       "📜 Recent Bets",
		Description: strings.Join(lines, "\n"),
		Color:       ColorPrimary,
	}
}

// buildLeaderboardEmbed renders one leaderboard page
func buildLeaderboardEmbed(page *models.LeaderboardPage) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "🏆 Leaderboard",
		Color: ColorPrimary,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Page %d of %d", page.Pagination.Page, page.Pagination.TotalPages),
		},
	}
	if len(page.Data) == 0 {
		embed.Description = "No players yet."
		return embed
	}

	start := (page.Pagination.Page - 1) * page.Pagination.Limit
	if start < 0 {
		start = 0
	}
	var lines []string
	for i, player := range page.Data {
		lines = append(lines, fmt.Sprintf("**%d.** %s • %s • %d bets",
			start+i+1, common.ShortHash(player.PlayerAddress), common.FormatProfit(player.TotalProfit), player.TotalBets))
	}
	embed.Description = strings.Join(lines, "\n")
	return embed
}
