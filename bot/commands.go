package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

var choiceOption = &discordgo.ApplicationCommandOption{
	Type:        discordgo.ApplicationCommandOptionString,
	Name:        "choice",
	Description: "Heads or Tails",
	Required:    true,
	Choices: []*discordgo.ApplicationCommandOptionChoice{
		{Name: "Heads", Value: "Heads"},
		{Name: "Tails", Value: "Tails"},
	},
}

// commandDefinitions returns every slash command the bot serves
func commandDefinitions() []*discordgo.ApplicationCommand {
	amountChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(wagerChoices))
	for _, amount := range wagerChoices {
		amountChoices = append(amountChoices, &discordgo.ApplicationCommandOptionChoice{
			Name:  amount + " ETH",
			Value: amount,
		})
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "flip",
			Description: "Place a coin flip bet",
			Options: []*discordgo.ApplicationCommandOption{
				choiceOption,
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "amount",
					Description: "Amount to wager",
					Required:    true,
					Choices:     amountChoices,
				},
			},
		},
		{
			Name:        "freebet",
			Description: "Place your free bet (whitelisted accounts only)",
			Options:     []*discordgo.ApplicationCommandOption{choiceOption},
		},
		{
			Name:        "reveal",
			Description: "Reveal the result of your pending bet",
		},
		{
			Name:        "playagain",
			Description: "Clear the finished bet and start over",
		},
		{
			Name:        "status",
			Description: "Show the current bet and your stats",
		},
		{
			Name:        "history",
			Description: "Show your recent bets",
		},
		{
			Name:        "leaderboard",
			Description: "Display the top players",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "page",
					Description: "Page number (defaults to 1)",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "sort",
					Description: "Sort order",
					Required:    false,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Net gain", Value: "net_gain"},
						{Name: "Total wagered", Value: "total_wagered"},
					},
				},
			},
		},
	}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	for _, cmd := range commandDefinitions() {
		_, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, b.config.GuildID, cmd)
		if err != nil {
			return fmt.Errorf("cannot create '%s' command: %w", cmd.Name, err)
		}
	}
	return nil
}
