package handler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/soundboard/internal/presenters"
	"github.com/glizzus/soundboard/internal/repository"
)

const noInviteMessage = "No invite configured! Contact bot owner."

var HelloFlow = &Flow{
	ID: CommandHello,
	Root: &Node{
		ID:      CommandHello,
		Matcher: commandMatcher(CommandHello),
		Handler: func(s DiscordSession, i *discordgo.InteractionCreate, ctx *FlowContext) error {
			return s.InteractionRespond(i.Interaction, presenters.EphemeralMessage("Hello World!"))
		},
	},
}

func InviteFlow(inviteURL string) *Flow {
	if inviteURL == "" {
		inviteURL = noInviteMessage
	}
	return &Flow{
		ID: CommandInvite,
		Root: &Node{
			ID:      CommandInvite,
			Matcher: commandMatcher(CommandInvite),
			Handler: func(s DiscordSession, i *discordgo.InteractionCreate, ctx *FlowContext) error {
				return s.InteractionRespond(i.Interaction, presenters.EphemeralMessage(inviteURL))
			},
		},
	}
}

// BuildVersion is the short VCS revision the binary was built from.
func BuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	var revision string
	var modified bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if revision == "" {
		return "unknown"
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if modified {
		revision += "-dirty"
	}
	return revision
}

func VersionFlow(version string) *Flow {
	return &Flow{
		ID: CommandVersion,
		Root: &Node{
			ID:      CommandVersion,
			Matcher: commandMatcher(CommandVersion),
			Handler: func(s DiscordSession, i *discordgo.InteractionCreate, ctx *FlowContext) error {
				return s.InteractionRespond(i.Interaction, presenters.EphemeralMessage(fmt.Sprintf("`%s`", version)))
			},
		},
	}
}

func StatsFlow(stats repository.StatsReader, guildName func(string) string) *Flow {
	return &Flow{
		ID: CommandStats,
		Root: &Node{
			ID:      CommandStats,
			Matcher: commandMatcher(CommandStats),
			Handler: func(s DiscordSession, i *discordgo.InteractionCreate, fctx *FlowContext) error {
				if err := s.InteractionRespond(i.Interaction, presenters.Deferred(false)); err != nil {
					return err
				}

				var guild presenters.Guild
				if i.GuildID != "" {
					guild = presenters.Guild{ID: i.GuildID, Name: i.GuildID}
					if guildName != nil {
						guild.Name = guildName(i.GuildID)
					}
				}

				command, _ := stringOption(i.ApplicationCommandData().Options, "command")
				command = strings.TrimPrefix(strings.TrimSpace(command), "/")

				embeds, err := statsEmbeds(context.Background(), stats, command, guild)
				if err != nil {
					if _, eerr := s.InteractionResponseEdit(i.Interaction, presenters.ErrorEdit("Failed to load stats.")); eerr != nil {
						err = fmt.Errorf("%w; failed to report it: %v", err, eerr)
					}
					return err
				}

				_, err = s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Embeds: &embeds})
				return err
			},
		},
	}
}

func statsEmbeds(ctx context.Context, stats repository.StatsReader, command string, guild presenters.Guild) ([]*discordgo.MessageEmbed, error) {
	if command == "" {
		global, err := stats.GlobalTotals(ctx)
		if err != nil {
			return nil, err
		}
		var local []repository.CommandCount
		if guild.ID != "" {
			if local, err = stats.GuildTotals(ctx, guild.ID); err != nil {
				return nil, err
			}
		}
		return presenters.OverviewStatsEmbeds(global, local, guild), nil
	}

	byGuild, err := stats.GlobalByGuild(ctx, command)
	if err != nil {
		return nil, err
	}
	var count int64
	var found bool
	if guild.ID != "" {
		if count, found, err = stats.GuildCommand(ctx, command, guild.ID); err != nil {
			return nil, err
		}
	}
	return presenters.CommandStatsEmbeds(command, byGuild, count, found, guild), nil
}
