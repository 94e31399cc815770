package handler

import (
	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/soundboard/internal/util"
)

const (
	CommandHello   = "hello"
	CommandInvite  = "invite"
	CommandVersion = "version"
	CommandStats   = "stats"
	CommandCreate  = "cmd"
	CommandDelete  = "-cmd"
)

var guildOnly = false

// Commands are the commands that exist regardless of the sounds in the store.
// They are published with the global scope.
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        CommandHello,
		Description: "Hello World!",
	},
	{
		Name:        CommandInvite,
		Description: "Get a link to add the bot in your own server.",
	},
	{
		Name:        CommandVersion,
		Description: "Get the Git version this bot is running on.",
	},
	{
		Name:        CommandStats,
		Description: "Get stats for command usage.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "command",
				Type:        discordgo.ApplicationCommandOptionString,
				Description: "If specified, only get stats for this command.",
				Required:    false,
			},
		},
	},
	{
		Name:         CommandCreate,
		Description:  "Create a new guild command.",
		DMPermission: &guildOnly,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "file",
				Type:        discordgo.ApplicationCommandOptionAttachment,
				Description: "Upload the ffmpeg-compatible sound-containing file to play (instead of linking to it).",
				Required:    false,
			},
		},
	},
	{
		Name:         CommandDelete,
		Description:  "Remove a command, if it exists.",
		DMPermission: &guildOnly,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "name",
				Type:        discordgo.ApplicationCommandOptionString,
				Description: "The /name of the command (alphanumeric only).",
				Required:    true,
			},
		},
	},
}

// IsStatic reports whether name is one of Commands.
func IsStatic(name string) bool {
	for _, c := range Commands {
		if c.Name == name {
			return true
		}
	}
	return false
}

func commandMatcher(name string) func(*discordgo.InteractionCreate) bool {
	return func(i *discordgo.InteractionCreate) bool {
		if i.Type != discordgo.InteractionApplicationCommand {
			return false
		}
		return i.ApplicationCommandData().Name == name
	}
}

func findOption(options []*discordgo.ApplicationCommandInteractionDataOption, name string, typ discordgo.ApplicationCommandOptionType) (*discordgo.ApplicationCommandInteractionDataOption, bool) {
	return util.FindFirst(options, func(o *discordgo.ApplicationCommandInteractionDataOption) bool {
		return o.Name == name && o.Type == typ
	})
}

func stringOption(options []*discordgo.ApplicationCommandInteractionDataOption, name string) (string, bool) {
	o, ok := findOption(options, name, discordgo.ApplicationCommandOptionString)
	if !ok {
		return "", false
	}
	return o.StringValue(), true
}

func boolOption(options []*discordgo.ApplicationCommandInteractionDataOption, name string) bool {
	o, ok := findOption(options, name, discordgo.ApplicationCommandOptionBoolean)
	return ok && o.BoolValue()
}
