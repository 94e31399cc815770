package presenters

import "github.com/bwmarrin/discordgo"

const (
	ColorError  = 0xff0000
	ColorGlobal = 0xf1c40f
	ColorGuild  = 0x3498db
)

func ErrorEmbed(message string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Error",
		Description: message,
		Color:       ColorError,
	}
}

// ErrorResponse answers an interaction with an error embed.
func ErrorResponse(message string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{ErrorEmbed(message)},
		},
	}
}

// ErrorEdit replaces a deferred response with an error embed.
func ErrorEdit(message string) *discordgo.WebhookEdit {
	return &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{ErrorEmbed(message)},
	}
}

func Message(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	}
}

// EphemeralMessage is only shown to the user who invoked the command.
func EphemeralMessage(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}

// Deferred acknowledges an interaction that will be answered with an edit.
func Deferred(ephemeral bool) *discordgo.InteractionResponse {
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	return resp
}

func ContentEdit(content string) *discordgo.WebhookEdit {
	return &discordgo.WebhookEdit{Content: &content}
}
