package presenters

import "github.com/bwmarrin/discordgo"

const (
	ComponentSoundDetails = "sound_details"

	FieldName        = "name"
	FieldText        = "text"
	FieldDescription = "description"
	FieldLink        = "link"
)

func textInputRow(input discordgo.TextInput) discordgo.ActionsRow {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{input},
	}
}

// SoundDetailsModal asks for the details of a new sound. The link field is
// only shown when no file was attached to the command.
func SoundDetailsModal(customID string, withLink bool) *discordgo.InteractionResponse {
	components := []discordgo.MessageComponent{
		textInputRow(discordgo.TextInput{
			CustomID:    FieldName,
			Label:       "Command Name",
			Style:       discordgo.TextInputShort,
			Placeholder: "The /name of the command (alphanumeric only).",
			Required:    true,
			MaxLength:   32,
		}),
		textInputRow(discordgo.TextInput{
			CustomID:    FieldText,
			Label:       "Command Text",
			Style:       discordgo.TextInputParagraph,
			Placeholder: "The exact text to use as the command text.",
			Required:    true,
		}),
		textInputRow(discordgo.TextInput{
			CustomID:    FieldDescription,
			Label:       "Command Description",
			Style:       discordgo.TextInputShort,
			Placeholder: `The name of the sound effect ("Play a <desc> sound effect").`,
			Required:    true,
		}),
	}
	if withLink {
		components = append(components, textInputRow(discordgo.TextInput{
			CustomID:    FieldLink,
			Label:       "Link to Sound",
			Style:       discordgo.TextInputParagraph,
			Placeholder: "Link to the ffmpeg- (incl. file extension) or yt-dlp-compatible sound-containing file to play.",
			Required:    true,
		}))
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   customID,
			Title:      "Command Details",
			Components: components,
		},
	}
}

// ModalValues collects the submitted text inputs of a modal by custom ID.
func ModalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := make(map[string]string)
	for _, c := range data.Components {
		var inner []discordgo.MessageComponent
		switch row := c.(type) {
		case *discordgo.ActionsRow:
			inner = row.Components
		case discordgo.ActionsRow:
			inner = row.Components
		}
		for _, ic := range inner {
			switch input := ic.(type) {
			case *discordgo.TextInput:
				values[input.CustomID] = input.Value
			case discordgo.TextInput:
				values[input.CustomID] = input.Value
			}
		}
	}
	return values
}
