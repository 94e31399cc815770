package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/soundboard/internal/authoring"
	"github.com/glizzus/soundboard/internal/presenters"
	"github.com/glizzus/soundboard/internal/sound"
	"github.com/glizzus/soundboard/internal/transcode"
	"github.com/glizzus/soundboard/internal/util"
)

const stateAttachment = "attachment"

type SoundAuthor interface {
	Create(ctx context.Context, scope sound.Scope, req authoring.CreateRequest) error
	Delete(ctx context.Context, scope sound.Scope, name string) error
}

func requireManageServer(i *discordgo.InteractionCreate) error {
	if i.Member == nil || i.Member.Permissions&discordgo.PermissionManageServer == 0 {
		return &UserError{Message: "You must have Manage Server permissions to use this command."}
	}
	return nil
}

func requireValidName(name string) error {
	if err := sound.ValidateName(name); err != nil {
		return &UserError{Message: authoring.UserMessage(err)}
	}
	return nil
}

// commandAttachment returns the file uploaded with a command, if any.
func commandAttachment(data discordgo.ApplicationCommandInteractionData) (*transcode.Attachment, error) {
	if _, ok := findOption(data.Options, "file", discordgo.ApplicationCommandOptionAttachment); !ok {
		return nil, nil
	}

	var resolved map[string]*discordgo.MessageAttachment
	if data.Resolved != nil {
		resolved = data.Resolved.Attachments
	}
	attachment, err := util.GetOne(resolved)
	if err != nil {
		return nil, &UserError{Message: "Attach exactly one file to the command."}
	}
	return &transcode.Attachment{Filename: attachment.Filename, URL: attachment.URL}, nil
}

func isSoundDetailsSubmit(i *discordgo.InteractionCreate) bool {
	if i.Type != discordgo.InteractionModalSubmit {
		return false
	}
	return strings.HasPrefix(i.ModalSubmitData().CustomID, presenters.ComponentSoundDetails+":")
}

func editError(s DiscordSession, i *discordgo.InteractionCreate, message string) error {
	_, err := s.InteractionResponseEdit(i.Interaction, presenters.ErrorEdit(message))
	return err
}

// CreateFlow opens the sound details modal for /cmd and creates the sound
// once the modal is submitted.
func CreateFlow(author SoundAuthor) *Flow {
	submit := &Node{
		ID:      "sound_details_submit",
		Matcher: isSoundDetailsSubmit,
		Handler: func(s DiscordSession, i *discordgo.InteractionCreate, ctx *FlowContext) error {
			values := presenters.ModalValues(i.ModalSubmitData())
			name := values[presenters.FieldName]
			if err := requireValidName(name); err != nil {
				return err
			}

			if err := s.InteractionRespond(i.Interaction, presenters.Deferred(false)); err != nil {
				return err
			}

			req := authoring.CreateRequest{
				Name:        name,
				Text:        values[presenters.FieldText],
				Description: values[presenters.FieldDescription],
				Link:        values[presenters.FieldLink],
			}
			if attachment, ok := ctx.State[stateAttachment].(*transcode.Attachment); ok && attachment != nil {
				req.Attachment = attachment
			}

			scope := sound.Guild(i.GuildID)
			if err := author.Create(context.Background(), scope, req); err != nil {
				slog.Error("Failed to create sound", "guildID", i.GuildID, "name", name, "error", err)
				return editError(s, i, authoring.UserMessage(err))
			}

			_, err := s.InteractionResponseEdit(i.Interaction, presenters.ContentEdit(fmt.Sprintf("Successfully added/modified `/%s`", name)))
			return err
		},
	}

	return &Flow{
		ID: CommandCreate,
		Root: &Node{
			ID:      CommandCreate,
			Matcher: commandMatcher(CommandCreate),
			Handler: func(s DiscordSession, i *discordgo.InteractionCreate, ctx *FlowContext) error {
				if err := requireManageServer(i); err != nil {
					return err
				}
				attachment, err := commandAttachment(i.ApplicationCommandData())
				if err != nil {
					return err
				}
				ctx.State[stateAttachment] = attachment

				customID := CustomID(presenters.ComponentSoundDetails, ctx.InstanceID)
				return s.InteractionRespond(i.Interaction, presenters.SoundDetailsModal(customID, attachment == nil))
			},
			Next: []*Node{submit},
		},
	}
}

// DeleteFlow removes a guild sound with /-cmd.
func DeleteFlow(author SoundAuthor) *Flow {
	return &Flow{
		ID: CommandDelete,
		Root: &Node{
			ID:      CommandDelete,
			Matcher: commandMatcher(CommandDelete),
			Handler: func(s DiscordSession, i *discordgo.InteractionCreate, ctx *FlowContext) error {
				if err := requireManageServer(i); err != nil {
					return err
				}
				name, _ := stringOption(i.ApplicationCommandData().Options, "name")
				name = strings.ToLower(name)
				if err := requireValidName(name); err != nil {
					return err
				}

				if err := s.InteractionRespond(i.Interaction, presenters.Deferred(false)); err != nil {
					return err
				}

				if err := author.Delete(context.Background(), sound.Guild(i.GuildID), name); err != nil {
					slog.Error("Failed to delete sound", "guildID", i.GuildID, "name", name, "error", err)
					return editError(s, i, authoring.UserMessage(err))
				}

				_, err := s.InteractionResponseEdit(i.Interaction, presenters.ContentEdit(fmt.Sprintf("Removed `/%s` if it exists", name)))
				return err
			},
		},
	}
}
