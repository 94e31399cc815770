package handler

import (
	"errors"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/glizzus/soundboard/internal/generator"
	"github.com/glizzus/soundboard/internal/presenters"
	"github.com/glizzus/soundboard/internal/repository"
)

// DiscordSession is the part of *discordgo.Session the handlers answer with.
type DiscordSession interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ DiscordSession = (*discordgo.Session)(nil)

type ReadyHandler = func(*discordgo.Session, *discordgo.Ready)
type InteractionCreateHandler = func(DiscordSession, *discordgo.InteractionCreate)

var ReadyLog = func(s *discordgo.Session, r *discordgo.Ready) {
	username := r.User.Username
	userID := r.User.ID
	slog.Info("Bot is ready", "username", username, "userID", userID)
}

const expiredFormMessage = "This form has expired. Run the command again."

// Deps are what the interaction handler needs to answer every command.
type Deps struct {
	Sounds    SoundLookup
	Player    Player
	Author    SoundAuthor
	Stats     repository.StatsReader
	Usage     UsageQueue
	Presence  VoicePresence
	GuildName func(guildID string) string
	InviteURL string
	Version   string

	// IDGenerator mints flow instance IDs. Defaults to UUIDv4.
	IDGenerator generator.Generator[string]
}

func respondError(s DiscordSession, i *discordgo.InteractionCreate, err error) {
	var userErr *UserError
	if errors.As(err, &userErr) {
		if rerr := s.InteractionRespond(i.Interaction, presenters.ErrorResponse(userErr.Message)); rerr != nil {
			slog.Error("Failed to report user error", "error", rerr, "userError", userErr.Message)
		}
		return
	}
	slog.Error("Failed to handle interaction", "interactionID", i.ID, "type", i.Type.String(), "error", err)
}

func logInteraction(i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	attrs := []any{
		"user", user.Username,
		"userID", user.ID,
		"guildID", i.GuildID,
		"channelID", i.ChannelID,
	}
	if i.Type == discordgo.InteractionApplicationCommand {
		attrs = append(attrs, "command", "/"+i.ApplicationCommandData().Name)
	}
	slog.Debug("Interaction received", attrs...)
}

// NewInteractionHandler routes interactions to the static command flows and
// everything else to the sound dispatcher.
func NewInteractionHandler(deps Deps) InteractionCreateHandler {
	flows := NewFlowManager(deps.IDGenerator)
	flows.RegisterFlow(HelloFlow)
	flows.RegisterFlow(InviteFlow(deps.InviteURL))
	flows.RegisterFlow(VersionFlow(deps.Version))
	flows.RegisterFlow(StatsFlow(deps.Stats, deps.GuildName))
	flows.RegisterFlow(CreateFlow(deps.Author))
	flows.RegisterFlow(DeleteFlow(deps.Author))

	dispatcher := NewDispatcher(deps.Sounds, deps.Player, deps.Usage, deps.Presence)

	return func(s DiscordSession, i *discordgo.InteractionCreate) {
		logInteraction(i)

		handled, err := flows.Router(s, i)
		if !handled {
			switch i.Type {
			case discordgo.InteractionApplicationCommand:
				err = dispatcher.Play(s, i)
			case discordgo.InteractionModalSubmit:
				err = &UserError{Message: expiredFormMessage}
			default:
				slog.Debug("Ignoring interaction", "type", i.Type.String())
			}
		}
		if err != nil {
			respondError(s, i, err)
		}
	}
}

type Handlers struct {
	Ready             ReadyHandler
	InteractionCreate InteractionCreateHandler
}

// NewSession creates a bot session that listens to guild and voice state
// events. The session is not opened.
func NewSession(token string, handlers Handlers) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	if handlers.Ready != nil {
		s.AddHandler(handlers.Ready)
	}
	if handlers.InteractionCreate != nil {
		AddInteractionHandler(s, handlers.InteractionCreate)
	}

	return s, nil
}

// AddInteractionHandler attaches h to an already created session.
func AddInteractionHandler(s *discordgo.Session, h InteractionCreateHandler) func() {
	return s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		h(s, i)
	})
}
