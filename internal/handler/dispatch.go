package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/soundboard/internal/command"
	"github.com/glizzus/soundboard/internal/presenters"
	"github.com/glizzus/soundboard/internal/repository"
	"github.com/glizzus/soundboard/internal/sound"
	"github.com/glizzus/soundboard/internal/voice"
)

type SoundLookup interface {
	Lookup(commandID, name, guildID string) (command.Entry, bool)
}

type Player interface {
	PlayInVoice(ctx context.Context, req voice.PlayRequest, notifier voice.Notifier) error
	DeliverAsFile(scope sound.Scope, name string) (string, string, error)
}

type UsageQueue interface {
	Enqueue(usage repository.Usage) bool
}

// VoicePresence returns the voice channel a user is in, if any.
type VoicePresence func(guildID, userID string) (string, bool)

// Dispatcher answers invocations of sound commands.
type Dispatcher struct {
	sounds   SoundLookup
	player   Player
	usage    UsageQueue
	presence VoicePresence
}

func NewDispatcher(sounds SoundLookup, player Player, usage UsageQueue, presence VoicePresence) *Dispatcher {
	return &Dispatcher{sounds: sounds, player: player, usage: usage, presence: presence}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	if i.User != nil {
		return i.User
	}
	return &discordgo.User{}
}

func notFoundMessage(name string) string {
	return fmt.Sprintf("The sound for `/%s` is missing. It may have just been removed.", name)
}

// Play plays the invoked sound into the requester's voice channel, or
// uploads it to the chat when the requester is not in voice or asked for chat.
func (d *Dispatcher) Play(s DiscordSession, i *discordgo.InteractionCreate) error {
	data := i.ApplicationCommandData()
	entry, ok := d.sounds.Lookup(data.ID, data.Name, i.GuildID)
	if !ok {
		return &UserError{Message: fmt.Sprintf("Unknown command `/%s`", data.Name)}
	}

	user := interactionUser(i)
	slog.Info("Command invoked",
		"user", user.Username,
		"userID", user.ID,
		"channelID", i.ChannelID,
		"command", "/"+entry.Name,
		"scope", entry.Scope.String(),
	)

	if d.usage != nil {
		d.usage.Enqueue(repository.Usage{Command: entry.Name, Scope: entry.Scope, GuildID: i.GuildID})
	}

	chat := boolOption(data.Options, "chat")
	var channelID string
	var inVoice bool
	if d.presence != nil && i.GuildID != "" {
		channelID, inVoice = d.presence(i.GuildID, user.ID)
	}

	if inVoice && !chat {
		return d.playInVoice(s, i, entry, channelID)
	}
	return d.deliverAsFile(s, i, entry)
}

func (d *Dispatcher) playInVoice(s DiscordSession, i *discordgo.InteractionCreate, entry command.Entry, channelID string) error {
	notifier := &interactionNotifier{session: s, interaction: i.Interaction}
	req := voice.PlayRequest{
		GuildID:   i.GuildID,
		ChannelID: channelID,
		Scope:     entry.Scope,
		Name:      entry.Name,
	}

	err := d.player.PlayInVoice(context.Background(), req, notifier)

	var transient *voice.TransientError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &transient):
		// The text already went out.
		slog.Warn("Voice playback failed", "guildID", i.GuildID, "command", entry.Name, "error", err)
		return nil
	case errors.Is(err, sound.ErrNotFound):
		slog.Warn("Sound disappeared", "scope", entry.Scope.String(), "name", entry.Name, "error", err)
		return notifier.Fail(notFoundMessage(entry.Name))
	default:
		slog.Error("Failed to play sound", "scope", entry.Scope.String(), "name", entry.Name, "error", err)
		return notifier.Fail(fmt.Sprintf("Failed to play `/%s`.", entry.Name))
	}
}

func (d *Dispatcher) deliverAsFile(s DiscordSession, i *discordgo.InteractionCreate, entry command.Entry) error {
	if err := s.InteractionRespond(i.Interaction, presenters.Deferred(false)); err != nil {
		return err
	}

	text, path, err := d.player.DeliverAsFile(entry.Scope, entry.Name)
	if err != nil {
		if errors.Is(err, sound.ErrNotFound) {
			return editError(s, i, notFoundMessage(entry.Name))
		}
		slog.Error("Failed to resolve sound", "scope", entry.Scope.String(), "name", entry.Name, "error", err)
		return editError(s, i, fmt.Sprintf("Failed to send `/%s`.", entry.Name))
	}

	f, err := os.Open(path)
	if err != nil {
		slog.Error("Failed to open sound", "path", path, "error", err)
		return editError(s, i, fmt.Sprintf("Failed to send `/%s`.", entry.Name))
	}
	defer f.Close()

	_, err = s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &text,
		Files: []*discordgo.File{{
			Name:        entry.Name + ".mp3",
			ContentType: "audio/mpeg",
			Reader:      f,
		}},
	})
	return err
}

// interactionNotifier answers a voice request. The sound's text is sent
// right away, or as an edit when the request had to be deferred first.
type interactionNotifier struct {
	session     DiscordSession
	interaction *discordgo.Interaction

	mu       sync.Mutex
	deferred bool
}

func (n *interactionNotifier) Queued() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.session.InteractionRespond(n.interaction, presenters.Deferred(true)); err != nil {
		slog.Error("Failed to defer queued request", "error", err)
		return
	}
	n.deferred = true
}

func (n *interactionNotifier) Text(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.deferred {
		if _, err := n.session.InteractionResponseEdit(n.interaction, presenters.ContentEdit(text)); err != nil {
			slog.Error("Failed to send sound text", "error", err)
		}
		return
	}
	if err := n.session.InteractionRespond(n.interaction, presenters.EphemeralMessage(text)); err != nil {
		slog.Error("Failed to send sound text", "error", err)
		return
	}
	// Later messages have to be edits.
	n.deferred = true
}

// Fail reports an error in place of the sound's text.
func (n *interactionNotifier) Fail(message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.deferred {
		_, err := n.session.InteractionResponseEdit(n.interaction, presenters.ErrorEdit(message))
		return err
	}
	return n.session.InteractionRespond(n.interaction, presenters.ErrorResponse(message))
}

var _ voice.Notifier = (*interactionNotifier)(nil)
