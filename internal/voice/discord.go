package voice

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/soundboard/internal/opus"
)

var ErrAlreadyPlaying = errors.New("connection is already playing")

// DiscordTransport joins voice channels through a discordgo session.
type DiscordTransport struct {
	session *discordgo.Session
}

func NewDiscordTransport(session *discordgo.Session) *DiscordTransport {
	return &DiscordTransport{session: session}
}

type joinResult struct {
	vc  *discordgo.VoiceConnection
	err error
}

// Connect joins channelID deafened. ChannelVoiceJoin cannot be cancelled, so
// a join that completes after ctx is done is disconnected in the background.
func (t *DiscordTransport) Connect(ctx context.Context, guildID, channelID string) (Connection, error) {
	joined := make(chan joinResult, 1)
	go func() {
		vc, err := t.session.ChannelVoiceJoin(guildID, channelID, false, true)
		joined <- joinResult{vc: vc, err: err}
	}()

	select {
	case j := <-joined:
		if j.err != nil {
			return nil, fmt.Errorf("unable to join the voice channel: %w", j.err)
		}
		return newDiscordConnection(j.vc), nil
	case <-ctx.Done():
		go func() {
			j := <-joined
			if j.err != nil {
				return
			}
			slog.Warn("Voice join finished after giving up, leaving", "guildID", guildID, "channelID", channelID)
			if err := j.vc.Disconnect(); err != nil {
				slog.Error("failed to disconnect", "error", err)
			}
		}()
		return nil, ctx.Err()
	}
}

var _ Transport = (*DiscordTransport)(nil)

type discordConnection struct {
	vc      *discordgo.VoiceConnection
	playing atomic.Bool

	// ctx is cancelled on Disconnect to stop a running playback.
	ctx    context.Context
	cancel context.CancelFunc
}

func newDiscordConnection(vc *discordgo.VoiceConnection) *discordConnection {
	ctx, cancel := context.WithCancel(context.Background())
	return &discordConnection{vc: vc, ctx: ctx, cancel: cancel}
}

func (c *discordConnection) ChannelID() string {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.ChannelID
}

func (c *discordConnection) Move(channelID string) error {
	return c.vc.ChangeChannel(channelID, false, true)
}

func (c *discordConnection) Play(path string, onComplete func(error)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("unable to open %s: %w", path, err)
	}
	if !c.playing.CompareAndSwap(false, true) {
		f.Close()
		return ErrAlreadyPlaying
	}

	go func() {
		defer f.Close()

		if err := c.vc.Speaking(true); err != nil {
			slog.Warn("error setting speaking state to 'true'", "error", err)
		}

		err := opus.Stream(c.ctx, opus.NewOggReader(bufio.NewReader(f)), c.vc.OpusSend)

		if err := c.vc.Speaking(false); err != nil {
			slog.Warn("failed to stop speaking", "error", err)
		}
		c.playing.Store(false)
		onComplete(err)
	}()
	return nil
}

func (c *discordConnection) IsPlaying() bool {
	return c.playing.Load()
}

func (c *discordConnection) Disconnect() error {
	c.cancel()
	return c.vc.Disconnect()
}

var _ Connection = (*discordConnection)(nil)

// Presence returns the voice channel userID is currently in, if any.
func Presence(state *discordgo.State, guildID, userID string) (string, bool) {
	if state == nil || guildID == "" {
		return "", false
	}
	vs, err := state.VoiceState(guildID, userID)
	if err != nil || vs.ChannelID == "" {
		return "", false
	}
	return vs.ChannelID, true
}
