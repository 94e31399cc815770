package command

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/soundboard/internal/sound"
	"golang.org/x/time/rate"
)

// ApplicationCommandSession is the part of *discordgo.Session used to publish commands.
type ApplicationCommandSession interface {
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// DiscordPublisher publishes commands by overwriting a scope's commands in bulk.
type DiscordPublisher struct {
	session ApplicationCommandSession
	appID   string
	limiter *rate.Limiter
}

// NewDiscordPublisher paces overwrites to one every half second with a small
// burst, which keeps a startup sync of many guilds clear of rate limits.
func NewDiscordPublisher(session ApplicationCommandSession, appID string) *DiscordPublisher {
	return &DiscordPublisher{
		session: session,
		appID:   appID,
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
	}
}

func (p *DiscordPublisher) Publish(ctx context.Context, scope sound.Scope, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if commands == nil {
		// A nil slice marshals to null, which the API rejects.
		commands = []*discordgo.ApplicationCommand{}
	}
	return p.session.ApplicationCommandBulkOverwrite(p.appID, scope.GuildID(), commands, discordgo.WithContext(ctx))
}

var _ Publisher = (*DiscordPublisher)(nil)
