package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

type DiscordConfig struct {
	Token string `env:"DISCORD_TOKEN, required"`
	// DebugGuildID publishes the global commands to a single guild instead,
	// which makes them show up immediately while developing.
	DebugGuildID string `env:"DISCORD_GUILD_ID"`
	InviteURL    string `env:"DISCORD_INVITE_URL"`
}

func NewDiscordConfigFromEnv() (*DiscordConfig, error) {
	var cfg DiscordConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
