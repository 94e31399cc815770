package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type SoundConfig struct {
	Root          string `env:"SOUNDS_ROOT, default=sounds"`
	FFmpegPath    string `env:"FFMPEG_PATH, default=ffmpeg"`
	ExtractorPath string `env:"EXTRACTOR_PATH, default=yt-dlp"`
}

func NewSoundConfigFromEnv() (*SoundConfig, error) {
	var cfg SoundConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("SOUNDS_ROOT must not be empty")
	}
	return &cfg, nil
}
