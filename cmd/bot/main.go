package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/soundboard/internal/authoring"
	"github.com/glizzus/soundboard/internal/command"
	"github.com/glizzus/soundboard/internal/config"
	"github.com/glizzus/soundboard/internal/datalayer"
	"github.com/glizzus/soundboard/internal/handler"
	"github.com/glizzus/soundboard/internal/repository"
	"github.com/glizzus/soundboard/internal/sound"
	"github.com/glizzus/soundboard/internal/transcode"
	"github.com/glizzus/soundboard/internal/voice"
	"github.com/glizzus/soundboard/internal/worker"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

func setupLogging(logFile string, verbose bool) (io.Closer, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closer = f
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
	return closer, nil
}

func newStatsRepository(ctx context.Context, cfg *config.PostgresConfig) (repository.StatsRepository, func(), error) {
	if !cfg.Enabled() {
		slog.Warn("No Postgres configured, keeping usage stats in memory")
		return repository.NewMemoryStatsRepository(), func() {}, nil
	}

	pool, err := datalayer.NewPostgresPool(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := datalayer.MigratePostgres(pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}
	return repository.NewPostgresStatsRepository(pool), pool.Close, nil
}

func newMirror(ctx context.Context, cfg *config.MinioConfig, store *sound.Store) (authoring.Mirror, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	storage, err := datalayer.NewMinioStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio storage: %w", err)
	}
	if err := storage.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure minio bucket: %w", err)
	}
	return datalayer.NewSoundMirror(storage, store), nil
}

func guildName(session *discordgo.Session) func(string) string {
	return func(guildID string) string {
		guild, err := session.State.Guild(guildID)
		if err != nil {
			return guildID
		}
		return guild.Name
	}
}

// serveInteractions publishes the commands of every scope and only then
// calls attach, so no sound command is invoked before it can be resolved.
func serveInteractions(ctx context.Context, registry *command.Registry, attach func()) {
	if err := registry.LoadAll(ctx); err != nil {
		slog.Error("Failed to publish all commands", "error", err)
	}
	slog.Info("Commands published", "global", len(registry.Entries(sound.Global())))
	attach()
}

func runBotForever(c *cli.Context) error {
	closer, err := setupLogging(c.String("log-file"), c.Bool("v"))
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	discordConfig, err := config.NewDiscordConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load discord config: %w", err)
	}
	soundConfig, err := config.NewSoundConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load sound config: %w", err)
	}
	postgresConfig, err := config.NewPostgresConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load postgres config: %w", err)
	}
	minioConfig, err := config.NewMinioConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load minio config: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, closeStats, err := newStatsRepository(ctx, postgresConfig)
	if err != nil {
		return err
	}
	defer closeStats()

	store := sound.NewStore(soundConfig.Root)
	pipeline := transcode.NewPipeline(soundConfig.FFmpegPath, soundConfig.ExtractorPath)

	mirror, err := newMirror(ctx, minioConfig, store)
	if err != nil {
		return err
	}

	session, err := handler.NewSession(discordConfig.Token, handler.Handlers{
		Ready: handler.ReadyLog,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("failed to close session", "error", err)
		}
	}()

	registry := command.NewRegistry(store, command.NewDiscordPublisher(session, session.State.User.ID), command.Options{
		Static:       handler.Commands,
		DebugGuildID: discordConfig.DebugGuildID,
	})
	coordinator := voice.NewCoordinator(store, voice.NewDiscordTransport(session))
	author := authoring.NewAuthor(store, pipeline, registry, mirror)

	recorder := worker.NewUsageRecorder(stats)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		recorder.Run(ctx)
	}()

	serveInteractions(ctx, registry, func() {
		handler.AddInteractionHandler(session, handler.NewInteractionHandler(handler.Deps{
			Sounds: registry,
			Player: coordinator,
			Author: author,
			Stats:  stats,
			Usage:  recorder,
			Presence: func(guildID, userID string) (string, bool) {
				return voice.Presence(session.State, guildID, userID)
			},
			GuildName: guildName(session),
			InviteURL: discordConfig.InviteURL,
			Version:   handler.BuildVersion(),
		}))
	})

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Failed to leave voice channels", "error", err)
	}
	wg.Wait()
	return nil
}

func main() {
	app := &cli.App{
		Name:  "soundboard",
		Usage: "Discord bot that plays sound effects on command",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Append logs to this file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "v",
				Usage: "Log at debug level",
			},
		},
		Action: runBotForever,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("failed to run bot: %v", err)
	}
}
