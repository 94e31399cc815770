package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/glizzus/soundboard/internal/authoring"
	"github.com/glizzus/soundboard/internal/command"
	"github.com/glizzus/soundboard/internal/config"
	"github.com/glizzus/soundboard/internal/handler"
	"github.com/glizzus/soundboard/internal/sound"
	"github.com/glizzus/soundboard/internal/transcode"
	"github.com/urfave/cli/v2"
)

var stdinReader = bufio.NewReader(os.Stdin)

func prompt(label string) string {
	fmt.Printf("%s: ", label)
	input, _ := stdinReader.ReadString('\n')
	return strings.TrimSpace(input)
}

// offlineRegistry stands in for the command registry when the bot is not
// running. The bot publishes the changes on its next start.
type offlineRegistry struct{}

func (offlineRegistry) Refresh(ctx context.Context, scope sound.Scope) error {
	log.Printf("Changes to %s will be published when the bot starts.", scope)
	return nil
}

func (offlineRegistry) Reserved(name string) bool {
	return handler.IsStatic(name)
}

func scopeFlag(c *cli.Context) sound.Scope {
	if guildID := c.String("guild-id"); guildID != "" {
		return sound.Guild(guildID)
	}
	return sound.Global()
}

var guildIDFlag = &cli.StringFlag{
	Name:  "guild-id",
	Usage: "ID of the guild the sound belongs to. Omit for global sounds.",
}

func main() {
	if err := config.LoadEnv(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	soundConfig, err := config.NewSoundConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load sound config: %v", err)
	}

	store := sound.NewStore(soundConfig.Root)
	pipeline := transcode.NewPipeline(soundConfig.FFmpegPath, soundConfig.ExtractorPath)
	author := authoring.NewAuthor(store, pipeline, offlineRegistry{}, nil)

	app := &cli.App{
		Name:        "soundboard-cli",
		Description: "A development CLI tool for managing sounds without Discord",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the valid sounds of a scope",
				Flags: []cli.Flag{guildIDFlag},
				Action: func(c *cli.Context) error {
					scope := scopeFlag(c)
					names, err := store.ListValid(scope)
					if err != nil {
						return cli.Exit("Failed to list sounds: "+err.Error(), 1)
					}

					if len(names) == 0 {
						log.Printf("No sounds found in %s.", scope)
						return nil
					}

					for _, name := range names {
						meta, err := store.Describe(scope, name)
						if err != nil {
							log.Printf("/%s: %v", name, err)
							continue
						}
						log.Printf("/%s: %s", name, command.Describe(meta.Description))
					}
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Show the text and files of a sound",
				Flags: []cli.Flag{
					guildIDFlag,
					&cli.StringFlag{Name: "name", Required: true},
				},
				Action: func(c *cli.Context) error {
					scope := scopeFlag(c)
					name := c.String("name")

					text, general, err := store.Resolve(scope, name)
					if errors.Is(err, sound.ErrNotFound) {
						return cli.Exit(fmt.Sprintf("No sound /%s in %s", name, scope), 1)
					}
					if err != nil {
						return cli.Exit("Failed to resolve sound: "+err.Error(), 1)
					}
					_, transport, err := store.ResolveForVoice(scope, name)
					if err != nil {
						return cli.Exit("Failed to resolve voice file: "+err.Error(), 1)
					}

					log.Printf("Text: %s", text)
					log.Printf("File: %s", general)
					log.Printf("Voice file: %s", transport)
					return nil
				},
			},
			{
				Name:  "add",
				Usage: "Add or replace a sound from a link",
				Flags: []cli.Flag{guildIDFlag},
				Action: func(c *cli.Context) error {
					req := authoring.CreateRequest{
						Name:        strings.ToLower(prompt("Enter command name")),
						Text:        prompt("Enter command text"),
						Description: prompt("Enter sound description"),
						Link:        prompt("Enter link to the sound"),
					}

					if err := author.Create(c.Context, scopeFlag(c), req); err != nil {
						return cli.Exit(authoring.UserMessage(err), 1)
					}

					log.Printf("Sound /%s added successfully.", req.Name)
					return nil
				},
			},
			{
				Name:  "delete",
				Usage: "Delete a sound if it exists",
				Flags: []cli.Flag{
					guildIDFlag,
					&cli.StringFlag{Name: "name", Required: true},
				},
				Action: func(c *cli.Context) error {
					name := strings.ToLower(c.String("name"))
					if err := sound.ValidateName(name); err != nil {
						return cli.Exit(authoring.UserMessage(err), 1)
					}
					if err := author.Delete(c.Context, scopeFlag(c), name); err != nil {
						return cli.Exit(authoring.UserMessage(err), 1)
					}

					log.Printf("Removed /%s if it existed.", name)
					return nil
				},
			},
		},
	}

	err = app.Run(os.Args)
	if err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}
