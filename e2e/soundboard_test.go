package e2e_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"

	"github.com/glizzus/soundboard/e2e"
	"github.com/glizzus/soundboard/internal/authoring"
	"github.com/glizzus/soundboard/internal/command"
	"github.com/glizzus/soundboard/internal/generator"
	"github.com/glizzus/soundboard/internal/handler"
	"github.com/glizzus/soundboard/internal/repository"
	"github.com/glizzus/soundboard/internal/sound"
	"github.com/glizzus/soundboard/internal/transcode"
	"github.com/glizzus/soundboard/internal/voice"
	"github.com/glizzus/soundboard/internal/worker"
)

const testGuildID = "74241007174813750"

type mockSession struct {
	mu    sync.Mutex
	Resp  []*discordgo.InteractionResponse
	Edits []*discordgo.WebhookEdit
}

func (m *mockSession) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, opts ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Resp = append(m.Resp, resp)
	return nil
}

func (m *mockSession) InteractionResponseEdit(i *discordgo.Interaction, wh *discordgo.WebhookEdit, opts ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Edits = append(m.Edits, wh)
	return &discordgo.Message{}, nil
}

var _ handler.DiscordSession = (*mockSession)(nil)

type recordingPublisher struct {
	mu        sync.Mutex
	published map[sound.Scope][]string
}

func (p *recordingPublisher) Publish(ctx context.Context, scope sound.Scope, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.published == nil {
		p.published = make(map[sound.Scope][]string)
	}
	names := make([]string, 0, len(commands))
	out := make([]*discordgo.ApplicationCommand, 0, len(commands))
	for _, c := range commands {
		names = append(names, c.Name)
		published := *c
		published.ID = scope.String() + "-" + c.Name
		out = append(out, &published)
	}
	p.published[scope] = names
	return out, nil
}

type bot struct {
	handle    handler.InteractionCreateHandler
	registry  *command.Registry
	publisher *recordingPublisher
	store     *sound.Store
}

func newBot(t *testing.T, stats repository.StatsReader, usage handler.UsageQueue) *bot {
	t.Helper()

	store := sound.NewStore(t.TempDir())
	publisher := &recordingPublisher{}
	registry := command.NewRegistry(store, publisher, command.Options{Static: handler.Commands})
	coordinator := voice.NewCoordinator(store, nil)
	t.Cleanup(func() {
		_ = coordinator.Shutdown(context.Background())
	})

	handle := handler.NewInteractionHandler(handler.Deps{
		Sounds:      registry,
		Player:      coordinator,
		Author:      authoring.NewAuthor(store, transcode.NewPipeline("ffmpeg", "yt-dlp"), registry, nil),
		Stats:       stats,
		Usage:       usage,
		GuildName:   func(string) string { return "Test Guild" },
		IDGenerator: &generator.UUIDV4Generator{},
	})

	return &bot{handle: handle, registry: registry, publisher: publisher, store: store}
}

func slashCommand(name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    name,
				Options: options,
			},
			GuildID: testGuildID,
			Member: &discordgo.Member{
				User: &discordgo.User{ID: "42", Username: "e2e"},
			},
		},
	}
}

func TestInteractionCreateHello(t *testing.T) {
	session := &mockSession{}
	b := newBot(t, repository.NewMemoryStatsRepository(), nil)

	b.handle(session, slashCommand(handler.CommandHello))

	expected := []*discordgo.InteractionResponse{{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "Hello World!",
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}}

	diff := cmp.Diff(expected, session.Resp)
	if diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}
}

func TestSoundCommandsArePublished(t *testing.T) {
	b := newBot(t, repository.NewMemoryStatsRepository(), nil)
	e2e.SeedSound(t, b.store, sound.Global(), "airhorn", sound.Metadata{Text: "HONK", Description: "airhorn"})
	e2e.SeedSound(t, b.store, sound.Guild(testGuildID), "boop", sound.Metadata{Text: "beep boop", Description: "boop"})

	if err := b.registry.LoadAll(t.Context()); err != nil {
		t.Fatalf("failed to load commands: %v", err)
	}

	expected := map[sound.Scope][]string{
		sound.Global():           {"hello", "invite", "version", "stats", "cmd", "-cmd", "airhorn"},
		sound.Guild(testGuildID): {"boop"},
	}
	diff := cmp.Diff(expected, b.publisher.published, cmp.AllowUnexported(sound.Scope{}))
	if diff != "" {
		t.Errorf("published mismatch (-want +got):\n%s", diff)
	}
}

func TestSoundsNamedAfterBuiltInsAreIgnored(t *testing.T) {
	b := newBot(t, repository.NewMemoryStatsRepository(), nil)
	e2e.SeedSound(t, b.store, sound.Global(), handler.CommandStats, sound.Metadata{Text: "stats", Description: "stats"})
	e2e.SeedSound(t, b.store, sound.Guild(testGuildID), handler.CommandHello, sound.Metadata{Text: "hi", Description: "hello"})

	if err := b.registry.LoadAll(t.Context()); err != nil {
		t.Fatalf("failed to load commands: %v", err)
	}

	expected := map[sound.Scope][]string{
		sound.Global():           {"hello", "invite", "version", "stats", "cmd", "-cmd"},
		sound.Guild(testGuildID): {},
	}
	diff := cmp.Diff(expected, b.publisher.published, cmp.AllowUnexported(sound.Scope{}))
	if diff != "" {
		t.Errorf("published mismatch (-want +got):\n%s", diff)
	}

	session := &mockSession{}
	b.handle(session, slashCommand(handler.CommandHello))
	if len(session.Resp) != 1 || session.Resp[0].Data.Content != "Hello World!" {
		t.Errorf("expected the built-in hello reply, got %+v", session.Resp)
	}
}

func embedDescriptions(t *testing.T, session *mockSession) map[string]string {
	t.Helper()
	if len(session.Edits) == 0 {
		t.Fatal("expected the stats response to be edited in")
	}
	edit := session.Edits[len(session.Edits)-1]
	if edit.Embeds == nil {
		t.Fatalf("expected stats embeds, got %+v", edit)
	}
	descriptions := make(map[string]string)
	for _, e := range *edit.Embeds {
		descriptions[e.Title] = e.Description
	}
	return descriptions
}

func TestSoundUsageStats(t *testing.T) {
	connStr := e2e.UsePostgres(t)
	repo := e2e.GetRepository(t, connStr)
	e2e.SeedGlobalNoise(t, repo)

	recorder := worker.NewUsageRecorder(repo)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		recorder.Run(ctx)
	}()

	b := newBot(t, repo, recorder)
	e2e.SeedSound(t, b.store, sound.Global(), "airhorn", sound.Metadata{Text: "HONK", Description: "airhorn"})
	e2e.SeedSound(t, b.store, sound.Guild(testGuildID), "boop", sound.Metadata{Text: "beep boop", Description: "boop"})
	if err := b.registry.LoadAll(t.Context()); err != nil {
		t.Fatalf("failed to load commands: %v", err)
	}

	for _, name := range []string{"boop", "boop", "airhorn"} {
		session := &mockSession{}
		b.handle(session, slashCommand(name))

		if len(session.Edits) != 1 || len(session.Edits[0].Files) != 1 {
			t.Fatalf("expected /%s to be sent as a file, got %+v", name, session.Edits)
		}
	}
	b.handle(&mockSession{}, slashCommand(handler.CommandHello))

	// Stopping the recorder writes everything it queued.
	cancel()
	<-done

	t.Run("overview", func(t *testing.T) {
		session := &mockSession{}
		b.handle(session, slashCommand(handler.CommandStats))

		descriptions := embedDescriptions(t, session)
		global := descriptions["Global command stats"]
		for _, line := range []string{"`/noise`: 100 uses", "`/airhorn`: 1 uses"} {
			if !strings.Contains(global, line) {
				t.Errorf("expected %q in global stats:\n%s", line, global)
			}
		}
		if strings.Contains(global, "hello") {
			t.Errorf("meta commands should not be counted:\n%s", global)
		}
		if got := descriptions["Test Guild command stats"]; got != "`/boop`: 2 uses" {
			t.Errorf("unexpected guild stats %q", got)
		}
	})

	t.Run("global command", func(t *testing.T) {
		session := &mockSession{}
		b.handle(session, slashCommand(handler.CommandStats, &discordgo.ApplicationCommandInteractionDataOption{
			Name:  "command",
			Type:  discordgo.ApplicationCommandOptionString,
			Value: "/airhorn",
		}))

		descriptions := embedDescriptions(t, session)
		expected := map[string]string{
			"Stats for global command `/airhorn`": "Test Guild: 1 uses\nTotal: 1 uses",
		}
		if diff := cmp.Diff(expected, descriptions); diff != "" {
			t.Errorf("stats mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("noise is masked", func(t *testing.T) {
		session := &mockSession{}
		b.handle(session, slashCommand(handler.CommandStats, &discordgo.ApplicationCommandInteractionDataOption{
			Name:  "command",
			Type:  discordgo.ApplicationCommandOptionString,
			Value: e2e.NoiseCommand,
		}))

		descriptions := embedDescriptions(t, session)
		lines := strings.Split(descriptions["Stats for global command `/noise`"], "\n")
		if len(lines) != 101 {
			t.Fatalf("expected 100 guilds and a total, got %d lines", len(lines))
		}
		if lines[100] != "Total: 100 uses" {
			t.Errorf("unexpected total %q", lines[100])
		}
		for _, line := range lines[:100] {
			if !strings.HasPrefix(line, `\*`) {
				t.Errorf("expected a masked guild ID, got %q", line)
			}
		}
	})

	t.Run("unknown command", func(t *testing.T) {
		session := &mockSession{}
		b.handle(session, slashCommand(handler.CommandStats, &discordgo.ApplicationCommandInteractionDataOption{
			Name:  "command",
			Type:  discordgo.ApplicationCommandOptionString,
			Value: "nothing",
		}))

		descriptions := embedDescriptions(t, session)
		if _, ok := descriptions["404 Not Found"]; !ok {
			t.Errorf("expected a not found embed, got %+v", descriptions)
		}
	})
}
