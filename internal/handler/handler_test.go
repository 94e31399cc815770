package handler_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/soundboard/internal/authoring"
	"github.com/glizzus/soundboard/internal/generator"
	"github.com/glizzus/soundboard/internal/handler"
	"github.com/glizzus/soundboard/internal/presenters"
	"github.com/glizzus/soundboard/internal/repository"
	"github.com/glizzus/soundboard/internal/sound"
	"github.com/glizzus/soundboard/internal/transcode"
	"github.com/google/go-cmp/cmp"
)

type mockSession struct {
	mu        sync.Mutex
	responses []*discordgo.InteractionResponse
	edits     []*discordgo.WebhookEdit
}

func (m *mockSession) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return nil
}

func (m *mockSession) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, edit)
	return &discordgo.Message{}, nil
}

func (m *mockSession) lastResponse(t *testing.T) *discordgo.InteractionResponse {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		t.Fatal("no interaction response was sent")
	}
	return m.responses[len(m.responses)-1]
}

func (m *mockSession) lastEdit(t *testing.T) *discordgo.WebhookEdit {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.edits) == 0 {
		t.Fatal("no response edit was sent")
	}
	return m.edits[len(m.edits)-1]
}

var _ handler.DiscordSession = (*mockSession)(nil)

type fakeAuthor struct {
	created []authoring.CreateRequest
	deleted []string
	err     error
}

func (a *fakeAuthor) Create(_ context.Context, scope sound.Scope, req authoring.CreateRequest) error {
	if a.err != nil {
		return a.err
	}
	a.created = append(a.created, req)
	return nil
}

func (a *fakeAuthor) Delete(_ context.Context, scope sound.Scope, name string) error {
	if a.err != nil {
		return a.err
	}
	a.deleted = append(a.deleted, scope.String()+"/"+name)
	return nil
}

const manageServer = discordgo.PermissionManageServer

func commandInteraction(guildID string, permissions int64, data discordgo.ApplicationCommandInteractionData) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:      "interaction",
			Type:    discordgo.InteractionApplicationCommand,
			GuildID: guildID,
			Data:    data,
			Member: &discordgo.Member{
				User:        &discordgo.User{ID: "u1", Username: "tester"},
				Permissions: permissions,
			},
		},
	}
}

func modalInteraction(guildID, customID string, values map[string]string) *discordgo.InteractionCreate {
	var rows []discordgo.MessageComponent
	for _, field := range []string{presenters.FieldName, presenters.FieldText, presenters.FieldDescription, presenters.FieldLink} {
		value, ok := values[field]
		if !ok {
			continue
		}
		rows = append(rows, &discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: field, Value: value},
			},
		})
	}
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:      "modal",
			Type:    discordgo.InteractionModalSubmit,
			GuildID: guildID,
			Data: discordgo.ModalSubmitInteractionData{
				CustomID:   customID,
				Components: rows,
			},
			Member: &discordgo.Member{
				User:        &discordgo.User{ID: "u1", Username: "tester"},
				Permissions: manageServer,
			},
		},
	}
}

func errorMessage(t *testing.T, resp *discordgo.InteractionResponse) string {
	t.Helper()
	if resp.Data == nil || len(resp.Data.Embeds) != 1 {
		t.Fatalf("expected a single error embed, got %+v", resp)
	}
	return resp.Data.Embeds[0].Description
}

func newTestHandler(deps handler.Deps) handler.InteractionCreateHandler {
	if deps.Stats == nil {
		deps.Stats = repository.NewMemoryStatsRepository()
	}
	if deps.Author == nil {
		deps.Author = &fakeAuthor{}
	}
	if deps.Sounds == nil {
		deps.Sounds = &fakeLookup{}
	}
	if deps.Player == nil {
		deps.Player = &fakePlayer{}
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = &generator.SequenceGenerator{Prefix: "flow"}
	}
	return handler.NewInteractionHandler(deps)
}

func TestMetaCommands(t *testing.T) {
	tc := []struct {
		name     string
		deps     handler.Deps
		command  string
		expected string
	}{
		{
			name:     "hello",
			command:  handler.CommandHello,
			expected: "Hello World!",
		},
		{
			name:     "invite configured",
			deps:     handler.Deps{InviteURL: "https://discord.com/invite"},
			command:  handler.CommandInvite,
			expected: "https://discord.com/invite",
		},
		{
			name:     "invite missing",
			command:  handler.CommandInvite,
			expected: "No invite configured! Contact bot owner.",
		},
		{
			name:     "version",
			deps:     handler.Deps{Version: "abc1234"},
			command:  handler.CommandVersion,
			expected: "`abc1234`",
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			s := &mockSession{}
			handle := newTestHandler(test.deps)

			handle(s, commandInteraction("g1", 0, discordgo.ApplicationCommandInteractionData{Name: test.command}))

			resp := s.lastResponse(t)
			if resp.Data == nil {
				t.Fatal("expected response data")
			}
			if resp.Data.Content != test.expected {
				t.Errorf("expected %q, got %q", test.expected, resp.Data.Content)
			}
			if resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
				t.Error("expected an ephemeral response")
			}
		})
	}
}

func TestStatsCommand(t *testing.T) {
	stats := repository.NewMemoryStatsRepository()
	err := stats.Record(context.Background(),
		repository.Usage{Command: "boop", Scope: sound.Guild("g1"), GuildID: "g1"},
		repository.Usage{Command: "airhorn", Scope: sound.Global(), GuildID: "g1"},
	)
	if err != nil {
		t.Fatal(err)
	}

	s := &mockSession{}
	handle := newTestHandler(handler.Deps{
		Stats:     stats,
		GuildName: func(string) string { return "Test Guild" },
	})

	handle(s, commandInteraction("g1", 0, discordgo.ApplicationCommandInteractionData{Name: handler.CommandStats}))

	if got := s.lastResponse(t).Type; got != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Errorf("expected a deferred response, got %v", got)
	}
	edit := s.lastEdit(t)
	if edit.Embeds == nil || len(*edit.Embeds) == 0 {
		t.Fatalf("expected stats embeds, got %+v", edit)
	}
}

func TestAuthoringRequiresManageServer(t *testing.T) {
	tc := []struct {
		name string
		data discordgo.ApplicationCommandInteractionData
	}{
		{
			name: "create",
			data: discordgo.ApplicationCommandInteractionData{Name: handler.CommandCreate},
		},
		{
			name: "delete",
			data: discordgo.ApplicationCommandInteractionData{
				Name: handler.CommandDelete,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "name", Type: discordgo.ApplicationCommandOptionString, Value: "boop"},
				},
			},
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			s := &mockSession{}
			author := &fakeAuthor{}
			handle := newTestHandler(handler.Deps{Author: author})

			handle(s, commandInteraction("g1", 0, test.data))

			expected := "You must have Manage Server permissions to use this command."
			if got := errorMessage(t, s.lastResponse(t)); got != expected {
				t.Errorf("expected %q, got %q", expected, got)
			}
			if len(author.created) != 0 || len(author.deleted) != 0 {
				t.Error("expected no changes to sounds")
			}
		})
	}
}

func TestCreateFlow(t *testing.T) {
	s := &mockSession{}
	author := &fakeAuthor{}
	handle := newTestHandler(handler.Deps{Author: author})

	handle(s, commandInteraction("g1", manageServer, discordgo.ApplicationCommandInteractionData{
		Name: handler.CommandCreate,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "file", Type: discordgo.ApplicationCommandOptionAttachment, Value: "a1"},
		},
		Resolved: &discordgo.ApplicationCommandInteractionDataResolved{
			Attachments: map[string]*discordgo.MessageAttachment{
				"a1": {ID: "a1", Filename: "boop.wav", URL: "https://cdn.example/boop.wav"},
			},
		},
	}))

	modal := s.lastResponse(t)
	if modal.Type != discordgo.InteractionResponseModal {
		t.Fatalf("expected a modal, got %v", modal.Type)
	}
	if modal.Data.CustomID != "sound_details:flow-1" {
		t.Errorf("unexpected modal custom ID %q", modal.Data.CustomID)
	}
	if len(modal.Data.Components) != 3 {
		t.Errorf("expected no link field with an attachment, got %d fields", len(modal.Data.Components))
	}

	handle(s, modalInteraction("g1", modal.Data.CustomID, map[string]string{
		presenters.FieldName:        "boop",
		presenters.FieldText:        "beep boop",
		presenters.FieldDescription: "boop",
	}))

	expected := []authoring.CreateRequest{{
		Name:        "boop",
		Text:        "beep boop",
		Description: "boop",
		Attachment:  &transcode.Attachment{Filename: "boop.wav", URL: "https://cdn.example/boop.wav"},
	}}
	if diff := cmp.Diff(expected, author.created); diff != "" {
		t.Errorf("created mismatch (-want +got):\n%s", diff)
	}

	edit := s.lastEdit(t)
	if edit.Content == nil || *edit.Content != "Successfully added/modified `/boop`" {
		t.Errorf("unexpected confirmation %+v", edit)
	}
}

func TestCreateFlowWithLink(t *testing.T) {
	s := &mockSession{}
	author := &fakeAuthor{}
	handle := newTestHandler(handler.Deps{Author: author})

	handle(s, commandInteraction("g1", manageServer, discordgo.ApplicationCommandInteractionData{Name: handler.CommandCreate}))

	modal := s.lastResponse(t)
	if len(modal.Data.Components) != 4 {
		t.Fatalf("expected a link field without an attachment, got %d fields", len(modal.Data.Components))
	}

	handle(s, modalInteraction("g1", modal.Data.CustomID, map[string]string{
		presenters.FieldName:        "boop",
		presenters.FieldText:        "beep boop",
		presenters.FieldDescription: "boop",
		presenters.FieldLink:        "https://example.com/boop.mp3",
	}))

	if len(author.created) != 1 || author.created[0].Link != "https://example.com/boop.mp3" {
		t.Fatalf("unexpected created requests %+v", author.created)
	}
}

func TestCreateFlowReportsFailure(t *testing.T) {
	s := &mockSession{}
	author := &fakeAuthor{err: fmt.Errorf("notes.txt: %w", transcode.ErrUnsupportedInput)}
	handle := newTestHandler(handler.Deps{Author: author})

	handle(s, commandInteraction("g1", manageServer, discordgo.ApplicationCommandInteractionData{Name: handler.CommandCreate}))
	modal := s.lastResponse(t)
	handle(s, modalInteraction("g1", modal.Data.CustomID, map[string]string{
		presenters.FieldName:        "boop",
		presenters.FieldText:        "beep boop",
		presenters.FieldDescription: "boop",
		presenters.FieldLink:        "https://example.com/notes.txt",
	}))

	edit := s.lastEdit(t)
	if edit.Embeds == nil || len(*edit.Embeds) != 1 {
		t.Fatalf("expected an error embed, got %+v", edit)
	}
	expected := "Failed to download attachment: Does not seem to be ffmpeg-compatible"
	if got := (*edit.Embeds)[0].Description; got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

func TestCreateFlowRejectsInvalidName(t *testing.T) {
	s := &mockSession{}
	author := &fakeAuthor{}
	handle := newTestHandler(handler.Deps{Author: author})

	handle(s, commandInteraction("g1", manageServer, discordgo.ApplicationCommandInteractionData{Name: handler.CommandCreate}))
	modal := s.lastResponse(t)
	handle(s, modalInteraction("g1", modal.Data.CustomID, map[string]string{
		presenters.FieldName:        "no spaces",
		presenters.FieldText:        "text",
		presenters.FieldDescription: "desc",
		presenters.FieldLink:        "https://example.com/a.mp3",
	}))

	expected := "Command name must consist only of 1-32 letters and numbers"
	if got := errorMessage(t, s.lastResponse(t)); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
	if len(author.created) != 0 {
		t.Error("expected nothing to be created")
	}
}

func TestExpiredModal(t *testing.T) {
	s := &mockSession{}
	handle := newTestHandler(handler.Deps{})

	handle(s, modalInteraction("g1", "sound_details:gone", map[string]string{presenters.FieldName: "boop"}))

	expected := "This form has expired. Run the command again."
	if got := errorMessage(t, s.lastResponse(t)); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

func TestDeleteFlow(t *testing.T) {
	tc := []struct {
		name     string
		input    string
		err      error
		deleted  []string
		expected string
	}{
		{
			name:     "lowercases the name",
			input:    "Boop",
			deleted:  []string{"g1/boop"},
			expected: "Removed `/boop` if it exists",
		},
		{
			name:     "store failure",
			input:    "boop",
			err:      errors.New("disk on fire"),
			expected: "Something went wrong while updating the command. Try again later.",
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			s := &mockSession{}
			author := &fakeAuthor{err: test.err}
			handle := newTestHandler(handler.Deps{Author: author})

			handle(s, commandInteraction("g1", manageServer, discordgo.ApplicationCommandInteractionData{
				Name: handler.CommandDelete,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "name", Type: discordgo.ApplicationCommandOptionString, Value: test.input},
				},
			}))

			if diff := cmp.Diff(test.deleted, author.deleted); diff != "" {
				t.Errorf("deleted mismatch (-want +got):\n%s", diff)
			}

			edit := s.lastEdit(t)
			var got string
			switch {
			case edit.Content != nil:
				got = *edit.Content
			case edit.Embeds != nil && len(*edit.Embeds) == 1:
				got = (*edit.Embeds)[0].Description
			}
			if got != test.expected {
				t.Errorf("expected %q, got %q", test.expected, got)
			}
		})
	}
}

func TestIsStatic(t *testing.T) {
	for _, c := range handler.Commands {
		if !handler.IsStatic(c.Name) {
			t.Errorf("expected %s to be static", c.Name)
		}
	}
	if handler.IsStatic("boop") {
		t.Error("expected boop not to be static")
	}
}
