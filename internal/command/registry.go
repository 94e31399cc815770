// Package command keeps the set of published sound commands in line with
// what the sound store holds.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/soundboard/internal/sound"
	"golang.org/x/sync/errgroup"
)

// MaxDescriptionLength is the platform limit on command descriptions.
const MaxDescriptionLength = 100

// syncConcurrency bounds how many guild scopes are published at once on startup.
const syncConcurrency = 4

// Entry is one invokable sound command.
type Entry struct {
	Name        string
	Scope       sound.Scope
	Description string
}

// Lister is the part of the sound store the registry reads from.
type Lister interface {
	ListValid(scope sound.Scope) ([]string, error)
	Describe(scope sound.Scope, name string) (sound.Metadata, error)
	GuildScopes() ([]sound.Scope, error)
}

// Publisher makes a scope's command definitions visible to users,
// replacing whatever was published for that scope before.
type Publisher interface {
	Publish(ctx context.Context, scope sound.Scope, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error)
}

// Registry holds the sound commands of every scope in memory.
// Load refreshes a scope from the store; Sync pushes it to the Publisher.
type Registry struct {
	lister    Lister
	publisher Publisher
	static    []*discordgo.ApplicationCommand
	debug     sound.Scope

	mu      sync.RWMutex
	entries map[sound.Scope]map[string]Entry
	ids     map[string]Entry
}

type Options struct {
	// Static commands are published with the global scope.
	Static []*discordgo.ApplicationCommand
	// DebugGuildID, when set, publishes the global scope to this guild
	// together with the guild's own commands.
	DebugGuildID string
}

func NewRegistry(lister Lister, publisher Publisher, opts Options) *Registry {
	r := &Registry{
		lister:    lister,
		publisher: publisher,
		static:    opts.Static,
		entries:   make(map[sound.Scope]map[string]Entry),
		ids:       make(map[string]Entry),
	}
	if opts.DebugGuildID != "" {
		r.debug = sound.Guild(opts.DebugGuildID)
	}
	return r
}

// Describe builds the help text of a sound command.
func Describe(description string) string {
	text := fmt.Sprintf("Play a %s sound effect.", description)
	if runes := []rune(text); len(runes) > MaxDescriptionLength {
		text = string(runes[:MaxDescriptionLength-1]) + "…"
	}
	return text
}

// Load replaces the commands of scope with the valid sounds in the store.
// Nothing is published until Sync is called.
func (r *Registry) Load(scope sound.Scope) error {
	names, err := r.lister.ListValid(scope)
	if err != nil {
		return fmt.Errorf("failed to list sounds for %s: %w", scope, err)
	}

	loaded := make(map[string]Entry, len(names))
	for _, name := range names {
		if r.Reserved(name) {
			slog.Warn("Skipping sound named after a built-in command", "scope", scope.String(), "name", name)
			continue
		}
		meta, err := r.lister.Describe(scope, name)
		if err != nil {
			slog.Warn("Skipping sound that disappeared while loading", "scope", scope.String(), "name", name, "error", err)
			continue
		}
		entry := Entry{Name: name, Scope: scope, Description: Describe(meta.Description)}
		slog.Info("Adding command", "command", "/"+name, "scope", scope.String(), "description", entry.Description)
		loaded[name] = entry
	}

	r.mu.Lock()
	r.entries[scope] = loaded
	r.mu.Unlock()
	return nil
}

// Reserved reports whether name belongs to a static command. Such names
// never become sound commands in any scope.
func (r *Registry) Reserved(name string) bool {
	return slices.ContainsFunc(r.static, func(c *discordgo.ApplicationCommand) bool {
		return c.Name == name
	})
}

// Entries returns the loaded commands of scope sorted by name.
func (r *Registry) Entries(scope sound.Scope) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.entries[scope]))
	for _, e := range r.entries[scope] {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, byEntryName)
	return entries
}

func byEntryName(a, b Entry) int {
	return strings.Compare(a.Name, b.Name)
}

func boolPtr(b bool) *bool {
	return &b
}

// Definition is the application command published for a sound.
func Definition(e Entry) *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:         e.Name,
		Description:  e.Description,
		DMPermission: boolPtr(false),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "chat",
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Description: "If True, sends the sound in chat even if you're in voice.",
				Required:    false,
			},
		},
	}
}

// target is the scope a Sync of scope actually publishes to.
func (r *Registry) target(scope sound.Scope) sound.Scope {
	if scope.IsGlobal() && !r.debug.IsGlobal() {
		return r.debug
	}
	return scope
}

// definitions returns what gets published to target.
func (r *Registry) definitions(target sound.Scope) ([]*discordgo.ApplicationCommand, []Entry) {
	var sources []sound.Scope
	switch {
	case target.IsGlobal():
		sources = []sound.Scope{sound.Global()}
	case target == r.debug:
		sources = []sound.Scope{sound.Global(), target}
	default:
		sources = []sound.Scope{target}
	}

	var defs []*discordgo.ApplicationCommand
	if target.IsGlobal() || target == r.debug {
		defs = append(defs, r.static...)
	}

	// Later sources win on name clashes, so guild sounds shadow global ones.
	byName := make(map[string]Entry)
	for _, s := range sources {
		for _, e := range r.Entries(s) {
			byName[e.Name] = e
		}
	}
	entries := make([]Entry, 0, len(byName))
	for _, e := range byName {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, byEntryName)
	for _, e := range entries {
		defs = append(defs, Definition(e))
	}
	return defs, entries
}

// Sync publishes the commands of scope and remembers the IDs they were given.
func (r *Registry) Sync(ctx context.Context, scope sound.Scope) error {
	target := r.target(scope)
	defs, entries := r.definitions(target)

	published, err := r.publisher.Publish(ctx, target, defs)
	if err != nil {
		return fmt.Errorf("failed to publish commands for %s: %w", target, err)
	}

	byName := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.ids {
		if r.target(e.Scope) == target {
			delete(r.ids, id)
		}
	}
	for _, cmd := range published {
		if e, ok := byName[cmd.Name]; ok && cmd.ID != "" {
			r.ids[cmd.ID] = e
		}
	}
	slog.Info("Synced commands", "scope", target.String(), "count", len(defs))
	return nil
}

// Lookup resolves an invoked command to the sound it plays. The published
// command ID decides when known; otherwise guild sounds take precedence
// over global ones of the same name.
func (r *Registry) Lookup(commandID, name, guildID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.ids[commandID]; ok {
		return e, true
	}
	if guildID != "" {
		if e, ok := r.entries[sound.Guild(guildID)][name]; ok {
			return e, true
		}
	}
	e, ok := r.entries[sound.Global()][name]
	return e, ok
}

// Refresh loads and syncs a single scope, typically after it was edited.
func (r *Registry) Refresh(ctx context.Context, scope sound.Scope) error {
	if err := r.Load(scope); err != nil {
		return err
	}
	return r.Sync(ctx, scope)
}

// LoadAll loads and syncs the global scope and every guild scope in the store.
func (r *Registry) LoadAll(ctx context.Context) error {
	if err := r.Refresh(ctx, sound.Global()); err != nil {
		return err
	}

	scopes, err := r.lister.GuildScopes()
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(syncConcurrency)
	for _, scope := range scopes {
		g.Go(func() error {
			if err := r.Refresh(ctx, scope); err != nil {
				slog.Error("Failed to load guild commands", "guildID", scope.GuildID(), "error", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
