// Package authoring creates and removes sounds on behalf of users.
package authoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/glizzus/soundboard/internal/sound"
	"github.com/glizzus/soundboard/internal/transcode"
)

// ErrNoSource means neither a file nor a link was given.
var ErrNoSource = errors.New("no file or link to the sound was given")

// ErrReservedName means the name belongs to a built-in command.
var ErrReservedName = errors.New("name is taken by a built-in command")

type Store interface {
	Prepare(scope sound.Scope, name string) (string, error)
	Paths(scope sound.Scope, name string) sound.Variants
	Write(scope sound.Scope, name string, meta sound.Metadata, variants sound.Variants) error
	Delete(scope sound.Scope, name string) error
}

type Pipeline interface {
	FetchAttachment(ctx context.Context, dir string, attachment transcode.Attachment) (string, error)
	FetchLink(ctx context.Context, dir, link string) (string, error)
	Encode(ctx context.Context, src string, variants sound.Variants) error
}

// Refresher republishes the commands of a scope.
type Refresher interface {
	Refresh(ctx context.Context, scope sound.Scope) error
	// Reserved reports whether name cannot be used for a sound.
	Reserved(name string) bool
}

// Mirror keeps an off-host copy of records. Failures are logged, not returned.
type Mirror interface {
	Upload(ctx context.Context, scope sound.Scope, name string) error
	Remove(ctx context.Context, scope sound.Scope, name string) error
}

type CreateRequest struct {
	Name        string
	Text        string
	Description string
	// Attachment takes precedence over Link.
	Attachment *transcode.Attachment
	Link       string
}

type Author struct {
	store    Store
	pipeline Pipeline
	registry Refresher
	mirror   Mirror
}

// NewAuthor returns an Author. mirror may be nil.
func NewAuthor(store Store, pipeline Pipeline, registry Refresher, mirror Mirror) *Author {
	return &Author{store: store, pipeline: pipeline, registry: registry, mirror: mirror}
}

// Create adds or replaces a sound in scope and republishes the scope's commands.
func (a *Author) Create(ctx context.Context, scope sound.Scope, req CreateRequest) error {
	if req.Attachment == nil && strings.TrimSpace(req.Link) == "" {
		return ErrNoSource
	}
	if a.registry.Reserved(req.Name) {
		return fmt.Errorf("/%s: %w", req.Name, ErrReservedName)
	}

	dir, err := a.store.Prepare(scope, req.Name)
	if err != nil {
		return err
	}

	var src string
	if req.Attachment != nil {
		src, err = a.pipeline.FetchAttachment(ctx, dir, *req.Attachment)
	} else {
		src, err = a.pipeline.FetchLink(ctx, dir, req.Link)
	}
	if err != nil {
		removeIfEmpty(dir)
		return err
	}
	slog.Debug("Saved source", "scope", scope.String(), "name", req.Name, "path", src)

	variants := a.store.Paths(scope, req.Name)
	if err := a.pipeline.Encode(ctx, src, variants); err != nil {
		return err
	}

	meta := sound.Metadata{Text: req.Text, Description: req.Description}
	if err := a.store.Write(scope, req.Name, meta, variants); err != nil {
		return err
	}

	if err := a.registry.Refresh(ctx, scope); err != nil {
		return fmt.Errorf("failed to refresh commands: %w", err)
	}

	if a.mirror != nil {
		if err := a.mirror.Upload(ctx, scope, req.Name); err != nil {
			slog.Warn("Failed to mirror sound", "scope", scope.String(), "name", req.Name, "error", err)
		}
	}
	slog.Info("Sound saved", "scope", scope.String(), "name", req.Name)
	return nil
}

// Delete removes a sound from scope if it exists and republishes the scope's commands.
func (a *Author) Delete(ctx context.Context, scope sound.Scope, name string) error {
	if err := a.store.Delete(scope, name); err != nil {
		return err
	}

	if err := a.registry.Refresh(ctx, scope); err != nil {
		return fmt.Errorf("failed to refresh commands: %w", err)
	}

	if a.mirror != nil {
		if err := a.mirror.Remove(ctx, scope, name); err != nil {
			slog.Warn("Failed to remove mirrored sound", "scope", scope.String(), "name", name, "error", err)
		}
	}
	slog.Info("Sound removed", "scope", scope.String(), "name", name)
	return nil
}

func removeIfEmpty(dir string) {
	// Fails harmlessly when an earlier version of the record is still there.
	_ = os.Remove(dir)
}

// UserMessage describes a Create or Delete failure to the user who asked for it.
func UserMessage(err error) string {
	var downloadErr *transcode.DownloadError
	var convErr *transcode.ConversionError

	switch {
	case errors.Is(err, sound.ErrInvalidName):
		return "Command name must consist only of 1-32 letters and numbers"
	case errors.Is(err, ErrReservedName):
		return "Command name is already used by a built-in command"
	case errors.Is(err, ErrNoSource):
		return "Upload a file or link to the sound to use."
	case errors.Is(err, transcode.ErrUnsupportedInput):
		return "Failed to download attachment: Does not seem to be ffmpeg-compatible"
	case errors.As(err, &downloadErr):
		return fmt.Sprintf("Failed to download link: %v", downloadErr.Err)
	case errors.As(err, &convErr):
		if convErr.Stage == transcode.StageExtract {
			return fmt.Sprintf("Failed to download link:\n```\n%s\n```", convErr.Output)
		}
		return fmt.Sprintf("Failed to convert audio:\n```\n%s\n```", convErr.Output)
	default:
		return "Something went wrong while updating the command. Try again later."
	}
}
