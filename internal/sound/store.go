// Package sound stores sound records on disk.
//
// Each record lives in its own directory named after the sound and holds a
// metadata file plus two encodings of the same audio: an MP3 for uploading
// into chat and an Ogg/Opus file that is streamed into voice without
// re-encoding. Guild records live under a hidden ".guild/<id>" subtree of the
// root; everything else at the root is global.
package sound

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	MetadataFile  = "sound.json"
	GeneralFile   = "sound.mp3"
	TransportFile = "sound.opus"

	guildDir = ".guild"
)

var (
	ErrNotFound    = errors.New("sound not found")
	ErrInvalidName = errors.New("sound name must consist only of 1-32 lowercase letters and numbers")
)

var namePattern = regexp.MustCompile(`^[a-z0-9]{1,32}$`)

// ValidateName reports whether name can be used as a sound and command name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Scope is the namespace of a sound: global or a single guild.
type Scope struct {
	guildID string
}

func Global() Scope {
	return Scope{}
}

func Guild(guildID string) Scope {
	return Scope{guildID: guildID}
}

func (s Scope) IsGlobal() bool {
	return s.guildID == ""
}

// GuildID is empty for the global scope.
func (s Scope) GuildID() string {
	return s.guildID
}

func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return s.guildID
}

// Metadata is the content of a record's metadata file.
type Metadata struct {
	Text        string `json:"text"`
	Description string `json:"name"`
}

// Variants holds the paths of the two encodings of a sound.
type Variants struct {
	General   string
	Transport string
}

// Store is a directory tree of sound records.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) scopeDir(scope Scope) string {
	if scope.IsGlobal() {
		return s.root
	}
	return filepath.Join(s.root, guildDir, scope.guildID)
}

// Dir returns the directory of a record without touching the filesystem.
func (s *Store) Dir(scope Scope, name string) string {
	return filepath.Join(s.scopeDir(scope), name)
}

// Paths returns where the two variants of a record are kept.
func (s *Store) Paths(scope Scope, name string) Variants {
	dir := s.Dir(scope, name)
	return Variants{
		General:   filepath.Join(dir, GeneralFile),
		Transport: filepath.Join(dir, TransportFile),
	}
}

// Prepare validates name and creates the record directory if needed.
// Nothing is created for an invalid name.
func (s *Store) Prepare(scope Scope, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	dir := s.Dir(scope, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create sound directory: %w", err)
	}
	return dir, nil
}

// Resolve returns the display text and the path of the MP3 variant.
func (s *Store) Resolve(scope Scope, name string) (string, string, error) {
	meta, variants, err := s.load(scope, name)
	if err != nil {
		return "", "", err
	}
	return meta.Text, variants.General, nil
}

// ResolveForVoice returns the display text and the path of the Opus variant.
func (s *Store) ResolveForVoice(scope Scope, name string) (string, string, error) {
	meta, variants, err := s.load(scope, name)
	if err != nil {
		return "", "", err
	}
	return meta.Text, variants.Transport, nil
}

// Describe returns the metadata of a complete record.
func (s *Store) Describe(scope Scope, name string) (Metadata, error) {
	meta, _, err := s.load(scope, name)
	return meta, err
}

func (s *Store) load(scope Scope, name string) (Metadata, Variants, error) {
	if !namePattern.MatchString(name) {
		return Metadata{}, Variants{}, fmt.Errorf("%w: %s/%s", ErrNotFound, scope, name)
	}

	variants := s.Paths(scope, name)
	for _, path := range []string{variants.General, variants.Transport} {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Metadata{}, Variants{}, fmt.Errorf("%w: %s/%s", ErrNotFound, scope, name)
			}
			return Metadata{}, Variants{}, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	raw, err := os.ReadFile(filepath.Join(s.Dir(scope, name), MetadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Metadata{}, Variants{}, fmt.Errorf("%w: %s/%s", ErrNotFound, scope, name)
		}
		return Metadata{}, Variants{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, Variants{}, fmt.Errorf("malformed metadata for %s/%s: %w", scope, name, err)
	}
	return meta, variants, nil
}

// ListValid returns the names of the complete records in scope.
//
// Empty directories left behind by an aborted upload are removed on the way.
// Directories that are neither empty nor complete are skipped.
func (s *Store) ListValid(scope Scope) ([]string, error) {
	dir := s.scopeDir(scope)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !namePattern.MatchString(name) {
			continue
		}

		// Removing a non-empty directory fails, which means it is worth a look.
		if err := os.Remove(filepath.Join(dir, name)); err == nil {
			slog.Debug("Pruned empty sound directory", "scope", scope.String(), "name", name)
			continue
		}

		if _, _, err := s.load(scope, name); err != nil {
			slog.Warn("Skipping incomplete sound", "scope", scope.String(), "name", name, "error", err)
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// GuildScopes returns every guild that has a subtree in the store.
func (s *Store) GuildScopes() ([]Scope, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, guildDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list guilds: %w", err)
	}

	var scopes []Scope
	for _, entry := range entries {
		if !entry.IsDir() || !isDigits(entry.Name()) {
			continue
		}
		scopes = append(scopes, Guild(entry.Name()))
	}
	return scopes, nil
}

func isDigits(s string) bool {
	return s != "" && strings.Trim(s, "0123456789") == ""
}

// Write stores a record. Variants that are not already at their canonical
// paths are moved there; the metadata file is written last so that readers
// never see text without audio.
func (s *Store) Write(scope Scope, name string, meta Metadata, variants Variants) error {
	dir, err := s.Prepare(scope, name)
	if err != nil {
		return err
	}

	dest := s.Paths(scope, name)
	moves := []struct{ from, to string }{
		{variants.General, dest.General},
		{variants.Transport, dest.Transport},
	}
	for _, m := range moves {
		if m.from == "" {
			return fmt.Errorf("missing audio variant for %s", m.to)
		}
		if filepath.Clean(m.from) == filepath.Clean(m.to) {
			continue
		}
		if err := os.Rename(m.from, m.to); err != nil {
			return fmt.Errorf("failed to move %s into place: %w", m.from, err)
		}
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sound-*.json")
	if err != nil {
		return fmt.Errorf("failed to create metadata file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, MetadataFile)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to commit metadata: %w", err)
	}
	return nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *Store) Delete(scope Scope, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.RemoveAll(s.Dir(scope, name)); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", scope, name, err)
	}
	return nil
}
