package datalayer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glizzus/soundboard/internal/sound"
)

var contentTypes = map[string]string{
	sound.MetadataFile:  "application/json",
	sound.GeneralFile:   "audio/mpeg",
	sound.TransportFile: "audio/ogg",
}

// SoundMirror copies sound records into blob storage under
// "<scope>/<name>/<file>".
type SoundMirror struct {
	storage BlobStorage
	store   *sound.Store
}

func NewSoundMirror(storage BlobStorage, store *sound.Store) *SoundMirror {
	return &SoundMirror{storage: storage, store: store}
}

func mirrorPrefix(scope sound.Scope, name string) string {
	return scope.String() + "/" + name + "/"
}

// Upload copies the files of a complete record.
func (m *SoundMirror) Upload(ctx context.Context, scope sound.Scope, name string) error {
	dir := m.store.Dir(scope, name)
	for _, file := range []string{sound.GeneralFile, sound.TransportFile, sound.MetadataFile} {
		if err := m.put(ctx, filepath.Join(dir, file), mirrorPrefix(scope, name)+file, contentTypes[file]); err != nil {
			return err
		}
	}
	return nil
}

func (m *SoundMirror) put(ctx context.Context, path, key, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := m.storage.Put(ctx, key, f, PutOptions{Size: info.Size(), ContentType: contentType}); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Remove deletes the mirrored copy of a record.
func (m *SoundMirror) Remove(ctx context.Context, scope sound.Scope, name string) error {
	if err := m.storage.Delete(ctx, mirrorPrefix(scope, name)); err != nil {
		return fmt.Errorf("failed to remove mirror of %s/%s: %w", scope, name, err)
	}
	return nil
}
