package datalayer_test

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/glizzus/soundboard/internal/datalayer"
	"github.com/glizzus/soundboard/internal/sound"
	"github.com/google/go-cmp/cmp"
)

type object struct {
	Body        string
	Size        int64
	ContentType string
}

type memoryBlobStorage struct {
	objects map[string]object
	deleted []string
}

func (m *memoryBlobStorage) Put(ctx context.Context, key string, data io.Reader, opts datalayer.PutOptions) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[key] = object{Body: string(raw), Size: opts.Size, ContentType: opts.ContentType}
	return nil
}

func (m *memoryBlobStorage) Delete(ctx context.Context, prefix string) error {
	m.deleted = append(m.deleted, prefix)
	return nil
}

func TestSoundMirror(t *testing.T) {
	store := sound.NewStore(t.TempDir())
	scope := sound.Guild("42")
	if _, err := store.Prepare(scope, "boop"); err != nil {
		t.Fatal(err)
	}
	variants := store.Paths(scope, "boop")
	if err := os.WriteFile(variants.General, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(variants.Transport, []byte("opus"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.Write(scope, "boop", sound.Metadata{Text: "Boop!", Description: "boop"}, variants); err != nil {
		t.Fatal(err)
	}

	blobs := &memoryBlobStorage{objects: make(map[string]object)}
	mirror := datalayer.NewSoundMirror(blobs, store)

	if err := mirror.Upload(context.Background(), scope, "boop"); err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	want := map[string]object{
		"42/boop/sound.mp3":  {Body: "mp3", Size: 3, ContentType: "audio/mpeg"},
		"42/boop/sound.opus": {Body: "opus", Size: 4, ContentType: "audio/ogg"},
		"42/boop/sound.json": {
			Body:        `{"text":"Boop!","name":"boop"}`,
			Size:        int64(len(`{"text":"Boop!","name":"boop"}`)),
			ContentType: "application/json",
		},
	}
	if diff := cmp.Diff(want, blobs.objects); diff != "" {
		t.Errorf("mirrored objects mismatch (-want +got):\n%s", diff)
	}

	if err := mirror.Remove(context.Background(), sound.Global(), "boop"); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"global/boop/"}, blobs.deleted); diff != "" {
		t.Errorf("deleted prefixes mismatch (-want +got):\n%s", diff)
	}
}

func TestSoundMirrorMissingRecord(t *testing.T) {
	blobs := &memoryBlobStorage{objects: make(map[string]object)}
	mirror := datalayer.NewSoundMirror(blobs, sound.NewStore(t.TempDir()))

	if err := mirror.Upload(context.Background(), sound.Global(), "nope"); err == nil {
		t.Error("expected an error for a missing record")
	}
	if len(blobs.objects) != 0 {
		t.Errorf("nothing should have been uploaded, got %v", blobs.objects)
	}
}
