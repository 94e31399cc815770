package opus_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/glizzus/soundboard/internal/opus"
	"github.com/google/go-cmp/cmp"
	"github.com/jonas747/ogg"
)

var (
	opusHead = append([]byte("OpusHead"), 1, 2, 0x38, 0x01, 0x80, 0xbb, 0, 0, 0, 0, 0)
	opusTags = append([]byte("OpusTags"), 0, 0, 0, 0, 0, 0, 0, 0)
)

// encodeOgg writes the Opus headers followed by packets, one page each.
func encodeOgg(t *testing.T, eos bool, packets ...[]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	enc := ogg.NewEncoder(1, &buf)
	if err := enc.EncodeBOS(0, opusHead); err != nil {
		t.Fatal(err)
	}
	if err := enc.Encode(0, opusTags); err != nil {
		t.Fatal(err)
	}
	for i, p := range packets {
		if err := enc.Encode(int64(i+1)*960, p); err != nil {
			t.Fatal(err)
		}
	}
	if eos {
		if err := enc.EncodeEOS(); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

func readFrames(t *testing.T, source opus.FrameSource) [][]byte {
	t.Helper()

	var frames [][]byte
	for {
		frame, err := source.ReadFrame()
		if errors.Is(err, io.EOF) {
			return frames
		}
		if err != nil {
			t.Fatalf("ReadFrame returned error: %v", err)
		}
		frames = append(frames, frame)
	}
}

func TestOggReader(t *testing.T) {
	// A packet that fills every segment of its page continues on the next one.
	full := bytes.Repeat([]byte{5}, ogg.MaxPacketSize)

	tests := []struct {
		name    string
		eos     bool
		packets [][]byte
		cut     int
		want    [][]byte
	}{
		{
			name:    "headers and closing page are skipped",
			eos:     true,
			packets: [][]byte{{1, 1}, {2, 2, 2}, {3}},
			want:    [][]byte{{1, 1}, {2, 2, 2}, {3}},
		},
		{
			name:    "headers only",
			eos:     true,
			packets: nil,
			want:    nil,
		},
		{
			name:    "packet continued across pages",
			eos:     true,
			packets: [][]byte{full, {5, 5}},
			want:    [][]byte{bytes.Repeat([]byte{5}, ogg.MaxPacketSize+2)},
		},
		{
			name:    "truncated final page ends the stream",
			packets: [][]byte{{1, 1}, {2, 2, 2, 2}},
			cut:     2,
			want:    [][]byte{{1, 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := encodeOgg(t, tt.eos, tt.packets...)
			stream = stream[:len(stream)-tt.cut]

			got := readFrames(t, opus.NewOggReader(bytes.NewReader(stream)))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("frames mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOggReaderRejectsCorruptPages(t *testing.T) {
	stream := encodeOgg(t, true, []byte{1, 1})
	// Flip a payload byte of the audio page so its checksum no longer matches.
	stream[len(stream)-29] ^= 0xff

	reader := opus.NewOggReader(bytes.NewReader(stream))
	_, err := reader.ReadFrame()
	var crcErr ogg.ErrBadCrc
	if !errors.As(err, &crcErr) {
		t.Fatalf("ReadFrame = %v, want a checksum error", err)
	}
}
