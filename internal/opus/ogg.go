package opus

import (
	"errors"
	"io"

	"github.com/jonas747/ogg"
)

// FrameSource yields raw Opus frames. ReadFrame returns io.EOF when done.
type FrameSource interface {
	ReadFrame() ([]byte, error)
}

// oggHeaderPackets is the number of leading packets in an Ogg/Opus stream
// that carry OpusHead and OpusTags rather than audio.
const oggHeaderPackets = 2

// OggReader reads Opus packets out of an Ogg container.
type OggReader struct {
	decoder *ogg.PacketDecoder
	skip    int
}

// NewOggReader returns an OggReader that reads the Ogg stream from r.
func NewOggReader(r io.Reader) *OggReader {
	return &OggReader{
		decoder: ogg.NewPacketDecoder(ogg.NewDecoder(r)),
		skip:    oggHeaderPackets,
	}
}

// ReadFrame returns the next audio packet. Empty packets, such as the one
// closing the stream, are skipped.
// A truncated final page is treated as the end of the stream.
func (o *OggReader) ReadFrame() ([]byte, error) {
	for {
		packet, _, err := o.decoder.Decode()
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		if len(packet) == 0 {
			continue
		}
		if o.skip > 0 {
			o.skip--
			continue
		}
		return packet, nil
	}
}

var _ FrameSource = (*OggReader)(nil)
