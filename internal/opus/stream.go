package opus

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrVoiceConnClosed = errors.New("voice connection send timeout")

// SendTimeout bounds how long a single frame may wait for the voice connection.
const SendTimeout = time.Minute

// Stream reads Opus frames from source and sends them on send. It blocks
// until all frames are sent, ctx is done, or a frame cannot be delivered
// within SendTimeout. Returns nil on clean EOF.
func Stream(ctx context.Context, source FrameSource, send chan<- []byte) error {
	timer := time.NewTimer(SendTimeout)
	defer timer.Stop()

	for {
		frame, err := source.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(SendTimeout)

		select {
		case send <- frame:
		case <-timer.C:
			return ErrVoiceConnClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
