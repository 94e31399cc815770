package voice

import (
	"context"
	"sync"
)

// result is resolved once by a playback callback and awaited by the
// request that started the playback.
type result struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newResult() *result {
	return &result{done: make(chan struct{})}
}

// resolve records err. Calls after the first are ignored.
func (r *result) resolve(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

func (r *result) wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
