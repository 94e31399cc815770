// Package worker records command usage off the interaction path.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/glizzus/soundboard/internal/repository"
)

const (
	// DefaultQueueSize is how many usages can wait before new ones are dropped.
	DefaultQueueSize = 256
	// DefaultBatchSize is the most usages written in one call.
	DefaultBatchSize = 32
	// DefaultFlushInterval bounds how long a usage waits to be written.
	DefaultFlushInterval = 5 * time.Second
)

// UsageRecorder queues usages and writes them in batches from Run.
type UsageRecorder struct {
	recorder      repository.StatsRecorder
	queue         chan repository.Usage
	batchSize     int
	flushInterval time.Duration
}

func NewUsageRecorder(recorder repository.StatsRecorder) *UsageRecorder {
	return &UsageRecorder{
		recorder:      recorder,
		queue:         make(chan repository.Usage, DefaultQueueSize),
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
	}
}

// Enqueue never blocks. It reports false when the queue is full and the usage was dropped.
func (r *UsageRecorder) Enqueue(usage repository.Usage) bool {
	select {
	case r.queue <- usage:
		return true
	default:
		slog.Warn("Usage queue is full, dropping usage", "command", usage.Command, "guildID", usage.GuildID)
		return false
	}
}

// Run writes queued usages until ctx is done, then writes what is left.
func (r *UsageRecorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]repository.Usage, 0, r.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := r.recorder.Record(ctx, batch...); err != nil {
			slog.Error("Failed to record usages", "count", len(batch), "error", err)
		} else {
			slog.Debug("Recorded usages", "count", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case usage := <-r.queue:
			batch = append(batch, usage)
			if len(batch) >= r.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			r.drain(&batch)
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(flushCtx)
			cancel()
			return
		}
	}
}

func (r *UsageRecorder) drain(batch *[]repository.Usage) {
	for {
		select {
		case usage := <-r.queue:
			*batch = append(*batch, usage)
		default:
			return
		}
	}
}
