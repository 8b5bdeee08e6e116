// Package embed turns chunk text into vectors by calling the configured
// provider in bounded batches. Batches run sequentially on purpose: it
// keeps provider rate limits respected and progress monotonic.
package embed

import (
	"context"
	"log/slog"
	"math"
	"time"

	"kora/backend/internal/ratelimit"
)

const DefaultBatchSize = 5

// EmbedClient is the provider capability the batcher needs.
type EmbedClient interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

type Batcher struct {
	batchSize    int
	limiter      ratelimit.Waiter
	batchTimeout time.Duration
}

func NewBatcher(batchSize int, limiter ratelimit.Waiter) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Batcher{
		batchSize:    batchSize,
		limiter:      limiter,
		batchTimeout: 60 * time.Second,
	}
}

// EmbedAll embeds every chunk and returns vectors parallel to the input.
// After each batch it reports round(processed/total*100) to onProgress.
// The batcher never writes state itself; the sink belongs to the caller.
func (b *Batcher) EmbedAll(ctx context.Context, providerName, model string, client EmbedClient, chunks []string, onProgress func(percent int)) ([][]float32, error) {
	total := len(chunks)
	if total == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, total)
	processed := 0

	for start := 0; start < total; start += b.batchSize {
		end := start + b.batchSize
		if end > total {
			end = total
		}
		batch := chunks[start:end]

		if b.limiter != nil {
			if err := b.limiter.Wait(ctx, providerName, "embed"); err != nil {
				return nil, err
			}
		}

		batchCtx, cancel := context.WithTimeout(ctx, b.batchTimeout)
		vecs, err := client.Embed(batchCtx, model, batch)
		cancel()
		if err != nil {
			return nil, err
		}

		vectors = append(vectors, vecs...)
		processed += len(batch)

		percent := int(math.Round(float64(processed) / float64(total) * 100))
		slog.DebugContext(ctx, "embedded batch", "processed", processed, "total", total, "percent", percent)
		if onProgress != nil {
			onProgress(percent)
		}
	}

	return vectors, nil
}
