// Package retrieval answers "which chunks ground this question": it embeds
// the query with the configured embedding model and runs a similarity match
// against the document store.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"kora/backend/internal/document"
	"kora/backend/internal/middleware"
	"kora/backend/internal/pipeline"
	"kora/backend/internal/provider"
	"kora/backend/internal/ratelimit"
	"kora/backend/internal/settings"
)

const (
	DefaultTopK      = 5
	DefaultThreshold = 0.78
)

type Matcher interface {
	Match(ctx context.Context, vector []float32, threshold float64, topK int) ([]document.Match, error)
	Dimension(ctx context.Context) (int, error)
}

type SettingsReader interface {
	Get(ctx context.Context, purpose string) (*settings.ModelConfig, error)
}

type KeyReader interface {
	Get(ctx context.Context, provider string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

type Service struct {
	docs      Matcher
	settings  SettingsReader
	keys      KeyReader
	limiter   ratelimit.Waiter
	logger    *QueryLogger
	topK      int
	threshold float64
	newClient func(kind provider.Kind, baseURL, apiKey string) Embedder
}

func NewService(docs Matcher, set SettingsReader, keys KeyReader, limiter ratelimit.Waiter, logger *QueryLogger, topK int, threshold float64) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Service{
		docs:      docs,
		settings:  set,
		keys:      keys,
		limiter:   limiter,
		logger:    logger,
		topK:      topK,
		threshold: threshold,
		newClient: func(kind provider.Kind, baseURL, apiKey string) Embedder {
			return provider.NewClient(kind, baseURL, apiKey)
		},
	}
}

// Retrieve embeds the query and returns the best matching chunks, most
// similar first. No matches is a valid outcome, not an error.
func (s *Service) Retrieve(ctx context.Context, query string) ([]document.Match, error) {
	start := time.Now()

	cfg, err := s.settings.Get(ctx, settings.PurposeEmbedding)
	if err != nil {
		return nil, fmt.Errorf("no embedding model configured: %w", err)
	}
	kind, err := provider.KindOf(cfg.Provider)
	if err != nil {
		return nil, err
	}
	apiKey, err := s.keys.Get(ctx, cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("no api key for provider %s: %w", cfg.Provider, err)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, cfg.Provider, "embed"); err != nil {
			return nil, err
		}
	}

	vectors, err := s.newClient(kind, cfg.BaseURL, apiKey).Embed(ctx, cfg.Model, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected one query vector, got %d", len(vectors))
	}
	vec := vectors[0]

	stored, err := s.docs.Dimension(ctx)
	if err != nil {
		return nil, &pipeline.PersistenceError{Op: "read corpus dimension", Err: err}
	}
	if stored > 0 && stored != len(vec) {
		return nil, &pipeline.ConfigMismatchError{QueryDims: len(vec), StoreDims: stored}
	}

	matches, err := s.docs.Match(ctx, vec, s.threshold, s.topK)
	if err != nil {
		return nil, &pipeline.PersistenceError{Op: "similarity match", Err: err}
	}

	if s.logger != nil {
		top := 0.0
		if len(matches) > 0 {
			top = matches[0].Similarity
		}
		s.logger.Log(QueryLogEntry{
			Query:         query,
			NumResults:    len(matches),
			TopSimilarity: top,
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	return matches, nil
}
