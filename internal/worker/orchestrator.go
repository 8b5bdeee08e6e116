// Package worker drives ingestion: it consumes ingest.task messages, runs a
// source through fetch, chunk, embed and persist, and records the outcome on
// the source row. Progress is mirrored to the ingest.progress topic for live
// watchers, but only the database state is authoritative.
package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nsqio/go-nsq"

	"kora/backend/internal/document"
	"kora/backend/internal/embed"
	"kora/backend/internal/middleware"
	"kora/backend/internal/pipeline"
	"kora/backend/internal/provider"
	"kora/backend/internal/settings"
	"kora/backend/internal/text"
)

// ClientFactory builds a provider client for one ingestion run. Tests swap
// it for a stub so no network is touched.
type ClientFactory func(kind provider.Kind, baseURL, apiKey string) embed.EmbedClient

type OrchestratorConfig struct {
	ChunkMaxSize int
	ChunkOverlap int
}

type Orchestrator struct {
	cfg       OrchestratorConfig
	fetcher   ContentFetcher
	sources   SourceStore
	docs      DocumentStore
	settings  SettingsReader
	keys      KeyReader
	batcher   *embed.Batcher
	events    *Broadcaster
	newClient ClientFactory

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewOrchestrator(cfg OrchestratorConfig, fetcher ContentFetcher, sources SourceStore, docs DocumentStore, set SettingsReader, keys KeyReader, batcher *embed.Batcher, events *Broadcaster) *Orchestrator {
	if cfg.ChunkMaxSize <= 0 {
		cfg.ChunkMaxSize = text.DefaultMaxSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = text.DefaultOverlap
	}
	return &Orchestrator{
		cfg:      cfg,
		fetcher:  fetcher,
		sources:  sources,
		docs:     docs,
		settings: set,
		keys:     keys,
		batcher:  batcher,
		events:   events,
		newClient: func(kind provider.Kind, baseURL, apiKey string) embed.EmbedClient {
			return provider.NewClient(kind, baseURL, apiKey)
		},
		inflight: make(map[string]struct{}),
	}
}

func (o *Orchestrator) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestTaskPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid ingest task", "error", err)
		return nil
	}
	if payload.SourceID == "" {
		slog.Error("ingest task missing source_id, dropping")
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	if err := o.Ingest(ctx, payload.SourceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.WarnContext(ctx, "ingest task for unknown source, dropping", "source_id", payload.SourceID)
			return nil
		}
		// The failure is already recorded on the source row; a terminal
		// failed status is cleared only by an explicit re-ingest.
		slog.ErrorContext(ctx, "ingestion failed", "source_id", payload.SourceID, "error", err)
	}
	return nil
}

// Ingest runs the full pipeline for one source. Concurrent runs for the same
// source are collapsed; the second caller returns immediately.
func (o *Orchestrator) Ingest(ctx context.Context, sourceID string) error {
	if !o.tryLock(sourceID) {
		slog.InfoContext(ctx, "ingestion already in flight, skipping", "source_id", sourceID)
		return nil
	}
	defer o.unlock(sourceID)

	info, err := o.sources.Info(ctx, sourceID)
	if err != nil {
		return err
	}

	if err := o.sources.SetProcessing(ctx, sourceID); err != nil {
		return &pipeline.PersistenceError{Op: "set processing", Err: err}
	}
	o.events.Broadcast(ctx, ProgressEvent{SourceID: sourceID, Status: "processing", Progress: 0})

	if err := o.run(ctx, info); err != nil {
		o.fail(ctx, sourceID, err)
		return err
	}

	if err := o.sources.SetCompleted(ctx, sourceID); err != nil {
		return &pipeline.PersistenceError{Op: "set completed", Err: err}
	}
	o.events.Broadcast(ctx, ProgressEvent{SourceID: sourceID, Status: "completed", Progress: 100})
	slog.InfoContext(ctx, "source ingestion completed", "source_id", sourceID)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, info SourceInfo) error {
	content, err := o.fetcher.Fetch(ctx, info.Kind, info.Locator)
	if err != nil {
		return err
	}

	chunks := text.Chunk(content, o.cfg.ChunkMaxSize, o.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return fmt.Errorf("no text content extracted from %s", info.Locator)
	}
	slog.InfoContext(ctx, "source chunked", "source_id", info.ID, "chunks", len(chunks))

	cfg, err := o.settings.Get(ctx, settings.PurposeEmbedding)
	if err != nil {
		return fmt.Errorf("no embedding model configured: %w", err)
	}
	kind, err := provider.KindOf(cfg.Provider)
	if err != nil {
		return err
	}
	apiKey, err := o.keys.Get(ctx, cfg.Provider)
	if err != nil {
		return fmt.Errorf("no api key for provider %s: %w", cfg.Provider, err)
	}

	client := o.newClient(kind, cfg.BaseURL, apiKey)
	vectors, err := o.batcher.EmbedAll(ctx, cfg.Provider, cfg.Model, client, chunks, func(percent int) {
		if err := o.sources.SetProgress(ctx, info.ID, percent); err != nil {
			slog.WarnContext(ctx, "failed to persist progress", "error", err, "source_id", info.ID)
		}
		o.events.Broadcast(ctx, ProgressEvent{SourceID: info.ID, Status: "processing", Progress: percent})
	})
	if err != nil {
		return err
	}

	if err := o.checkDimensions(ctx, cfg, vectors); err != nil {
		return err
	}

	docs := make([]document.Document, len(chunks))
	now := time.Now().UTC()
	for i, chunk := range chunks {
		docs[i] = document.Document{
			SourceID:  info.ID,
			Content:   chunk,
			Embedding: vectors[i],
			Metadata: document.Metadata{
				ChunkIndex:  i,
				TotalChunks: len(chunks),
				SourceName:  info.Name,
				ProcessedAt: now,
			},
		}
	}

	// Delete then insert keeps re-ingestion idempotent.
	if err := o.docs.DeleteBySource(ctx, info.ID); err != nil {
		return &pipeline.PersistenceError{Op: "delete documents", Err: err}
	}
	if err := o.docs.InsertBatch(ctx, docs); err != nil {
		return &pipeline.PersistenceError{Op: "insert documents", Err: err}
	}
	return nil
}

// checkDimensions refuses to mix vector widths inside one corpus. The new
// vectors must agree with both the configured dimensions and whatever is
// already stored.
func (o *Orchestrator) checkDimensions(ctx context.Context, cfg *settings.ModelConfig, vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	got := len(vectors[0])

	if cfg.Dimensions > 0 && got != cfg.Dimensions {
		return &pipeline.ConfigMismatchError{QueryDims: got, StoreDims: cfg.Dimensions}
	}

	stored, err := o.docs.Dimension(ctx)
	if err != nil {
		return &pipeline.PersistenceError{Op: "read corpus dimension", Err: err}
	}
	if stored > 0 && got != stored {
		return &pipeline.ConfigMismatchError{QueryDims: got, StoreDims: stored}
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, sourceID string, cause error) {
	if err := o.sources.SetFailed(ctx, sourceID, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "failed to record ingestion failure", "error", err, "source_id", sourceID)
	}
	o.events.Broadcast(ctx, ProgressEvent{SourceID: sourceID, Status: "failed", Message: cause.Error()})
}

func (o *Orchestrator) tryLock(sourceID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[sourceID]; busy {
		return false
	}
	o.inflight[sourceID] = struct{}{}
	return true
}

func (o *Orchestrator) unlock(sourceID string) {
	o.mu.Lock()
	delete(o.inflight, sourceID)
	o.mu.Unlock()
}
