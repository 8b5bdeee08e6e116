package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kora/backend/internal/config"
	"kora/backend/internal/fetch"
	"kora/backend/internal/middleware"
	"kora/backend/internal/worker"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrValidation marks request-shaped failures so the handler can answer 400.
var ErrValidation = errors.New("invalid source")

type Source struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Kind     string    `json:"kind"` // file | url
	Locator  string    `json:"locator"`
	Status   string    `json:"status"` // pending, processing, completed, failed
	Progress int       `json:"progress"`
	Error    string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Repository interface {
	Save(ctx context.Context, src *Source) error
	Get(ctx context.Context, id string) (*Source, error)
	List(ctx context.Context) ([]Source, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

type DocumentStore interface {
	DeleteBySource(ctx context.Context, sourceID string) error
	CountBySource(ctx context.Context, sourceID string) (int, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo Repository
	docs DocumentStore
	pub  EventPublisher
}

func NewService(repo Repository, docs DocumentStore, pub EventPublisher) *Service {
	return &Service{repo: repo, docs: docs, pub: pub}
}

func (s *Service) Create(ctx context.Context, src *Source) error {
	if src.Kind == "" {
		src.Kind = fetch.KindURL
	}
	if src.Kind != fetch.KindURL && src.Kind != fetch.KindFile {
		return fmt.Errorf("%w: unknown source kind %q", ErrValidation, src.Kind)
	}
	if src.Locator == "" {
		return fmt.Errorf("%w: locator is required", ErrValidation)
	}

	src.Status = StatusPending
	if err := s.repo.Save(ctx, src); err != nil {
		return err
	}

	s.enqueue(ctx, src.ID)
	return nil
}

// Upload registers an already-materialized file as a source. The handler has
// written the file to disk before this is called.
func (s *Service) Upload(ctx context.Context, path, name string) (*Source, error) {
	src := &Source{
		Name:    name,
		Kind:    fetch.KindFile,
		Locator: path,
		Status:  StatusPending,
	}
	if err := s.repo.Save(ctx, src); err != nil {
		return nil, err
	}

	s.enqueue(ctx, src.ID)
	return src, nil
}

type SourceDetail struct {
	Source
	ChunkCount int `json:"chunk_count"`
}

func (s *Service) Get(ctx context.Context, id string) (*SourceDetail, error) {
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := s.docs.CountBySource(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "failed to count chunks", "error", err, "source_id", id)
	}

	return &SourceDetail{Source: *src, ChunkCount: count}, nil
}

func (s *Service) List(ctx context.Context) ([]Source, error) {
	return s.repo.List(ctx)
}

// Delete removes the source and every chunk derived from it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.docs.DeleteBySource(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// DeleteAll wipes every source; documents go with them via ON DELETE CASCADE.
func (s *Service) DeleteAll(ctx context.Context) error {
	return s.repo.DeleteAll(ctx)
}

// Reingest re-queues an existing source. A failed status is cleared only
// here; ingestion failures never retry on their own.
func (s *Service) Reingest(ctx context.Context, id string) error {
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	payload, _ := json.Marshal(worker.IngestTaskPayload{
		SourceID:      src.ID,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicIngestTask, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish reingest task", "error", err, "source_id", id)
		return err
	}
	return nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Service) enqueue(ctx context.Context, sourceID string) {
	payload, _ := json.Marshal(worker.IngestTaskPayload{
		SourceID:      sourceID,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicIngestTask, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish ingest task", "error", err, "source_id", sourceID)
	} else {
		slog.InfoContext(ctx, "published ingest task", "source_id", sourceID)
	}
}
