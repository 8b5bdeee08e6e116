package worker

import (
	"context"

	"kora/backend/internal/document"
	"kora/backend/internal/settings"
)

// IngestTaskPayload is the message published to the ingest.task topic when a
// source is created or re-ingested.
type IngestTaskPayload struct {
	SourceID      string `json:"source_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// SourceInfo is the slice of a knowledge source the orchestrator needs.
type SourceInfo struct {
	ID      string
	Name    string
	Kind    string
	Locator string
}

type SourceStore interface {
	Info(ctx context.Context, id string) (SourceInfo, error)
	SetProcessing(ctx context.Context, id string) error
	SetProgress(ctx context.Context, id string, progress int) error
	SetCompleted(ctx context.Context, id string) error
	SetFailed(ctx context.Context, id, message string) error
}

type DocumentStore interface {
	InsertBatch(ctx context.Context, docs []document.Document) error
	DeleteBySource(ctx context.Context, sourceID string) error
	Dimension(ctx context.Context) (int, error)
}

type ContentFetcher interface {
	Fetch(ctx context.Context, kind, locator string) (string, error)
}

type SettingsReader interface {
	Get(ctx context.Context, purpose string) (*settings.ModelConfig, error)
}

type KeyReader interface {
	Get(ctx context.Context, provider string) (string, error)
}
