package worker

import (
	"context"

	"github.com/stretchr/testify/mock"

	"kora/backend/internal/document"
	"kora/backend/internal/settings"
)

type MockSourceStore struct{ mock.Mock }

func (m *MockSourceStore) Info(ctx context.Context, id string) (SourceInfo, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(SourceInfo), args.Error(1)
}

func (m *MockSourceStore) SetProcessing(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSourceStore) SetProgress(ctx context.Context, id string, progress int) error {
	return m.Called(ctx, id, progress).Error(0)
}

func (m *MockSourceStore) SetCompleted(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSourceStore) SetFailed(ctx context.Context, id, message string) error {
	return m.Called(ctx, id, message).Error(0)
}

type MockDocumentStore struct{ mock.Mock }

func (m *MockDocumentStore) InsertBatch(ctx context.Context, docs []document.Document) error {
	return m.Called(ctx, docs).Error(0)
}

func (m *MockDocumentStore) DeleteBySource(ctx context.Context, sourceID string) error {
	return m.Called(ctx, sourceID).Error(0)
}

func (m *MockDocumentStore) Dimension(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockFetcher struct{ mock.Mock }

func (m *MockFetcher) Fetch(ctx context.Context, kind, locator string) (string, error) {
	args := m.Called(ctx, kind, locator)
	return args.String(0), args.Error(1)
}

type MockSettingsReader struct{ mock.Mock }

func (m *MockSettingsReader) Get(ctx context.Context, purpose string) (*settings.ModelConfig, error) {
	args := m.Called(ctx, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settings.ModelConfig), args.Error(1)
}

type MockKeyReader struct{ mock.Mock }

func (m *MockKeyReader) Get(ctx context.Context, provider string) (string, error) {
	args := m.Called(ctx, provider)
	return args.String(0), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	return m.Called(topic, body).Error(0)
}

// stubEmbedClient returns deterministic vectors of a fixed width.
type stubEmbedClient struct {
	dims  int
	err   error
	calls int
}

func (c *stubEmbedClient) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		vec := make([]float32, c.dims)
		vec[0] = float32(i + 1)
		out[i] = vec
	}
	return out, nil
}
