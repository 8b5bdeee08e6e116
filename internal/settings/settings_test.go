package settings_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"kora/backend/internal/settings"
)

type MockRepository struct{ mock.Mock }

func (m *MockRepository) Get(ctx context.Context, purpose string) (*settings.ModelConfig, error) {
	args := m.Called(ctx, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settings.ModelConfig), args.Error(1)
}

func (m *MockRepository) Upsert(ctx context.Context, cfg *settings.ModelConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

type MockKeyStore struct{ mock.Mock }

func (m *MockKeyStore) Set(ctx context.Context, provider, apiKey string) error {
	args := m.Called(ctx, provider, apiKey)
	return args.Error(0)
}

func TestModelConfigValidate(t *testing.T) {
	t.Run("Valid Embedding", func(t *testing.T) {
		cfg := &settings.ModelConfig{Purpose: "embedding", Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Valid Generation", func(t *testing.T) {
		cfg := &settings.ModelConfig{Purpose: "generation", Provider: "openai", Model: "gpt-4o-mini", Temperature: 0.7}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Unknown Purpose", func(t *testing.T) {
		cfg := &settings.ModelConfig{Purpose: "reranking", Provider: "cohere", Model: "m"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("Unknown Provider", func(t *testing.T) {
		cfg := &settings.ModelConfig{Purpose: "generation", Provider: "mystery", Model: "m"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("Embedding Requires Dimensions", func(t *testing.T) {
		cfg := &settings.ModelConfig{Purpose: "embedding", Provider: "openai", Model: "m"}
		assert.Error(t, cfg.Validate())
	})
}

func TestServiceSave(t *testing.T) {
	t.Run("Persists Config And Seals Key", func(t *testing.T) {
		repo := new(MockRepository)
		keys := new(MockKeyStore)
		svc := settings.NewService(repo, keys)

		cfg := &settings.ModelConfig{Purpose: "generation", Provider: "openai", Model: "gpt-4o-mini"}
		repo.On("Upsert", mock.Anything, cfg).Return(nil)
		keys.On("Set", mock.Anything, "openai", "sk-new").Return(nil)

		assert.NoError(t, svc.Save(context.Background(), cfg, "sk-new"))
		repo.AssertExpectations(t)
		keys.AssertExpectations(t)
	})

	t.Run("Empty Key Skips Secret Store", func(t *testing.T) {
		repo := new(MockRepository)
		keys := new(MockKeyStore)
		svc := settings.NewService(repo, keys)

		cfg := &settings.ModelConfig{Purpose: "embedding", Provider: "cohere", Model: "embed-english-v3.0", Dimensions: 1024}
		repo.On("Upsert", mock.Anything, cfg).Return(nil)

		assert.NoError(t, svc.Save(context.Background(), cfg, ""))
		keys.AssertNotCalled(t, "Set")
	})

	t.Run("Invalid Config Rejected Before Persist", func(t *testing.T) {
		repo := new(MockRepository)
		keys := new(MockKeyStore)
		svc := settings.NewService(repo, keys)

		cfg := &settings.ModelConfig{Purpose: "generation", Provider: "mystery", Model: "m"}
		assert.Error(t, svc.Save(context.Background(), cfg, ""))
		repo.AssertNotCalled(t, "Upsert")
	})
}
