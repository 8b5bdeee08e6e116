// Package settings owns the model configuration: one row per purpose
// (generation, embedding) naming the provider, the model, and the
// purpose-specific parameters. API keys are not stored here; they live in
// the encrypted secret store and are referenced by provider name.
package settings

import (
	"context"
	"fmt"

	"kora/backend/internal/provider"
)

const (
	PurposeGeneration = "generation"
	PurposeEmbedding  = "embedding"
)

type ModelConfig struct {
	Purpose  string `json:"purpose"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url,omitempty"`

	// Generation parameters
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`

	// Embedding parameters
	Dimensions int `json:"dimensions,omitempty"`
}

func (c *ModelConfig) Validate() error {
	if c.Purpose != PurposeGeneration && c.Purpose != PurposeEmbedding {
		return fmt.Errorf("unknown purpose %q", c.Purpose)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if _, err := provider.KindOf(c.Provider); err != nil {
		return err
	}
	if c.Purpose == PurposeEmbedding && c.Dimensions <= 0 {
		return fmt.Errorf("embedding configuration requires dimensions")
	}
	return nil
}

type Repository interface {
	Get(ctx context.Context, purpose string) (*ModelConfig, error)
	Upsert(ctx context.Context, cfg *ModelConfig) error
}

// KeyStore is the slice of the secret store the settings service needs.
type KeyStore interface {
	Set(ctx context.Context, provider, apiKey string) error
}

type Service struct {
	repo Repository
	keys KeyStore
}

func NewService(repo Repository, keys KeyStore) *Service {
	return &Service{repo: repo, keys: keys}
}

func (s *Service) Get(ctx context.Context, purpose string) (*ModelConfig, error) {
	return s.repo.Get(ctx, purpose)
}

// Save validates and upserts a configuration. A non-empty apiKey is sealed
// into the secret store for the configured provider.
func (s *Service) Save(ctx context.Context, cfg *ModelConfig, apiKey string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return err
	}
	if apiKey != "" {
		if err := s.keys.Set(ctx, cfg.Provider, apiKey); err != nil {
			return err
		}
	}
	return nil
}
