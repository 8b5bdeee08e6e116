package settings_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kora/backend/internal/settings"
)

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := settings.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"purpose", "provider", "model", "base_url", "temperature", "max_tokens", "dimensions"}).
			AddRow("embedding", "openai", "text-embedding-3-small", "", 0.0, 0, 1536)

		mock.ExpectQuery("SELECT purpose, provider, model").
			WithArgs("embedding").
			WillReturnRows(rows)

		cfg, err := repo.Get(context.Background(), "embedding")
		require.NoError(t, err)
		assert.Equal(t, "openai", cfg.Provider)
		assert.Equal(t, 1536, cfg.Dimensions)
	})
}

func TestPostgresRepo_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := settings.NewPostgresRepo(db)

	cfg := &settings.ModelConfig{
		Purpose:     "generation",
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		MaxTokens:   2048,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO model_configurations")).
		WithArgs(cfg.Purpose, cfg.Provider, cfg.Model, cfg.BaseURL, cfg.Temperature, cfg.MaxTokens, cfg.Dimensions).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Upsert(context.Background(), cfg))
	assert.NoError(t, mock.ExpectationsWereMet())
}
