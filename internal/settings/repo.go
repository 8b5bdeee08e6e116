package settings

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context, purpose string) (*ModelConfig, error) {
	cfg := &ModelConfig{}
	query := `
		SELECT purpose, provider, model, base_url, temperature, max_tokens, dimensions
		FROM model_configurations WHERE purpose = $1`
	err := r.db.QueryRowContext(ctx, query, purpose).Scan(
		&cfg.Purpose, &cfg.Provider, &cfg.Model, &cfg.BaseURL,
		&cfg.Temperature, &cfg.MaxTokens, &cfg.Dimensions)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r *PostgresRepo) Upsert(ctx context.Context, cfg *ModelConfig) error {
	query := `
		INSERT INTO model_configurations (purpose, provider, model, base_url, temperature, max_tokens, dimensions, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (purpose) DO UPDATE
		SET provider = $2, model = $3, base_url = $4, temperature = $5, max_tokens = $6, dimensions = $7, updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query,
		cfg.Purpose, cfg.Provider, cfg.Model, cfg.BaseURL,
		cfg.Temperature, cfg.MaxTokens, cfg.Dimensions)
	return err
}
