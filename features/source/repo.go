package source

import (
	"context"
	"database/sql"

	"kora/backend/internal/worker"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, src *Source) error {
	query := `
		INSERT INTO knowledge_sources (name, kind, locator, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, src.Name, src.Kind, src.Locator, src.Status).
		Scan(&src.ID, &src.CreatedAt, &src.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Source, error) {
	s := &Source{}
	query := `
		SELECT id, name, kind, locator, status, progress, error, created_at, updated_at
		FROM knowledge_sources WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.Kind, &s.Locator, &s.Status, &s.Progress, &s.Error, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Source, error) {
	query := `
		SELECT id, name, kind, locator, status, progress, error, created_at, updated_at
		FROM knowledge_sources ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Name, &s.Kind, &s.Locator, &s.Status, &s.Progress, &s.Error, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM knowledge_sources WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM knowledge_sources`)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_sources`).Scan(&count)
	return count, err
}

// Info and the Set* methods satisfy the ingestion worker's view of sources.

func (r *PostgresRepo) Info(ctx context.Context, id string) (worker.SourceInfo, error) {
	var info worker.SourceInfo
	query := `SELECT id, name, kind, locator FROM knowledge_sources WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&info.ID, &info.Name, &info.Kind, &info.Locator)
	return info, err
}

func (r *PostgresRepo) SetProcessing(ctx context.Context, id string) error {
	query := `UPDATE knowledge_sources SET status = 'processing', progress = 0, error = '', updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) SetProgress(ctx context.Context, id string, progress int) error {
	query := `UPDATE knowledge_sources SET progress = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, progress, id)
	return err
}

func (r *PostgresRepo) SetCompleted(ctx context.Context, id string) error {
	query := `UPDATE knowledge_sources SET status = 'completed', progress = 100, error = '', updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) SetFailed(ctx context.Context, id, message string) error {
	query := `UPDATE knowledge_sources SET status = 'failed', error = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, message, id)
	return err
}
