// Package document persists embedded chunks and answers similarity
// queries. Nearest-neighbor scoring is delegated to the store's cosine
// distance operator; this package only defines the query contract.
package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"
)

// Metadata travels with every chunk row as a jsonb column.
type Metadata struct {
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	SourceName  string    `json:"source_name"`
	ProcessedAt time.Time `json:"processed_at"`
}

type Document struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

// Match is one retrieval hit, ordered by descending similarity.
type Match struct {
	Content    string   `json:"content"`
	SourceID   string   `json:"source_id"`
	Similarity float64  `json:"similarity"`
	Metadata   Metadata `json:"metadata"`
}

type Repository interface {
	InsertBatch(ctx context.Context, docs []Document) error
	DeleteBySource(ctx context.Context, sourceID string) error
	Match(ctx context.Context, vector []float32, threshold float64, topK int) ([]Match, error)
	Dimension(ctx context.Context) (int, error)
	CountBySource(ctx context.Context, sourceID string) (int, error)
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) InsertBatch(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (source_id, content, embedding, metadata) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, doc := range docs {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, doc.SourceID, doc.Content, pgvector.NewVector(doc.Embedding), meta); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *PostgresRepo) DeleteBySource(ctx context.Context, sourceID string) error {
	query := `DELETE FROM documents WHERE source_id = $1`
	_, err := r.db.ExecContext(ctx, query, sourceID)
	return err
}

// Match returns chunks whose cosine similarity to vector is at least
// threshold, best first, capped at topK. An empty result is valid.
func (r *PostgresRepo) Match(ctx context.Context, vector []float32, threshold float64, topK int) ([]Match, error) {
	query := `
		SELECT content, source_id, metadata, 1 - (embedding <=> $1) AS similarity
		FROM documents
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(vector), threshold, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var meta []byte
		if err := rows.Scan(&m.Content, &m.SourceID, &meta, &m.Similarity); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Metadata); err != nil {
				return nil, err
			}
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Dimension reports the vector width of the stored corpus, 0 when empty.
func (r *PostgresRepo) Dimension(ctx context.Context) (int, error) {
	var dims int
	query := `SELECT COALESCE((SELECT vector_dims(embedding) FROM documents LIMIT 1), 0)`
	err := r.db.QueryRowContext(ctx, query).Scan(&dims)
	return dims, err
}

func (r *PostgresRepo) CountBySource(ctx context.Context, sourceID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM documents WHERE source_id = $1`
	err := r.db.QueryRowContext(ctx, query, sourceID).Scan(&count)
	return count, err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM documents`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}
