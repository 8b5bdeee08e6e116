package chat

import (
	"context"
	"database/sql"
)

type PostgresConversationRepo struct {
	db *sql.DB
}

func NewPostgresConversationRepo(db *sql.DB) *PostgresConversationRepo {
	return &PostgresConversationRepo{db: db}
}

func (r *PostgresConversationRepo) Create(ctx context.Context, title string) (*Conversation, error) {
	c := &Conversation{Title: title}
	query := `INSERT INTO conversations (title) VALUES ($1) RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, title).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresConversationRepo) Get(ctx context.Context, id string) (*Conversation, error) {
	c := &Conversation{}
	query := `SELECT id, title, created_at, updated_at FROM conversations WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresConversationRepo) List(ctx context.Context) ([]Conversation, error) {
	query := `SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (r *PostgresConversationRepo) Delete(ctx context.Context, id string) error {
	// Messages go with the conversation via ON DELETE CASCADE.
	query := `DELETE FROM conversations WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresConversationRepo) Touch(ctx context.Context, id string) error {
	query := `UPDATE conversations SET updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresConversationRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&count)
	return count, err
}

type PostgresMessageRepo struct {
	db *sql.DB
}

func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

func (r *PostgresMessageRepo) Save(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (conversation_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, msg.ConversationID, msg.Role, msg.Content).
		Scan(&msg.ID, &msg.CreatedAt)
}

func (r *PostgresMessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]Message, error) {
	query := `
		SELECT id, conversation_id, role, content, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
