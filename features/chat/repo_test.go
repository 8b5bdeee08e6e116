package chat

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationRepo(t *testing.T) {
	db, dbmock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresConversationRepo(db)
	ctx := context.Background()
	now := time.Now()

	t.Run("Create", func(t *testing.T) {
		dbmock.ExpectQuery(regexp.QuoteMeta("INSERT INTO conversations")).
			WithArgs("About Kora").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("conv-1", now, now))

		conv, err := repo.Create(ctx, "About Kora")
		require.NoError(t, err)
		assert.Equal(t, "conv-1", conv.ID)
		assert.Equal(t, "About Kora", conv.Title)
	})

	t.Run("List Ordered By Activity", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "title", "created_at", "updated_at"}).
			AddRow("conv-2", "Newer", now, now).
			AddRow("conv-1", "Older", now, now)
		dbmock.ExpectQuery("SELECT id, title, created_at, updated_at FROM conversations").WillReturnRows(rows)

		convs, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, convs, 2)
		assert.Equal(t, "conv-2", convs[0].ID)
	})

	t.Run("Delete", func(t *testing.T) {
		dbmock.ExpectExec(regexp.QuoteMeta("DELETE FROM conversations WHERE id = $1")).
			WithArgs("conv-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.Delete(ctx, "conv-1"))
	})

	assert.NoError(t, dbmock.ExpectationsWereMet())
}

func TestMessageRepo(t *testing.T) {
	db, dbmock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresMessageRepo(db)
	ctx := context.Background()
	now := time.Now()

	t.Run("Save", func(t *testing.T) {
		dbmock.ExpectQuery(regexp.QuoteMeta("INSERT INTO messages")).
			WithArgs("conv-1", "user", "hello").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("msg-1", now))

		msg := &Message{ConversationID: "conv-1", Role: RoleUser, Content: "hello"}
		require.NoError(t, repo.Save(ctx, msg))
		assert.Equal(t, "msg-1", msg.ID)
	})

	t.Run("ListByConversation In Order", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "conversation_id", "role", "content", "created_at"}).
			AddRow("msg-1", "conv-1", "user", "hello", now).
			AddRow("msg-2", "conv-1", "assistant", "hi there", now)
		dbmock.ExpectQuery("SELECT id, conversation_id, role, content").
			WithArgs("conv-1").
			WillReturnRows(rows)

		messages, err := repo.ListByConversation(ctx, "conv-1")
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, RoleUser, messages[0].Role)
		assert.Equal(t, RoleAssistant, messages[1].Role)
	})

	assert.NoError(t, dbmock.ExpectationsWereMet())
}
