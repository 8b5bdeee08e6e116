package chat

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kora/backend/internal/document"
	"kora/backend/internal/pipeline"
	"kora/backend/internal/settings"
)

func newStreamingHandler(gen *stubGenerator) (*Handler, *chatMocks) {
	svc, m := newTestService(gen)
	return NewHandler(svc), m
}

func TestSendMessage(t *testing.T) {
	setupTurn := func(m *chatMocks) {
		m.convs.On("Get", mock.Anything, "conv-1").Return(&Conversation{ID: "conv-1"}, nil)
		m.convs.On("Touch", mock.Anything, "conv-1").Return(nil)
		m.msgs.On("Save", mock.Anything, mock.Anything).Return(nil)
		m.msgs.On("ListByConversation", mock.Anything, "conv-1").Return([]Message{}, nil)
		m.retriever.On("Retrieve", mock.Anything, mock.Anything).Return([]document.Match{}, nil)
		m.set.On("Get", mock.Anything, settings.PurposeGeneration).Return(generationConfig(), nil)
		m.keys.On("Get", mock.Anything, "openai").Return("sk-test", nil)
	}

	t.Run("Streams Deltas Then DONE", func(t *testing.T) {
		h, m := newStreamingHandler(&stubGenerator{deltas: []string{"Hel", "lo"}})
		setupTurn(m)

		req := httptest.NewRequest(http.MethodPost, "/conversations/conv-1/messages", strings.NewReader(`{"content":"hi"}`))
		req.SetPathValue("id", "conv-1")
		rec := httptest.NewRecorder()

		h.SendMessage(rec, req)

		body := rec.Body.String()
		assert.Contains(t, body, `data: {"delta":"Hel"}`)
		assert.Contains(t, body, `data: {"delta":"lo"}`)
		assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
	})

	t.Run("Unknown Conversation", func(t *testing.T) {
		h, m := newStreamingHandler(&stubGenerator{})
		m.convs.On("Get", mock.Anything, "ghost").Return(nil, sql.ErrNoRows)

		req := httptest.NewRequest(http.MethodPost, "/conversations/ghost/messages", strings.NewReader(`{"content":"hi"}`))
		req.SetPathValue("id", "ghost")
		rec := httptest.NewRecorder()

		h.SendMessage(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Missing Content", func(t *testing.T) {
		h, _ := newStreamingHandler(&stubGenerator{})

		req := httptest.NewRequest(http.MethodPost, "/conversations/conv-1/messages", strings.NewReader(`{}`))
		req.SetPathValue("id", "conv-1")
		rec := httptest.NewRecorder()

		h.SendMessage(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Auth Failure Maps To Bad Gateway", func(t *testing.T) {
		h, m := newStreamingHandler(&stubGenerator{err: &pipeline.GenerationProviderError{
			StatusCode: 401, Kind: pipeline.GenerationErrAuth, Body: "invalid key",
		}})
		setupTurn(m)

		req := httptest.NewRequest(http.MethodPost, "/conversations/conv-1/messages", strings.NewReader(`{"content":"hi"}`))
		req.SetPathValue("id", "conv-1")
		rec := httptest.NewRecorder()

		h.SendMessage(rec, req)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "PROVIDER_ERROR")
	})

	t.Run("Dimension Mismatch Maps To Conflict", func(t *testing.T) {
		h, m := newStreamingHandler(&stubGenerator{})
		m.convs.On("Get", mock.Anything, "conv-1").Return(&Conversation{ID: "conv-1"}, nil)
		m.msgs.On("Save", mock.Anything, mock.Anything).Return(nil)
		m.msgs.On("ListByConversation", mock.Anything, "conv-1").Return([]Message{}, nil)
		m.retriever.On("Retrieve", mock.Anything, mock.Anything).Return(nil, &pipeline.ConfigMismatchError{QueryDims: 768, StoreDims: 1536})

		req := httptest.NewRequest(http.MethodPost, "/conversations/conv-1/messages", strings.NewReader(`{"content":"hi"}`))
		req.SetPathValue("id", "conv-1")
		rec := httptest.NewRecorder()

		h.SendMessage(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "CONFIG_MISMATCH")
	})
}

func TestConversationCRUD(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		h, m := newStreamingHandler(&stubGenerator{})
		m.convs.On("Create", mock.Anything, "About Kora").Return(&Conversation{ID: "conv-1", Title: "About Kora"}, nil)

		req := httptest.NewRequest(http.MethodPost, "/conversations", strings.NewReader(`{"title":"About Kora"}`))
		rec := httptest.NewRecorder()

		h.CreateConversation(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), "conv-1")
	})

	t.Run("Create Defaults Title", func(t *testing.T) {
		h, m := newStreamingHandler(&stubGenerator{})
		m.convs.On("Create", mock.Anything, "New conversation").Return(&Conversation{ID: "conv-2"}, nil)

		req := httptest.NewRequest(http.MethodPost, "/conversations", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()

		h.CreateConversation(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code)
		m.convs.AssertExpectations(t)
	})

	t.Run("List Empty Returns Array", func(t *testing.T) {
		h, m := newStreamingHandler(&stubGenerator{})
		m.convs.On("List", mock.Anything).Return([]Conversation{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
		rec := httptest.NewRecorder()

		h.ListConversations(rec, req)
		assert.Contains(t, rec.Body.String(), `"data":[]`)
	})

	t.Run("Get With Messages", func(t *testing.T) {
		h, m := newStreamingHandler(&stubGenerator{})
		m.convs.On("Get", mock.Anything, "conv-1").Return(&Conversation{ID: "conv-1"}, nil)
		m.msgs.On("ListByConversation", mock.Anything, "conv-1").Return([]Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
		}, nil)

		req := httptest.NewRequest(http.MethodGet, "/conversations/conv-1", nil)
		req.SetPathValue("id", "conv-1")
		rec := httptest.NewRecorder()

		h.GetConversation(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"role":"assistant"`)
	})

	t.Run("Delete Missing", func(t *testing.T) {
		h, m := newStreamingHandler(&stubGenerator{})
		m.convs.On("Get", mock.Anything, "ghost").Return(nil, sql.ErrNoRows)

		req := httptest.NewRequest(http.MethodDelete, "/conversations/ghost", nil)
		req.SetPathValue("id", "ghost")
		rec := httptest.NewRecorder()

		h.DeleteConversation(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
