package settings_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kora/backend/internal/provider"
	"kora/backend/internal/settings"
)

type MockKeyReader struct{ mock.Mock }

func (m *MockKeyReader) Get(ctx context.Context, provider string) (string, error) {
	args := m.Called(ctx, provider)
	return args.String(0), args.Error(1)
}

func newTestHandler(repo *MockRepository) (*settings.Handler, *provider.ModelCache) {
	cache := provider.NewModelCache(time.Minute)
	svc := settings.NewService(repo, new(MockKeyStore))
	return settings.NewHandler(svc, new(MockKeyReader), cache), cache
}

func TestGetSettings(t *testing.T) {
	t.Run("Returns Both Purposes", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Get", mock.Anything, "generation").
			Return(&settings.ModelConfig{Purpose: "generation", Provider: "openai", Model: "gpt-4o-mini"}, nil)
		repo.On("Get", mock.Anything, "embedding").
			Return(&settings.ModelConfig{Purpose: "embedding", Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536}, nil)

		h, _ := newTestHandler(repo)
		rr := httptest.NewRecorder()
		h.GetSettings(rr, httptest.NewRequest(http.MethodGet, "/settings", nil))

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp struct {
			Data map[string]settings.ModelConfig `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "gpt-4o-mini", resp.Data["generation"].Model)
		assert.Equal(t, 1536, resp.Data["embedding"].Dimensions)
	})

	t.Run("Missing Purpose Omitted", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Get", mock.Anything, "generation").
			Return(&settings.ModelConfig{Purpose: "generation", Provider: "openai", Model: "gpt-4o-mini"}, nil)
		repo.On("Get", mock.Anything, "embedding").Return(nil, sql.ErrNoRows)

		h, _ := newTestHandler(repo)
		rr := httptest.NewRecorder()
		h.GetSettings(rr, httptest.NewRequest(http.MethodGet, "/settings", nil))

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp struct {
			Data map[string]settings.ModelConfig `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		_, ok := resp.Data["embedding"]
		assert.False(t, ok)
	})
}

func TestUpdateSettings(t *testing.T) {
	t.Run("Persists And Invalidates Model Cache", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)

		h, cache := newTestHandler(repo)
		cache.Set("openai", []string{"stale-model"})

		body := `{"purpose":"generation","provider":"openai","model":"gpt-4o-mini","temperature":0.7}`
		rr := httptest.NewRecorder()
		h.UpdateSettings(rr, httptest.NewRequest(http.MethodPut, "/settings", strings.NewReader(body)))

		assert.Equal(t, http.StatusOK, rr.Code)
		repo.AssertExpectations(t)

		_, ok := cache.Get("openai")
		assert.False(t, ok)
	})

	t.Run("Malformed Body", func(t *testing.T) {
		h, _ := newTestHandler(new(MockRepository))

		rr := httptest.NewRecorder()
		h.UpdateSettings(rr, httptest.NewRequest(http.MethodPut, "/settings", strings.NewReader("{broken")))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "VALIDATION_ERROR")
		assert.Contains(t, rr.Body.String(), "correlationId")
	})

	t.Run("Invalid Config", func(t *testing.T) {
		repo := new(MockRepository)
		h, _ := newTestHandler(repo)

		body := `{"purpose":"generation","provider":"mystery","model":"m"}`
		rr := httptest.NewRecorder()
		h.UpdateSettings(rr, httptest.NewRequest(http.MethodPut, "/settings", strings.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		repo.AssertNotCalled(t, "Upsert")
	})
}

func TestListModels(t *testing.T) {
	t.Run("Served From Cache", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Get", mock.Anything, "generation").
			Return(&settings.ModelConfig{Purpose: "generation", Provider: "openai", Model: "gpt-4o-mini"}, nil)

		h, cache := newTestHandler(repo)
		cache.Set("openai", []string{"gpt-4o", "gpt-4o-mini"})

		rr := httptest.NewRecorder()
		h.ListModels(rr, httptest.NewRequest(http.MethodGet, "/settings/models", nil))

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp struct {
			Data []string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, resp.Data)
	})

	t.Run("No Configuration", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Get", mock.Anything, "embedding").Return(nil, sql.ErrNoRows)

		h, _ := newTestHandler(repo)
		rr := httptest.NewRecorder()
		h.ListModels(rr, httptest.NewRequest(http.MethodGet, "/settings/models?purpose=embedding", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), "NOT_FOUND")
	})
}
