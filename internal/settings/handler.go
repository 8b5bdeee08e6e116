package settings

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"kora/backend/internal/middleware"
	"kora/backend/internal/provider"
)

// KeyReader decrypts provider API keys for outbound calls.
type KeyReader interface {
	Get(ctx context.Context, provider string) (string, error)
}

type Handler struct {
	svc        *Service
	keys       KeyReader
	modelCache *provider.ModelCache
}

func NewHandler(svc *Service, keys KeyReader, cache *provider.ModelCache) *Handler {
	return &Handler{svc: svc, keys: keys, modelCache: cache}
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	out := map[string]*ModelConfig{}
	for _, purpose := range []string{PurposeGeneration, PurposeEmbedding} {
		cfg, err := h.svc.Get(ctx, purpose)
		if err != nil {
			slog.WarnContext(ctx, "model configuration missing", "purpose", purpose, "error", err)
			continue
		}
		out[purpose] = cfg
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"data": out}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ModelConfig
		APIKey string `json:"api_key,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.Save(r.Context(), &req.ModelConfig, req.APIKey); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	// The catalog may differ under a new provider or base URL.
	h.modelCache.Invalidate(req.Provider)

	w.WriteHeader(http.StatusOK)
}

// ListModels exposes the provider's model catalog, cached with a TTL so the
// admin screen does not hammer the provider.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	purpose := r.URL.Query().Get("purpose")
	if purpose == "" {
		purpose = PurposeGeneration
	}

	cfg, err := h.svc.Get(ctx, purpose)
	if err != nil {
		h.writeError(ctx, w, "NOT_FOUND", "no model configuration for purpose "+purpose, http.StatusNotFound)
		return
	}

	if models, ok := h.modelCache.Get(cfg.Provider); ok {
		h.writeModels(ctx, w, models)
		return
	}

	kind, err := provider.KindOf(cfg.Provider)
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	apiKey, err := h.keys.Get(ctx, cfg.Provider)
	if err != nil {
		h.writeError(ctx, w, "CONFIG_ERROR", err.Error(), http.StatusConflict)
		return
	}

	models, err := provider.NewClient(kind, cfg.BaseURL, apiKey).ListModels(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "model list failed", "provider", cfg.Provider, "error", err)
		h.writeError(ctx, w, "PROVIDER_ERROR", err.Error(), http.StatusBadGateway)
		return
	}

	h.modelCache.Set(cfg.Provider, models)
	h.writeModels(ctx, w, models)
}

func (h *Handler) writeModels(ctx context.Context, w http.ResponseWriter, models []string) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"data": models}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
