package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"kora/backend/internal/middleware"
)

type SourceCounter interface {
	Count(ctx context.Context) (int, error)
}

type DocumentCounter interface {
	Count(ctx context.Context) (int, error)
}

type ConversationCounter interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	sources       SourceCounter
	documents     DocumentCounter
	conversations ConversationCounter
}

func NewHandler(s SourceCounter, d DocumentCounter, c ConversationCounter) *Handler {
	return &Handler{sources: s, documents: d, conversations: c}
}

type StatsResponse struct {
	Sources       int `json:"sources"`
	Documents     int `json:"documents"`
	Conversations int `json:"conversations"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sCount, err := h.sources.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count sources", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count sources", http.StatusInternalServerError)
		return
	}

	dCount, err := h.documents.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	cCount, err := h.conversations.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count conversations", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count conversations", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Sources:       sCount,
		Documents:     dCount,
		Conversations: cCount,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
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
