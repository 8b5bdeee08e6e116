package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"kora/backend/internal/middleware"
	"kora/backend/internal/pipeline"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	conv, err := h.service.CreateConversation(r.Context(), req.Title)
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": conv}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.service.ListConversations(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if convs == nil {
		convs = []Conversation{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": convs,
		"meta": map[string]int{"count": len(convs)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	detail, err := h.service.GetConversation(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Conversation not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": detail}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.DeleteConversation(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Conversation not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SendMessage streams the assistant reply as server-sent events: one
// data: {"delta": ...} line per token batch, then data: [DONE]. Errors that
// happen before the first delta map to a JSON error response instead.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Content is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	streaming := false
	onDelta := func(delta string) error {
		if !streaming {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			streaming = true
		}
		payload, err := json.Marshal(map[string]string{"delta": delta})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	_, err := h.service.Stream(r.Context(), id, req.Content, onDelta)
	if err != nil {
		if streaming {
			// Headers are gone; all we can do is signal the failure in-band.
			payload, _ := json.Marshal(map[string]string{"error": err.Error()})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			slog.ErrorContext(r.Context(), "chat stream failed mid-flight", "error", err, "conversation_id", id)
			return
		}
		h.writeStreamError(r.Context(), w, id, err)
		return
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (h *Handler) writeStreamError(ctx context.Context, w http.ResponseWriter, id string, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		h.writeError(ctx, w, "NOT_FOUND", "Conversation not found", http.StatusNotFound)
		return
	}

	var mismatch *pipeline.ConfigMismatchError
	if errors.As(err, &mismatch) {
		h.writeError(ctx, w, "CONFIG_MISMATCH", err.Error(), http.StatusConflict)
		return
	}

	var unsupported *pipeline.UnsupportedProviderError
	if errors.As(err, &unsupported) {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	var genErr *pipeline.GenerationProviderError
	if errors.As(err, &genErr) {
		slog.ErrorContext(ctx, "generation failed", "error", err, "conversation_id", id, "kind", genErr.Kind)
		h.writeError(ctx, w, "PROVIDER_ERROR", err.Error(), http.StatusBadGateway)
		return
	}

	var embedErr *pipeline.EmbeddingProviderError
	if errors.As(err, &embedErr) {
		h.writeError(ctx, w, "PROVIDER_ERROR", err.Error(), http.StatusBadGateway)
		return
	}

	slog.ErrorContext(ctx, "chat turn failed", "error", err, "conversation_id", id)
	h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
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
