package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"kora/backend/internal/middleware"
	"kora/backend/internal/worker"
)

// ProgressStream is the in-process fan-out of ingest.progress events.
type ProgressStream interface {
	Subscribe(sourceID string) (<-chan worker.ProgressEvent, func())
}

type Handler struct {
	service   *Service
	stream    ProgressStream
	uploadDir string
	maxUpload int64
}

func NewHandler(service *Service, stream ProgressStream, uploadDir string, maxUploadMB int) *Handler {
	if uploadDir == "" {
		uploadDir = "./uploads"
	}
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &Handler{
		service:   service,
		stream:    stream,
		uploadDir: uploadDir,
		maxUpload: int64(maxUploadMB) << 20,
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Kind    string `json:"kind"`
		Locator string `json:"locator"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Name is required", http.StatusBadRequest)
		return
	}
	if req.Locator == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Locator is required", http.StatusBadRequest)
		return
	}

	src := &Source{Name: req.Name, Kind: req.Kind, Locator: req.Locator}
	if err := h.service.Create(r.Context(), src); err != nil {
		if errors.Is(err, ErrValidation) {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("source creation failed", "error", err, "locator", req.Locator)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": src}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "File too large", http.StatusBadRequest)
		return
	}

	name := r.FormValue("name")
	if name == "" {
		h.writeError(r.Context(), w, "BAD_REQUEST", "Name is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Binary formats must arrive pre-extracted; only text files are ingestible.
	ext := filepath.Ext(header.Filename)
	validExts := map[string]bool{
		".md": true, ".txt": true, ".json": true, ".csv": true,
	}
	if !validExts[ext] {
		h.writeError(r.Context(), w, "BAD_REQUEST", "Unsupported file type", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		slog.Error("failed to create upload directory", "error", err, "path", filepath.Clean(h.uploadDir))
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to create upload directory", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("%s_%s", uuid.New().String(), filepath.Base(header.Filename))
	path := filepath.Clean(filepath.Join(h.uploadDir, filename))

	dst, err := os.Create(path) // #nosec G304 -- path is constructed from UUID + sanitized basename, not user-controlled
	if err != nil {
		slog.Error("failed to create file", "error", err, "path", path)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to save file", http.StatusInternalServerError)
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to write file", http.StatusInternalServerError)
		return
	}

	src, err := h.service.Upload(r.Context(), path, name)
	if err != nil {
		if removeErr := os.Remove(path); removeErr != nil {
			slog.Warn("failed to clean up uploaded file", "error", removeErr, "path", filepath.Clean(path))
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": src}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sources, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	// Ensure we return [] instead of null for empty list
	if sources == nil {
		sources = []Source{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": sources,
		"meta": map[string]int{"count": len(sources)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Source not found", http.StatusNotFound)
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

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Source not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAll(r.Context()); err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Reingest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.Reingest(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Source not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Events streams ingestion progress for one source as server-sent events.
// The stream closes after a terminal status or when the client goes away.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Source not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cancel := h.stream.Subscribe(id)
	defer cancel()

	// Snapshot first so late subscribers see the current state.
	writeEvent(w, worker.ProgressEvent{
		SourceID: detail.ID,
		Status:   detail.Status,
		Progress: detail.Progress,
		Message:  detail.Error,
	})
	flusher.Flush()

	if detail.Status == StatusCompleted || detail.Status == StatusFailed {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			writeEvent(w, ev)
			flusher.Flush()
			if ev.Status == StatusCompleted || ev.Status == StatusFailed {
				return
			}
		}
	}
}

func writeEvent(w io.Writer, ev worker.ProgressEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal progress event", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", body)
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
