// Package app wires the features together: repositories over one shared
// *sql.DB, services on top, HTTP routes, and the ingestion orchestrator that
// the NSQ consumer drives.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"kora/backend/features/chat"
	"kora/backend/features/source"
	"kora/backend/features/stats"
	"kora/backend/internal/config"
	"kora/backend/internal/document"
	"kora/backend/internal/embed"
	"kora/backend/internal/fetch"
	"kora/backend/internal/middleware"
	"kora/backend/internal/provider"
	"kora/backend/internal/ratelimit"
	"kora/backend/internal/retrieval"
	"kora/backend/internal/secrets"
	"kora/backend/internal/settings"
	"kora/backend/internal/worker"
)

const modelCacheTTL = 5 * time.Minute

type App struct {
	Handler      http.Handler
	Orchestrator *worker.Orchestrator
	Hub          *worker.Hub

	port int
}

func New(cfg *config.Config, db *sql.DB, taskPub worker.Publisher) (*App, error) {
	limiter := ratelimit.New(cfg.ProviderRPM)

	keyStore, err := secrets.New(db, cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("secret store error: %w", err)
	}

	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(db)
	settingsService := settings.NewService(settingsRepo, keyStore)
	settingsHandler := settings.NewHandler(settingsService, keyStore, provider.NewModelCache(modelCacheTTL))

	// Feature: Source
	docRepo := document.NewPostgresRepo(db)
	sourceRepo := source.NewPostgresRepo(db)
	sourceService := source.NewService(sourceRepo, docRepo, taskPub)

	hub := worker.NewHub()
	sourceHandler := source.NewHandler(sourceService, hub, cfg.UploadDir, int(cfg.MaxUploadSizeMB))

	// Feature: Retrieval & Chat
	queryLogger, err := retrieval.NewFileQueryLogger("data/logs/query.log")
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(docRepo, settingsService, keyStore, limiter, queryLogger, cfg.RetrievalTopK, cfg.RetrievalThreshold)

	convRepo := chat.NewPostgresConversationRepo(db)
	msgRepo := chat.NewPostgresMessageRepo(db)
	chatService := chat.NewService(convRepo, msgRepo, retrievalService, settingsService, keyStore, limiter)
	chatHandler := chat.NewHandler(chatService)

	// Feature: Stats
	statsHandler := stats.NewHandler(sourceRepo, docRepo, convRepo)

	// Ingestion worker
	batcher := embed.NewBatcher(cfg.EmbedBatchSize, limiter)
	orchestrator := worker.NewOrchestrator(
		worker.OrchestratorConfig{ChunkMaxSize: cfg.ChunkMaxSize, ChunkOverlap: cfg.ChunkOverlap},
		fetch.New(), sourceRepo, docRepo, settingsService, keyStore, batcher,
		worker.NewBroadcaster(taskPub),
	)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /sources", middleware.CorrelationID(enableCORS(sourceHandler.Create)))
	mux.Handle("POST /sources/upload", middleware.CorrelationID(enableCORS(sourceHandler.Upload)))
	mux.Handle("GET /sources", middleware.CorrelationID(enableCORS(sourceHandler.List)))
	mux.Handle("DELETE /sources", middleware.CorrelationID(enableCORS(sourceHandler.DeleteAll)))
	mux.Handle("GET /sources/{id}", middleware.CorrelationID(enableCORS(sourceHandler.Get)))
	mux.Handle("DELETE /sources/{id}", middleware.CorrelationID(enableCORS(sourceHandler.Delete)))
	mux.Handle("POST /sources/{id}/reingest", middleware.CorrelationID(enableCORS(sourceHandler.Reingest)))
	mux.Handle("GET /sources/{id}/events", middleware.CorrelationID(enableCORS(sourceHandler.Events)))

	mux.Handle("GET /settings", middleware.CorrelationID(enableCORS(settingsHandler.GetSettings)))
	mux.Handle("PUT /settings", middleware.CorrelationID(enableCORS(settingsHandler.UpdateSettings)))
	mux.Handle("GET /settings/models", middleware.CorrelationID(enableCORS(settingsHandler.ListModels)))

	mux.Handle("POST /conversations", middleware.CorrelationID(enableCORS(chatHandler.CreateConversation)))
	mux.Handle("GET /conversations", middleware.CorrelationID(enableCORS(chatHandler.ListConversations)))
	mux.Handle("GET /conversations/{id}", middleware.CorrelationID(enableCORS(chatHandler.GetConversation)))
	mux.Handle("DELETE /conversations/{id}", middleware.CorrelationID(enableCORS(chatHandler.DeleteConversation)))
	mux.Handle("POST /conversations/{id}/messages", middleware.CorrelationID(enableCORS(chatHandler.SendMessage)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:      mux,
		Orchestrator: orchestrator,
		Hub:          hub,
		port:         cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
