// Package server provides the HTTP API for Hanashi.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hyperjump/hanashi/internal/chat"
	"github.com/hyperjump/hanashi/internal/config"
	"github.com/hyperjump/hanashi/internal/indexer"
	"github.com/hyperjump/hanashi/internal/keyword"
	"github.com/hyperjump/hanashi/internal/memory"
	"github.com/hyperjump/hanashi/internal/storage"
	"github.com/hyperjump/hanashi/internal/vector"
	"go.uber.org/zap"
)

// Services are the collaborators the API exposes.
type Services struct {
	Chat     *chat.Orchestrator
	Indexer  *indexer.Indexer
	Storage  storage.Storage
	Keywords keyword.FilterIndex
	Vectors  vector.VectorIndex
	Memory   *memory.Store
}

// Server is the HTTP server for the Hanashi API.
type Server struct {
	svc    Services
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(svc Services, cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, config: cfg, logger: logger}
}

// requestID tags every request with an X-Request-ID, reusing the caller's when present.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Streaming replies must not be buffered by the compressor or cut by the timeout.
	r.Post("/chat/stream", s.handleStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))

		r.Post("/chat/call", s.handleCall)
		r.Post("/chat/emotion", s.handleEmotion)
		r.Get("/chat", s.handleSimpleChat)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/documents", s.handleIndexDocument)
			r.Get("/documents", s.handleListDocuments)
			r.Get("/documents/{id}", s.handleGetDocument)
			r.Delete("/documents/{id}", s.handleDeleteDocument)
			r.Get("/search", s.handleKeywordSearch)
			r.Get("/conversations", s.handleListConversations)
			r.Get("/conversations/{id}", s.handleGetConversation)
			r.Delete("/conversations/{id}", s.handleClearConversation)
			r.Get("/status", s.handleStatus)
		})
		r.Get("/health", s.handleHealth)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
