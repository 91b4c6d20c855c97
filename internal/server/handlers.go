package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/hanashi/internal/apperr"
	"github.com/hyperjump/hanashi/internal/models"
	"github.com/hyperjump/hanashi/internal/storage"
	"go.uber.org/zap"
)

func (s *Server) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(input.Content) == "" {
		s.respondError(w, http.StatusBadRequest, "content is required")
		return
	}
	s.logger.Debug("index document request", zap.String("id", input.ID), zap.String("title", input.Title))
	doc, chunks, err := s.svc.Indexer.IndexDocument(r.Context(), &input)
	if err != nil {
		s.logger.Error("indexing failed", zap.Error(err))
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":     doc.ID,
		"chunks": len(chunks),
		"status": "indexed",
	})
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 20)
	docs, err := s.svc.Storage.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "offset": offset, "limit": limit})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.svc.Storage.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.svc.Indexer.DeleteDocument(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type keywordHit struct {
	ChunkID    string                 `json:"chunk_id"`
	DocumentID string                 `json:"document_id"`
	Score      float64                `json:"score"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// handleKeywordSearch runs a full-text match over chunk content, without the model.
func (s *Server) handleKeywordSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	ctx := r.Context()
	results, err := s.svc.Keywords.Search(ctx, q, queryInt(r, "limit", 10))
	if err != nil {
		s.respondAppError(w, apperr.Retrieval("keyword search", err))
		return
	}
	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.ID
	}
	chunks, err := s.svc.Storage.GetChunks(ctx, ids)
	if err != nil {
		s.respondAppError(w, apperr.Retrieval("load chunks", err))
		return
	}
	hits := make([]keywordHit, 0, len(results))
	for _, res := range results {
		ch, ok := chunks[res.ID]
		if !ok {
			continue
		}
		hits = append(hits, keywordHit{
			ChunkID:    ch.ID,
			DocumentID: ch.DocumentID,
			Score:      res.Score,
			Content:    ch.Content,
			Metadata:   ch.Metadata,
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"query": q, "results": hits})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"conversations": s.svc.Memory.Conversations()})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": id,
		"window_size":     s.svc.Memory.WindowSize(),
		"messages":        s.svc.Memory.Snapshot(id),
	})
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.svc.Memory.Clear(id)
	s.respondJSON(w, http.StatusOK, map[string]string{"conversation_id": id, "status": "cleared"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.svc.Storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondAppError(w, err)
		return
	}
	chunkCount, err := s.svc.Storage.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondAppError(w, err)
		return
	}
	resp := map[string]interface{}{
		"documents":         docCount,
		"chunks":            chunkCount,
		"vector_index_size": s.svc.Vectors.Size(),
		"conversations":     len(s.svc.Memory.Conversations()),
		"stages":            s.svc.Chat.Stages(),
	}
	if n, err := s.svc.Keywords.DocCount(); err == nil {
		resp["keyword_index_size"] = n
	}

	if cfg := s.config; cfg != nil {
		resp["config"] = map[string]interface{}{
			"vector_index_type":    cfg.Vector.Type,
			"embedding_provider":   cfg.Embedding.Provider,
			"embedding_dimensions": cfg.Embedding.Dimensions,
			"model_provider":       cfg.Model.Provider,
			"model_name":           cfg.Model.Name,
			"chunk_size":           cfg.Chunking.ChunkSize,
			"chunk_overlap":        cfg.Chunking.OverlapOrDefault(),
			"window_size":          cfg.Memory.WindowSize,
			"similarity_threshold": cfg.Retrieval.ThresholdOrDefault(),
			"top_k":                cfg.Retrieval.TopK,
			"allow_empty_context":  cfg.Retrieval.AllowEmptyContextOrDefault(),
			"on_error":             cfg.Retrieval.OnError,
		}
		sizes, total, err := storage.DiskUsage(map[string]string{
			"database":     cfg.Storage.DatabasePath,
			"bleve":        cfg.Storage.BleveIndexPath,
			"vector_index": cfg.Storage.VectorIndexPath,
		})
		if err == nil {
			resp["disk_usage_bytes"] = total
			resp["disk_usage"] = sizes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

// statusFor maps an error kind to an HTTP status code.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidRequest:
		return http.StatusBadRequest
	case apperr.KindDecoding:
		return http.StatusUnprocessableEntity
	case apperr.KindRetrieval, apperr.KindModelInvocation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	s.respondJSON(w, statusFor(kind), errorBody{Error: err.Error(), Kind: kind})
}
