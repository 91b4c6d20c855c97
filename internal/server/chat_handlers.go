package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hyperjump/hanashi/internal/apperr"
	"github.com/hyperjump/hanashi/internal/models"
	"go.uber.org/zap"
)

func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (*models.ChatRequest, bool) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondAppError(w, apperr.InvalidRequest("decode request", err))
		return nil, false
	}
	return &req, true
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}
	resp, err := s.svc.Chat.Call(r.Context(), req)
	if err != nil {
		s.logger.Warn("chat call failed", zap.String("conversation_id", req.ConversationID), zap.Error(err))
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEmotion(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}
	ev, err := s.svc.Chat.EvaluateEmotion(r.Context(), req)
	if err != nil {
		s.logger.Warn("emotion evaluation failed", zap.String("conversation_id", req.ConversationID), zap.Error(err))
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ev)
}

// handleSimpleChat forwards ?message= to the model with no memory and no retrieval.
func (s *Server) handleSimpleChat(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	if strings.TrimSpace(message) == "" {
		message = "Tell me a joke"
	}
	text, err := s.svc.Chat.Complete(r.Context(), message)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"text": text})
}

// writeEvent writes one server-sent event. An empty name is the default "message" event.
func writeEvent(w http.ResponseWriter, name string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if name != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", name); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// handleStream relays fragments as server-sent events. A failure before the
// first fragment is a plain JSON error; afterwards it is a terminal error event.
// A client disconnect cancels the request context, which stops the model.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}
	events, err := s.svc.Chat.Stream(r.Context(), req)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		var werr error
		switch {
		case ev.Err != nil:
			werr = writeEvent(w, "error", errorBody{Error: ev.Err.Error(), Kind: apperr.KindOf(ev.Err)})
		case ev.Done:
			werr = writeEvent(w, "done", ev.Metadata)
		default:
			werr = writeEvent(w, "", map[string]string{"text": ev.Text})
		}
		if werr != nil {
			// The client went away; the request context is canceled and the
			// orchestrator closes the channel shortly.
			s.logger.Debug("stream write failed", zap.Error(werr))
			continue
		}
		flusher.Flush()
	}
}
