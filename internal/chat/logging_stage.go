package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hyperjump/hanashi/internal/models"
	"github.com/hyperjump/hanashi/pkg/utils"
	"go.uber.org/zap"
)

// LoggingStage logs every request and response and optionally appends one JSON
// line per turn to a transcript. It never changes the turn and never fails it.
type LoggingStage struct {
	logger *zap.Logger
	mu     sync.Mutex
	out    io.Writer
}

// NewLoggingStage returns a logging stage. transcript may be nil.
func NewLoggingStage(logger *zap.Logger, transcript io.Writer) *LoggingStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingStage{logger: logger, out: transcript}
}

func (s *LoggingStage) Name() string   { return "logging" }
func (s *LoggingStage) Observer() bool { return true }

func (s *LoggingStage) Before(_ context.Context, t *Turn) error {
	s.logger.Debug("chat request",
		zap.String("mode", string(t.Mode)),
		zap.String("conversation_id", t.Request.ConversationID),
		zap.String("user_prompt", utils.Truncate(t.Request.UserPrompt, 200)),
		zap.Int("history", len(t.History)),
		zap.String("context_status", string(contextStatus(t))))
	return nil
}

type transcriptEntry struct {
	Time           time.Time            `json:"time"`
	Mode           Mode                 `json:"mode"`
	ConversationID string               `json:"conversation_id"`
	UserPrompt     string               `json:"user_prompt"`
	Response       string               `json:"response,omitempty"`
	ContextStatus  models.ContextStatus `json:"context_status"`
	Chunks         int                  `json:"chunks"`
	Error          string               `json:"error,omitempty"`
	DurationMS     int64                `json:"duration_ms"`
}

func (s *LoggingStage) After(_ context.Context, t *Turn) error {
	elapsed := time.Since(t.Started)
	fields := []zap.Field{
		zap.String("mode", string(t.Mode)),
		zap.String("conversation_id", t.Request.ConversationID),
		zap.Duration("elapsed", elapsed),
	}
	if t.Err != nil {
		s.logger.Warn("chat turn failed", append(fields, zap.Error(t.Err))...)
	} else if t.Completion != nil {
		s.logger.Debug("chat response", append(fields, zap.String("response", utils.Truncate(t.Completion.Text, 200)))...)
	}
	if s.out == nil {
		return nil
	}
	entry := transcriptEntry{
		Time:           t.Started,
		Mode:           t.Mode,
		ConversationID: t.Request.ConversationID,
		UserPrompt:     t.Request.UserPrompt,
		ContextStatus:  contextStatus(t),
		DurationMS:     elapsed.Milliseconds(),
	}
	if t.Retrieval != nil {
		entry.Chunks = len(t.Retrieval.Result.Chunks)
	}
	if t.Completion != nil {
		entry.Response = t.Completion.Text
	}
	if t.Err != nil {
		entry.Error = t.Err.Error()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode transcript entry: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

func contextStatus(t *Turn) models.ContextStatus {
	if t.Retrieval == nil {
		return models.ContextAbsent
	}
	return t.Retrieval.Status
}
