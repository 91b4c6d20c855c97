package indexer

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/hanashi/internal/llm"
	"github.com/hyperjump/hanashi/internal/models"
	"go.uber.org/zap"
)

const keywordTemplate = "%s\n\nGive %d unique keywords for this document. Format as comma separated. Keywords:"

// KeywordEnricher asks the chat model for a few keywords per chunk and stores
// them under the excerpt_keywords metadata key, where filter expressions can match them.
type KeywordEnricher struct {
	model  llm.ChatModel
	count  int
	logger *zap.Logger
}

// NewKeywordEnricher returns an enricher that requests count keywords per chunk.
func NewKeywordEnricher(model llm.ChatModel, count int, logger *zap.Logger) (*KeywordEnricher, error) {
	if model == nil {
		return nil, fmt.Errorf("keyword enricher: model is required")
	}
	if count <= 0 {
		return nil, fmt.Errorf("keyword enricher: keyword count must be positive, got %d", count)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeywordEnricher{model: model, count: count, logger: logger}, nil
}

// Enrich sets excerpt_keywords on every chunk. It stops at the first model error.
func (e *KeywordEnricher) Enrich(ctx context.Context, chunks []*models.Chunk) error {
	for _, ch := range chunks {
		prompt := &llm.Prompt{
			Messages: []models.Message{models.UserMessage(fmt.Sprintf(keywordTemplate, ch.Content, e.count))},
		}
		resp, err := e.model.Call(ctx, prompt)
		if err != nil {
			return fmt.Errorf("extract keywords for chunk %s: %w", ch.ID, err)
		}
		kw := ParseKeywords(resp.Text, e.count)
		if ch.Metadata == nil {
			ch.Metadata = map[string]interface{}{}
		}
		ch.Metadata[models.MetaKeywords] = strings.Join(kw, ", ")
		e.logger.Debug("chunk keywords", zap.String("chunk_id", ch.ID), zap.Strings("keywords", kw))
	}
	return nil
}

// ParseKeywords splits a comma separated model answer into at most limit
// trimmed, distinct keywords. A leading "Keywords:" label and list markers
// ("- ", "* ", "1. ", "2) ") are ignored.
func ParseKeywords(answer string, limit int) []string {
	answer = strings.TrimSpace(answer)
	if strings.HasPrefix(strings.ToLower(answer), "keywords:") {
		answer = answer[len("keywords:"):]
	}
	seen := map[string]bool{}
	out := []string{}
	for _, part := range strings.FieldsFunc(answer, func(r rune) bool { return r == ',' || r == '\n' }) {
		kw := trimListMarker(strings.TrimSpace(part))
		kw = strings.TrimSpace(strings.Trim(kw, `."'*-`))
		key := strings.ToLower(kw)
		if kw == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// trimListMarker drops a leading "-", "*" or "N." / "N)" bullet.
func trimListMarker(s string) string {
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "*") {
		return strings.TrimSpace(s[1:])
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
