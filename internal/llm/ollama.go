package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaModel calls a local Ollama server's /api/chat endpoint.
type OllamaModel struct {
	client *api.Client
	model  string
}

// NewOllamaModel creates a chat client. An empty baseURL uses OLLAMA_HOST or the
// default local address.
func NewOllamaModel(baseURL, model string, timeout time.Duration) (*OllamaModel, error) {
	var client *api.Client
	if baseURL == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
		client = c
	} else {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama base url: %w", err)
		}
		client = api.NewClient(u, &http.Client{Timeout: timeout})
	}
	return &OllamaModel{client: client, model: model}, nil
}

// Name returns the default model name.
func (m *OllamaModel) Name() string { return m.model }

func (m *OllamaModel) request(p *Prompt, stream bool) *api.ChatRequest {
	model := m.model
	if p.Options.Model != "" {
		model = p.Options.Model
	}
	system, msgs := p.systemText()
	messages := make([]api.Message, 0, len(msgs)+1)
	if system != "" {
		messages = append(messages, api.Message{Role: "system", Content: system})
	}
	for _, msg := range msgs {
		messages = append(messages, api.Message{Role: string(msg.Role), Content: msg.Content})
	}
	opts := map[string]interface{}{"temperature": p.Options.Temperature}
	if p.Options.MaxTokens > 0 {
		opts["num_predict"] = p.Options.MaxTokens
	}
	req := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Options:  opts,
	}
	if p.Options.JSON {
		req.Format = json.RawMessage(`"json"`)
	}
	return req
}

func ollamaMetadata(resp api.ChatResponse) map[string]interface{} {
	return map[string]interface{}{
		"model":         resp.Model,
		"stop_reason":   resp.DoneReason,
		"input_tokens":  resp.PromptEvalCount,
		"output_tokens": resp.EvalCount,
	}
}

// Call runs a non-streaming chat request.
func (m *OllamaModel) Call(ctx context.Context, p *Prompt) (*Completion, error) {
	var (
		text strings.Builder
		last api.ChatResponse
	)
	err := m.client.Chat(ctx, m.request(p, false), func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		last = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return &Completion{Text: text.String(), Metadata: ollamaMetadata(last)}, nil
}

// Stream runs a streaming chat request and yields each message fragment.
func (m *OllamaModel) Stream(ctx context.Context, p *Prompt, yield YieldFunc) (*Completion, error) {
	var (
		text     strings.Builder
		last     api.ChatResponse
		yieldErr error
	)
	err := m.client.Chat(ctx, m.request(p, true), func(resp api.ChatResponse) error {
		last = resp
		if resp.Message.Content == "" {
			return nil
		}
		text.WriteString(resp.Message.Content)
		if err := yield(resp.Message.Content); err != nil {
			yieldErr = err
			return err
		}
		return nil
	})
	if yieldErr != nil {
		return nil, yieldErr
	}
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return &Completion{Text: text.String(), Metadata: ollamaMetadata(last)}, nil
}
