package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hyperjump/hanashi/internal/models"
)

// AnthropicModel calls the Anthropic Messages API.
type AnthropicModel struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicModel creates a model client. baseURL may be empty.
func NewAnthropicModel(apiKey, baseURL, model string, maxTokens int, timeout time.Duration) (*AnthropicModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: missing API key")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	client := anthropic.NewClient(opts...)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicModel{client: &client, model: model, maxTokens: int64(maxTokens)}, nil
}

// Name returns the default model name.
func (m *AnthropicModel) Name() string { return m.model }

func (m *AnthropicModel) params(p *Prompt) anthropic.MessageNewParams {
	system, msgs := p.systemText()
	model := m.model
	if p.Options.Model != "" {
		model = p.Options.Model
	}
	maxTokens := m.maxTokens
	if p.Options.MaxTokens > 0 {
		maxTokens = int64(p.Options.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   maxTokens,
		Messages:    make([]anthropic.MessageParam, 0, len(msgs)),
		Temperature: anthropic.Float(p.Options.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, msg := range msgs {
		switch msg.Role {
		case models.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return params
}

func anthropicCompletion(msg *anthropic.Message) *Completion {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return &Completion{
		Text: b.String(),
		Metadata: map[string]interface{}{
			"id":            msg.ID,
			"model":         string(msg.Model),
			"stop_reason":   string(msg.StopReason),
			"input_tokens":  msg.Usage.InputTokens,
			"output_tokens": msg.Usage.OutputTokens,
		},
	}
}

// Call sends one Messages request.
func (m *AnthropicModel) Call(ctx context.Context, p *Prompt) (*Completion, error) {
	resp, err := m.client.Messages.New(ctx, m.params(p))
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	return anthropicCompletion(resp), nil
}

// Stream sends a streaming Messages request and yields every text delta.
func (m *AnthropicModel) Stream(ctx context.Context, p *Prompt, yield YieldFunc) (*Completion, error) {
	stream := m.client.Messages.NewStreaming(ctx, m.params(p))
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("anthropic: accumulate: %w", err)
		}
		if evt, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta, ok := evt.Delta.AsAny().(anthropic.TextDelta); ok {
				if err := yield(delta.Text); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	return anthropicCompletion(&message), nil
}
