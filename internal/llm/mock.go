package llm

import (
	"context"
	"strings"
	"sync"
)

// MockModel is a scripted model for tests and offline runs. Replies are returned
// in order and the last one repeats; without replies it echoes the last user message.
type MockModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []*Prompt
	calls   int
}

// NewMockModel returns a model that answers with replies in order.
func NewMockModel(replies ...string) *MockModel {
	return &MockModel{replies: replies}
}

// SetError makes every subsequent call fail with err. A nil err clears it.
func (m *MockModel) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Prompts returns the prompts received so far.
func (m *MockModel) Prompts() []*Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Prompt(nil), m.prompts...)
}

// Name returns "mock".
func (m *MockModel) Name() string { return "mock" }

func (m *MockModel) next(p *Prompt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, p.Clone())
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "echo: " + p.LastUser(), nil
	}
	i := m.calls
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	m.calls++
	return m.replies[i], nil
}

func mockCompletion(text string) *Completion {
	return &Completion{Text: text, Metadata: map[string]interface{}{"model": "mock"}}
}

// Call returns the next scripted reply.
func (m *MockModel) Call(ctx context.Context, p *Prompt) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := m.next(p)
	if err != nil {
		return nil, err
	}
	return mockCompletion(text), nil
}

// Stream yields the next scripted reply word by word, keeping the separating spaces.
func (m *MockModel) Stream(ctx context.Context, p *Prompt, yield YieldFunc) (*Completion, error) {
	text, err := m.next(p)
	if err != nil {
		return nil, err
	}
	for _, frag := range Fragments(text) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := yield(frag); err != nil {
			return nil, err
		}
	}
	return mockCompletion(text), nil
}

// Fragments splits text after each space so that joining the result yields text.
func Fragments(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	for len(text) > 0 {
		i := strings.IndexByte(text, ' ')
		if i < 0 {
			out = append(out, text)
			break
		}
		out = append(out, text[:i+1])
		text = text[i+1:]
	}
	return out
}
