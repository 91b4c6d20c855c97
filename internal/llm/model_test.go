package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/hanashi/internal/config"
	"github.com/hyperjump/hanashi/internal/models"
)

func TestFragments(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"one", []string{"one"}},
		{"hello big world", []string{"hello ", "big ", "world"}},
		{"trailing ", []string{"trailing "}},
	}
	for _, tt := range tests {
		got := Fragments(tt.in)
		if len(got) != len(tt.want) {
			t.Fatalf("Fragments(%q) = %q, want %q", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Fragments(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
		if strings.Join(got, "") != tt.in {
			t.Errorf("joined fragments differ from %q", tt.in)
		}
	}
}

func TestPrompt_LastUser(t *testing.T) {
	p := &Prompt{Messages: []models.Message{
		models.UserMessage("first"),
		models.AssistantMessage("answer"),
		models.UserMessage("second"),
	}}
	if got := p.LastUser(); got != "second" {
		t.Errorf("LastUser = %q", got)
	}
	c := p.Clone()
	c.SetLastUser("changed")
	if p.LastUser() != "second" {
		t.Error("SetLastUser on a clone modified the original")
	}
	if c.LastUser() != "changed" {
		t.Errorf("clone LastUser = %q", c.LastUser())
	}

	empty := &Prompt{}
	empty.SetLastUser("new")
	if len(empty.Messages) != 1 || empty.Messages[0].Role != models.RoleUser {
		t.Errorf("SetLastUser on empty prompt: %+v", empty.Messages)
	}
}

func TestPrompt_systemText(t *testing.T) {
	p := &Prompt{
		System: "base",
		Messages: []models.Message{
			models.SystemMessage("extra"),
			models.UserMessage("hi"),
		},
	}
	system, rest := p.systemText()
	if system != "base\n\nextra" {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 1 || rest[0].Content != "hi" {
		t.Errorf("rest = %+v", rest)
	}
}

func TestMockModel(t *testing.T) {
	ctx := context.Background()
	m := NewMockModel("first reply", "second reply")
	p := &Prompt{Messages: []models.Message{models.UserMessage("q")}}

	c, err := m.Call(ctx, p)
	if err != nil || c.Text != "first reply" {
		t.Fatalf("Call = %v, %v", c, err)
	}
	var frags []string
	c, err = m.Stream(ctx, p, func(f string) error {
		frags = append(frags, f)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Text != "second reply" || strings.Join(frags, "") != "second reply" || len(frags) != 2 {
		t.Errorf("Stream text = %q, frags = %q", c.Text, frags)
	}
	// Last reply repeats.
	if c, _ := m.Call(ctx, p); c.Text != "second reply" {
		t.Errorf("repeat = %q", c.Text)
	}
	if len(m.Prompts()) != 3 {
		t.Errorf("Prompts = %d", len(m.Prompts()))
	}
}

func TestMockModel_echoAndError(t *testing.T) {
	ctx := context.Background()
	m := NewMockModel()
	p := &Prompt{Messages: []models.Message{models.UserMessage("ping")}}
	if c, _ := m.Call(ctx, p); c.Text != "echo: ping" {
		t.Errorf("echo = %q", c.Text)
	}
	boom := errors.New("boom")
	m.SetError(boom)
	if _, err := m.Call(ctx, p); !errors.Is(err, boom) {
		t.Errorf("Call err = %v", err)
	}
	if _, err := m.Stream(ctx, p, func(string) error { return nil }); !errors.Is(err, boom) {
		t.Errorf("Stream err = %v", err)
	}
}

func TestMockModel_StreamStopsOnYieldError(t *testing.T) {
	m := NewMockModel("a b c d")
	stop := errors.New("stop")
	n := 0
	_, err := m.Stream(context.Background(), &Prompt{}, func(string) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || n != 2 {
		t.Errorf("err = %v after %d fragments", err, n)
	}
}

func TestMockModel_StreamCanceled(t *testing.T) {
	m := NewMockModel("a b c d")
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	_, err := m.Stream(ctx, &Prompt{}, func(string) error {
		n++
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) || n != 1 {
		t.Errorf("err = %v after %d fragments", err, n)
	}
}

func TestNew(t *testing.T) {
	m, err := New(&config.ModelConfig{Provider: "mock"}, nil)
	if err != nil || m.Name() != "mock" {
		t.Fatalf("New(mock) = %v, %v", m, err)
	}
	if _, err := New(&config.ModelConfig{Provider: "nope"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
	t.Setenv("HANASHI_TEST_EMPTY_KEY", "")
	if _, err := New(&config.ModelConfig{Provider: "anthropic", APIKeyEnv: "HANASHI_TEST_EMPTY_KEY", Name: "x"}, nil); err == nil {
		t.Error("expected error for missing API key")
	}
	t.Setenv("HANASHI_TEST_KEY", "sk-test")
	m, err = New(&config.ModelConfig{Provider: "anthropic", APIKeyEnv: "HANASHI_TEST_KEY", Name: "claude-test"}, nil)
	if err != nil || m.Name() != "claude-test" {
		t.Errorf("New(anthropic) = %v, %v", m, err)
	}
	m, err = New(&config.ModelConfig{Provider: "ollama", BaseURL: "http://127.0.0.1:11434", Name: "llama3.2"}, nil)
	if err != nil || m.Name() != "llama3.2" {
		t.Errorf("New(ollama) = %v, %v", m, err)
	}
}
