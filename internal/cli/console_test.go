package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/hanashi/internal/chat"
	"github.com/hyperjump/hanashi/internal/llm"
	"github.com/hyperjump/hanashi/internal/memory"
	"github.com/hyperjump/hanashi/internal/models"
)

func TestConsole_Run(t *testing.T) {
	store := memory.NewStore(10)
	model := llm.NewMockModel("Hello there!", "Bye now.")
	orch := chat.NewOrchestrator(model, chat.DefaultStages(store, nil, nil, nil))
	in := strings.NewReader("hi\n\n  \ngoodbye\n")
	var out bytes.Buffer

	if err := NewConsole(orch, in, &out, "   ").Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{"USER: ", "ASSISTANT: Hello there!\n", "ASSISTANT: Bye now.\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, "ASSISTANT: ") != 2 {
		t.Errorf("blank lines must be skipped:\n%s", got)
	}
	snap := store.Snapshot(ConversationID)
	if len(snap) != 4 || snap[2].Content != "goodbye" {
		t.Errorf("memory = %v", snap)
	}
	if len(model.Prompts()[1].Messages) != 3 {
		t.Errorf("second turn should carry the first as history")
	}
}

func TestConsole_exitAndErrors(t *testing.T) {
	model := llm.NewMockModel()
	model.SetError(errors.New("model offline"))
	orch := chat.NewOrchestrator(model, chat.DefaultStages(memory.NewStore(4), nil, nil, nil))
	var out bytes.Buffer
	err := NewConsole(orch, strings.NewReader("first\nexit\nnever\n"), &out, "").Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "ERROR: ") || !strings.Contains(out.String(), "model offline") {
		t.Errorf("error not reported:\n%s", out.String())
	}
	if len(model.Prompts()) != 1 {
		t.Errorf("lines after exit were processed: %d prompts", len(model.Prompts()))
	}
}

func TestConsole_filterSentWhenSet(t *testing.T) {
	var seen []string
	orch := chat.NewOrchestrator(llm.NewMockModel("ok"), []chat.Stage{filterSpy{seen: &seen}})
	var out bytes.Buffer
	if err := NewConsole(orch, strings.NewReader("q\n"), &out, " source:a.md ").Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0] != "source:a.md" {
		t.Errorf("filter = %q", seen)
	}
}

type filterSpy struct{ seen *[]string }

func (f filterSpy) Name() string { return "spy" }
func (f filterSpy) Before(_ context.Context, t *chat.Turn) error {
	*f.seen = append(*f.seen, t.Request.FilterExpression)
	if t.Request.ConversationID != ConversationID {
		return errors.New("wrong conversation")
	}
	return nil
}
func (f filterSpy) After(context.Context, *chat.Turn) error { return nil }

func TestDocumentPrinter(t *testing.T) {
	var out bytes.Buffer
	DocumentPrinter(&out)(&models.RetrievalResult{})
	if !strings.Contains(out.String(), "No documents found") {
		t.Errorf("got %q", out.String())
	}
}

func TestConsole_cancelWhileWaitingForInput(t *testing.T) {
	orch := chat.NewOrchestrator(llm.NewMockModel(), chat.DefaultStages(memory.NewStore(4), nil, nil, nil))
	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer

	done := make(chan error, 1)
	go func() { done <- NewConsole(orch, pr, &out, "").Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel while blocked on input")
	}
}
