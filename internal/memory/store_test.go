package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hyperjump/hanashi/internal/apperr"
	"github.com/hyperjump/hanashi/internal/models"
)

func contents(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestStore_WindowEvictsOldest(t *testing.T) {
	s := NewStore(2)
	for _, c := range []string{"A", "B", "C"} {
		if err := s.Append("conv", models.UserMessage(c)); err != nil {
			t.Fatal(err)
		}
	}
	got := contents(s.Snapshot("conv"))
	if len(got) != 2 || got[0] != "B" || got[1] != "C" {
		t.Errorf("Snapshot = %v, want [B C]", got)
	}
}

func TestStore_KeepsMostRecentInOrder(t *testing.T) {
	s := NewStore(DefaultWindowSize)
	for i := 0; i < 25; i++ {
		_ = s.Append("c", models.UserMessage(fmt.Sprint(i)))
	}
	got := contents(s.Snapshot("c"))
	if len(got) != DefaultWindowSize {
		t.Fatalf("len = %d", len(got))
	}
	for i, c := range got {
		if want := fmt.Sprint(15 + i); c != want {
			t.Errorf("got[%d] = %q, want %q", i, c, want)
		}
	}
}

func TestStore_AppendTurnAtomically(t *testing.T) {
	s := NewStore(3)
	_ = s.Append("c", models.UserMessage("q1"), models.AssistantMessage("a1"))
	_ = s.Append("c", models.UserMessage("q2"), models.AssistantMessage("a2"))
	got := s.Snapshot("c")
	if len(got) != 3 || got[0].Content != "a1" || got[2].Role != models.RoleAssistant {
		t.Errorf("Snapshot = %v", got)
	}
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := NewStore(4)
	_ = s.Append("c", models.UserMessage("x"))
	snap := s.Snapshot("c")
	snap[0].Content = "mutated"
	if s.Snapshot("c")[0].Content != "x" {
		t.Error("snapshot aliases the window")
	}
}

func TestStore_UnknownConversation(t *testing.T) {
	s := NewStore(0)
	if s.WindowSize() != DefaultWindowSize {
		t.Errorf("WindowSize = %d", s.WindowSize())
	}
	if got := s.Snapshot("nope"); got == nil || len(got) != 0 {
		t.Errorf("Snapshot(unknown) = %v", got)
	}
	if len(s.Conversations()) != 0 {
		t.Error("Snapshot should not create a window")
	}
}

func TestStore_AppendInvalid(t *testing.T) {
	s := NewStore(2)
	if err := s.Append(" ", models.UserMessage("x")); apperr.KindOf(err) != apperr.KindMemory {
		t.Errorf("empty id: %v", err)
	}
	if err := s.Append("c", models.Message{Role: "robot", Content: "x"}); apperr.KindOf(err) != apperr.KindMemory {
		t.Errorf("bad role: %v", err)
	}
	if s.Len("c") != 0 {
		t.Error("rejected append must not mutate")
	}
}

func TestStore_ClearAndConversations(t *testing.T) {
	s := NewStore(2)
	_ = s.Append("b", models.UserMessage("1"))
	_ = s.Append("a", models.UserMessage("1"))
	if ids := s.Conversations(); len(ids) != 2 || ids[0] != "a" {
		t.Errorf("Conversations = %v", ids)
	}
	s.Clear("a")
	if s.Len("a") != 0 || s.Len("b") != 1 {
		t.Errorf("Clear: a=%d b=%d", s.Len("a"), s.Len("b"))
	}
	_ = s.Append("a", models.UserMessage("2"))
	if got := contents(s.Snapshot("a")); len(got) != 1 || got[0] != "2" {
		t.Errorf("after clear = %v", got)
	}
}

func TestStore_ConcurrentWritersPerConversation(t *testing.T) {
	const (
		conversations = 8
		writers       = 4
		turns         = 200
		size          = 50
	)
	s := NewStore(size)
	var wg sync.WaitGroup
	for c := 0; c < conversations; c++ {
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(c, w int) {
				defer wg.Done()
				id := fmt.Sprintf("conv-%d", c)
				for i := 0; i < turns; i++ {
					_ = s.Append(id,
						models.UserMessage(fmt.Sprintf("%d:%d", w, i)),
						models.AssistantMessage(fmt.Sprintf("%d:%d", w, i)))
					_ = s.Snapshot(id)
				}
			}(c, w)
		}
	}
	wg.Wait()

	for c := 0; c < conversations; c++ {
		msgs := s.Snapshot(fmt.Sprintf("conv-%d", c))
		if len(msgs) != size {
			t.Fatalf("conv-%d: len = %d, want %d", c, len(msgs), size)
		}
		// Turns are appended atomically: messages pair up user/assistant with the same content.
		for i := 0; i+1 < len(msgs); i += 2 {
			if msgs[i].Role != models.RoleUser || msgs[i+1].Role != models.RoleAssistant || msgs[i].Content != msgs[i+1].Content {
				t.Fatalf("conv-%d: torn turn at %d: %v %v", c, i, msgs[i], msgs[i+1])
			}
		}
		// Per writer, messages keep their relative order.
		last := map[string]int{}
		for _, m := range msgs {
			var w, i int
			fmt.Sscanf(m.Content, "%d:%d", &w, &i)
			key := fmt.Sprint(w)
			if prev, ok := last[key]; ok && i < prev {
				t.Fatalf("conv-%d: writer %d out of order: %d after %d", c, w, i, prev)
			}
			last[key] = i
		}
	}
}
