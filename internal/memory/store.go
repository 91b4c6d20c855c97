// Package memory keeps a bounded window of recent messages per conversation.
//
// Each conversation id owns an independent window with its own lock, so turns
// for different conversations never contend. The id-to-window map is only
// write-locked the first time an id is seen.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hyperjump/hanashi/internal/apperr"
	"github.com/hyperjump/hanashi/internal/models"
)

// DefaultWindowSize is the number of messages kept per conversation when none is configured.
const DefaultWindowSize = 10

// Store maps conversation ids to message windows. The zero value is not usable;
// call NewStore.
type Store struct {
	size    int
	mu      sync.RWMutex
	windows map[string]*window
}

// NewStore returns a store keeping the last windowSize messages of each
// conversation. A non-positive size uses DefaultWindowSize.
func NewStore(windowSize int) *Store {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Store{size: windowSize, windows: make(map[string]*window)}
}

// WindowSize returns the per-conversation capacity.
func (s *Store) WindowSize() int { return s.size }

func (s *Store) lookup(id string) *window {
	s.mu.RLock()
	w := s.windows[id]
	s.mu.RUnlock()
	return w
}

func (s *Store) getOrCreate(id string) *window {
	if w := s.lookup(id); w != nil {
		return w
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Double-check after acquiring write lock
	if w, ok := s.windows[id]; ok {
		return w
	}
	w := newWindow(s.size)
	s.windows[id] = w
	return w
}

// Append adds msgs, in order, to the conversation's window, evicting the oldest
// messages beyond the window size. The messages of one call are applied atomically.
func (s *Store) Append(id string, msgs ...models.Message) error {
	if strings.TrimSpace(id) == "" {
		return apperr.New(apperr.KindMemory, "append", fmt.Errorf("conversation id cannot be empty"))
	}
	for _, m := range msgs {
		if !m.Role.Valid() {
			return apperr.New(apperr.KindMemory, "append", fmt.Errorf("invalid message role %q", m.Role))
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	s.getOrCreate(id).append(msgs...)
	return nil
}

// Snapshot returns a copy of the conversation's messages, oldest first. An
// unknown id yields an empty slice and does not create a window.
func (s *Store) Snapshot(id string) []models.Message {
	w := s.lookup(id)
	if w == nil {
		return []models.Message{}
	}
	return w.snapshot()
}

// Len returns how many messages the conversation currently holds.
func (s *Store) Len(id string) int {
	w := s.lookup(id)
	if w == nil {
		return 0
	}
	return w.len()
}

// Clear empties the conversation's window. The window itself is kept.
func (s *Store) Clear(id string) {
	if w := s.lookup(id); w != nil {
		w.clear()
	}
}

// Conversations returns the known conversation ids, sorted.
func (s *Store) Conversations() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.windows))
	for id := range s.windows {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
