package memory

import (
	"sync"

	"github.com/hyperjump/hanashi/internal/models"
)

// window is a fixed-capacity ring of messages. When full, appending evicts the
// oldest message. All access goes through mu.
type window struct {
	mu    sync.Mutex
	buf   []models.Message
	head  int // index of the oldest message
	count int
}

func newWindow(size int) *window {
	return &window{buf: make([]models.Message, size)}
}

// append adds msgs in order under a single lock hold, so a turn is never
// observed half written.
func (w *window) append(msgs ...models.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	size := len(w.buf)
	for _, m := range msgs {
		if w.count < size {
			w.buf[(w.head+w.count)%size] = m
			w.count++
			continue
		}
		w.buf[w.head] = m
		w.head = (w.head + 1) % size
	}
}

// snapshot copies the messages oldest first.
func (w *window) snapshot() []models.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.Message, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

func (w *window) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *window) clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.buf {
		w.buf[i] = models.Message{}
	}
	w.head, w.count = 0, 0
}
