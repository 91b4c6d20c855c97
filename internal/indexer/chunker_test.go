package indexer

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hyperjump/hanashi/internal/apperr"
	"github.com/hyperjump/hanashi/internal/models"
)

func spanText(text string, sp models.Span) string {
	return string([]rune(text)[sp.Start:sp.End])
}

func TestSplit_Fox(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog"
	spans := Split(text, 10, 3)
	if len(spans) != 6 {
		t.Fatalf("expected 6 chunks, got %d: %v", len(spans), spans)
	}
	for i, sp := range spans {
		if sp.Len() > 10 {
			t.Errorf("chunk %d length %d > 10", i, sp.Len())
		}
		if i == 0 {
			continue
		}
		prev := spanText(text, spans[i-1])
		cur := spanText(text, sp)
		if prev[len(prev)-3:] != cur[:3] {
			t.Errorf("chunk %d: tail %q of previous != head %q", i, prev[len(prev)-3:], cur[:3])
		}
	}
	if spans[len(spans)-1].End != utf8.RuneCountInString(text) {
		t.Error("last chunk should end at text end")
	}
}

func TestSplit_EdgeCases(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		size      int
		overlap   int
		wantCount int
	}{
		{"empty", "", 10, 3, 0},
		{"whitespace only", "  \n\t ", 10, 3, 0},
		{"shorter than overlap", "abc", 2, 5, 1},
		{"equal to overlap", "abcde", 2, 5, 1},
		{"shorter than size", "hello", 10, 3, 1},
		{"exactly size", "0123456789", 10, 3, 1},
		{"zero overlap", "0123456789ab", 4, 0, 3},
		{"overlap equals size", "0123456789", 4, 4, 3},
		{"overlap exceeds size", "0123456789", 3, 7, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := Split(tt.text, tt.size, tt.overlap)
			if len(spans) != tt.wantCount {
				t.Fatalf("got %d spans %v, want %d", len(spans), spans, tt.wantCount)
			}
		})
	}
}

func TestSplit_ShorterThanOverlapReturnsWholeText(t *testing.T) {
	text := "tiny"
	spans := Split(text, 2, 10)
	if len(spans) != 1 || spanText(text, spans[0]) != text {
		t.Errorf("expected whole text as single chunk, got %v", spans)
	}
}

func TestSplit_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abcdefgh ijkl日本語")
	for iter := 0; iter < 300; iter++ {
		n := 1 + rng.Intn(200)
		rs := make([]rune, n)
		for i := range rs {
			rs[i] = alphabet[rng.Intn(len(alphabet))]
		}
		rs[0] = 'x'
		text := string(rs)
		size := 1 + rng.Intn(30)
		overlap := rng.Intn(size)
		spans := Split(text, size, overlap)
		if len(spans) == 0 {
			t.Fatalf("non-empty text %q produced no chunks", text)
		}
		if spans[0].Start != 0 || spans[len(spans)-1].End != n {
			t.Fatalf("chunks do not cover text: %v (n=%d)", spans, n)
		}
		for i, sp := range spans {
			if sp.Len() > size && n > overlap {
				t.Fatalf("chunk %d length %d > size %d", i, sp.Len(), size)
			}
			if i > 0 && n > overlap {
				if got := spans[i-1].End - sp.Start; got != overlap {
					t.Fatalf("chunks %d/%d overlap %d, want %d (size=%d, n=%d)", i-1, i, got, overlap, size, n)
				}
			}
		}
	}
}

func TestSplit_DegenerateOverlapIsMonotonic(t *testing.T) {
	text := strings.Repeat("abcdefghij", 5)
	for _, overlap := range []int{5, 6, 20, 49} {
		spans := Split(text, 5, overlap)
		if len(spans) == 0 {
			t.Fatalf("overlap %d: no chunks", overlap)
		}
		covered := 0
		for i, sp := range spans {
			if sp.Start > covered {
				t.Fatalf("overlap %d: gap before chunk %d", overlap, i)
			}
			if sp.End <= covered {
				t.Fatalf("overlap %d: chunk %d does not advance", overlap, i)
			}
			covered = sp.End
		}
		if covered != len(text) {
			t.Errorf("overlap %d: covered %d of %d", overlap, covered, len(text))
		}
	}
}

func TestNewChunker_Invalid(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{0, 0}, {-1, 0}, {10, -1}} {
		_, err := NewChunker(tc.size, tc.overlap)
		if err == nil {
			t.Errorf("NewChunker(%d, %d) should fail", tc.size, tc.overlap)
			continue
		}
		if !errors.Is(err, apperr.ErrChunking) {
			t.Errorf("expected chunking error, got %v", err)
		}
	}
}

func TestChunker_Chunk(t *testing.T) {
	c, err := NewChunker(10, 3)
	if err != nil {
		t.Fatal(err)
	}
	doc := &models.Document{
		ID:       "doc1",
		Content:  "The quick brown fox jumps over the lazy dog",
		Metadata: map[string]interface{}{models.MetaSource: "fox.txt"},
	}
	chunks := c.Chunk(doc)
	if len(chunks) != 6 {
		t.Fatalf("expected 6 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.DocumentID != "doc1" {
			t.Errorf("chunk %d DocumentID=%s", i, ch.DocumentID)
		}
		if ch.ChunkIndex != i {
			t.Errorf("chunk %d ChunkIndex=%d", i, ch.ChunkIndex)
		}
		if ch.StartOffset != i*7 {
			t.Errorf("chunk %d StartOffset=%d, want %d", i, ch.StartOffset, i*7)
		}
		if ch.Metadata[models.MetaSource] != "fox.txt" {
			t.Errorf("chunk %d should inherit source metadata", i)
		}
		if ch.ID != ChunkID("doc1", i) {
			t.Errorf("chunk %d id not deterministic", i)
		}
	}
	chunks[0].Metadata["extra"] = true
	if _, ok := doc.Metadata["extra"]; ok {
		t.Error("chunk metadata must be a copy of document metadata")
	}
}

func TestChunker_ChunkEmpty(t *testing.T) {
	c, _ := NewChunker(5, 1)
	chunks := c.Chunk(&models.Document{ID: "d", Content: "   \n\t  "})
	if chunks != nil {
		t.Errorf("empty text should return nil, got %v", chunks)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  a  b  ", "a b"},
		{"a\t\tb", "a b"},
		{"line1\nline2", "line1\nline2"},
		{"line1 \n  line2", "line1\nline2"},
		{"para1\n\n\n\tpara2", "para1\n\npara2"},
		{"\r\n x \r\n", "x"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
