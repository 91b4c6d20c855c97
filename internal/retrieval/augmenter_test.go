package retrieval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hyperjump/hanashi/internal/apperr"
	"github.com/hyperjump/hanashi/internal/config"
	"github.com/hyperjump/hanashi/internal/embedding"
	"github.com/hyperjump/hanashi/internal/keyword"
	"github.com/hyperjump/hanashi/internal/models"
	"github.com/hyperjump/hanashi/internal/vector"
)

// scriptedIndex returns fixed hits regardless of the query, honoring accept.
type scriptedIndex struct {
	hits []*vector.VectorResult
	err  error
	k    int
}

func (s *scriptedIndex) Add(context.Context, []string, [][]float32) error { return nil }
func (s *scriptedIndex) Search(_ context.Context, _ []float32, k int, accept vector.AcceptFunc) ([]*vector.VectorResult, error) {
	s.k = k
	if s.err != nil {
		return nil, s.err
	}
	out := []*vector.VectorResult{}
	for _, h := range s.hits {
		if accept == nil || accept(h.ID) {
			out = append(out, h)
		}
	}
	return out, nil
}
func (s *scriptedIndex) Remove(context.Context, []string) error { return nil }
func (s *scriptedIndex) Save(string) error                      { return nil }
func (s *scriptedIndex) Load(string) error                      { return nil }
func (s *scriptedIndex) Size() int                              { return len(s.hits) }
func (s *scriptedIndex) Close() error                           { return nil }

type mapStore map[string]*models.Chunk

func (m mapStore) GetChunks(_ context.Context, ids []string) (map[string]*models.Chunk, error) {
	out := map[string]*models.Chunk{}
	for _, id := range ids {
		if ch, ok := m[id]; ok {
			out[id] = ch
		}
	}
	return out, nil
}

func chunkSet(ids ...string) mapStore {
	m := mapStore{}
	for _, id := range ids {
		m[id] = &models.Chunk{ID: id, DocumentID: "doc", Content: "content of " + id,
			Metadata: map[string]interface{}{models.MetaSource: id + ".md"}}
	}
	return m
}

func newTestAugmenter(idx vector.VectorIndex, store ChunkStore, filter keyword.FilterIndex, opts Options) *Augmenter {
	return NewAugmenter(embedding.NewMockEmbedder(4), idx, filter, store, opts, nil)
}

func TestRetrieve_thresholdOrderTopK(t *testing.T) {
	idx := &scriptedIndex{hits: []*vector.VectorResult{
		{ID: "low", Score: 0.1},
		{ID: "b", Score: 0.8},
		{ID: "a", Score: 0.8},
		{ID: "top", Score: 1.4}, // out of range, clamped to 1
		{ID: "mid", Score: 0.5},
		{ID: "b", Score: 0.8}, // duplicate
		{ID: "neg", Score: -0.9},
	}}
	a := newTestAugmenter(idx, chunkSet("low", "a", "b", "top", "mid", "neg"), nil, Options{SimilarityThreshold: 0.3, TopK: 3})

	res, err := a.Retrieve(context.Background(), a.Query("question", ""))
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, sc := range res.Chunks {
		got = append(got, fmt.Sprintf("%s=%.1f", sc.Chunk.ID, sc.Score))
	}
	want := "top=1.0 a=0.8 b=0.8"
	if strings.Join(got, " ") != want {
		t.Errorf("got %v, want %s", got, want)
	}
	if idx.k != 3 {
		t.Errorf("search k = %d", idx.k)
	}
}

func TestRetrieve_properties(t *testing.T) {
	hits := make([]*vector.VectorResult, 0, 40)
	ids := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("c%02d", i)
		ids = append(ids, id)
		hits = append(hits, &vector.VectorResult{ID: id, Score: float64((i*37)%41) / 40})
	}
	store := chunkSet(ids...)
	for _, tc := range []struct {
		threshold float64
		topK      int
	}{{0, 1}, {0.3, 3}, {0.5, 10}, {0.9, 100}, {1, 5}} {
		a := newTestAugmenter(&scriptedIndex{hits: hits}, store, nil, Options{SimilarityThreshold: tc.threshold, TopK: tc.topK})
		res, err := a.Retrieve(context.Background(), a.Query("q", ""))
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Chunks) > tc.topK {
			t.Errorf("threshold %.1f topK %d: %d results", tc.threshold, tc.topK, len(res.Chunks))
		}
		for i, sc := range res.Chunks {
			if sc.Score < tc.threshold {
				t.Errorf("score %.2f below threshold %.2f", sc.Score, tc.threshold)
			}
			if i > 0 && sc.Score > res.Chunks[i-1].Score {
				t.Errorf("not descending at %d", i)
			}
		}
	}
}

func TestRetrieve_missingChunkSkipped(t *testing.T) {
	idx := &scriptedIndex{hits: []*vector.VectorResult{{ID: "gone", Score: 0.9}, {ID: "here", Score: 0.7}}}
	a := newTestAugmenter(idx, chunkSet("here"), nil, Options{TopK: 3})
	res, err := a.Retrieve(context.Background(), a.Query("q", ""))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chunks) != 1 || res.Chunks[0].Chunk.ID != "here" {
		t.Errorf("got %+v", res.Chunks)
	}
}

func TestRetrieve_errors(t *testing.T) {
	boom := errors.New("index down")
	a := newTestAugmenter(&scriptedIndex{err: boom}, chunkSet(), nil, Options{})
	_, err := a.Retrieve(context.Background(), a.Query("q", ""))
	if !errors.Is(err, apperr.ErrRetrieval) || !errors.Is(err, boom) {
		t.Errorf("search failure = %v", err)
	}
	_, err = a.Retrieve(context.Background(), a.Query("  ", ""))
	if apperr.KindOf(err) != apperr.KindInvalidRequest {
		t.Errorf("empty query = %v", err)
	}
	_, err = a.Retrieve(context.Background(), a.Query("q", "source:x"))
	if apperr.KindOf(err) != apperr.KindInvalidRequest {
		t.Errorf("filter without index = %v", err)
	}
}

func TestRetrieve_filterExpression(t *testing.T) {
	filter, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	defer filter.Close()
	store := chunkSet("handbook", "faq")
	var chunks []*models.Chunk
	for _, ch := range store {
		chunks = append(chunks, ch)
	}
	if err := filter.IndexChunks(context.Background(), chunks); err != nil {
		t.Fatal(err)
	}
	idx := &scriptedIndex{hits: []*vector.VectorResult{{ID: "handbook", Score: 0.9}, {ID: "faq", Score: 0.95}}}
	a := newTestAugmenter(idx, store, filter, Options{TopK: 3})

	res, err := a.Retrieve(context.Background(), a.Query("q", "source:handbook.md"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chunks) != 1 || res.Chunks[0].Chunk.ID != "handbook" {
		t.Errorf("filtered = %+v", res.Chunks)
	}

	res, err = a.Retrieve(context.Background(), a.Query("q", "source:nothing.md"))
	if err != nil || !res.Empty() {
		t.Errorf("no match = %+v, %v", res, err)
	}

	_, err = a.Retrieve(context.Background(), a.Query("q", "source:"))
	if apperr.KindOf(err) != apperr.KindInvalidRequest {
		t.Errorf("invalid filter = %v", err)
	}
}

func TestAugment_policies(t *testing.T) {
	ctx := context.Background()
	present := &scriptedIndex{hits: []*vector.VectorResult{{ID: "a", Score: 0.9}}}
	none := &scriptedIndex{}
	failing := &scriptedIndex{err: errors.New("down")}

	aug, err := newTestAugmenter(present, chunkSet("a"), nil, Options{AllowEmptyContext: true}).Augment(ctx, "what?", "")
	if err != nil {
		t.Fatal(err)
	}
	if aug.Status != models.ContextPresent || !strings.Contains(aug.Query, "[1] a.md (score 0.90)\ncontent of a") || !strings.Contains(aug.Query, "Query: what?") {
		t.Errorf("present: %+v", aug)
	}

	aug, err = newTestAugmenter(none, chunkSet(), nil, Options{AllowEmptyContext: true}).Augment(ctx, "what?", "")
	if err != nil {
		t.Fatal(err)
	}
	if aug.Status != models.ContextEmpty || !strings.Contains(aug.Query, "---------------------\n\n---------------------") {
		t.Errorf("empty: %+v", aug)
	}

	aug, err = newTestAugmenter(none, chunkSet(), nil, Options{AllowEmptyContext: false}).Augment(ctx, "what?", "")
	if err != nil {
		t.Fatal(err)
	}
	if aug.Status != models.ContextAbsent || strings.Contains(aug.Query, "what?") {
		t.Errorf("absent: %+v", aug)
	}

	if _, err := newTestAugmenter(failing, chunkSet(), nil, Options{AllowEmptyContext: true}).Augment(ctx, "q", ""); !errors.Is(err, apperr.ErrRetrieval) {
		t.Errorf("fail policy = %v", err)
	}

	aug, err = newTestAugmenter(failing, chunkSet(), nil, Options{AllowEmptyContext: true, OnError: config.OnErrorEmpty}).Augment(ctx, "q", "")
	if err != nil {
		t.Fatal(err)
	}
	if !aug.Degraded || aug.Status != models.ContextEmpty {
		t.Errorf("empty policy: %+v", aug)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.RetrievalConfig{TopK: 5}
	opts := OptionsFromConfig(cfg)
	if opts.SimilarityThreshold != 0.3 || !opts.AllowEmptyContext || opts.TopK != 5 {
		t.Errorf("opts = %+v", opts)
	}
	a := NewAugmenter(nil, nil, nil, nil, Options{SimilarityThreshold: 2}, nil)
	if got := a.Options(); got.SimilarityThreshold != 1 || got.TopK != 3 || got.OnError != config.OnErrorFail {
		t.Errorf("normalized opts = %+v", got)
	}
}

func TestBuildContext(t *testing.T) {
	if BuildContext(nil) != "" || BuildContext(&models.RetrievalResult{}) != "" {
		t.Error("empty result should render empty")
	}
	res := &models.RetrievalResult{Chunks: []*models.ScoredChunk{
		{Chunk: &models.Chunk{ID: "1", Content: "first"}, Score: 0.9},
		{Chunk: &models.Chunk{ID: "2", Content: "second", Metadata: map[string]interface{}{models.MetaSource: "b.md"}}, Score: 0.456},
	}}
	want := "[1] (score 0.90)\nfirst\n\n[2] b.md (score 0.46)\nsecond"
	if got := BuildContext(res); got != want {
		t.Errorf("BuildContext = %q, want %q", got, want)
	}
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf, &models.RetrievalResult{})
	if buf.String() != "No documents found\n" {
		t.Errorf("empty = %q", buf.String())
	}
	buf.Reset()
	Print(&buf, &models.RetrievalResult{Chunks: []*models.ScoredChunk{
		{Chunk: &models.Chunk{Content: "line1\nline2"}, Score: 0.8765},
	}})
	want := "1 Document, Score: 0.88\n" + rule + "\nline1\nline2\n" + rule + "\n"
	if buf.String() != want {
		t.Errorf("Print = %q", buf.String())
	}
}
