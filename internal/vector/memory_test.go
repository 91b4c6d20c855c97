package vector

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	ids := []string{"a", "b", "c"}
	if err := idx.Add(ctx, ids, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("unexpected order: %s, %s", results[0].ID, results[1].ID)
	}
}

func TestMemoryIndex_SearchAccept(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"x", "y", "z"}, [][]float32{{1, 0}, {0.8, 0.2}, {0, 1}})
	allowed := map[string]bool{"y": true, "z": true}
	results, err := idx.Search(ctx, []float32{1, 0}, 5, func(id string) bool { return allowed[id] })
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].ID != "y" {
		t.Errorf("accept func not applied: %+v", results)
	}
}

func TestMemoryIndex_AddReplaces(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"x"}, [][]float32{{1, 0}})
	_ = idx.Add(ctx, []string{"x"}, [][]float32{{0, 1}})
	if idx.Size() != 1 {
		t.Fatalf("re-adding an id should replace it, size=%d", idx.Size())
	}
	results, _ := idx.Search(ctx, []float32{0, 1}, 1, nil)
	if results[0].Score < 0.99 {
		t.Errorf("expected replaced vector, score=%v", results[0].Score)
	}
}

func TestMemoryIndex_Remove(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"x", "y"}, [][]float32{{1, 0}, {0, 1}})
	if err := idx.Remove(ctx, []string{"x", "unknown"}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 {
		t.Errorf("expected size 1, got %d", idx.Size())
	}
	results, _ := idx.Search(ctx, []float32{1, 0}, 5, nil)
	if len(results) != 1 || results[0].ID != "y" {
		t.Errorf("got %+v", results)
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewMemoryIndex(3)
	if err := idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}}); err == nil {
		t.Error("expected dimension mismatch on add")
	}
	if _, err := idx.Search(context.Background(), []float32{1}, 1, nil); err == nil {
		t.Error("expected dimension mismatch on search")
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "vectors.bin")
	ctx := context.Background()
	idx, _ := NewMemoryIndex(2)
	_ = idx.Add(ctx, []string{"first", "second"}, [][]float32{{1, 0}, {0, 1}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("loaded size %d", loaded.Size())
	}
	results, _ := loaded.Search(ctx, []float32{0, 1}, 1, nil)
	if results[0].ID != "second" {
		t.Errorf("got %s", results[0].ID)
	}

	wrong, _ := NewMemoryIndex(3)
	if err := wrong.Load(path); err == nil {
		t.Error("expected dimension mismatch on load")
	}
	missing, _ := NewMemoryIndex(2)
	if err := missing.Load(filepath.Join(t.TempDir(), "none.bin")); err != nil {
		t.Errorf("missing file should not error: %v", err)
	}
}
