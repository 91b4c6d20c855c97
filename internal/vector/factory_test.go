package vector

import (
	"context"
	"testing"
)

func TestNewVectorIndex_Memory(t *testing.T) {
	idx, err := NewVectorIndex("memory", 3, "", false)
	if err != nil {
		t.Fatalf("NewVectorIndex(memory): %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
}

func TestNewVectorIndex_Empty(t *testing.T) {
	idx, err := NewVectorIndex("", 3, "", false)
	if err != nil {
		t.Fatalf("NewVectorIndex(''): %v", err)
	}
	defer idx.Close()
	if _, ok := idx.(*MemoryIndex); !ok {
		t.Errorf("empty type should default to memory, got %T", idx)
	}
}

func TestNewVectorIndex_Chromem(t *testing.T) {
	idx, err := NewVectorIndex("chromem", 3, t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewVectorIndex(chromem): %v", err)
	}
	defer idx.Close()
	if _, ok := idx.(*ChromemIndex); !ok {
		t.Errorf("expected *ChromemIndex, got %T", idx)
	}
}

func TestNewVectorIndex_Unknown(t *testing.T) {
	if _, err := NewVectorIndex("faiss", 3, "", false); err == nil {
		t.Error("expected error for unknown index type")
	}
}

func TestNewVectorIndex_InvalidDimension(t *testing.T) {
	if _, err := NewVectorIndex("memory", 0, "", false); err == nil {
		t.Error("expected error for zero dimension")
	}
}
