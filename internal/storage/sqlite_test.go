package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/hanashi/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_CRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := &models.Document{
		ID:       "doc1",
		Title:    "Title",
		Content:  "Content",
		Metadata: map[string]interface{}{"k": "v"},
	}
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Title" || got.Content != "Content" || got.Metadata["k"] != "v" {
		t.Errorf("got %+v", got)
	}

	doc.Title = "Updated"
	if err := store.UpdateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetDocument(ctx, "doc1")
	if got.Title != "Updated" {
		t.Errorf("expected Updated, got %s", got.Title)
	}

	list, err := store.ListDocuments(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 doc, got %d", len(list))
	}

	if err := store.DeleteDocument(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}
	_, err = store.GetDocument(ctx, "doc1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.UpdateDocument(ctx, doc); !errors.Is(err, ErrNotFound) {
		t.Errorf("update of missing doc: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_Chunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := &models.Document{ID: "d1", Title: "T", Content: "C"}
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}

	chunks := []*models.Chunk{
		{ID: "d1_c1", DocumentID: "d1", Content: "chunk1", ChunkIndex: 0, StartOffset: 0,
			Metadata: map[string]interface{}{models.MetaKeywords: "alpha, beta"}},
		{ID: "d1_c2", DocumentID: "d1", Content: "chunk2", ChunkIndex: 1, StartOffset: 4},
		{ID: "d1_c3", DocumentID: "d1", Content: "chunk3", ChunkIndex: 2, StartOffset: 8},
	}
	if err := store.BatchCreateChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}

	list, err := store.GetChunksByDocumentID(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(list))
	}
	if list[0].Metadata[models.MetaKeywords] != "alpha, beta" {
		t.Errorf("chunk metadata not round-tripped: %v", list[0].Metadata)
	}

	got, err := store.GetChunk(ctx, "d1_c2")
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "chunk2" || got.StartOffset != 4 {
		t.Errorf("got %+v", got)
	}

	byID, err := store.GetChunks(ctx, []string{"d1_c1", "d1_c3", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byID) != 2 || byID["d1_c3"] == nil {
		t.Errorf("GetChunks: got %v", byID)
	}

	if _, err := store.GetChunk(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.DeleteChunksByDocumentID(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	list, _ = store.GetChunksByDocumentID(ctx, "d1")
	if len(list) != 0 {
		t.Errorf("expected 0 chunks after delete, got %d", len(list))
	}
}

func TestSQLiteStorage_Counts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.CountDocuments(ctx)
	if err != nil || n != 0 {
		t.Errorf("CountDocuments: %v, %d", err, n)
	}
	_ = store.CreateDocument(ctx, &models.Document{ID: "x", Content: "c"})
	_ = store.BatchCreateChunks(ctx, []*models.Chunk{{ID: "x0", DocumentID: "x", Content: "c"}})
	n, _ = store.CountDocuments(ctx)
	if n != 1 {
		t.Errorf("expected 1 document, got %d", n)
	}
	n, _ = store.CountChunks(ctx)
	if n != 1 {
		t.Errorf("expected 1 chunk, got %d", n)
	}
}
