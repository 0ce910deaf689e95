package storage

import (
	"context"
	"fmt"
	"math"
	"testing"
)

// makeTestVector builds a 3-dim unit vector at the given angle in the XY plane,
// so cosine similarity against (1,0,0) equals cos(angle).
func makeTestVector(angle float64) []float32 {
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle)), 0}
}

func seedChunks(t *testing.T, s *Store, chunks []Chunk) {
	t.Helper()
	if err := s.CreateDocument(testDocument("doc-1")); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if err := s.CreateChunks(context.Background(), chunks); err != nil {
		t.Fatalf("CreateChunks: %v", err)
	}
}

func TestCreateChunks_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedChunks(t, s, []Chunk{
		{
			ID:         "c-2",
			DocumentID: "doc-1",
			Content:    "segundo fragmento",
			Metadata:   map[string]any{"chunk_index": 1, "source_file": "condiciones.pdf"},
			Embedding:  []float32{0.4, 0.5, 0.6},
		},
		{
			ID:         "c-1",
			DocumentID: "doc-1",
			Content:    "primer fragmento",
			Metadata:   map[string]any{"chunk_index": 0, "source_file": "condiciones.pdf"},
			Embedding:  []float32{0.1, 0.2, 0.3},
		},
	})

	got, err := s.GetChunksByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetChunksByDocument: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	// Ordered by chunk_index, not insertion order.
	if got[0].ID != "c-1" || got[1].ID != "c-2" {
		t.Errorf("order = [%s %s], want [c-1 c-2]", got[0].ID, got[1].ID)
	}
	if got[0].Content != "primer fragmento" {
		t.Errorf("content = %q", got[0].Content)
	}
	if got[0].Metadata["source_file"] != "condiciones.pdf" {
		t.Errorf("metadata = %v", got[0].Metadata)
	}
	if len(got[0].Embedding) != 3 || got[0].Embedding[0] != 0.1 {
		t.Errorf("embedding = %v", got[0].Embedding)
	}
	if !got[0].HasEmbedding() {
		t.Error("HasEmbedding() = false for embedded chunk")
	}
}

func TestCreateChunks_RejectsEmptyContent(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateDocument(testDocument("doc-1")); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	chunks := []Chunk{
		{ID: "c-1", DocumentID: "doc-1", Content: "texto válido"},
		{ID: "c-2", DocumentID: "doc-1", Content: "   "},
	}
	if err := s.CreateChunks(context.Background(), chunks); err == nil {
		t.Fatal("expected error for blank chunk content")
	}

	// The batch is atomic: the valid chunk must not have been written either.
	count, err := s.CountChunks("doc-1")
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if count != 0 {
		t.Errorf("chunks written from failed batch: %d", count)
	}
}

func TestSearchSimilar_OrdersByScore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedChunks(t, s, []Chunk{
		{ID: "far", DocumentID: "doc-1", Content: "lejano", Metadata: map[string]any{"chunk_index": 0}, Embedding: makeTestVector(1.4)},
		{ID: "near", DocumentID: "doc-1", Content: "cercano", Metadata: map[string]any{"chunk_index": 1}, Embedding: makeTestVector(0.1)},
		{ID: "mid", DocumentID: "doc-1", Content: "medio", Metadata: map[string]any{"chunk_index": 2}, Embedding: makeTestVector(0.8)},
	})

	results, err := s.SearchSimilar(ctx, makeTestVector(0), 0, 5)
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].ID != "near" || results[1].ID != "mid" || results[2].ID != "far" {
		t.Errorf("order = [%s %s %s], want [near mid far]", results[0].ID, results[1].ID, results[2].ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("similarity not descending: %v > %v", results[i].Similarity, results[i-1].Similarity)
		}
	}
}

func TestSearchSimilar_MaxCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var chunks []Chunk
	for i := 0; i < 10; i++ {
		chunks = append(chunks, Chunk{
			ID:         fmt.Sprintf("c-%d", i),
			DocumentID: "doc-1",
			Content:    fmt.Sprintf("fragmento %d", i),
			Metadata:   map[string]any{"chunk_index": i},
			Embedding:  makeTestVector(float64(i) * 0.1),
		})
	}
	seedChunks(t, s, chunks)

	results, err := s.SearchSimilar(ctx, makeTestVector(0), 0, 5)
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	// Closest five angles are 0.0 .. 0.4.
	if results[0].ID != "c-0" {
		t.Errorf("best match = %s, want c-0", results[0].ID)
	}
	for _, r := range results {
		if r.ID == "c-9" {
			t.Error("worst match included despite maxCount")
		}
	}
}

func TestSearchSimilar_Threshold(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedChunks(t, s, []Chunk{
		{ID: "close", DocumentID: "doc-1", Content: "cercano", Metadata: map[string]any{"chunk_index": 0}, Embedding: makeTestVector(0.1)},
		{ID: "orthogonal", DocumentID: "doc-1", Content: "ortogonal", Metadata: map[string]any{"chunk_index": 1}, Embedding: makeTestVector(math.Pi / 2)},
	})

	results, err := s.SearchSimilar(ctx, makeTestVector(0), 0.5, 5)
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(results) != 1 || results[0].ID != "close" {
		t.Fatalf("results = %v, want only close", results)
	}
}

func TestSearchSimilar_Empty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	results, err := s.SearchSimilar(ctx, makeTestVector(0), 0, 5)
	if err != nil {
		t.Fatalf("SearchSimilar on empty store: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty store", len(results))
	}

	// Zero query vector has no direction; nothing matches.
	seedChunks(t, s, []Chunk{
		{ID: "c-1", DocumentID: "doc-1", Content: "fragmento", Metadata: map[string]any{"chunk_index": 0}, Embedding: makeTestVector(0)},
	})
	results, err = s.SearchSimilar(ctx, []float32{0, 0, 0}, 0, 5)
	if err != nil {
		t.Fatalf("SearchSimilar with zero vector: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for zero query vector", len(results))
	}

	if results, err = s.SearchSimilar(ctx, makeTestVector(0), 0, 0); err != nil || len(results) != 0 {
		t.Errorf("maxCount 0: results=%v err=%v", results, err)
	}
}

func TestDeleteChunksByDocument(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedChunks(t, s, []Chunk{
		{ID: "c-1", DocumentID: "doc-1", Content: "fragmento", Metadata: map[string]any{"chunk_index": 0}},
	})

	if err := s.DeleteChunksByDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("DeleteChunksByDocument: %v", err)
	}
	count, err := s.CountChunks("doc-1")
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if count != 0 {
		t.Errorf("chunks remaining: %d", count)
	}
}

func TestEncodeDecodeFloat32s(t *testing.T) {
	in := []float32{0.25, -1.5, 3.75, 0}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d values, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("value %d = %v, want %v", i, out[i], in[i])
		}
	}

	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
