package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/krediplus/backend/internal/chunker"
	"github.com/krediplus/backend/internal/storage"
)

type fakeEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
	batchFn func(ctx context.Context, texts []string) ([][]float32, error)
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.embedFn != nil {
		return f.embedFn(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.batchFn != nil {
		return f.batchFn(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeSearcher struct {
	searchFn     func(ctx context.Context, vector []float32, threshold float32, maxCount int) ([]storage.ScoredChunk, error)
	calls        int
	gotThreshold float32
	gotMaxCount  int
}

func (f *fakeSearcher) SearchSimilar(ctx context.Context, vector []float32, threshold float32, maxCount int) ([]storage.ScoredChunk, error) {
	f.calls++
	f.gotThreshold = threshold
	f.gotMaxCount = maxCount
	if f.searchFn != nil {
		return f.searchFn(ctx, vector, threshold, maxCount)
	}
	return nil, nil
}

type fakeGenerator struct {
	genFn      func(ctx context.Context, query, docContext string) (string, error)
	calls      int
	gotQuery   string
	gotContext string
}

func (f *fakeGenerator) Generate(ctx context.Context, query, docContext string) (string, error) {
	f.calls++
	f.gotQuery = query
	f.gotContext = docContext
	if f.genFn != nil {
		return f.genFn(ctx, query, docContext)
	}
	return "respuesta generada", nil
}

func match(id, docID, content string, sim float32, meta map[string]any) storage.ScoredChunk {
	return storage.ScoredChunk{
		Chunk: storage.Chunk{
			ID:         id,
			DocumentID: docID,
			Content:    content,
			Metadata:   meta,
		},
		Similarity: sim,
	}
}

func TestAsk_BlankQuery(t *testing.T) {
	embedder := &fakeEmbedder{}
	searcher := &fakeSearcher{}
	generator := &fakeGenerator{}
	svc := NewChatService(embedder, searcher, generator, 0, 0)

	for _, query := range []string{"", "   ", "\t\n"} {
		result, err := svc.Ask(context.Background(), query, nil)
		if err != nil {
			t.Fatalf("Ask(%q) error: %v", query, err)
		}
		if result.Response != msgAskQuestion {
			t.Errorf("Response = %q, want %q", result.Response, msgAskQuestion)
		}
		if len(result.Sources) != 0 {
			t.Errorf("got %d sources, want 0", len(result.Sources))
		}
	}

	if embedder.calls != 0 || searcher.calls != 0 || generator.calls != 0 {
		t.Errorf("blank query made external calls: embed=%d search=%d generate=%d",
			embedder.calls, searcher.calls, generator.calls)
	}
}

func TestAsk_EmbeddingFailure(t *testing.T) {
	embedder := &fakeEmbedder{
		embedFn: func(context.Context, string) ([]float32, error) {
			return nil, errors.New("provider unavailable")
		},
	}
	searcher := &fakeSearcher{}
	svc := NewChatService(embedder, searcher, &fakeGenerator{}, 0, 0)

	result, err := svc.Ask(context.Background(), "¿Qué es KrediPlus?", nil)
	if err == nil {
		t.Fatal("expected underlying error, got nil")
	}
	if result.Response != msgEmbedFailed {
		t.Errorf("Response = %q, want %q", result.Response, msgEmbedFailed)
	}
	if len(result.Sources) != 0 {
		t.Errorf("got %d sources, want 0", len(result.Sources))
	}
	if searcher.calls != 0 {
		t.Error("search was called after embedding failure")
	}
}

func TestAsk_SearchFailure(t *testing.T) {
	searcher := &fakeSearcher{
		searchFn: func(context.Context, []float32, float32, int) ([]storage.ScoredChunk, error) {
			return nil, errors.New("db locked")
		},
	}
	generator := &fakeGenerator{}
	svc := NewChatService(&fakeEmbedder{}, searcher, generator, 0, 0)

	result, err := svc.Ask(context.Background(), "créditos", nil)
	if err == nil {
		t.Fatal("expected underlying error, got nil")
	}
	if result.Response != msgSearchFailed {
		t.Errorf("Response = %q, want %q", result.Response, msgSearchFailed)
	}
	if generator.calls != 0 {
		t.Error("generator was called after search failure")
	}
}

func TestAsk_NoMatches(t *testing.T) {
	svc := NewChatService(&fakeEmbedder{}, &fakeSearcher{}, &fakeGenerator{}, 0, 0)

	result, err := svc.Ask(context.Background(), "algo sin documentos", nil)
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if result.Response != msgNoInformation {
		t.Errorf("Response = %q, want the no-information message", result.Response)
	}
	if len(result.Sources) != 0 {
		t.Errorf("got %d sources, want 0", len(result.Sources))
	}
}

func TestAsk_GenerationFailure(t *testing.T) {
	searcher := &fakeSearcher{
		searchFn: func(context.Context, []float32, float32, int) ([]storage.ScoredChunk, error) {
			return []storage.ScoredChunk{match("c1", "d1", "contenido", 0.9, nil)}, nil
		},
	}
	generator := &fakeGenerator{
		genFn: func(context.Context, string, string) (string, error) {
			return "", errors.New("model overloaded")
		},
	}
	svc := NewChatService(&fakeEmbedder{}, searcher, generator, 0, 0)

	result, err := svc.Ask(context.Background(), "pregunta", nil)
	if err == nil {
		t.Fatal("expected underlying error, got nil")
	}
	if result.Response != msgGenFailed {
		t.Errorf("Response = %q, want %q", result.Response, msgGenFailed)
	}
	if len(result.Sources) != 0 {
		t.Errorf("got %d sources, want 0", len(result.Sources))
	}
}

func TestAsk_Success(t *testing.T) {
	longContent := strings.Repeat("k", 250)
	searcher := &fakeSearcher{
		searchFn: func(context.Context, []float32, float32, int) ([]storage.ScoredChunk, error) {
			return []storage.ScoredChunk{
				match("c1", "d1", "KrediPlus otorga créditos digitales.", 0.92,
					map[string]any{chunker.MetaSourceFile: "faq.pdf", chunker.MetaChunkIndex: 0}),
				match("c2", "d1", longContent, 0.81, nil),
			}, nil
		},
	}
	generator := &fakeGenerator{
		genFn: func(_ context.Context, _, _ string) (string, error) {
			return "KrediPlus es una plataforma de crédito digital.", nil
		},
	}
	svc := NewChatService(&fakeEmbedder{}, searcher, generator, 0.25, 7)

	result, err := svc.Ask(context.Background(), "  ¿Qué ofrece KrediPlus?  ", nil)
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}

	if result.Response != "KrediPlus es una plataforma de crédito digital." {
		t.Errorf("Response = %q, want the generator output verbatim", result.Response)
	}
	if result.Query != "¿Qué ofrece KrediPlus?" {
		t.Errorf("Query = %q, want trimmed query", result.Query)
	}
	if searcher.gotThreshold != 0.25 || searcher.gotMaxCount != 7 {
		t.Errorf("search called with threshold=%f maxCount=%d, want 0.25/7",
			searcher.gotThreshold, searcher.gotMaxCount)
	}

	if len(result.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(result.Sources))
	}
	first := result.Sources[0]
	if first.ChunkID != "c1" || first.DocumentID != "d1" {
		t.Errorf("first source = %s/%s, want c1/d1", first.ChunkID, first.DocumentID)
	}
	if first.Similarity != 0.92 {
		t.Errorf("first similarity = %f, want 0.92", first.Similarity)
	}
	if first.Preview != "KrediPlus otorga créditos digitales." {
		t.Errorf("short content must not be truncated, got %q", first.Preview)
	}
	second := result.Sources[1]
	if want := strings.Repeat("k", 200) + "..."; second.Preview != want {
		t.Errorf("long preview = %q, want 200 chars plus ellipsis", second.Preview)
	}

	if result.ProcessingTime < 0 {
		t.Errorf("ProcessingTime = %v, want >= 0", result.ProcessingTime)
	}
}

func TestAsk_ContextAssembly(t *testing.T) {
	searcher := &fakeSearcher{
		searchFn: func(context.Context, []float32, float32, int) ([]storage.ScoredChunk, error) {
			return []storage.ScoredChunk{
				match("c1", "d1", "primer fragmento", 0.9,
					map[string]any{chunker.MetaSourceFile: "guía.pdf"}),
				match("c2", "d2", "segundo fragmento", 0.8, nil),
			}, nil
		},
	}
	generator := &fakeGenerator{}
	svc := NewChatService(&fakeEmbedder{}, searcher, generator, 0, 0)

	if _, err := svc.Ask(context.Background(), "pregunta", nil); err != nil {
		t.Fatalf("Ask error: %v", err)
	}

	want := "[Fuente 1: guía.pdf]\nprimer fragmento\n\n---\n\n[Fuente 2: Documento]\nsegundo fragmento"
	if generator.gotContext != want {
		t.Errorf("context = %q, want %q", generator.gotContext, want)
	}
	if generator.gotQuery != "pregunta" {
		t.Errorf("generator received query %q", generator.gotQuery)
	}
}

func TestAsk_HistoryIgnored(t *testing.T) {
	generator := &fakeGenerator{}
	searcher := &fakeSearcher{
		searchFn: func(context.Context, []float32, float32, int) ([]storage.ScoredChunk, error) {
			return []storage.ScoredChunk{match("c1", "d1", "texto", 0.5, nil)}, nil
		},
	}
	svc := NewChatService(&fakeEmbedder{}, searcher, generator, 0, 0)

	history := []Turn{
		{Role: "user", Content: "hola"},
		{Role: "assistant", Content: "¡Hola!"},
	}
	if _, err := svc.Ask(context.Background(), "seguimiento", history); err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if strings.Contains(generator.gotContext, "hola") {
		t.Error("history leaked into the generation context")
	}
}
