package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/krediplus/backend/internal/chunker"
	"github.com/krediplus/backend/internal/storage"
)

const (
	// DefaultMaxMatches bounds how many chunks ground one answer.
	DefaultMaxMatches = 5
	// DefaultThreshold accepts every match; relevance judgment is left to
	// the generation step because embedding similarity alone is a weak
	// signal for short queries. Tunable via config.
	DefaultThreshold float32 = 0.0

	previewLimit = 200
)

// User-facing messages, in the product's language.
const (
	msgAskQuestion   = "Por favor, escribe una pregunta."
	msgEmbedFailed   = "Lo siento, hubo un error procesando tu pregunta. Por favor intenta de nuevo."
	msgSearchFailed  = "Lo siento, hubo un error buscando información. Por favor intenta de nuevo."
	msgGenFailed     = "Lo siento, hubo un error generando la respuesta. Por favor intenta de nuevo."
	msgNoInformation = "No encontré información relevante en los documentos disponibles para responder tu pregunta. ¿Podrías reformularla o preguntar sobre otro tema?"
)

// ChatService answers user questions grounded on stored document chunks:
// embed the query, retrieve the closest chunks, assemble a context block,
// and generate a response with source attribution.
type ChatService struct {
	embedder   Embedder
	chunks     ChunkSearcher
	generator  Generator
	threshold  float32
	maxMatches int
	logger     *slog.Logger
}

// NewChatService wires the chat orchestrator. maxMatches <= 0 selects the
// default (5); threshold is used as given (0 means accept all matches).
func NewChatService(embedder Embedder, chunks ChunkSearcher, generator Generator, threshold float32, maxMatches int) *ChatService {
	if maxMatches <= 0 {
		maxMatches = DefaultMaxMatches
	}
	return &ChatService{
		embedder:   embedder,
		chunks:     chunks,
		generator:  generator,
		threshold:  threshold,
		maxMatches: maxMatches,
		logger:     slog.Default(),
	}
}

// Ask processes one query. The returned QueryResult is always non-nil and
// carries a user-facing response; when an external capability fails, the
// result holds a canned apology and the returned error reports the
// underlying cause so the caller can log it.
//
// history is accepted for API compatibility but not yet threaded into
// generation; each query is answered independently.
func (s *ChatService) Ask(ctx context.Context, query string, history []Turn) (*QueryResult, error) {
	start := time.Now()
	_ = history

	query = strings.TrimSpace(query)
	if query == "" {
		return &QueryResult{Response: msgAskQuestion, Query: query}, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return s.failure(start, query, msgEmbedFailed), fmt.Errorf("embedding query: %w", err)
	}

	matches, err := s.chunks.SearchSimilar(ctx, vec, s.threshold, s.maxMatches)
	if err != nil {
		return s.failure(start, query, msgSearchFailed), fmt.Errorf("searching chunks: %w", err)
	}

	// Zero matches is a legitimate outcome, distinct from a failure.
	if len(matches) == 0 {
		return &QueryResult{
			Response:       msgNoInformation,
			Query:          query,
			ProcessingTime: time.Since(start),
		}, nil
	}

	response, err := s.generator.Generate(ctx, query, buildContext(matches))
	if err != nil {
		return s.failure(start, query, msgGenFailed), fmt.Errorf("generating response: %w", err)
	}

	return &QueryResult{
		Response:       response,
		Sources:        buildSources(matches),
		ProcessingTime: time.Since(start),
		Query:          query,
	}, nil
}

func (s *ChatService) failure(start time.Time, query, msg string) *QueryResult {
	return &QueryResult{
		Response:       msg,
		Query:          query,
		ProcessingTime: time.Since(start),
	}
}

// buildContext concatenates matched chunks, each labelled with its source
// file, in the order returned by the store (already ranked by similarity).
func buildContext(matches []storage.ScoredChunk) string {
	parts := make([]string, len(matches))
	for i, m := range matches {
		source := "Documento"
		if sf, ok := m.Metadata[chunker.MetaSourceFile].(string); ok && sf != "" {
			source = sf
		}
		parts[i] = fmt.Sprintf("[Fuente %d: %s]\n%s", i+1, source, m.Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func buildSources(matches []storage.ScoredChunk) []SourceRef {
	sources := make([]SourceRef, len(matches))
	for i, m := range matches {
		sources[i] = SourceRef{
			ChunkID:    m.ID,
			DocumentID: m.DocumentID,
			Preview:    preview(m.Content),
			Similarity: m.Similarity,
			Metadata:   m.Metadata,
		}
	}
	return sources
}

// preview caps content at 200 characters, marking truncation with an ellipsis.
func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLimit {
		return content
	}
	return string(runes[:previewLimit]) + "..."
}
