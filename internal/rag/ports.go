// Package rag contains the retrieval-augmented generation core: the
// ingestion orchestrator that turns extracted document text into embedded
// chunks, and the chat orchestrator that answers questions grounded on
// retrieved chunks.
//
// External capabilities (embedding provider, response generation, chunk
// persistence) are consumed through the small interfaces below so adapters
// can be swapped independently.
package rag

import (
	"context"
	"time"

	"github.com/krediplus/backend/internal/storage"
)

// Embedder converts text into fixed-dimension embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a natural-language answer for a query given
// supporting document context.
type Generator interface {
	Generate(ctx context.Context, query, docContext string) (string, error)
}

// ChunkSearcher performs vector similarity search over stored chunks.
// Results are ordered by descending similarity.
type ChunkSearcher interface {
	SearchSimilar(ctx context.Context, vector []float32, threshold float32, maxCount int) ([]storage.ScoredChunk, error)
}

// ChunkWriter persists chunk batches. A batch write is all-or-nothing.
type ChunkWriter interface {
	CreateChunks(ctx context.Context, chunks []storage.Chunk) error
}

// StatusUpdater transitions a document through its processing lifecycle.
type StatusUpdater interface {
	UpdateDocumentStatus(id string, status storage.ProcessingStatus) error
}

// Turn is one message of caller-supplied conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SourceRef points at a chunk that grounded a generated answer.
type SourceRef struct {
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"document_id"`
	Preview    string         `json:"content_preview"`
	Similarity float32        `json:"similarity"`
	Metadata   map[string]any `json:"metadata"`
}

// QueryResult is the outcome of one chat query. It always carries a
// user-facing response, even when an internal step failed.
type QueryResult struct {
	Response       string
	Sources        []SourceRef
	ProcessingTime time.Duration
	Query          string
}
