package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/krediplus/backend/internal/chunker"
	"github.com/krediplus/backend/internal/storage"
)

// Ingestor turns an uploaded document's extracted text into persisted,
// embedded chunks, tracking the document's processing status.
type Ingestor struct {
	docs     StatusUpdater
	chunks   ChunkWriter
	embedder Embedder
	splitter *chunker.Chunker
	logger   *slog.Logger
}

// NewIngestor wires the ingestion orchestrator.
func NewIngestor(docs StatusUpdater, chunks ChunkWriter, embedder Embedder, splitter *chunker.Chunker) *Ingestor {
	return &Ingestor{
		docs:     docs,
		chunks:   chunks,
		embedder: embedder,
		splitter: splitter,
		logger:   slog.Default(),
	}
}

// Ingest chunks the document's text, embeds every segment in one batched
// call, and persists the chunks in a single batch write. The document moves
// pending → processing → completed; any failure marks it failed and returns
// the underlying cause. A failed attempt is terminal — the caller starts a
// fresh ingestion if it wants to retry.
func (in *Ingestor) Ingest(ctx context.Context, doc storage.Document) error {
	if err := in.docs.UpdateDocumentStatus(doc.ID, storage.StatusProcessing); err != nil {
		return fmt.Errorf("marking document %s as processing: %w", doc.ID, err)
	}

	segments := in.splitter.Split(doc.RawText, map[string]string{
		chunker.MetaSourceFile: doc.Filename,
	})
	if len(segments) == 0 {
		return in.fail(doc.ID, fmt.Errorf("no chunks could be created from document %s", doc.ID))
	}
	in.logger.Debug("document chunked", "document_id", doc.ID, "chunks", len(segments))

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}

	vectors, err := in.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return in.fail(doc.ID, fmt.Errorf("embedding chunks: %w", err))
	}
	if len(vectors) != len(segments) {
		return in.fail(doc.ID, fmt.Errorf("embedding count mismatch: got %d vectors for %d chunks", len(vectors), len(segments)))
	}

	now := time.Now().UTC()
	records := make([]storage.Chunk, len(segments))
	for i, seg := range segments {
		records[i] = storage.Chunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Content:    seg.Text,
			Metadata:   seg.Metadata,
			Embedding:  vectors[i],
			CreatedAt:  now,
		}
	}

	if err := in.chunks.CreateChunks(ctx, records); err != nil {
		return in.fail(doc.ID, fmt.Errorf("storing chunks: %w", err))
	}

	if err := in.docs.UpdateDocumentStatus(doc.ID, storage.StatusCompleted); err != nil {
		return fmt.Errorf("marking document %s as completed: %w", doc.ID, err)
	}

	in.logger.Info("document ingested", "document_id", doc.ID, "chunks", len(records))
	return nil
}

// fail marks the document failed and returns cause. A secondary status
// update error is logged but never masks the original failure.
func (in *Ingestor) fail(docID string, cause error) error {
	if err := in.docs.UpdateDocumentStatus(docID, storage.StatusFailed); err != nil {
		in.logger.Error("failed to mark document as failed", "document_id", docID, "error", err)
	}
	return cause
}
