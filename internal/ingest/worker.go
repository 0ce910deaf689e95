package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/krediplus/backend/internal/storage"
)

// JobTypeIngestDocument is the queue job type for document ingestion.
const JobTypeIngestDocument = "ingest_document"

// JobStore abstracts the job queue and document lookup operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetDocument(id string) (storage.Document, error)
}

// DocumentIngestor runs the chunk, embed and persist pipeline for one document.
type DocumentIngestor interface {
	Ingest(ctx context.Context, doc storage.Document) error
}

// Worker processes ingest_document jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	ingestor DocumentIngestor
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker. A pollInterval of zero or less defaults to 500ms.
func NewWorker(store JobStore, ingestor DocumentIngestor, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		ingestor: ingestor,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single ingest_document job. It returns true
// if a job was processed, regardless of whether it succeeded.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeIngestDocument})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("ingestion job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// IngestPayload is the JSON payload of an ingest_document job.
type IngestPayload struct {
	DocumentID string `json:"document_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload IngestPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.DocumentID == "" {
		return fmt.Errorf("payload has no document_id")
	}

	doc, err := w.store.GetDocument(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", payload.DocumentID, err)
	}

	if err := w.ingestor.Ingest(ctx, doc); err != nil {
		return fmt.Errorf("ingesting document %s: %w", doc.ID, err)
	}

	return nil
}
