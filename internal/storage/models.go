package storage

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ProcessingStatus is the lifecycle state of an uploaded document.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Valid reports whether s is one of the known processing statuses.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Document is an uploaded context document for the assistant.
// RawText holds the extracted text; chunking and embedding happen
// asynchronously after upload.
type Document struct {
	ID         string
	Filename   string
	StorageRef string
	RawText    string
	Status     ProcessingStatus
	CreatedAt  time.Time
}

// Validate checks the invariants required before persisting a document.
func (d Document) Validate() error {
	if strings.TrimSpace(d.Filename) == "" {
		return errors.New("document filename is required")
	}
	if strings.TrimSpace(d.StorageRef) == "" {
		return errors.New("document storage reference is required")
	}
	if !d.Status.Valid() {
		return errors.New("invalid processing status")
	}
	return nil
}

// Chunk is a bounded text segment of a document with its embedding vector.
// Embedding is empty until ingestion completes.
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	Metadata   map[string]any
	Embedding  []float32
	CreatedAt  time.Time
}

// HasEmbedding reports whether the chunk carries an embedding vector.
func (c Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// ScoredChunk is a Chunk with a cosine similarity score attached.
// It only exists at query time and is never persisted.
type ScoredChunk struct {
	Chunk
	Similarity float32
}

// Job is a row in the background job queue.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
