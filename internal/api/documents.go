package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/krediplus/backend/internal/extract"
	"github.com/krediplus/backend/internal/ingest"
	"github.com/krediplus/backend/internal/storage"
)

// DocumentResponse is the API representation of a stored document.
type DocumentResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	Status      string `json:"processing_status"`
	CreatedAt   string `json:"created_at"`
	ChunksCount int    `json:"chunks_count"`
}

func documentResponse(doc storage.Document, chunksCount int) DocumentResponse {
	return DocumentResponse{
		ID:          doc.ID,
		Filename:    doc.Filename,
		Status:      string(doc.Status),
		CreatedAt:   doc.CreatedAt.UTC().Format(time.RFC3339),
		ChunksCount: chunksCount,
	}
}

func handleUploadDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required: %v", err)
			return
		}
		defer file.Close()

		filename := filepath.Base(header.Filename)
		if !extract.Supported(filename) {
			httpError(w, http.StatusBadRequest, "invalid_request_error",
				"unsupported file format %q (supported: %s)", filename, extract.SupportedExtensions())
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to read file: %v", err)
			return
		}

		text, err := extract.Extract(filename, data)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to extract text: %v", err)
			return
		}
		if strings.TrimSpace(text) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document contains no extractable text")
			return
		}

		docID := uuid.New().String()
		storageRef := fmt.Sprintf("rag_%s_%s", docID, sanitizeFilename(filename))

		if deps.FilesDir != "" {
			if err := os.MkdirAll(deps.FilesDir, 0o755); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to prepare file storage: %v", err)
				return
			}
			if err := os.WriteFile(filepath.Join(deps.FilesDir, storageRef), data, 0o644); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to store file: %v", err)
				return
			}
		}

		doc := storage.Document{
			ID:         docID,
			Filename:   filename,
			StorageRef: storageRef,
			RawText:    text,
			Status:     storage.StatusPending,
			CreatedAt:  time.Now().UTC(),
		}
		if err := deps.Store.CreateDocument(doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save document: %v", err)
			return
		}

		payload, err := json.Marshal(ingest.IngestPayload{DocumentID: docID})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create job payload: %v", err)
			return
		}
		// Failed ingestions are reported via the document's processing status;
		// retrying would re-embed the whole document, so one attempt only.
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        ingest.JobTypeIngestDocument,
			PayloadJSON: string(payload),
			MaxAttempts: 1,
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue ingestion: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(documentResponse(doc, 0))
	}
}

func handleListDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Store.ListDocuments()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}

		responses := make([]DocumentResponse, 0, len(docs))
		for _, doc := range docs {
			count, err := deps.Store.CountChunks(doc.ID)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to count chunks: %v", err)
				return
			}
			responses = append(responses, documentResponse(doc, count))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(responses)
	}
}

func handleGetDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := deps.Store.GetDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get document: %v", err)
			return
		}

		count, err := deps.Store.CountChunks(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count chunks: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(documentResponse(doc, count))
	}
}

func handleDeleteDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := deps.Store.GetDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get document: %v", err)
			return
		}

		if err := deps.Store.DeleteDocument(id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document: %v", err)
			return
		}

		// The stored file is secondary; losing it leaves the record consistent.
		if deps.FilesDir != "" && doc.StorageRef != "" {
			_ = os.Remove(filepath.Join(deps.FilesDir, doc.StorageRef))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

// sanitizeFilename keeps the name safe for use in a filesystem path.
func sanitizeFilename(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
