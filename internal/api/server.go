// Package api exposes the document chatbot over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/krediplus/backend/internal/rag"
	"github.com/krediplus/backend/internal/storage"
)

const maxUploadSize = 10 << 20 // 10MB

// ChatAsker abstracts the chat orchestrator for the API layer.
type ChatAsker interface {
	Ask(ctx context.Context, query string, history []rag.Turn) (*rag.QueryResult, error)
}

// AppDeps holds everything the HTTP handlers need.
type AppDeps struct {
	Store    *storage.Store
	Chat     ChatAsker
	FilesDir string // where uploaded files are kept; empty skips file persistence
	Token    string // bearer token; empty disables authentication
}

// NewAppHandler builds the HTTP router. The health endpoint is always
// public; everything else requires the bearer token when one is configured.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Post("/chat", handleChat(deps))
		r.Post("/documents", handleUploadDocument(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Get("/documents/{id}", handleGetDocument(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
