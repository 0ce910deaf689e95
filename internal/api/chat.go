package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/krediplus/backend/internal/rag"
)

const maxChatBodySize = 1 << 20 // 1MB

// ChatRequest is the POST /chat body. History is optional.
type ChatRequest struct {
	Message string     `json:"message"`
	History []rag.Turn `json:"history,omitempty"`
}

// ChatResponse mirrors rag.QueryResult with processing time in seconds.
type ChatResponse struct {
	Response       string          `json:"response"`
	Sources        []rag.SourceRef `json:"sources"`
	ProcessingTime float64         `json:"processing_time"`
	Query          string          `json:"query"`
}

func handleChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxChatBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		result, err := deps.Chat.Ask(r.Context(), req.Message, req.History)
		if err != nil {
			// The result still carries a user-facing message; surface that
			// with a 200 and keep the cause in the server log.
			slog.Error("chat query failed", "error", err)
		}

		sources := result.Sources
		if sources == nil {
			sources = []rag.SourceRef{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatResponse{
			Response:       result.Response,
			Sources:        sources,
			ProcessingTime: result.ProcessingTime.Seconds(),
			Query:          result.Query,
		})
	}
}
