package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ziadkadry99/ragcore/internal/engine"
	"github.com/ziadkadry99/ragcore/internal/provider"
	"github.com/ziadkadry99/ragcore/internal/retriever"
)

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

type sourceJSON struct {
	DocumentID     string  `json:"document_id"`
	Excerpt        string  `json:"excerpt"`
	RelevanceScore float64 `json:"relevance_score"`
}

type chatResponse struct {
	ConversationID string       `json:"conversation_id"`
	Content        string       `json:"content"`
	Model          string       `json:"model"`
	Sources        []sourceJSON `json:"sources"`
	Confidence     float64      `json:"confidence"`
	Usage          usageJSON    `json:"usage"`
}

type usageJSON struct {
	InputTokens  int  `json:"input_tokens"`
	OutputTokens int  `json:"output_tokens"`
	TotalTokens  int  `json:"total_tokens"`
	Estimated    bool `json:"estimated"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	resp, err := s.engine.Respond(r.Context(), engine.ChatRequest{
		TenantID:       tenantFrom(r),
		ConversationID: req.ConversationID,
		Message:        req.Message,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		ConversationID: resp.ConversationID,
		Content:        resp.Content,
		Model:          resp.Model,
		Sources:        sourcesJSON(resp.Sources),
		Confidence:     resp.Confidence.Overall,
		Usage: usageJSON{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.TotalTokens,
			Estimated:    resp.Usage.Estimated,
		},
	})
}

type indexRequest struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	Text       string `json:"text"`
}

type indexResponse struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
	Skipped    bool   `json:"skipped"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.DocumentID == "" {
		req.DocumentID = uuid.NewString()
	}
	if req.Name == "" {
		req.Name = req.DocumentID
	}

	result, err := s.engine.Indexer().IndexDocument(r.Context(), tenantFrom(r), req.DocumentID, req.Name, req.Text)
	if err != nil {
		s.logger.Error("indexing failed", "document_id", req.DocumentID, "error", err)
		writeError(w, http.StatusInternalServerError, "indexing failed")
		return
	}

	writeJSON(w, http.StatusOK, indexResponse{
		DocumentID: result.DocumentID,
		ChunkCount: result.ChunkCount,
		Skipped:    result.Skipped,
	})
}

type documentJSON struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ChunkCount int       `json:"chunk_count"`
	IndexedAt  time.Time `json:"indexed_at"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.engine.Indexer().Documents(r.Context(), tenantFrom(r))
	if err != nil {
		s.logger.Error("listing documents failed", "error", err)
		writeError(w, http.StatusInternalServerError, "listing documents failed")
		return
	}

	out := make([]documentJSON, len(docs))
	for i, d := range docs {
		out[i] = documentJSON{ID: d.ID, Name: d.Name, ChunkCount: d.ChunkCount, IndexedAt: d.IndexedAt}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Indexer().RemoveDocument(r.Context(), tenantFrom(r), id); err != nil {
		s.logger.Error("deleting document failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "deleting document failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	stats, err := s.db.RetrievalStatsSince(r.Context(), tenantFrom(r), since)
	if err != nil {
		s.logger.Error("loading stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "loading stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeEngineError maps normalized provider errors onto HTTP statuses so
// callers can distinguish their own mistakes from backend trouble.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var provErr *provider.Error
	if errors.As(err, &provErr) {
		status := http.StatusBadGateway
		switch provErr.Code {
		case provider.CodeInvalidRequest:
			status = http.StatusBadRequest
		case provider.CodeRateLimited:
			status = http.StatusTooManyRequests
		}
		s.logger.Warn("provider error",
			"code", provErr.Code,
			"retryable", provErr.Retryable,
			"path", r.URL.Path,
		)
		writeError(w, status, string(provErr.Code))
		return
	}

	s.logger.Error("chat failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "chat failed")
}

func sourcesJSON(refs []retriever.SourceRef) []sourceJSON {
	out := make([]sourceJSON, len(refs))
	for i, ref := range refs {
		out[i] = sourceJSON{
			DocumentID:     ref.DocumentID,
			Excerpt:        ref.Excerpt,
			RelevanceScore: ref.RelevanceScore,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
