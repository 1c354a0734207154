package api

import (
	"net/http"

	"github.com/dgallion1/ragassist/internal/apperr"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Store.UserStats(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body := map[string]any{
		"user":        stats,
		"queue_depth": s.Orchestrator.QueueDepth(),
	}
	if s.LLM != nil {
		body["llm"] = map[string]any{
			"model": s.cfg.LLM.Model,
			"stats": s.LLM.Stats(),
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// handlePurge empties the vector collection and forgets every document.
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.Vectors.Purge(ctx); err != nil {
		writeError(w, r, apperr.Wrap(err, apperr.ExternalService, "failed to purge vector store"))
		return
	}
	if err := s.Vectors.EnsureCollection(ctx, s.cfg.Embedding.Dimension); err != nil {
		writeError(w, r, apperr.Wrap(err, apperr.ExternalService, "failed to recreate collection"))
		return
	}
	n, err := s.Store.DeleteAllDocuments(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.log.Warn("collection purged", "admin_id", currentUser(r).ID, "documents_deleted", n)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":           "collection purged",
		"documents_deleted": n,
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}
