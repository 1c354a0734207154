package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/ragassist/internal/apperr"
	"github.com/dgallion1/ragassist/internal/store"
)

// handleListDocuments lists the caller's documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.Store.ListDocuments(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "total": len(docs)})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.Store.GetDocument(r.Context(), currentUser(r).ID, chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteDocument removes a document's chunks from the vector store and
// then its record. Documents still being ingested cannot be deleted.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := currentUser(r)
	doc, err := s.Store.GetDocument(ctx, user.ID, chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if doc.Status == store.DocProcessing {
		writeError(w, r, apperr.New(apperr.Conflict, "document %q is still being processed", doc.Name).
			WithDetail("document_id", doc.ID))
		return
	}
	if err := s.Vectors.DeleteDocument(ctx, doc.ID); err != nil {
		writeError(w, r, apperr.Wrap(err, apperr.ExternalService, "failed to delete document chunks"))
		return
	}
	if err := s.Store.DeleteDocument(ctx, user.ID, doc.ID); err != nil {
		writeError(w, r, err)
		return
	}
	s.log.Info("document deleted", "document_id", doc.ID, "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "document deleted",
		"document_id":    doc.ID,
		"chunks_deleted": doc.ChunkCount,
	})
}
