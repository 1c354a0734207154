package api

import (
	"net/http"
	"strings"

	"github.com/dgallion1/ragassist/internal/apperr"
	"github.com/dgallion1/ragassist/internal/retrieval"
)

type searchRequest struct {
	Query        string   `json:"query"`
	Limit        int      `json:"limit"`
	Offset       int      `json:"offset"`
	MinRelevance *float64 `json:"min_relevance"`
	DocumentID   string   `json:"document_id"`
}

func (req *searchRequest) validate(defaultMin float64) error {
	req.Query = strings.TrimSpace(req.Query)
	switch {
	case req.Query == "":
		return apperr.New(apperr.Validation, "query must not be empty")
	case len([]rune(req.Query)) > 1000:
		return apperr.New(apperr.Validation, "query must be at most 1000 characters")
	case req.Limit < 0 || req.Limit > 100:
		return apperr.New(apperr.Validation, "limit must be between 1 and 100")
	case req.Offset < 0:
		return apperr.New(apperr.Validation, "offset must not be negative")
	}
	if req.Limit == 0 {
		req.Limit = 10
	}
	if req.MinRelevance == nil {
		req.MinRelevance = &defaultMin
	}
	if *req.MinRelevance < 0 || *req.MinRelevance > 1 {
		return apperr.New(apperr.Validation, "min_relevance must be between 0 and 1")
	}
	return nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(s.cfg.Context.SearchMinRelevance); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := s.Retriever.Search(r.Context(), retrieval.Query{
		Text:         req.Query,
		UserID:       user.ID,
		DocumentID:   req.DocumentID,
		Limit:        req.Limit,
		Offset:       req.Offset,
		MinRelevance: *req.MinRelevance,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Store.RecordSearch(r.Context(), user.ID); err != nil {
		s.log.Warn("record search failed", "user_id", user.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, resp)
}
