package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/ragassist/internal/apperr"
	"github.com/dgallion1/ragassist/internal/pipeline"
)

const maxFilesPerUpload = 10

type uploadResult struct {
	Filename   string             `json:"filename"`
	JobID      string             `json:"job_id,omitempty"`
	DocumentID string             `json:"document_id,omitempty"`
	Status     pipeline.JobStatus `json:"status,omitempty"`
	PollURL    string             `json:"poll_url,omitempty"`
	Error      *apperr.BodyError  `json:"error,omitempty"`
}

// handleUpload accepts one "file" or several "files" and queues a job per
// file.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	maxFile := s.cfg.Processing.MaxUploadBytes()
	// Extra 1MB per file for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, (maxFile+1<<20)*maxFilesPerUpload)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, r, apperr.Wrap(err, apperr.FileUpload, "invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := slices.Concat(r.MultipartForm.File["file"], r.MultipartForm.File["files"])
	if len(files) == 0 {
		writeError(w, r, apperr.New(apperr.Validation, "at least one file is required"))
		return
	}
	if len(files) > maxFilesPerUpload {
		writeError(w, r, apperr.New(apperr.Validation, "at most %d files per upload", maxFilesPerUpload))
		return
	}

	results := make([]uploadResult, 0, len(files))
	accepted := 0
	var lastErr error
	for _, fh := range files {
		res, err := s.queueFile(user.ID, fh, maxFile)
		if err != nil {
			lastErr = err
			res.Error = bodyError(err)
		} else {
			accepted++
		}
		results = append(results, res)
	}

	// A single rejected file is reported as a plain error.
	if len(files) == 1 && lastErr != nil {
		writeError(w, r, lastErr)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobs":     results,
		"accepted": accepted,
		"rejected": len(files) - accepted,
	})
}

func (s *Server) queueFile(userID string, fh *multipart.FileHeader, maxFile int64) (uploadResult, error) {
	filename := sanitizeFilename(fh.Filename)
	res := uploadResult{Filename: filename}
	if err := s.Worker.Validate(filename, fh.Size); err != nil {
		return res, err
	}

	f, err := fh.Open()
	if err != nil {
		return res, apperr.Wrap(err, apperr.FileUpload, "failed to open %s", filename)
	}
	data, err := io.ReadAll(io.LimitReader(f, maxFile+1))
	f.Close()
	if err != nil {
		return res, apperr.Wrap(err, apperr.FileUpload, "failed to read %s", filename)
	}
	if err := s.Worker.Validate(filename, int64(len(data))); err != nil {
		return res, err
	}

	job := pipeline.NewJob(userID, filename, data)
	if err := s.Orchestrator.Submit(job); err != nil {
		return res, err
	}
	res.JobID = job.ID
	res.DocumentID = job.DocID
	res.Status = pipeline.StatusQueued
	res.PollURL = fmt.Sprintf("/api/v1/jobs/%s", job.ID)
	return res, nil
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.Orchestrator.GetJob(jobID)
	if job == nil {
		writeError(w, r, apperr.New(apperr.NotFound, "job not found"))
		return
	}
	snap := job.Snapshot()
	if snap.UserID != currentUser(r).ID {
		writeError(w, r, apperr.New(apperr.NotFound, "job not found"))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func bodyError(err error) *apperr.BodyError {
	var e *apperr.Error
	if errors.As(err, &e) {
		return &apperr.BodyError{Type: e.Kind, Message: e.Message, Details: e.Details}
	}
	return &apperr.BodyError{Type: apperr.Internal, Message: "internal server error"}
}
