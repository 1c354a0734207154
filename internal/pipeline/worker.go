package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/ragassist/internal/apperr"
	"github.com/dgallion1/ragassist/internal/chunker"
	"github.com/dgallion1/ragassist/internal/config"
	"github.com/dgallion1/ragassist/internal/doctree"
	"github.com/dgallion1/ragassist/internal/embedding"
	"github.com/dgallion1/ragassist/internal/parser"
	"github.com/dgallion1/ragassist/internal/retry"
	"github.com/dgallion1/ragassist/internal/store"
	"github.com/dgallion1/ragassist/internal/vectorstore"
)

// Documents is the document bookkeeping the worker writes to.
type Documents interface {
	CreateDocument(ctx context.Context, d *store.Document) error
	DocumentByHash(ctx context.Context, userID, hash string) (*store.Document, error)
	FinishDocument(ctx context.Context, id, status string, pages, chunks int, errMsg string) error
}

// Worker processes a single document job.
type Worker struct {
	embedder embedding.Embedder
	vectors  vectorstore.Store
	docs     Documents
	log      *slog.Logger
	cfg      config.ProcessingConfig
	chunkCfg chunker.Config
	backoff  func(int) time.Duration
}

// NewWorker creates a worker that stores chunks in vectors and records in docs.
func NewWorker(emb embedding.Embedder, vectors vectorstore.Store, docs Documents, cfg config.ProcessingConfig, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		embedder: emb,
		vectors:  vectors,
		docs:     docs,
		log:      log.With("component", "worker"),
		cfg:      cfg,
		chunkCfg: chunker.Clamp(chunker.Config{
			ChunkSize:     cfg.ChunkSize,
			ChunkOverlap:  cfg.ChunkOverlap,
			MinChunk:      cfg.MinChunkSize,
			Smart:         cfg.SmartChunking,
			HeadingPrefix: cfg.HeadingPrefix,
		}),
		backoff: retry.Backoff,
	}
}

// Process runs the full ingest pipeline for a queued job. The outcome is
// recorded on the job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	w.run(ctx, job)
}

// IngestFile validates and ingests one file synchronously.
func (w *Worker) IngestFile(ctx context.Context, userID, filename string, data []byte) (JobSnapshot, error) {
	job := NewJob(userID, filename, data)
	err := w.run(ctx, job)
	return job.Snapshot(), err
}

// Validate checks size and extension before a file is accepted.
func (w *Worker) Validate(filename string, size int64) error {
	if size == 0 {
		return apperr.New(apperr.FileUpload, "file %q is empty", filename)
	}
	if limit := w.cfg.MaxUploadBytes(); limit > 0 && size > limit {
		return apperr.New(apperr.FileUpload, "file %q exceeds the %d MB limit", filename, w.cfg.MaxFileSizeMB).
			WithDetail("max_file_size_mb", w.cfg.MaxFileSizeMB)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !parser.IsSupportedExtension(filename) || (len(w.cfg.SupportedFormats) > 0 && !slices.Contains(w.cfg.SupportedFormats, ext)) {
		return apperr.New(apperr.FileUpload, "unsupported file type %q", ext).
			WithDetail("supported_formats", w.cfg.SupportedFormats)
	}
	return nil
}

func (w *Worker) run(ctx context.Context, job *Job) error {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID, "user_id", job.UserID)
	start := time.Now()
	data := job.FileData()

	if err := w.Validate(job.Filename, int64(len(data))); err != nil {
		return w.fail(job, "validating", err, log)
	}

	hash := ContentHashHex(data)
	job.setHash(hash)
	existing, err := w.docs.DocumentByHash(ctx, job.UserID, hash)
	switch {
	case err == nil:
		return w.skipDuplicate(job, existing, log)
	case !errors.Is(err, store.ErrNotFound):
		log.Warn("dedup check failed, proceeding", "error", err)
	}

	doc := &store.Document{
		ID:          job.DocID,
		UserID:      job.UserID,
		Name:        job.Filename,
		Format:      strings.TrimPrefix(strings.ToLower(filepath.Ext(job.Filename)), "."),
		ContentHash: hash,
		SizeBytes:   int64(len(data)),
		Status:      store.DocProcessing,
	}
	if err := w.docs.CreateDocument(ctx, doc); err != nil {
		// A concurrent upload of the same content won the insert.
		if errors.Is(err, store.ErrDuplicateContent) {
			if existing, lerr := w.docs.DocumentByHash(ctx, job.UserID, hash); lerr == nil {
				return w.skipDuplicate(job, existing, log)
			}
		}
		return w.fail(job, "recording", err, log)
	}

	pages, chunks, err := w.ingest(ctx, job, data, log)
	if err != nil {
		w.discard(ctx, job, pages, err, log)
		return w.fail(job, string(job.Snapshot().Status), err, log)
	}

	// The record may have been deleted while the job ran; its points must
	// not outlive it.
	if err := w.docs.FinishDocument(ctx, job.DocID, store.DocCompleted, pages, chunks, ""); err != nil {
		w.discard(ctx, job, pages, err, log)
		return w.fail(job, "recording", err, log)
	}
	job.SetStatus(StatusCompleted, "done")
	log.Info("document ingested",
		"filename", job.Filename,
		"pages", pages,
		"chunks", chunks,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// ingest parses, chunks, embeds and stores the file. It returns the page
// and chunk counts.
func (w *Worker) ingest(ctx context.Context, job *Job, data []byte, log *slog.Logger) (int, int, error) {
	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	p, err := parser.ForFile(job.Filename, parser.Options{PDFFallbackPdftotext: w.cfg.PDFFallbackPdftotext})
	if err != nil {
		return 0, 0, apperr.Wrap(err, apperr.FileUpload, "unsupported file type")
	}
	tree, err := p.Parse(bytes.NewReader(data), job.Filename)
	if err != nil {
		return 0, 0, apperr.Wrap(err, apperr.DocumentProcessing, "could not parse %s", job.Filename)
	}
	job.setPages(tree.Pages)
	if n := len(strings.TrimSpace(tree.PlainText())); n < w.cfg.MinTextLength {
		return tree.Pages, 0, apperr.New(apperr.DocumentProcessing, "document has too little text (%d characters)", n).
			WithDetail("min_length", w.cfg.MinTextLength)
	}

	// Phase 2: Chunk
	job.SetStatus(StatusChunking, "chunking")
	chunks := chunker.ChunkTree(tree, w.chunkCfg)
	if len(chunks) == 0 {
		return tree.Pages, 0, apperr.New(apperr.DocumentProcessing, "no extractable content")
	}
	for i := range chunks {
		chunks[i].DocumentID = job.DocID
		chunks[i].Source = job.Filename
		chunks[i].ID = vectorstore.PointID(job.DocID, chunks[i].Index)
	}
	job.SetTotalChunks(len(chunks))
	log.Info("chunked document", "chunks", len(chunks))

	// Phase 3: Embed
	job.SetStatus(StatusEmbedding, "embedding")
	if err := w.embed(ctx, job, chunks, log); err != nil {
		return tree.Pages, 0, err
	}

	// Phase 4: Store
	job.SetStatus(StatusStoring, "storing")
	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectorstore.PointFromChunk(c, job.UserID)
	}
	err = retry.Do(ctx, retry.Policy{Backoff: w.backoff, Retryable: retry.Transient, Log: log}, func(ctx context.Context) error {
		return w.vectors.Upsert(ctx, points)
	})
	if err != nil {
		return tree.Pages, 0, fmt.Errorf("store chunks: %w", err)
	}
	job.SetStored(len(points))
	return tree.Pages, len(chunks), nil
}

// embed fills chunk vectors batch by batch, with at most
// MaxConcurrentEmbed batches in flight.
func (w *Worker) embed(ctx context.Context, job *Job, chunks []doctree.Chunk, log *slog.Logger) error {
	size := max(w.cfg.BatchSize, 1)
	var batches [][2]int
	for lo := 0; lo < len(chunks); lo += size {
		batches = append(batches, [2]int{lo, min(lo+size, len(chunks))})
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(w.cfg.MaxConcurrentEmbed, 1))
	for _, b := range batches {
		lo, hi := b[0], b[1]
		g.Go(func() error {
			texts := make([]string, 0, hi-lo)
			for _, c := range chunks[lo:hi] {
				texts = append(texts, c.Text)
			}
			var vecs [][]float32
			err := retry.Do(ctx, retry.Policy{Backoff: w.backoff, Retryable: retry.Transient, Log: log}, func(ctx context.Context) error {
				v, err := w.embedder.EmbedDocuments(ctx, texts)
				if err != nil {
					return err
				}
				vecs = v
				return nil
			})
			if err != nil {
				return err
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
			}
			for i, v := range vecs {
				chunks[lo+i].Vector = v
			}
			job.AddEmbedded(hi - lo)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return apperr.Wrap(err, apperr.ExternalService, "embedding failed")
	}
	return nil
}

func (w *Worker) skipDuplicate(job *Job, existing *store.Document, log *slog.Logger) error {
	log.Info("duplicate document, skipping", "existing_doc_id", existing.ID, "existing_status", existing.Status)
	job.setDuplicate(existing.ID)
	job.SetStatus(StatusDupSkipped, "dedup")
	return nil
}

// discard drops whatever part of the document reached the vector store and
// marks its record failed when the record still exists.
func (w *Worker) discard(ctx context.Context, job *Job, pages int, cause error, log *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	if err := w.vectors.DeleteDocument(ctx, job.DocID); err != nil {
		log.Warn("cleanup of partial points failed", "error", err)
	}
	err := w.docs.FinishDocument(ctx, job.DocID, store.DocFailed, pages, 0, cause.Error())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error("record failed document", "error", err)
	}
}

func (w *Worker) fail(job *Job, phase string, err error, log *slog.Logger) error {
	log.Error("ingestion failed", "phase", phase, "filename", job.Filename, "error", err)
	job.AddError(err.Error())
	job.SetStatus(StatusFailed, phase)
	return err
}
