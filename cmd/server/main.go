package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dgallion1/ragassist/internal/api"
	"github.com/dgallion1/ragassist/internal/auth"
	"github.com/dgallion1/ragassist/internal/chat"
	"github.com/dgallion1/ragassist/internal/config"
	"github.com/dgallion1/ragassist/internal/embedding"
	"github.com/dgallion1/ragassist/internal/llm"
	"github.com/dgallion1/ragassist/internal/pipeline"
	"github.com/dgallion1/ragassist/internal/retrieval"
	"github.com/dgallion1/ragassist/internal/store"
	"github.com/dgallion1/ragassist/internal/vectorstore"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	log := newLogger(cfg.Logging.Level)
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.Storage.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	authSvc := auth.NewService(db, cfg.Security, log)
	if err := authSvc.SeedAdmin(ctx, cfg.Security.AdminPassword); err != nil {
		log.Error("seed admin", "error", err)
		os.Exit(1)
	}

	emb, err := embedding.New(cfg.Embedding, cfg.Processing.BatchSize)
	if err != nil {
		log.Error("init embedder", "error", err)
		os.Exit(1)
	}
	vectors, err := vectorstore.New(ctx, cfg)
	if err != nil {
		log.Error("open vector store", "backend", cfg.VectorStore.Backend, "error", err)
		os.Exit(1)
	}
	defer vectors.Close()
	if err := vectors.EnsureCollection(ctx, emb.Dimension()); err != nil {
		log.Error("ensure collection", "backend", vectors.Name(), "error", err)
		os.Exit(1)
	}

	gen, err := llm.New(cfg.LLM, log)
	if err != nil {
		log.Error("init llm", "error", err)
		os.Exit(1)
	}

	retriever := retrieval.NewRetriever(emb, vectors, cfg.Context, log)
	chatSvc := chat.NewService(db, retriever, gen, log)

	worker := pipeline.NewWorker(emb, vectors, db, cfg.Processing, log)
	orch := pipeline.NewOrchestrator(cfg.Processing, worker, log)
	orch.Start(ctx)

	srv := api.NewServer(api.Deps{
		Store:        db,
		Auth:         authSvc,
		Chat:         chatSvc,
		Retriever:    retriever,
		Orchestrator: orch,
		Worker:       worker,
		Vectors:      vectors,
		LLM:          gen,
	}, cfg, log)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
	}()

	log.Info("starting ragassist",
		"port", cfg.Server.Port,
		"vector_backend", vectors.Name(),
		"embedder", emb.Name(),
		"llm_model", cfg.LLM.Model,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
