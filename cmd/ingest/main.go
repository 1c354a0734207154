// Command ingest bulk-loads a directory of documents for one user without
// going through the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/dgallion1/ragassist/internal/config"
	"github.com/dgallion1/ragassist/internal/embedding"
	"github.com/dgallion1/ragassist/internal/parser"
	"github.com/dgallion1/ragassist/internal/pipeline"
	"github.com/dgallion1/ragassist/internal/store"
	"github.com/dgallion1/ragassist/internal/vectorstore"
)

func main() {
	dir := flag.String("dir", ".", "directory to ingest recursively")
	username := flag.String("user", "admin", "owner of the ingested documents")
	cfgPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	verbose := flag.Bool("v", false, "log pipeline events to stderr")
	flag.Parse()

	if err := run(*dir, *username, *cfgPath, *verbose); err != nil {
		color.Red("ingest failed: %v", err)
		os.Exit(1)
	}
}

type summary struct {
	completed, duplicates, failed, chunks int
}

func run(dir, username, cfgPath string, verbose bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := slog.LevelError
	if verbose {
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	user, err := db.UserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user %q: %w", username, err)
	}

	emb, err := embedding.New(cfg.Embedding, cfg.Processing.BatchSize)
	if err != nil {
		return err
	}
	vectors, err := vectorstore.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer vectors.Close()
	if err := vectors.EnsureCollection(ctx, emb.Dimension()); err != nil {
		return err
	}
	worker := pipeline.NewWorker(emb, vectors, db, cfg.Processing, log)

	files, err := collect(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		color.Yellow("no supported documents under %s", dir)
		return nil
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription(color.BlueString("Ingesting")),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)

	var sum summary
	var failures []string
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		bar.Describe(color.BlueString("Ingesting %s", filepath.Base(path)))
		data, err := os.ReadFile(path)
		if err != nil {
			sum.failed++
			failures = append(failures, fmt.Sprintf("%s: %v", path, err))
			bar.Add(1)
			continue
		}
		snap, err := worker.IngestFile(ctx, user.ID, filepath.Base(path), data)
		switch {
		case err != nil:
			sum.failed++
			failures = append(failures, fmt.Sprintf("%s: %v", path, err))
		case snap.Status == pipeline.StatusDupSkipped:
			sum.duplicates++
		default:
			sum.completed++
			sum.chunks += snap.Progress.ChunksStored
		}
		bar.Add(1)
	}
	bar.Finish()
	fmt.Println()

	color.Green("✓ %d ingested (%d chunks)", sum.completed, sum.chunks)
	if sum.duplicates > 0 {
		color.Yellow("• %d skipped as duplicates", sum.duplicates)
	}
	if sum.failed > 0 {
		color.Red("✗ %d failed", sum.failed)
		for _, f := range failures {
			color.Red("  %s", f)
		}
	}
	return ctx.Err()
}

// collect lists the supported files under dir in walk order.
func collect(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if parser.IsSupportedExtension(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
