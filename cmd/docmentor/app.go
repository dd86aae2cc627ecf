package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docmentor/docmentor/internal/chunks"
	"github.com/docmentor/docmentor/internal/config"
	"github.com/docmentor/docmentor/internal/embedding"
	"github.com/docmentor/docmentor/internal/ingest"
	"github.com/docmentor/docmentor/internal/pipeline"
	"github.com/docmentor/docmentor/internal/retriever"
)

// app holds the wired components shared by every command
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	loader   *ingest.Loader
	embedder *embedding.Embedder
	pipeline *pipeline.Pipeline
}

// buildApp wires config into splitter, embedder, registry, store and pipeline
func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	splitter, err := ingest.NewSplitter(cfg.Splitter)
	if err != nil {
		return nil, err
	}

	provider, err := embedding.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	embedder := embedding.NewEmbedder(provider, cfg.Embedding, cfg.Retrieval.Dimension,
		embedding.WithLogger(logger))

	store, err := retriever.NewStore(cfg.Backend(), cfg.Retrieval.Dimension, cfg.Retrieval.TopK,
		retriever.WithParallelism(cfg.Retrieval.Parallelism),
		retriever.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	loader := ingest.NewLoader(cfg.Loader)
	p := pipeline.New(splitter, embedder, chunks.NewRegistry(), store,
		pipeline.WithLogger(logger),
		pipeline.WithLoader(loader))

	return &app{
		cfg:      cfg,
		logger:   logger,
		loader:   loader,
		embedder: embedder,
		pipeline: p,
	}, nil
}

// ingestReport summarizes an ingest run
type ingestReport struct {
	Loaded  int
	Skipped []string
	Failed  []string
}

// ingest loads every supported file under paths into the pipeline.
// Unreadable files are skipped; failed documents are reported, not fatal.
func (a *app) ingest(ctx context.Context, paths []string) (*ingestReport, error) {
	report := &ingestReport{}
	for _, path := range paths {
		res, err := a.loader.Load(ctx, path)
		if err != nil {
			return report, fmt.Errorf("failed to load %s: %w", path, err)
		}
		report.Skipped = append(report.Skipped, res.Errors...)

		for _, doc := range res.Documents {
			if err := a.pipeline.ProcessDocument(ctx, doc.ID, doc.Text); err != nil {
				if ctx.Err() != nil {
					return report, ctx.Err()
				}
				report.Failed = append(report.Failed, fmt.Sprintf("%s: %v", doc.ID, err))
				continue
			}
			report.Loaded++
		}
	}

	a.logger.Info("ingest finished",
		"documents", report.Loaded,
		"skipped", len(report.Skipped),
		"failed", len(report.Failed))
	return report, nil
}

func (a *app) summary() string {
	stats := a.pipeline.Stats()
	return fmt.Sprintf("%d documents, %d chunks, backend %s, dim %d, top_k %d, embeddings via %s",
		stats.Documents, stats.Chunks, stats.Backend, stats.Dimension, stats.TopK, a.embedder.Provider())
}
