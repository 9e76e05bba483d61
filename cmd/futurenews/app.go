package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/seenimoa/futurenews/internal/config"
	"github.com/seenimoa/futurenews/internal/generate"
	"github.com/seenimoa/futurenews/internal/ingest"
	"github.com/seenimoa/futurenews/internal/llm"
	"github.com/seenimoa/futurenews/internal/news"
	"github.com/seenimoa/futurenews/internal/store"
)

// app holds the wired service graph shared by the commands.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	store  store.Store
	ingest *ingest.Client
	news   *news.Service
	ollama *llm.OllamaClient
	gen    *generate.Service
}

// newApp builds every service from cfg. The cache is loaded from the store
// before newApp returns.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.New(ctx, cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("storage setup failed: %w", err)
	}

	client := ingest.NewClient(cfg.News, ingest.WithLogger(log))
	newsSvc := news.NewService(ctx, client, st, cfg.News.Categories, news.WithLogger(log))

	ollama := llm.NewOllamaClient(cfg.Ollama.BaseURL,
		llm.WithModel(cfg.Ollama.Model),
		llm.WithTimeout(cfg.Ollama.Timeout),
		llm.WithStreamIdleTimeout(cfg.Ollama.StreamIdleTimeout),
		llm.WithModelsTTL(cfg.Ollama.ModelsTTL),
		llm.WithLogger(log),
	)
	gen := generate.NewService(newsSvc, generate.NewGenerator(ollama, generate.WithLogger(log)))

	return &app{
		cfg:    cfg,
		log:    log,
		store:  st,
		ingest: client,
		news:   newsSvc,
		ollama: ollama,
		gen:    gen,
	}, nil
}

// Close releases the storage backend.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing store", zap.Error(err))
	}
}
