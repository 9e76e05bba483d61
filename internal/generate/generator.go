// Package generate turns cached articles into future news: it builds the
// prompt, calls the model in batch or streaming mode and recovers structured
// articles from batch output.
package generate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/futurenews/internal/llm"
	"github.com/seenimoa/futurenews/internal/news"
	"github.com/seenimoa/futurenews/pkg/logger"
	"github.com/seenimoa/futurenews/pkg/models"
)

// Errors returned by the generation service.
var (
	ErrNoContext      = errors.New("generate: no news articles match the request")
	ErrInvalidRequest = errors.New("generate: invalid request")
)

// Model is the generation endpoint.
type Model interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (string, error)
	Stream(ctx context.Context, req llm.GenerateRequest) (<-chan llm.Fragment, error)
	ListModels(ctx context.Context) []string
	DefaultModel() string
}

// Querier reads context articles from the cache.
type Querier interface {
	Query(ctx context.Context, f news.Filter) []models.Article
}

// ════════════════════════════════════════════════════════════════════
// Generator
// ════════════════════════════════════════════════════════════════════

// Generator calls the model with prompts built from context articles.
type Generator struct {
	model Model
	now   func() time.Time
	log   *zap.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithClock overrides the reference time for prompts and fallbacks.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// WithLogger sets the generator logger.
func WithLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) { g.log = logger.OrNop(l) }
}

// NewGenerator creates a generator backed by m.
func NewGenerator(m Model, opts ...GeneratorOption) *Generator {
	g := &Generator{model: m, now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) request(articles []models.Article, tf models.TimeFrame, style models.Style, model string, now time.Time) llm.GenerateRequest {
	return llm.GenerateRequest{
		Model:   model,
		Prompt:  BuildPrompt(articles, tf, style, now),
		System:  SystemPrompt,
		Options: llm.DefaultOptions(),
	}
}

// Generate returns future articles for the given context. Transport and
// status failures are returned as errors; undecodable output is not.
func (g *Generator) Generate(ctx context.Context, articles []models.Article, tf models.TimeFrame, style models.Style, model string) ([]models.GeneratedArticle, error) {
	now := g.now()
	text, err := g.model.Generate(ctx, g.request(articles, tf, style, model, now))
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	res := Extract(text, now)
	if res.Cause != nil {
		g.log.Warn("model output not decodable, returning fallback article",
			zap.String("fallback", res.Articles[0].Title), zap.Error(res.Cause))
	}
	return res.Articles, nil
}

// Stream returns the model's text fragments as they arrive. The channel
// closes when the model connection ends; cancelling ctx ends it early.
func (g *Generator) Stream(ctx context.Context, articles []models.Article, tf models.TimeFrame, style models.Style, model string) (<-chan llm.Fragment, error) {
	ch, err := g.model.Stream(ctx, g.request(articles, tf, style, model, g.now()))
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	return ch, nil
}

// ════════════════════════════════════════════════════════════════════
// Service
// ════════════════════════════════════════════════════════════════════

// Service resolves context articles and runs generation.
type Service struct {
	news Querier
	gen  *Generator
	now  func() time.Time
}

// NewService creates a generation service.
func NewService(q Querier, gen *Generator) *Service {
	return &Service{news: q, gen: gen, now: gen.now}
}

// Prepare normalizes and validates req and selects its context articles.
func (s *Service) Prepare(ctx context.Context, req models.GenerationRequest) (models.GenerationRequest, []models.Article, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return req, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	articles := s.news.Query(ctx, news.Filter{
		Category: req.Category,
		Source:   req.Source,
		Limit:    req.ContextSize,
	})
	if len(articles) == 0 {
		return req, nil, ErrNoContext
	}
	return req, articles, nil
}

// Generate runs batch generation for req.
func (s *Service) Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error) {
	req, articles, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	generated, err := s.gen.Generate(ctx, articles, req.TimeFrame, req.Style, req.Model)
	if err != nil {
		return nil, err
	}
	return &models.GenerationResponse{
		GeneratedNews: generated,
		ContextUsed:   len(articles),
		TimeFrame:     req.TimeFrame,
		CreatedAt:     s.now(),
	}, nil
}

// Stream runs streaming generation for req.
func (s *Service) Stream(ctx context.Context, req models.GenerationRequest) (<-chan llm.Fragment, error) {
	req, articles, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.gen.Stream(ctx, articles, req.TimeFrame, req.Style, req.Model)
}

// Models lists the available model names; never empty.
func (s *Service) Models(ctx context.Context) []string {
	return s.gen.model.ListModels(ctx)
}

// DefaultModel returns the model used when a request names none.
func (s *Service) DefaultModel() string { return s.gen.model.DefaultModel() }
