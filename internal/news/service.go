// Package news owns the in-memory article cache: it publishes ingestion
// results as whole snapshots and answers filtered, paginated reads.
package news

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/seenimoa/futurenews/internal/ingest"
	"github.com/seenimoa/futurenews/internal/store"
	"github.com/seenimoa/futurenews/pkg/logger"
	"github.com/seenimoa/futurenews/pkg/models"
)

// AvailableCategories is the provider's fixed category list.
var AvailableCategories = []string{
	"business", "entertainment", "environment", "food", "health",
	"politics", "science", "sports", "technology", "top", "world",
}

// Fetcher runs one ingestion cycle.
type Fetcher interface {
	Fetch(ctx context.Context) ingest.Result
}

// Filter selects articles from the cache. Empty fields match everything;
// a non-positive Limit means no limit.
type Filter struct {
	Category string
	Source   string
	Limit    int
	Skip     int
}

// RefreshResult summarizes one refresh. Err is set when the caller gave up
// on the cycle; the cache and the store are then left as they were.
type RefreshResult struct {
	Articles   int
	Partitions int
	Errors     []ingest.PartitionError
	SaveErr    error
	Err        error
	Refreshed  time.Time
}

// Failed reports whether every attempted partition failed.
func (r RefreshResult) Failed() bool {
	return ingest.Result{Errors: r.Errors, Partitions: r.Partitions}.Failed()
}

// Service is the cache owner. It is safe for concurrent use.
type Service struct {
	fetcher    Fetcher
	store      store.Store
	categories []string
	log        *zap.Logger
	now        func() time.Time

	refreshMu sync.Mutex // serializes fetch → merge → publish → save
	cold      singleflight.Group

	mu          sync.RWMutex
	snapshot    []models.Article // never mutated once published
	lastRefresh time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = logger.OrNop(l) }
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the service and populates the cache from st.
func NewService(ctx context.Context, f Fetcher, st store.Store, categories []string, opts ...Option) *Service {
	s := &Service{
		fetcher:    f,
		store:      st,
		categories: categories,
		log:        zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	res := st.Load(ctx)
	if res.Cause != nil {
		s.log.Warn("starting with an empty cache", zap.String("store", st.Name()), zap.Error(res.Cause))
	}
	s.publish(res.Articles, time.Time{})
	return s
}

// Refresh runs an ingestion cycle and replaces the cache with its result.
// Overlapping calls are serialized. A save failure is reported in the
// result but the new snapshot stays published. A cycle whose context ends
// during the fetch is discarded.
func (s *Service) Refresh(ctx context.Context) RefreshResult {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	res := s.fetcher.Fetch(ctx)
	if err := ctx.Err(); err != nil {
		s.log.Warn("refresh abandoned, keeping current snapshot",
			zap.Int("articles", s.Len()),
			zap.Error(err),
		)
		return RefreshResult{
			Articles:   s.Len(),
			Partitions: res.Partitions,
			Errors:     res.Errors,
			Err:        err,
		}
	}

	merged := ingest.Merge(s.Snapshot(), res.Articles)
	at := s.now()
	s.publish(merged, at)

	out := RefreshResult{
		Articles:   len(merged),
		Partitions: res.Partitions,
		Errors:     res.Errors,
		Refreshed:  at,
	}
	if err := s.store.Save(ctx, merged); err != nil {
		s.log.Error("saving snapshot failed", zap.String("store", s.store.Name()), zap.Error(err))
		out.SaveErr = err
	}
	s.log.Info("cache refreshed",
		zap.Int("articles", len(merged)),
		zap.Int("failed_partitions", len(res.Errors)),
	)
	return out
}

// Query filters the cache by exact category and source, orders it newest
// first and applies skip then limit. An empty cache is refreshed first;
// concurrent cold reads share a single refresh.
func (s *Service) Query(ctx context.Context, f Filter) []models.Article {
	snap := s.Snapshot()
	if len(snap) == 0 {
		_, _, _ = s.cold.Do("refresh", func() (any, error) {
			if len(s.Snapshot()) == 0 {
				s.Refresh(ctx)
			}
			return nil, nil
		})
		snap = s.Snapshot()
	}
	return Select(snap, f)
}

// Select applies f to articles without touching them.
func Select(articles []models.Article, f Filter) []models.Article {
	matched := make([]models.Article, 0, len(articles))
	for _, a := range articles {
		if f.Category != "" && a.Category != f.Category {
			continue
		}
		if f.Source != "" && a.Source != f.Source {
			continue
		}
		matched = append(matched, a)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].PublishedAt.After(matched[j].PublishedAt)
	})

	skip := max(f.Skip, 0)
	if skip >= len(matched) {
		return []models.Article{}
	}
	matched = matched[skip:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched
}

// Categories returns the configured ingestion categories.
func (s *Service) Categories() []string {
	return append([]string{}, s.categories...)
}

// Sources returns the distinct sources present in the cache, sorted.
func (s *Service) Sources() []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, a := range s.Snapshot() {
		if _, ok := seen[a.Source]; ok || a.Source == "" {
			continue
		}
		seen[a.Source] = struct{}{}
		out = append(out, a.Source)
	}
	sort.Strings(out)
	return out
}

// AvailableCategories returns the provider's category list.
func (s *Service) AvailableCategories() []string {
	return append([]string{}, AvailableCategories...)
}

// Snapshot returns the current published snapshot. Callers must not modify it.
func (s *Service) Snapshot() []models.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Len returns the number of cached articles.
func (s *Service) Len() int { return len(s.Snapshot()) }

// LastRefresh returns when the cache was last refreshed, zero if only loaded.
func (s *Service) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefresh
}

func (s *Service) publish(articles []models.Article, at time.Time) {
	if articles == nil {
		articles = []models.Article{}
	}
	s.mu.Lock()
	s.snapshot = articles
	if !at.IsZero() {
		s.lastRefresh = at
	}
	s.mu.Unlock()
}
