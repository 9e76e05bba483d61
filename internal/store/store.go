// Package store persists the article snapshot. A snapshot is always written
// and read whole; there is no partial update.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/futurenews/internal/config"
	"github.com/seenimoa/futurenews/pkg/models"
)

// Store loads and saves the article snapshot.
type Store interface {
	// Load never fails: trouble is reported in LoadResult.Cause and the
	// articles are empty.
	Load(ctx context.Context) LoadResult
	Save(ctx context.Context, articles []models.Article) error
	Name() string
	Close() error
}

// LoadResult is the outcome of Load. Cause is nil when the snapshot was read
// or simply did not exist yet.
type LoadResult struct {
	Articles []models.Article
	Cause    error
}

// New creates the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", config.StorageFile:
		return NewFileStore(cfg.Path, WithLogger(log)), nil
	case config.StorageRedis:
		client, err := NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, cfg.RedisKey, WithLogger(log)), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}

// Option configures a store.
type Option func(*options)

type options struct {
	log *zap.Logger
	now func() time.Time
}

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the time substituted for unreadable dates.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ── Snapshot codec ──

// record is the stored form of an Article. The date is kept as text so a
// single bad value can be replaced instead of failing the whole snapshot.
type record struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content,omitempty"`
	URL         string `json:"url"`
	ImageURL    string `json:"image_url,omitempty"`
	Source      string `json:"source"`
	Category    string `json:"category,omitempty"`
	Author      string `json:"author,omitempty"`
	PublishedAt string `json:"published_at"`
}

// storedDateLayouts accepts our own encoding first, then ISO timestamps
// without a zone as written by older snapshots.
var storedDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
}

func encodeSnapshot(articles []models.Article) ([]byte, error) {
	recs := make([]record, len(articles))
	for i, a := range articles {
		recs[i] = record{
			ID:          a.ID,
			Title:       a.Title,
			Description: a.Description,
			Content:     a.Content,
			URL:         a.URL,
			ImageURL:    a.ImageURL,
			Source:      a.Source,
			Category:    a.Category,
			Author:      a.Author,
			PublishedAt: a.PublishedAt.Format(time.RFC3339Nano),
		}
	}
	return json.Marshal(recs)
}

// decodeSnapshot parses a stored array. A document that is not an array of
// objects is an error; a malformed element is skipped and an unreadable date
// becomes now().
func decodeSnapshot(data []byte, o options) ([]models.Article, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	articles := make([]models.Article, 0, len(raw))
	for i, r := range raw {
		var rec record
		if err := json.Unmarshal(r, &rec); err != nil {
			o.log.Warn("skipping unreadable snapshot item", zap.Int("index", i), zap.Error(err))
			continue
		}
		articles = append(articles, models.Article{
			ID:          rec.ID,
			Title:       rec.Title,
			Description: rec.Description,
			Content:     rec.Content,
			URL:         rec.URL,
			ImageURL:    rec.ImageURL,
			Source:      rec.Source,
			Category:    rec.Category,
			Author:      rec.Author,
			PublishedAt: parseStoredDate(rec.PublishedAt, o),
		})
	}
	return articles, nil
}

func parseStoredDate(s string, o options) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range storedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	o.log.Debug("unreadable stored date, using now", zap.String("value", s))
	return o.now()
}
