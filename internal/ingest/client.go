package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/seenimoa/futurenews/internal/config"
	"github.com/seenimoa/futurenews/pkg/logger"
	"github.com/seenimoa/futurenews/pkg/models"
)

// DefaultUserAgent is the user agent string used for provider requests.
const DefaultUserAgent = "futurenews/1.0 (+https://github.com/seenimoa/futurenews)"

// maxConcurrent bounds the number of partitions fetched at once.
const maxConcurrent = 4

// Client fetches articles from NewsData.io and configured RSS feeds.
type Client struct {
	cfg     config.NewsConfig
	http    *http.Client
	limiter *rate.Limiter
	parser  *gofeed.Parser
	norm    normalizer
	log     *zap.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for all partitions.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = logger.OrNop(l) }
}

// WithClock overrides the time source used for missing publish dates.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.norm.now = now }
}

// NewClient creates an ingestion client for the given news settings.
func NewClient(cfg config.NewsConfig, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://newsdata.io/api/1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(limit, 1),
		parser:  gofeed.NewParser(),
		norm:    normalizer{categories: cfg.Categories, now: time.Now},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser.Client = c.http
	c.parser.UserAgent = DefaultUserAgent
	c.norm.log = c.log
	return c
}

// Partitions returns the number of partitions one Fetch issues.
func (c *Client) Partitions() int {
	n := len(c.cfg.Categories) + len(c.cfg.Feeds)
	if len(c.cfg.Sources) > 0 {
		n++
	}
	return n
}

// partition is one unit of work in a fetch cycle.
type partition struct {
	name  string
	fetch func(ctx context.Context) ([]models.Article, error)
}

// Fetch runs every partition concurrently and returns what was collected.
// Articles are ordered by partition: categories in configured order, then
// the aggregate sources request, then feeds. Fetch itself never fails.
func (c *Client) Fetch(ctx context.Context) Result {
	parts := c.partitions()
	batches := make([][]models.Article, len(parts))
	errs := make([]error, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, p := range parts {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, c.cfg.RequestTimeout)
			defer cancel()

			start := time.Now()
			articles, err := p.fetch(pctx)
			if err != nil {
				c.log.Error("partition fetch failed", zap.String("partition", p.name), zap.Error(err))
				errs[i] = err
				return nil // non-fatal
			}
			c.log.Debug("partition fetched",
				zap.String("partition", p.name),
				zap.Int("articles", len(articles)),
				zap.Duration("latency", time.Since(start)),
			)
			batches[i] = articles
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Partitions: len(parts)}
	for i, p := range parts {
		if errs[i] != nil {
			res.Errors = append(res.Errors, PartitionError{Partition: p.name, Err: errs[i]})
			continue
		}
		res.Articles = append(res.Articles, batches[i]...)
	}
	c.log.Info("ingestion cycle complete",
		zap.Int("partitions", len(parts)),
		zap.Int("failed", len(res.Errors)),
		zap.Int("articles", len(res.Articles)),
	)
	return res
}

func (c *Client) partitions() []partition {
	parts := make([]partition, 0, c.Partitions())
	for _, cat := range c.cfg.Categories {
		parts = append(parts, partition{
			name: categoryPartition(cat),
			fetch: func(ctx context.Context) ([]models.Article, error) {
				return c.fetchNewsData(ctx, categoryPartition(cat), url.Values{"category": {cat}}, cat)
			},
		})
	}
	if len(c.cfg.Sources) > 0 {
		// NewsData filters by domain rather than source id.
		domains := strings.Join(c.cfg.Sources, ",")
		parts = append(parts, partition{
			name: sourcesPartition,
			fetch: func(ctx context.Context) ([]models.Article, error) {
				return c.fetchNewsData(ctx, sourcesPartition, url.Values{"domain": {domains}}, "")
			},
		})
	}
	for _, feed := range c.cfg.Feeds {
		parts = append(parts, partition{
			name: feedPartition(feed.Name),
			fetch: func(ctx context.Context) ([]models.Article, error) {
				return c.fetchFeed(ctx, feed)
			},
		})
	}
	return parts
}

// ── NewsData.io ──

type newsDataResponse struct {
	Status       string          `json:"status"`
	TotalResults int             `json:"totalResults"`
	Results      json.RawMessage `json:"results"`
}

type newsDataError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (c *Client) fetchNewsData(ctx context.Context, name string, params url.Values, defaultCategory string) ([]models.Article, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("apikey", c.cfg.APIKey)
	if c.cfg.Language != "" {
		params.Set("language", c.cfg.Language)
	}
	body, err := c.get(ctx, c.cfg.BaseURL+"/news?"+params.Encode())
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp newsDataResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "" && resp.Status != "success" {
		var pe newsDataError
		_ = json.Unmarshal(resp.Results, &pe)
		return nil, fmt.Errorf("%w: %s %s", ErrProvider, pe.Code, pe.Message)
	}

	var records []json.RawMessage
	if len(resp.Results) > 0 && string(resp.Results) != "null" {
		if err := json.Unmarshal(resp.Results, &records); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
	}
	return c.norm.newsData(name, records, defaultCategory), nil
}

// get performs a GET request. The caller closes the returned body.
func (c *Client) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL carries the API key; report only the transport failure.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, fmt.Errorf("HTTP GET: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(b)),
		}
	}
	return resp.Body, nil
}

// ── RSS feeds ──

func (c *Client) fetchFeed(ctx context.Context, fc config.FeedConfig) ([]models.Article, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	feed, err := c.parser.ParseURLWithContext(fc.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse RSS %s: %w", fc.Name, err)
	}

	sourceID := slug(fc.Name)
	articles := make([]models.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			c.log.Warn("skipping feed item without title", zap.String("partition", feedPartition(fc.Name)))
			continue
		}
		a := models.Article{
			ID:          sourceID + "-" + titleHash(title),
			Title:       title,
			Description: cleanHTML(item.Description),
			Content:     cleanHTML(item.Content),
			URL:         item.Link,
			Source:      sourceID,
			Category:    c.norm.inferCategory(nil, item.Link, title, fc.Category),
			Author:      unknown,
			PublishedAt: c.norm.now(),
		}
		if item.Image != nil {
			a.ImageURL = item.Image.URL
		}
		if len(item.Authors) > 0 && item.Authors[0] != nil && item.Authors[0].Name != "" {
			a.Author = item.Authors[0].Name
		}
		if item.PublishedParsed != nil {
			a.PublishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			a.PublishedAt = *item.UpdatedParsed
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// slug lowercases name and joins its words with hyphens.
func slug(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	if len(fields) == 0 {
		return "feed"
	}
	return strings.Join(fields, "-")
}
