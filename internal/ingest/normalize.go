package ingest

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/seenimoa/futurenews/pkg/models"
)

const unknown = "Unknown"

// newsDataArticle is one record of a NewsData.io "results" array.
type newsDataArticle struct {
	ArticleID   string   `json:"article_id"`
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	ImageURL    string   `json:"image_url"`
	SourceID    string   `json:"source_id"`
	Creator     []string `json:"creator"`
	Category    []string `json:"category"`
	PubDate     string   `json:"pubDate"`
}

// pubDateLayouts are tried in order; NewsData sends "2006-01-02 15:04:05" in UTC.
var pubDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// normalizer turns provider records into articles.
type normalizer struct {
	categories []string
	now        func() time.Time
	log        *zap.Logger
}

// newsData decodes each raw record on its own so a malformed record is
// skipped without losing the rest of the partition.
func (n normalizer) newsData(partition string, records []json.RawMessage, defaultCategory string) []models.Article {
	out := make([]models.Article, 0, len(records))
	for i, raw := range records {
		var rec newsDataArticle
		if err := json.Unmarshal(raw, &rec); err != nil {
			n.log.Warn("skipping malformed article",
				zap.String("partition", partition), zap.Int("index", i), zap.Error(err))
			continue
		}
		title := strings.TrimSpace(rec.Title)
		if title == "" {
			n.log.Warn("skipping article without title",
				zap.String("partition", partition), zap.Int("index", i))
			continue
		}

		out = append(out, models.Article{
			ID:          "newsdata-" + titleHash(title),
			Title:       title,
			Description: cleanHTML(rec.Description),
			Content:     cleanHTML(rec.Content),
			URL:         rec.Link,
			ImageURL:    rec.ImageURL,
			Source:      orDefault(rec.SourceID, unknown),
			Category:    n.inferCategory(rec.Category, rec.Link, title, defaultCategory),
			Author:      firstOr(rec.Creator, unknown),
			PublishedAt: n.parseDate(rec.PubDate),
		})
	}
	return out
}

// inferCategory picks the provider tag, else the first configured category
// found in the link or title, else the partition default.
func (n normalizer) inferCategory(tags []string, link, title, fallback string) string {
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			return t
		}
	}
	link, title = strings.ToLower(link), strings.ToLower(title)
	for _, c := range n.categories {
		kw := strings.ToLower(c)
		if kw == "" {
			continue
		}
		if strings.Contains(link, kw) || strings.Contains(title, kw) {
			return c
		}
	}
	return fallback
}

// parseDate never fails: missing or unparsable dates become the current time.
func (n normalizer) parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s != "" {
		for _, layout := range pubDateLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t
			}
		}
		n.log.Debug("unparsable publish date, using now", zap.String("value", s))
	}
	return n.now()
}

func titleHash(title string) string {
	return strconv.FormatUint(xxhash.Sum64String(title), 16)
}

// cleanHTML strips HTML tags from a string using goquery.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

func firstOr(ss []string, def string) string {
	if len(ss) > 0 && strings.TrimSpace(ss[0]) != "" {
		return strings.TrimSpace(ss[0])
	}
	return def
}
