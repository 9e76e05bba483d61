// Package models holds the data types shared by the ingestion, cache,
// query and generation layers.
package models

import "time"

// Article is a single cached news article.
//
// Articles are values: a refetch produces a new Article, nothing mutates one
// in place. Optional provider fields are empty strings when absent.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content,omitempty"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"image_url,omitempty"`
	Source      string    `json:"source"`
	Category    string    `json:"category,omitempty"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// DedupKey returns the key used to detect duplicates. Ids are derived per
// provider and are not unique across providers, so the title is the key.
func (a Article) DedupKey() string { return a.Title }

// Equal reports whether two articles carry the same field values.
// Timestamps are compared by instant, not by location.
func (a Article) Equal(b Article) bool {
	return a.ID == b.ID &&
		a.Title == b.Title &&
		a.Description == b.Description &&
		a.Content == b.Content &&
		a.URL == b.URL &&
		a.ImageURL == b.ImageURL &&
		a.Source == b.Source &&
		a.Category == b.Category &&
		a.Author == b.Author &&
		a.PublishedAt.Equal(b.PublishedAt)
}

// Body returns the best available text for the article: content, then
// description, then the given placeholder.
func (a Article) Body(placeholder string) string {
	if a.Content != "" {
		return a.Content
	}
	if a.Description != "" {
		return a.Description
	}
	return placeholder
}

// NewsResponse is the read API payload.
type NewsResponse struct {
	Count int       `json:"count"`
	News  []Article `json:"news"`
}
