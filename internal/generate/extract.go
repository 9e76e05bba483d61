package generate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seenimoa/futurenews/pkg/models"
)

// Synthetic article fields used when the model output cannot be decoded.
const (
	FallbackTitle      = "Generated Future News"
	ErrorTitle         = "Error in Future News Generation"
	SyntheticSource    = "AI News Generator"
	FallbackCategory   = "General"
	ErrorCategory      = "Error"
	maxErrorContentLen = 500
	syntheticOffset    = 7 * 24 * time.Hour
)

var (
	errNoJSONArray = errors.New("no JSON array in model output")
	errMissingKey  = errors.New("missing required field")
)

// predictedDateLayouts are the ISO forms accepted for predicted_date.
var predictedDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ExtractResult is the outcome of Extract. Cause is non-nil when Articles
// holds a synthetic fallback rather than decoded model output.
type ExtractResult struct {
	Articles []models.GeneratedArticle
	Cause    error
}

type rawArticle struct {
	Title         *string `json:"title"`
	Content       *string `json:"content"`
	PredictedDate *string `json:"predicted_date"`
	Source        *string `json:"source"`
	Category      *string `json:"category"`
}

// Extract recovers generated articles from free-form model text. It never
// fails: text without a bracketed array becomes a single article holding the
// raw text, and an array that does not decode becomes a single error article
// holding a prefix of it.
func Extract(text string, now time.Time) ExtractResult {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return ExtractResult{
			Articles: []models.GeneratedArticle{{
				Title:         FallbackTitle,
				Content:       text,
				PredictedDate: now.Add(syntheticOffset),
				Source:        SyntheticSource,
				Category:      FallbackCategory,
			}},
			Cause: errNoJSONArray,
		}
	}

	articles, err := decodeArticles(text[start : end+1])
	if err != nil {
		return ExtractResult{
			Articles: []models.GeneratedArticle{{
				Title:         ErrorTitle,
				Content:       truncate(text, maxErrorContentLen) + "...",
				PredictedDate: now.Add(syntheticOffset),
				Source:        SyntheticSource,
				Category:      ErrorCategory,
			}},
			Cause: err,
		}
	}
	return ExtractResult{Articles: articles}
}

func decodeArticles(data string) ([]models.GeneratedArticle, error) {
	var raws []rawArticle
	if err := json.Unmarshal([]byte(data), &raws); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}

	out := make([]models.GeneratedArticle, 0, len(raws))
	for i, r := range raws {
		if r.Title == nil || r.Content == nil || r.PredictedDate == nil || r.Source == nil {
			return nil, fmt.Errorf("article %d: %w", i, errMissingKey)
		}
		date, err := parsePredictedDate(*r.PredictedDate)
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", i, err)
		}
		a := models.GeneratedArticle{
			Title:         *r.Title,
			Content:       *r.Content,
			PredictedDate: date,
			Source:        *r.Source,
		}
		if r.Category != nil {
			a.Category = *r.Category
		}
		out = append(out, a)
	}
	return out, nil
}

func parsePredictedDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range predictedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid predicted_date %q", s)
}

// truncate returns at most n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
