package generate

import (
	"fmt"
	"strings"
	"time"

	"github.com/seenimoa/futurenews/pkg/models"
)

// SystemPrompt is sent as the system instruction with every generation call.
const SystemPrompt = "You are a future news prediction AI that creates plausible future news articles based on current events."

// ArticlesPerPrompt is the number of future articles the model is asked for.
const ArticlesPerPrompt = 3

const dateLayout = "2006-01-02"

// BuildPrompt renders the generation prompt. It depends only on its
// arguments: the same articles, time frame, style and now give the same
// string.
func BuildPrompt(articles []models.Article, tf models.TimeFrame, style models.Style, now time.Time) string {
	target := now.Add(tf.Offset()).Format(dateLayout)

	return fmt.Sprintf(`
You are a future news prediction service. Based on current news, generate %[1]d plausible future news articles
that could appear on %[2]s (%[3]s from now).

Make the articles realistic, coherent, and a logical progression from the current news.
The tone should be %[4]s.

Current news context:
%[5]s

Generate %[1]d future news articles in JSON format:
[
  {
    "title": "Headline of the first future article",
    "content": "Detailed content of the article with at least 200 words",
    "predicted_date": "%[2]s",
    "source": "Name of a plausible news source",
    "category": "Category of the news"
  },
  ... (%[6]d more articles)
]

Make sure to only output valid JSON that can be parsed. The articles should feel like real news coverage.
`, ArticlesPerPrompt, target, tf, style.Tone(), newsContext(articles), ArticlesPerPrompt-1)
}

// newsContext renders one labeled block per article, in input order.
func newsContext(articles []models.Article) string {
	blocks := make([]string, len(articles))
	for i, a := range articles {
		category := a.Category
		if category == "" {
			category = "General"
		}
		blocks[i] = fmt.Sprintf("TITLE: %s\nSOURCE: %s\nDATE: %s\nCATEGORY: %s\nCONTENT: %s",
			a.Title, a.Source, a.PublishedAt.Format(dateLayout), category, a.Body("No content available"))
	}
	return strings.Join(blocks, "\n\n")
}
