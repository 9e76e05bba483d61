package ingest

import "github.com/seenimoa/futurenews/pkg/models"

// Merge folds a fetch result into the cache and returns the new snapshot.
//
// The snapshot is a full replacement: existing is discarded, so articles
// missing from the latest fetch leave the cache, and an empty fetch empties
// it. Duplicates are detected by title. A title keeps the position of its
// first occurrence in incoming and the value of its last one.
func Merge(existing, incoming []models.Article) []models.Article {
	out := make([]models.Article, 0, len(incoming))
	index := make(map[string]int, len(incoming))
	for _, a := range incoming {
		key := a.DedupKey()
		if i, ok := index[key]; ok {
			out[i] = a
			continue
		}
		index[key] = len(out)
		out = append(out, a)
	}
	return out
}
