// Package ingest fetches articles from the news provider and the optional
// RSS feeds. Every partition (one category, the aggregate sources request,
// one feed) is fetched independently; a failing partition is recorded in the
// Result and never aborts the others.
package ingest

import (
	"errors"
	"fmt"

	"github.com/seenimoa/futurenews/pkg/models"
)

// ErrProvider is returned when the provider answers with an error document.
var ErrProvider = errors.New("ingest: provider error")

// Result is the outcome of one ingestion cycle. Partial results are normal:
// Articles holds everything collected, in partition order, and Errors the
// partitions that failed out of the Partitions attempted.
type Result struct {
	Articles   []models.Article
	Errors     []PartitionError
	Partitions int
}

// Failed reports whether every partition failed.
func (r Result) Failed() bool {
	return r.Partitions > 0 && len(r.Errors) >= r.Partitions
}

// PartitionError records the failure of a single partition.
type PartitionError struct {
	Partition string
	Err       error
}

func (e PartitionError) Error() string {
	return fmt.Sprintf("partition %s: %v", e.Partition, e.Err)
}

func (e PartitionError) Unwrap() error { return e.Err }

// HTTPError wraps a non-2xx provider response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// Partition names.
func categoryPartition(c string) string { return "category:" + c }
func feedPartition(name string) string  { return "feed:" + name }

const sourcesPartition = "sources"
