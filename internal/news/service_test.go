package news

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seenimoa/futurenews/internal/config"
	"github.com/seenimoa/futurenews/internal/ingest"
	"github.com/seenimoa/futurenews/internal/store"
	"github.com/seenimoa/futurenews/pkg/models"
)

// ── Fakes ──

type fakeFetcher struct {
	mu      sync.Mutex
	results []ingest.Result
	calls   atomic.Int32
	delay   time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context) ingest.Result {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return ingest.Result{}
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r
}

type memStore struct {
	mu      sync.Mutex
	loaded  store.LoadResult
	saved   [][]models.Article
	saveErr error
}

func (m *memStore) Load(context.Context) store.LoadResult { return m.loaded }
func (m *memStore) Save(_ context.Context, a []models.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, a)
	return m.saveErr
}
func (m *memStore) Name() string { return "memory" }
func (m *memStore) Close() error { return nil }

var base = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

func art(title, category, source string, hoursAgo int) models.Article {
	return models.Article{
		ID:          "id-" + title,
		Title:       title,
		Category:    category,
		Source:      source,
		PublishedAt: base.Add(-time.Duration(hoursAgo) * time.Hour),
	}
}

func titles(as []models.Article) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.Title
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ════════════════════════════════════════════════════════════════════
// Construction & Refresh
// ════════════════════════════════════════════════════════════════════

func TestNewServiceLoadsFromStore(t *testing.T) {
	st := &memStore{loaded: store.LoadResult{Articles: []models.Article{art("Loaded", "business", "bbc", 1)}}}
	f := &fakeFetcher{}
	s := NewService(context.Background(), f, st, []string{"business"})

	got := s.Query(context.Background(), Filter{})
	if !equalStrings(titles(got), []string{"Loaded"}) {
		t.Fatalf("unexpected articles %v", titles(got))
	}
	if f.calls.Load() != 0 {
		t.Fatal("a warm cache must not trigger a refresh")
	}
}

func TestNewServiceCorruptStoreStartsEmpty(t *testing.T) {
	st := &memStore{loaded: store.LoadResult{Cause: errors.New("corrupt")}}
	s := NewService(context.Background(), &fakeFetcher{}, st, nil)
	if s.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", s.Len())
	}
}

func TestRefreshPartitionFailureKeepsOthers(t *testing.T) {
	f := &fakeFetcher{results: []ingest.Result{{
		Articles: []models.Article{art("Tech", "technology", "wired", 1), art("Src", "", "bbc", 2)},
		Errors:   []ingest.PartitionError{{Partition: "category:business", Err: errors.New("down")}},
	}}}
	st := &memStore{}
	s := NewService(context.Background(), f, st, nil)

	res := s.Refresh(context.Background())
	if res.Articles != 2 || len(res.Errors) != 1 {
		t.Fatalf("unexpected refresh result %+v", res)
	}
	if s.Len() != 2 {
		t.Fatalf("expected both surviving partitions in cache, got %d", s.Len())
	}
	if len(st.saved) != 1 || len(st.saved[0]) != 2 {
		t.Fatalf("snapshot not persisted: %+v", st.saved)
	}
}

func TestRefreshDedupLaterWins(t *testing.T) {
	first := art("Same", "business", "bbc", 1)
	first.Content = "from category partition"
	later := art("Same", "", "cnn", 1)
	later.Content = "from sources partition"

	f := &fakeFetcher{results: []ingest.Result{{Articles: []models.Article{first, later}}}}
	s := NewService(context.Background(), f, &memStore{}, nil)
	s.Refresh(context.Background())

	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Content != "from sources partition" {
		t.Fatalf("expected the later duplicate, got %+v", snap)
	}
}

func TestRefreshEmptyFetchEmptiesCache(t *testing.T) {
	st := &memStore{loaded: store.LoadResult{Articles: []models.Article{art("Old", "", "bbc", 1)}}}
	s := NewService(context.Background(), &fakeFetcher{}, st, nil)
	if s.Len() != 1 {
		t.Fatal("setup: expected loaded article")
	}
	s.Refresh(context.Background())
	if s.Len() != 0 {
		t.Fatalf("full refresh with nothing fetched must empty the cache, got %d", s.Len())
	}
}

func TestRefreshAbandonedKeepsCacheAndStore(t *testing.T) {
	f := &fakeFetcher{results: []ingest.Result{{
		Partitions: 1,
		Errors:     []ingest.PartitionError{{Partition: "category:business", Err: context.Canceled}},
	}}}
	st := &memStore{loaded: store.LoadResult{Articles: []models.Article{art("Kept", "business", "bbc", 1)}}}
	s := NewService(context.Background(), f, st, []string{"business"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := s.Refresh(ctx)

	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected the cancellation cause in the result, got %v", res.Err)
	}
	if res.Articles != 1 || !res.Refreshed.IsZero() {
		t.Fatalf("unexpected refresh result %+v", res)
	}
	if !equalStrings(titles(s.Snapshot()), []string{"Kept"}) {
		t.Fatalf("cache changed by an abandoned refresh: %v", titles(s.Snapshot()))
	}
	if len(st.saved) != 0 {
		t.Fatalf("abandoned refresh must not save, got %d saves", len(st.saved))
	}
	if !s.LastRefresh().IsZero() {
		t.Fatal("LastRefresh must not move on an abandoned refresh")
	}
}

func TestRefreshTimeoutAgainstSlowProvider(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	client := ingest.NewClient(config.NewsConfig{
		APIKey:         "k",
		BaseURL:        server.URL,
		Categories:     []string{"business"},
		RequestTimeout: 5 * time.Second,
	})
	st := &memStore{loaded: store.LoadResult{Articles: []models.Article{art("Kept", "business", "bbc", 1)}}}
	s := NewService(context.Background(), client, st, []string{"business"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := s.Refresh(ctx)

	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v (errors %v)", res.Err, res.Errors)
	}
	if s.Len() != 1 || len(st.saved) != 0 {
		t.Fatalf("cache=%d saves=%d, want cache=1 saves=0", s.Len(), len(st.saved))
	}
}

func TestRefreshSaveErrorKeepsSnapshot(t *testing.T) {
	f := &fakeFetcher{results: []ingest.Result{{Articles: []models.Article{art("New", "", "bbc", 1)}}}}
	st := &memStore{saveErr: errors.New("disk full")}
	s := NewService(context.Background(), f, st, nil)

	res := s.Refresh(context.Background())
	if res.SaveErr == nil {
		t.Fatal("expected save error in result")
	}
	if s.Len() != 1 {
		t.Fatal("save failure must not roll back the published snapshot")
	}
	if s.LastRefresh().IsZero() {
		t.Fatal("LastRefresh should be set")
	}
}

func TestRefreshSerialized(t *testing.T) {
	f := &fakeFetcher{
		delay: 20 * time.Millisecond,
		results: []ingest.Result{
			{Articles: []models.Article{art("A", "", "bbc", 1)}},
			{Articles: []models.Article{art("B", "", "bbc", 1), art("C", "", "bbc", 2)}},
		},
	}
	s := NewService(context.Background(), f, &memStore{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Refresh(context.Background())
		}()
	}
	wg.Wait()

	n := s.Len()
	if n != 1 && n != 2 {
		t.Fatalf("snapshot must be one complete fetch result, got %d articles", n)
	}
}

// ════════════════════════════════════════════════════════════════════
// Query
// ════════════════════════════════════════════════════════════════════

func TestQueryColdCacheRefreshesOnce(t *testing.T) {
	f := &fakeFetcher{
		delay:   20 * time.Millisecond,
		results: []ingest.Result{{Articles: []models.Article{art("Fresh", "", "bbc", 1)}}},
	}
	s := NewService(context.Background(), f, &memStore{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := s.Query(context.Background(), Filter{}); len(got) != 1 {
				t.Errorf("expected refreshed article, got %d", len(got))
			}
		}()
	}
	wg.Wait()
	if f.calls.Load() != 1 {
		t.Fatalf("expected a single cold refresh, got %d", f.calls.Load())
	}
}

func TestQueryFilterSortPaginate(t *testing.T) {
	cache := []models.Article{
		art("old-biz", "business", "bbc", 10),
		art("new-biz", "business", "cnn", 1),
		art("tech", "technology", "bbc", 2),
		art("tie-a", "business", "bbc", 5),
		art("tie-b", "business", "bbc", 5),
		art("Business-cased", "Business", "bbc", 0),
	}
	st := &memStore{loaded: store.LoadResult{Articles: cache}}
	s := NewService(context.Background(), &fakeFetcher{}, st, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all newest first", Filter{}, []string{"Business-cased", "new-biz", "tech", "tie-a", "tie-b", "old-biz"}},
		{"exact category", Filter{Category: "business"}, []string{"new-biz", "tie-a", "tie-b", "old-biz"}},
		{"category and source", Filter{Category: "business", Source: "bbc"}, []string{"tie-a", "tie-b", "old-biz"}},
		{"limit", Filter{Limit: 2}, []string{"Business-cased", "new-biz"}},
		{"skip then limit", Filter{Skip: 2, Limit: 2}, []string{"tech", "tie-a"}},
		{"skip past end", Filter{Skip: 6}, []string{}},
		{"skip far past end", Filter{Skip: 1000, Limit: 10}, []string{}},
		{"negative skip", Filter{Skip: -3, Limit: 1}, []string{"Business-cased"}},
		{"no match", Filter{Source: "BBC"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Query(ctx, tt.filter)
			if got == nil {
				t.Fatal("Query must return a non-nil slice")
			}
			if !equalStrings(titles(got), tt.want) {
				t.Errorf("got %v, want %v", titles(got), tt.want)
			}
		})
	}
}

func TestSelectDoesNotReorderInput(t *testing.T) {
	in := []models.Article{art("older", "", "", 5), art("newer", "", "", 1)}
	Select(in, Filter{})
	if in[0].Title != "older" {
		t.Fatal("Select must not mutate its input")
	}
}

func TestCategoriesAndSources(t *testing.T) {
	cache := []models.Article{
		art("a", "", "reuters", 1),
		art("b", "", "bbc", 1),
		art("c", "", "reuters", 1),
		art("d", "", "", 1),
	}
	st := &memStore{loaded: store.LoadResult{Articles: cache}}
	s := NewService(context.Background(), &fakeFetcher{}, st, []string{"business", "science"})

	if got := s.Sources(); !equalStrings(got, []string{"bbc", "reuters"}) {
		t.Errorf("Sources() = %v", got)
	}
	if got := s.Categories(); !equalStrings(got, []string{"business", "science"}) {
		t.Errorf("Categories() = %v", got)
	}
	if got := s.AvailableCategories(); len(got) != 11 || got[0] != "business" || got[10] != "world" {
		t.Errorf("AvailableCategories() = %v", got)
	}
}

func TestServiceWithFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	f := &fakeFetcher{results: []ingest.Result{{Articles: []models.Article{art("Persisted", "science", "nasa", 3)}}}}
	s := NewService(context.Background(), f, store.NewFileStore(path), nil)
	s.Refresh(context.Background())

	reloaded := NewService(context.Background(), &fakeFetcher{}, store.NewFileStore(path), nil)
	got := reloaded.Snapshot()
	if len(got) != 1 || !got[0].Equal(art("Persisted", "science", "nasa", 3)) {
		t.Fatalf("snapshot did not survive a restart: %+v", got)
	}
}
