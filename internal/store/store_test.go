package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seenimoa/futurenews/internal/config"
	"github.com/seenimoa/futurenews/pkg/models"
)

var fixedNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func clock() Option { return WithClock(func() time.Time { return fixedNow }) }

func sampleArticles() []models.Article {
	ist := time.FixedZone("IST", 5*3600+1800)
	return []models.Article{
		{
			ID:          "newsdata-1",
			Title:       "Rates hold steady",
			Description: "The central bank paused.",
			Content:     "Long body",
			URL:         "https://a.test/1",
			ImageURL:    "https://a.test/1.png",
			Source:      "reuters",
			Category:    "business",
			Author:      "Jane Doe",
			PublishedAt: time.Date(2025, 5, 30, 14, 15, 16, 123456789, time.UTC),
		},
		{
			ID:          "feed-2",
			Title:       "Monsoon arrives early",
			URL:         "https://b.test/2",
			Source:      "the-hindu",
			Author:      "Unknown",
			PublishedAt: time.Date(2025, 5, 29, 8, 0, 0, 0, ist),
		},
	}
}

func assertSameArticles(t *testing.T, got, want []models.Article) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d articles, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("article %d:\n got  %+v\n want %+v", i, got[i], want[i])
		}
	}
}

// ════════════════════════════════════════════════════════════════════
// FileStore
// ════════════════════════════════════════════════════════════════════

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "cache.json")
	s := NewFileStore(path, clock())
	ctx := context.Background()

	want := sampleArticles()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	res := s.Load(ctx)
	if res.Cause != nil {
		t.Fatalf("unexpected cause: %v", res.Cause)
	}
	assertSameArticles(t, res.Articles, want)
}

func TestFileStoreSaveReplacesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	s := NewFileStore(path, clock())
	ctx := context.Background()

	if err := s.Save(ctx, sampleArticles()); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, nil); err != nil {
		t.Fatal(err)
	}
	res := s.Load(ctx)
	if res.Cause != nil || len(res.Articles) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", res)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	res := s.Load(context.Background())
	if res.Cause != nil || len(res.Articles) != 0 {
		t.Fatalf("missing file should be an empty cache without cause, got %+v", res)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated", `[{"id":"1","title":"x"`},
		{"not an array", `{"id":"1"}`},
		{"garbage", `not json at all`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cache.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			res := NewFileStore(path).Load(context.Background())
			if res.Cause == nil {
				t.Fatal("expected a cause for a corrupt snapshot")
			}
			if len(res.Articles) != 0 {
				t.Fatalf("corrupt snapshot should load empty, got %d", len(res.Articles))
			}
		})
	}
}

func TestFileStoreBadDateBecomesNow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	content := `[
		{"id":"1","title":"Good","url":"u","source":"s","published_at":"2025-01-02T03:04:05Z"},
		{"id":"2","title":"Bad","url":"u","source":"s","published_at":"last tuesday"},
		{"id":"3","title":"Legacy","url":"u","source":"s","published_at":"2025-01-02 03:04:05.123456"},
		{"id":4,"title":"Wrong type"}
	]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	res := NewFileStore(path, clock()).Load(context.Background())
	if res.Cause != nil {
		t.Fatalf("unexpected cause: %v", res.Cause)
	}
	if len(res.Articles) != 3 {
		t.Fatalf("expected 3 articles, got %d", len(res.Articles))
	}
	if !res.Articles[0].PublishedAt.Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("good date changed: %v", res.Articles[0].PublishedAt)
	}
	if !res.Articles[1].PublishedAt.Equal(fixedNow) {
		t.Errorf("bad date should become now, got %v", res.Articles[1].PublishedAt)
	}
	if !res.Articles[2].PublishedAt.Equal(time.Date(2025, 1, 2, 3, 4, 5, 123456000, time.UTC)) {
		t.Errorf("legacy date misread: %v", res.Articles[2].PublishedAt)
	}
}

func TestFileStoreSaveError(t *testing.T) {
	dir := t.TempDir()
	// The snapshot path is an existing directory, so the rename must fail.
	path := filepath.Join(dir, "cache.json")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(path, "keep"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := NewFileStore(path).Save(context.Background(), sampleArticles()); err == nil {
		t.Fatal("expected save error")
	}
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(context.Background(), config.StorageConfig{Backend: "file", Path: filepath.Join(t.TempDir(), "c.json")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Fatalf("expected FileStore, got %T", s)
	}
	if _, err := New(context.Background(), config.StorageConfig{Backend: "s3"}, nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

// ════════════════════════════════════════════════════════════════════
// RedisStore (requires FUTURENEWS_TEST_REDIS_ADDR)
// ════════════════════════════════════════════════════════════════════

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("FUTURENEWS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FUTURENEWS_TEST_REDIS_ADDR not set")
	}
	client, err := NewRedisClient(context.Background(), config.StorageConfig{RedisAddr: addr})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return client
}

func TestRedisStoreRoundTrip(t *testing.T) {
	client := redisClient(t)
	key := "futurenews:test:" + t.Name()
	s := NewRedisStore(client, key, clock())
	defer s.Close()
	ctx := context.Background()
	defer client.Del(ctx, key)

	if res := s.Load(ctx); res.Cause != nil || len(res.Articles) != 0 {
		t.Fatalf("missing key should load empty, got %+v", res)
	}

	want := sampleArticles()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	res := s.Load(ctx)
	if res.Cause != nil {
		t.Fatalf("unexpected cause: %v", res.Cause)
	}
	assertSameArticles(t, res.Articles, want)
}

func TestRedisStoreCorruptValue(t *testing.T) {
	client := redisClient(t)
	key := "futurenews:test:" + t.Name()
	ctx := context.Background()
	defer client.Del(ctx, key)

	if err := client.Set(ctx, key, "{broken", 0).Err(); err != nil {
		t.Fatal(err)
	}
	res := NewRedisStore(client, key).Load(ctx)
	if res.Cause == nil || len(res.Articles) != 0 {
		t.Fatalf("expected empty load with cause, got %+v", res)
	}
}
