package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/seenimoa/futurenews/pkg/models"
)

// FileStore keeps the snapshot as one JSON document on disk.
type FileStore struct {
	path string
	opts options
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string, opts ...Option) *FileStore {
	if path == "" {
		path = "data/news_cache.json"
	}
	return &FileStore{path: path, opts: buildOptions(opts)}
}

// Name returns the store description.
func (s *FileStore) Name() string { return "file:" + s.path }

// Path returns the snapshot file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the snapshot. A missing file is an empty cache with no cause.
func (s *FileStore) Load(_ context.Context) LoadResult {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.opts.log.Info("no snapshot on disk yet", zap.String("path", s.path))
		return LoadResult{}
	}
	if err != nil {
		s.opts.log.Error("reading snapshot failed", zap.String("path", s.path), zap.Error(err))
		return LoadResult{Cause: err}
	}

	articles, err := decodeSnapshot(data, s.opts)
	if err != nil {
		s.opts.log.Error("snapshot is corrupt, starting empty", zap.String("path", s.path), zap.Error(err))
		return LoadResult{Cause: err}
	}
	s.opts.log.Info("loaded snapshot", zap.String("path", s.path), zap.Int("articles", len(articles)))
	return LoadResult{Articles: articles}
}

// Save writes the snapshot to a temporary file and renames it into place,
// so a failed write leaves the previous snapshot intact.
func (s *FileStore) Save(_ context.Context, articles []models.Article) error {
	data, err := encodeSnapshot(articles)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".news_cache-*.json")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("store: replace snapshot: %w", err)
	}
	s.opts.log.Debug("saved snapshot", zap.String("path", s.path), zap.Int("articles", len(articles)))
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
