package article

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/SergeyParamoshkin/blog/internal/model"
	"github.com/google/renameio/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// FirstID is assigned when the map is empty.
const FirstID int64 = 1000

var (
	ErrNotFound     = errors.New("article not found")
	ErrUnauthorized = errors.New("edit password mismatch")
	ErrMissingID    = errors.New("missing article id")
)

// ReadError is returned when the article map file is missing, unreadable
// or not valid JSON.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read article map %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError is returned when persisting the article map fails.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write article map %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Store is what the handlers need from the article map persistence.
type Store interface {
	FetchArticleMap(ctx context.Context) (model.ArticleMap, error)
	Mutate(ctx context.Context, fn func(model.ArticleMap) error) error
}

// FileStore keeps the article map in a single JSON file.
// Mutations are serialized through a single writer slot.
type FileStore struct {
	path   string
	writer *semaphore.Weighted
	logger *zap.SugaredLogger
}

func NewFileStore(path string, logger *zap.SugaredLogger) *FileStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &FileStore{
		path:   path,
		writer: semaphore.NewWeighted(1),
		logger: logger,
	}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) FetchArticleMap(ctx context.Context) (model.ArticleMap, error) {
	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	return doc.articles, nil
}

func (s *FileStore) load(ctx context.Context) (*articleMapDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ReadError{Path: s.path, Err: err}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Errorw("article map read failed", "path", s.path, "error", err)

		return nil, &ReadError{Path: s.path, Err: err}
	}

	doc, err := parseArticleMapDocument(data)
	if err != nil {
		s.logger.Errorw("article map is not valid json", "path", s.path, "error", err)

		return nil, &ReadError{Path: s.path, Err: err}
	}

	return doc, nil
}

// UpdateArticleMap overwrites the whole file with m, records ordered by id.
// The write is atomic: readers never see a partial document.
func (s *FileStore) UpdateArticleMap(ctx context.Context, m model.ArticleMap) error {
	doc := &articleMapDocument{raw: newRawObject(), articles: model.ArticleMap{}}
	if err := doc.apply(m); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}

	return s.save(ctx, doc)
}

func (s *FileStore) save(ctx context.Context, doc *articleMapDocument) error {
	if err := ctx.Err(); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}

	data, err := doc.raw.encode()
	if err != nil {
		return &WriteError{Path: s.path, Err: err}
	}

	err = renameio.WriteFile(s.path, data, 0o644, renameio.WithExistingPermissions())
	if err != nil {
		s.logger.Errorw("article map write failed", "path", s.path, "error", err)

		return &WriteError{Path: s.path, Err: err}
	}

	return nil
}

// Mutate runs a full read-modify-write cycle while holding the writer slot.
// The map is persisted only when fn returns nil; fn's error is returned as is.
// Records fn leaves unchanged are written back byte for byte.
func (s *FileStore) Mutate(ctx context.Context, fn func(model.ArticleMap) error) error {
	if err := s.writer.Acquire(ctx, 1); err != nil {
		return &ReadError{Path: s.path, Err: err}
	}
	defer s.writer.Release(1)

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}

	m := make(model.ArticleMap, len(doc.articles))
	for k, a := range doc.articles {
		m[k] = a
	}

	if err := fn(m); err != nil {
		return err
	}

	if err := doc.apply(m); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}

	return s.save(ctx, doc)
}

// NextID is one more than the largest id present, or FirstID for an empty map.
func NextID(m model.ArticleMap) int64 {
	if len(m) == 0 {
		return FirstID
	}

	var max int64
	for _, a := range m {
		if a.ID > max {
			max = a.ID
		}
	}

	return max + 1
}
