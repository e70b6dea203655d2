// Package ingest runs documents through extraction, chunking and indexing.
package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"docqa/internal/chunker"
	"docqa/internal/metrics"
	"docqa/internal/models"
	"docqa/internal/parser"
)

// Store is the write side of a vector index.
type Store interface {
	Add(ctx context.Context, chunks []models.Chunk) error
}

// Fetcher returns the readable text of a web page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Result is the outcome for one item of a batch.
type Result struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
	Err    error  `json:"-"`
}

type Service struct {
	store    Store
	splitter *chunker.Splitter
	fetcher  Fetcher
}

func NewService(store Store, splitter *chunker.Splitter, fetcher Fetcher) *Service {
	return &Service{store: store, splitter: splitter, fetcher: fetcher}
}

// IngestText splits text and indexes the chunks under source.
func (s *Service) IngestText(ctx context.Context, text, source string) (int, error) {
	return s.ingest(ctx, text, source, "text")
}

// IngestFile indexes the file at path under its base name.
func (s *Service) IngestFile(ctx context.Context, path string) (int, error) {
	return s.IngestFileAs(ctx, path, filepath.Base(path))
}

// IngestFileAs indexes the file at path under source, for uploads stored in temporary files.
func (s *Service) IngestFileAs(ctx context.Context, path, source string) (int, error) {
	text, err := parser.ExtractFile(path)
	if err != nil {
		var e *models.Error
		if errors.As(err, &e) {
			e.Source = source
		}
		metrics.RecordIngestError(err)
		return 0, err
	}
	return s.ingest(ctx, text, source, sourceType(source))
}

// IngestFiles indexes every path. An ingestion error only fails its own
// item; embedding and index errors stop the batch.
func (s *Service) IngestFiles(ctx context.Context, paths []string) ([]Result, error) {
	results := make([]Result, 0, len(paths))
	for _, path := range paths {
		n, err := s.IngestFile(ctx, path)
		results = append(results, Result{Source: filepath.Base(path), Chunks: n, Err: err})
		if err != nil && !errors.Is(err, models.ErrIngestion) {
			return results, err
		}
	}
	return results, nil
}

func (s *Service) IngestURL(ctx context.Context, url string) (int, error) {
	text, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		metrics.RecordIngestError(err)
		return 0, err
	}
	return s.ingest(ctx, text, url, "url")
}

// Preview returns the chunks a file would produce without indexing them.
func (s *Service) Preview(path string) ([]models.Chunk, error) {
	text, err := parser.ExtractFile(path)
	if err != nil {
		return nil, err
	}
	return s.splitter.Split(text, filepath.Base(path)), nil
}

func (s *Service) ingest(ctx context.Context, text, source, kind string) (int, error) {
	chunks := s.splitter.Split(text, source)
	if len(chunks) == 0 {
		err := models.Errorf(models.ErrIngestion, "split", "no content to index in %s", source)
		metrics.RecordIngestError(err)
		return 0, err
	}

	if err := s.store.Add(ctx, chunks); err != nil {
		metrics.RecordIngestError(err)
		return 0, err
	}

	metrics.RecordIngest(kind, len(chunks))
	log.Info().Str("source", source).Int("chunks", len(chunks)).Msg("Ingested document")
	return len(chunks), nil
}

func sourceType(source string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(source)), ".")
	if ext == "" {
		return "text"
	}
	return ext
}
