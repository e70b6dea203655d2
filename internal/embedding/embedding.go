package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"docqa/internal/models"
)

const (
	defaultRetries   = 3
	defaultBackoff   = 500 * time.Millisecond
	defaultBatchSize = 32
)

// Service embeds text with a single model. Every vector a store holds must
// come from the same Service configuration, so stores record Model().
type Service struct {
	embedder embeddings.Embedder
	model    string
	retries  int
	backoff  time.Duration
}

type Option func(*Service)

// WithRetries sets how many attempts are made before an embedding call fails.
func WithRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.retries = n
		}
	}
}

func WithBackoff(d time.Duration) Option {
	return func(s *Service) { s.backoff = d }
}

func New(embedder embeddings.Embedder, model string, opts ...Option) *Service {
	s := &Service{
		embedder: embedder,
		model:    model,
		retries:  defaultRetries,
		backoff:  defaultBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromClient wraps an LLM client that can create embeddings.
func NewFromClient(client embeddings.EmbedderClient, model string, opts ...Option) (*Service, error) {
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(defaultBatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, models.Wrap(models.ErrConfiguration, "new embedder", err)
	}
	return New(embedder, model, opts...), nil
}

func (s *Service) Model() string {
	return s.model
}

func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, models.Errorf(models.ErrEmbedding, "embed query", "empty input")
	}

	var vec []float32
	err := s.retry(ctx, "embed query", func() error {
		var err error
		vec, err = s.embedder.EmbedQuery(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, models.Errorf(models.ErrEmbedding, "embed query", "model %s returned an empty vector", s.model)
	}
	return vec, nil
}

func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, models.Errorf(models.ErrEmbedding, "embed documents", "document %d is empty", i)
		}
	}

	var vecs [][]float32
	err := s.retry(ctx, "embed documents", func() error {
		var err error
		vecs, err = s.embedder.EmbedDocuments(ctx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(vecs) != len(texts) {
		return nil, models.Errorf(models.ErrEmbedding, "embed documents", "got %d vectors for %d documents", len(vecs), len(texts))
	}
	dim := len(vecs[0])
	for i, v := range vecs {
		if len(v) == 0 || len(v) != dim {
			return nil, models.Errorf(models.ErrEmbedding, "embed documents", "vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return vecs, nil
}

// retry runs fn until it succeeds, the attempts run out or ctx is done.
func (s *Service) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || attempt == s.retries {
			break
		}

		wait := time.Duration(attempt) * s.backoff
		log.Warn().Err(err).Str("model", s.model).Int("attempt", attempt).Dur("wait", wait).Msgf("Retrying %s", op)
		select {
		case <-ctx.Done():
			return models.Wrap(models.ErrEmbedding, op, ctx.Err())
		case <-time.After(wait):
		}
	}
	return models.Wrap(models.ErrEmbedding, op, fmt.Errorf("model %s: %w", s.model, err))
}
