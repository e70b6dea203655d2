package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/embedding/embeddingtest"
	"docqa/internal/models"
)

// flaky fails a fixed number of times before delegating.
type flaky struct {
	*embeddingtest.Hash
	failures int
}

func (f *flaky) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("503 service unavailable")
	}
	return f.Hash.EmbedQuery(ctx, text)
}

// short returns one vector fewer than requested.
type short struct{ *embeddingtest.Hash }

func (s short) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := s.Hash.EmbedDocuments(ctx, texts)
	return vecs[:len(vecs)-1], err
}

func TestEmbedQueryRetriesTransientFailures(t *testing.T) {
	e := &flaky{Hash: embeddingtest.NewHash("hash-v1"), failures: 2}
	svc := New(e, "hash-v1", WithBackoff(time.Millisecond))

	vec, err := svc.EmbedQuery(context.Background(), "market share")
	require.NoError(t, err)
	assert.Len(t, vec, embeddingtest.Dimensions)
	assert.Equal(t, "hash-v1", svc.Model())
}

func TestEmbedQueryGivesUpAfterRetries(t *testing.T) {
	e := &flaky{Hash: embeddingtest.NewHash("hash-v1"), failures: 5}
	svc := New(e, "hash-v1", WithRetries(3), WithBackoff(time.Millisecond))

	_, err := svc.EmbedQuery(context.Background(), "market share")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEmbedding)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, 2, e.failures)
}

func TestEmbedRejectsMalformedInput(t *testing.T) {
	svc := New(embeddingtest.NewHash("hash-v1"), "hash-v1")

	_, err := svc.EmbedQuery(context.Background(), "   ")
	assert.ErrorIs(t, err, models.ErrEmbedding)

	_, err = svc.EmbedDocuments(context.Background(), []string{"ok", ""})
	assert.ErrorIs(t, err, models.ErrEmbedding)
}

func TestEmbedDocumentsValidatesResponse(t *testing.T) {
	svc := New(short{embeddingtest.NewHash("hash-v1")}, "hash-v1", WithRetries(1))

	_, err := svc.EmbedDocuments(context.Background(), []string{"one", "two"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEmbedding)
}

func TestEmbedStopsOnCancelledContext(t *testing.T) {
	e := embeddingtest.NewHash("hash-v1")
	e.Fail = context.Canceled
	svc := New(e, "hash-v1", WithRetries(5), WithBackoff(time.Hour))

	_, err := svc.EmbedDocuments(context.Background(), []string{"one"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEmbedding)
	assert.Equal(t, 1, e.Calls())
}
