// Package rag answers questions over indexed documents.
package rag

import (
	"context"

	"docqa/internal/models"
)

const DefaultK = 4

// Index is the read side of a vector store.
type Index interface {
	Query(ctx context.Context, text string, k int) ([]models.Chunk, error)
}

// Retriever queries an index with a fixed result count.
type Retriever struct {
	index Index
	k     int
}

func NewRetriever(index Index, k int) *Retriever {
	if k <= 0 {
		k = DefaultK
	}
	return &Retriever{index: index, k: k}
}

func (r *Retriever) K() int { return r.k }

func (r *Retriever) Retrieve(ctx context.Context, query string) ([]models.Chunk, error) {
	chunks, err := r.index.Query(ctx, query, r.k)
	if err != nil {
		return nil, models.Wrap(models.ErrRetrieval, "retrieve", err)
	}
	if len(chunks) > r.k {
		chunks = chunks[:r.k]
	}
	return chunks, nil
}
