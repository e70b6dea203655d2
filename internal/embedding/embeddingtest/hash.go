// Package embeddingtest provides deterministic embedders for tests.
package embeddingtest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"
)

const Dimensions = 64

// Hash embeds text as a bag of hashed, lowercased words. Texts sharing words
// score higher under cosine similarity, which is enough to exercise ranking.
type Hash struct {
	ModelName string
	// Fail makes the next calls return this error.
	Fail error

	calls atomic.Int64
}

func NewHash(model string) *Hash {
	return &Hash{ModelName: model}
}

func (h *Hash) Model() string { return h.ModelName }

// Calls reports how many embedding requests were made.
func (h *Hash) Calls() int { return int(h.calls.Load()) }

func (h *Hash) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	h.calls.Add(1)
	if h.Fail != nil {
		return nil, h.Fail
	}
	return Vector(text), nil
}

func (h *Hash) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	h.calls.Add(1)
	if h.Fail != nil {
		return nil, h.Fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t)
	}
	return out, nil
}

// Vector is the embedding Hash produces for text.
func Vector(text string) []float32 {
	v := make([]float32, Dimensions)
	// a constant component keeps the vector non-zero for text without words
	v[0] = 0.1
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		v[1+int(f.Sum32()%(Dimensions-1))]++
	}
	return v
}
