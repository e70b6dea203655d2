// Package chromemdb is the default persistent index, kept in a local directory.
package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"docqa/internal/helper"
	"docqa/internal/models"
)

const (
	metaSource   = "source"
	metaSequence = "sequence_index"
	metaOffset   = "offset"
	metaOrdinal  = "ordinal"
	metaModel    = "embedding_model"
)

// Embedder produces the vectors stored in and queried against the index.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

type Options struct {
	Path       string
	Collection string
	Compress   bool
}

// Store is an append-only chunk index persisted by chromem-go. The manifest
// next to the data pins the embedding model and the expected document count;
// each document also records its model.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	opts       Options
	manifest   *manifest

	mu sync.Mutex
}

// Open loads or creates the index at opts.Path. A model other than the one
// that built the index is a configuration error; unreadable data is a
// retrieval error.
func Open(ctx context.Context, opts Options, embedder Embedder) (*Store, error) {
	if err := helper.CreateFolder(opts.Path); err != nil {
		return nil, models.Wrap(models.ErrRetrieval, "open index", err)
	}

	m, err := readManifest(opts.Path)
	if err != nil {
		return nil, err
	}
	entry := m.Collections[opts.Collection]
	if entry.EmbeddingModel != "" && entry.EmbeddingModel != embedder.Model() {
		return nil, models.Errorf(models.ErrConfiguration, "open index",
			"collection %q was built with embedding model %q, configured model is %q",
			opts.Collection, entry.EmbeddingModel, embedder.Model())
	}

	db, err := chromem.NewPersistentDB(opts.Path, opts.Compress)
	if err != nil {
		return nil, models.Wrap(models.ErrRetrieval, "open index", fmt.Errorf("failed to load %s: %w", opts.Path, err))
	}

	s := &Store{db: db, embedder: embedder, opts: opts, manifest: m}

	c := db.GetCollection(opts.Collection, s.embeddingFunc())
	switch {
	case c != nil && c.Count() > 0:
		if err := s.reconcile(ctx, c, entry); err != nil {
			return nil, err
		}
		s.collection = c
	case entry.Documents > 0:
		return nil, models.Errorf(models.ErrRetrieval, "open index", "collection %q is recorded with %d documents but missing on disk", opts.Collection, entry.Documents)
	default:
		c, err := db.GetOrCreateCollection(opts.Collection, map[string]string{
			"hnsw:space":      "cosine",
			"embedding_model": embedder.Model(),
		}, s.embeddingFunc())
		if err != nil {
			return nil, models.Wrap(models.ErrRetrieval, "open index", fmt.Errorf("failed to create/get collection: %w", err))
		}
		s.collection = c
	}

	log.Info().Str("path", opts.Path).Str("collection", opts.Collection).Int("documents", s.collection.Count()).Msg("Opened vector index")
	return s, nil
}

// reconcile checks a non-empty collection against its manifest entry. Every
// document records the model that embedded it, so a lost manifest entry is
// rebuilt from the first document, as is a count left behind by an
// interrupted Add. Fewer documents than recorded means data was lost.
func (s *Store) reconcile(ctx context.Context, c *chromem.Collection, entry collectionEntry) error {
	name := s.opts.Collection
	if c.Count() < entry.Documents {
		return models.Errorf(models.ErrRetrieval, "open index", "collection %q holds %d documents, manifest records %d", name, c.Count(), entry.Documents)
	}

	first, err := c.GetByID(ctx, documentID(0))
	if err != nil {
		return models.Wrap(models.ErrRetrieval, "open index", fmt.Errorf("failed to read first document of %q: %w", name, err))
	}
	model := first.Metadata[metaModel]
	if model != "" && model != s.embedder.Model() {
		return models.Errorf(models.ErrConfiguration, "open index",
			"collection %q was built with embedding model %q, configured model is %q", name, model, s.embedder.Model())
	}
	if c.Count() == entry.Documents {
		return nil
	}

	log.Warn().Str("collection", name).Int("documents", c.Count()).Int("recorded", entry.Documents).Msg("Rebuilding manifest entry")
	s.manifest.Collections[name] = collectionEntry{
		EmbeddingModel: s.embedder.Model(),
		Dimensions:     len(first.Embedding),
		Documents:      c.Count(),
	}
	return s.manifest.write(s.opts.Path)
}

// documentID is the id of the document added at ordinal.
func documentID(ordinal int) string {
	return strconv.Itoa(ordinal)
}

func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func (s *Store) Model() string { return s.embedder.Model() }

func (s *Store) Count(context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Add embeds chunks and appends them to the index.
func (s *Store) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		if c.Source == "" {
			return models.Errorf(models.ErrIngestion, "add chunks", "chunk %d has no source", i)
		}
		texts[i] = c.Content
	}

	vecs, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return models.Wrap(models.ErrEmbedding, "add chunks", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.manifest.Collections[s.opts.Collection]
	if entry.Dimensions != 0 && len(vecs[0]) != entry.Dimensions {
		return models.Errorf(models.ErrEmbedding, "add chunks", "vector dimension %d does not match index dimension %d", len(vecs[0]), entry.Dimensions)
	}

	base := s.collection.Count()
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:      documentID(base + i),
			Content: c.Content,
			Metadata: map[string]string{
				metaSource:   c.Source,
				metaSequence: strconv.Itoa(c.SequenceIndex),
				metaOffset:   strconv.Itoa(c.Offset),
				metaOrdinal:  strconv.Itoa(base + i),
				metaModel:    s.embedder.Model(),
			},
			Embedding: vecs[i],
		}
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return models.Wrap(models.ErrRetrieval, "add chunks", fmt.Errorf("failed to add documents: %w", err))
	}

	entry.EmbeddingModel = s.embedder.Model()
	entry.Dimensions = len(vecs[0])
	entry.Documents = s.collection.Count()
	s.manifest.Collections[s.opts.Collection] = entry
	if err := s.manifest.write(s.opts.Path); err != nil {
		return err
	}

	log.Debug().Str("source", chunks[0].Source).Int("chunks", len(chunks)).Int("total", entry.Documents).Msg("Indexed chunks")
	return nil
}

// Query returns up to k chunks ranked by cosine similarity to text. Equal
// scores keep insertion order. An empty index yields no chunks.
func (s *Store) Query(ctx context.Context, text string, k int) ([]models.Chunk, error) {
	n := s.collection.Count()
	if k <= 0 || n == 0 {
		return nil, nil
	}

	vec, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, models.Wrap(models.ErrEmbedding, "query", err)
	}

	// score every document so ties can be ordered deterministically
	results, err := s.collection.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, models.Wrap(models.ErrRetrieval, "query", fmt.Errorf("failed to query by similarity: %w", err))
	}

	ordinals := make(map[string]int, len(results))
	for _, r := range results {
		o, err := strconv.Atoi(r.Metadata[metaOrdinal])
		if err != nil {
			return nil, models.Errorf(models.ErrRetrieval, "query", "document %s has invalid ordinal %q", r.ID, r.Metadata[metaOrdinal])
		}
		ordinals[r.ID] = o
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return ordinals[results[i].ID] < ordinals[results[j].ID]
	})
	if len(results) > k {
		results = results[:k]
	}

	chunks := make([]models.Chunk, 0, len(results))
	for _, r := range results {
		source := r.Metadata[metaSource]
		if source == "" {
			return nil, models.Errorf(models.ErrRetrieval, "query", "document %s has no source", r.ID)
		}
		seq, _ := strconv.Atoi(r.Metadata[metaSequence])
		off, _ := strconv.Atoi(r.Metadata[metaOffset])
		chunks = append(chunks, models.Chunk{
			Content:       r.Content,
			Source:        source,
			SequenceIndex: seq,
			Offset:        off,
		})
	}
	return chunks, nil
}

func (s *Store) Close() error { return nil }
