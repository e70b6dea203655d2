// Package db is the Postgres-backed index, using the pgvector extension.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"docqa/internal/config"
	"docqa/internal/models"
)

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID             int64           `bun:"id,pk,autoincrement"`
	Collection     string          `bun:"collection,notnull"`
	Content        string          `bun:"content,notnull"`
	Source         string          `bun:"source,notnull"`
	SequenceIndex  int             `bun:"sequence_index,notnull"`
	ByteOffset     int             `bun:"byte_offset,notnull"`
	EmbeddingModel string          `bun:"embedding_model,notnull"`
	Embedding      pgvector.Vector `bun:"embedding,type:vector,notnull"`
	CreatedAt      time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Embedder produces the vectors stored in and queried against the index.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.StoreConfig) *sql.DB {
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
}

// Store keeps chunks of one collection in the documents table.
type Store struct {
	db         *bun.DB
	embedder   Embedder
	collection string
}

// Open prepares the schema and checks that the collection was built with the
// embedder's model.
func Open(ctx context.Context, db *bun.DB, collection string, embedder Embedder) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, models.Wrap(models.ErrRetrieval, "open index", fmt.Errorf("failed to connect: %w", err))
	}
	if err := InitDB(ctx, db); err != nil {
		return nil, models.Wrap(models.ErrRetrieval, "open index", err)
	}

	var used []string
	err := db.NewSelect().
		Model((*Document)(nil)).
		ColumnExpr("DISTINCT d.embedding_model").
		Where("d.collection = ?", collection).
		Scan(ctx, &used)
	if err != nil {
		return nil, models.Wrap(models.ErrRetrieval, "open index", fmt.Errorf("failed to read embedding models: %w", err))
	}
	for _, m := range used {
		if m != embedder.Model() {
			return nil, models.Errorf(models.ErrConfiguration, "open index",
				"collection %q was built with embedding model %q, configured model is %q", collection, m, embedder.Model())
		}
	}

	log.Info().Str("collection", collection).Msg("Opened postgres vector index")
	return &Store{db: db, embedder: embedder, collection: collection}, nil
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	_, err := db.NewCreateIndex().
		Model((*Document)(nil)).
		Index("documents_collection_idx").
		IfNotExists().
		Column("collection").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create collection index: %w", err)
	}
	return nil
}

// DropDocuments removes the table and everything in it.
func DropDocuments(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx)
	return err
}

func (s *Store) Model() string { return s.embedder.Model() }

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*Document)(nil)).Where("d.collection = ?", s.collection).Count(ctx)
	if err != nil {
		return 0, models.Wrap(models.ErrRetrieval, "count", err)
	}
	return n, nil
}

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

	docs := make([]Document, len(chunks))
	for i, c := range chunks {
		docs[i] = Document{
			Collection:     s.collection,
			Content:        c.Content,
			Source:         c.Source,
			SequenceIndex:  c.SequenceIndex,
			ByteOffset:     c.Offset,
			EmbeddingModel: s.embedder.Model(),
			Embedding:      pgvector.NewVector(vecs[i]),
		}
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&docs).Exec(ctx)
		return err
	})
	if err != nil {
		return models.Wrap(models.ErrRetrieval, "add chunks", fmt.Errorf("failed to store documents: %w", err))
	}
	return nil
}

// Query returns up to k chunks by cosine distance, ties broken by insertion order.
func (s *Store) Query(ctx context.Context, text string, k int) ([]models.Chunk, error) {
	if k <= 0 {
		return nil, nil
	}
	n, err := s.Count(ctx)
	if err != nil || n == 0 {
		return nil, err
	}

	vec, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, models.Wrap(models.ErrEmbedding, "query", err)
	}

	var docs []Document
	err = s.db.NewSelect().
		Model(&docs).
		Column("id", "content", "source", "sequence_index", "byte_offset").
		Where("d.collection = ?", s.collection).
		OrderExpr("d.embedding <=> ?", pgvector.NewVector(vec)).
		Order("d.id ASC").
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, models.Wrap(models.ErrRetrieval, "query", fmt.Errorf("failed to search documents: %w", err))
	}

	chunks := make([]models.Chunk, len(docs))
	for i, d := range docs {
		chunks[i] = models.Chunk{
			Content:       d.Content,
			Source:        d.Source,
			SequenceIndex: d.SequenceIndex,
			Offset:        d.ByteOffset,
		}
	}
	return chunks, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
