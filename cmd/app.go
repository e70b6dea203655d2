package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"docqa/internal/chromemdb"
	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/db"
	"docqa/internal/embedding"
	"docqa/internal/helper"
	"docqa/internal/ingest"
	"docqa/internal/llmservice"
	"docqa/internal/models"
	"docqa/internal/parser"
	"docqa/internal/rag"
	"docqa/internal/server"
)

// indexStore is what both vector index backends provide.
type indexStore interface {
	Add(ctx context.Context, chunks []models.Chunk) error
	Query(ctx context.Context, text string, k int) ([]models.Chunk, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

type app struct {
	cfg    *config.Config
	store  indexStore
	ingest *ingest.Service
	closed bool
}

type runOptions struct {
	files      []string
	url        string
	query      string
	chat       bool
	serve      bool
	exportFile string
	importFile string
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	embedClient, err := llmservice.NewClient(ctx, &cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	embedder, err := embedding.NewFromClient(embedClient, cfg.EmbedLLM.Model)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, embedder)
	if err != nil {
		return nil, err
	}

	splitter, err := chunker.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		store:  store,
		ingest: ingest.NewService(store, splitter, parser.NewWebFetcher(cfg.Fetch)),
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config, embedder *embedding.Service) (indexStore, error) {
	switch cfg.Store.Type {
	case config.StorePostgres:
		bunDB := db.NewDB(db.ConnectDB(&cfg.Store), cfg.Store.Debug)
		store, err := db.Open(ctx, bunDB, cfg.Store.Collection, embedder)
		if err != nil {
			bunDB.Close()
			return nil, err
		}
		return store, nil
	default:
		store, err := chromemdb.Open(ctx, chromemdb.Options{
			Path:       cfg.Store.Path,
			Collection: cfg.Store.Collection,
			Compress:   cfg.Store.Compress,
		}, embedder)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func (a *app) close() {
	if a.closed {
		return
	}
	a.closed = true
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing index")
	}
}

func (a *app) run(ctx context.Context, opts runOptions) error {
	if opts.importFile != "" {
		s, err := a.chromemIndex("import")
		if err != nil {
			return err
		}
		if err := s.Import(opts.importFile, a.cfg.RAG.EncryptionKey); err != nil {
			return err
		}
	}

	ingested, err := a.ingestAll(ctx, opts.files, opts.url)
	if err != nil {
		return err
	}

	if opts.exportFile != "" {
		s, err := a.chromemIndex("export")
		if err != nil {
			return err
		}
		if err := s.Export(opts.exportFile, a.cfg.RAG.EncryptionKey); err != nil {
			return err
		}
	}

	if opts.query == "" && !opts.chat && !opts.serve {
		return nil
	}

	pipeline, err := a.pipeline(ctx)
	if err != nil {
		return err
	}

	switch {
	case opts.serve:
		srv := server.New(pipeline, a.ingest, rag.NewSessionManager(), server.Options{
			DefaultModel: a.cfg.ChatLLM.Model,
			Models:       a.cfg.ChatLLM.Models,
			RAGEnabled:   a.cfg.RAG.RAGEnabled,
		})
		return srv.Run(ctx, a.cfg.Server.Addr)
	case opts.chat:
		sess, err := a.newSession()
		if err != nil {
			return err
		}
		return a.chat(ctx, pipeline, sess, ingested > 0)
	default:
		sess, err := a.newSession()
		if err != nil {
			return err
		}
		answer, err := pipeline.Ask(ctx, sess, opts.query)
		if err != nil {
			return err
		}
		printAnswer(answer)
		return nil
	}
}

// chromemIndex returns the store as a chromem index. Export and import are
// only available for that backend.
func (a *app) chromemIndex(op string) (*chromemdb.Store, error) {
	s, ok := a.store.(*chromemdb.Store)
	if !ok {
		return nil, models.Errorf(models.ErrConfiguration, op, "%s needs store.type %q", op, config.StoreChromem)
	}
	return s, nil
}

// ingestAll indexes files and url. A document that cannot be read is logged
// and skipped.
func (a *app) ingestAll(ctx context.Context, files []string, url string) (int, error) {
	total := 0
	if len(files) > 0 {
		results, err := a.ingest.IngestFiles(ctx, files)
		for _, r := range results {
			if r.Err != nil {
				log.Error().Err(r.Err).Str("source", r.Source).Msg("Skipped document")
				continue
			}
			total += r.Chunks
		}
		if err != nil {
			return total, err
		}
	}
	if url != "" {
		n, err := a.ingest.IngestURL(ctx, url)
		if err != nil {
			if !errors.Is(err, models.ErrIngestion) {
				return total, err
			}
			log.Error().Err(err).Str("source", url).Msg("Skipped web page")
		}
		total += n
	}
	if total > 0 {
		log.Info().Int("chunks", total).Msg("Ingestion finished")
	}
	return total, nil
}

func (a *app) pipeline(ctx context.Context) (*rag.Pipeline, error) {
	chatClient, err := llmservice.NewClient(ctx, &a.cfg.ChatLLM)
	if err != nil {
		return nil, err
	}
	return newPipeline(a.cfg, a.store, chatClient), nil
}

// newPipeline answers from store with the chat model llm.
func newPipeline(cfg *config.Config, store indexStore, llm llmservice.Generator) *rag.Pipeline {
	opts := rag.PipelineOptions{
		Retriever: rag.NewRetriever(store, cfg.RAG.RetrievalK),
		IndexSize: store.Count,
		Composer: rag.NewComposer(llm, rag.ComposerOptions{
			ContextTokenBudget: cfg.RAG.ContextTokenBudget,
			HistoryTokenBudget: cfg.RAG.HistoryTokenBudget,
			Counter:            rag.NewTokenCounter(cfg.ChatLLM.Model),
		}),
		Extractive: cfg.RAG.AnswerStyle == config.StyleExtractive,
		OnStage: func(ev rag.StageEvent) {
			log.Debug().
				Str("session", ev.SessionID).
				Stringer("stage", ev.Stage).
				Stringer("previous", ev.Previous).
				Dur("elapsed", ev.Elapsed).
				Msg("Stage")
		},
	}
	if cfg.RAG.RewriteQuery {
		opts.Rewriter = rag.NewQueryRewriter(llm)
	}
	return rag.NewPipeline(opts)
}

func (a *app) newSession() (*rag.Session, error) {
	return rag.NewSession(a.cfg.ChatLLM.Model, a.cfg.RAG.RAGEnabled, a.cfg.ChatLLM.Models)
}

// previewFiles prints the chunks each file would produce.
func previewFiles(cfg *config.Config, files []string) error {
	splitter, err := chunker.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return err
	}
	svc := ingest.NewService(nil, splitter, nil)
	for _, f := range files {
		chunks, err := svc.Preview(f)
		if err != nil {
			log.Error().Err(err).Str("file", f).Msg("Error parsing document")
			continue
		}
		log.Info().Str("file", f).Int("chunks", len(chunks)).Msg("Parsed document")
		helper.PrettyPrint(previewChunks(chunks))
	}
	return nil
}

const previewRunes = 120

type chunkPreview struct {
	Source   string `json:"source"`
	Sequence int    `json:"sequence_index"`
	Offset   int    `json:"offset"`
	Length   int    `json:"length"`
	Content  string `json:"content"`
}

// previewChunks shortens chunk contents for dry-run output.
func previewChunks(chunks []models.Chunk) []chunkPreview {
	out := make([]chunkPreview, len(chunks))
	for i, c := range chunks {
		out[i] = chunkPreview{
			Source:   c.Source,
			Sequence: c.SequenceIndex,
			Offset:   c.Offset,
			Length:   len(c.Content),
			Content:  helper.Truncate(c.Content, previewRunes),
		}
	}
	return out
}

func printAnswer(answer *rag.Answer) {
	fmt.Printf("%s\n", answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Printf("\nSources: %s\n", strings.Join(answer.Sources, ", "))
	}
	fmt.Println()
}
