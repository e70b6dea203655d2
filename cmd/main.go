package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"docqa/internal/config"
)

const configFilePath = "./configs/config.yaml"

// fileList collects a repeatable -file flag.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	var files fileList
	flag.Var(&files, "file", "Path to a document to ingest (repeatable)")
	url := flag.String("url", "", "Web page to ingest")
	query := flag.String("query", "", "Question to be answered")
	chat := flag.Bool("chat", false, "Start an interactive chat")
	serve := flag.Bool("serve", false, "Serve the HTTP API")
	noRAG := flag.Bool("no-rag", false, "Answer from the model's general knowledge only")
	model := flag.String("model", "", "Chat model to use, must be one of chat_llm.models")
	dryRun := flag.Bool("dry-run", false, "Print the chunks of -file documents, do not save to the index")
	exportFile := flag.String("export", "", "Export the index to this file")
	importFile := flag.String("import", "", "Replace the index with this exported file")
	configPath := flag.String("config", configFilePath, "Path to the config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setupLogger(cfg.Log)
	log.Debug().Stringer("chat_llm", cfg.ChatLLM).Stringer("embed_llm", cfg.EmbedLLM).Msg("Loaded config")

	if *noRAG {
		cfg.RAG.RAGEnabled = false
	}
	if *model != "" {
		cfg.ChatLLM.Model = *model
	}

	if *dryRun {
		if len(files) == 0 {
			log.Fatal().Msg("-dry-run needs at least one -file")
		}
		if err := previewFiles(cfg, files); err != nil {
			log.Fatal().Err(err).Msg("Error previewing documents")
		}
		return
	}

	if len(files) == 0 && *url == "" && *query == "" && !*chat && !*serve && *exportFile == "" && *importFile == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *query != "" && (*chat || *serve) {
		log.Fatal().Msg("Please provide either -query, -chat or -serve, not several")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening index")
	}
	defer a.close()

	if err := a.run(ctx, runOptions{
		files:      files,
		url:        *url,
		query:      *query,
		chat:       *chat,
		serve:      *serve,
		exportFile: *exportFile,
		importFile: *importFile,
	}); err != nil {
		a.close()
		log.Fatal().Err(err).Msg("Error")
	}
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}
