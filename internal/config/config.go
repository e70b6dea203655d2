package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"docqa/internal/models"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGoogle = "googleai"

	StoreChromem  = "chromem"
	StorePostgres = "postgres"

	StyleGenerative = "generative"
	StyleExtractive = "extractive"

	placeholderKey = "YOUR_GOOGLE_API_KEY_HERE"
)

type Config struct {
	RAG      RAGConfig    `yaml:"rag"`
	EmbedLLM LLMConfig    `yaml:"embed_llm"`
	ChatLLM  LLMConfig    `yaml:"chat_llm"`
	Store    StoreConfig  `yaml:"store"`
	Fetch    FetchConfig  `yaml:"fetch"`
	Server   ServerConfig `yaml:"server"`
	Log      LogConfig    `yaml:"log"`
}

type RAGConfig struct {
	ChunkSize          int    `yaml:"chunk_size"`
	ChunkOverlap       int    `yaml:"chunk_overlap"`
	RetrievalK         int    `yaml:"retrieval_k"`
	RAGEnabled         bool   `yaml:"rag_enabled"`
	AnswerStyle        string `yaml:"answer_style"`
	RewriteQuery       bool   `yaml:"rewrite_query"`
	ContextTokenBudget int    `yaml:"context_token_budget"`
	HistoryTokenBudget int    `yaml:"history_token_budget"`
	// EncryptionKey is used for index export/import. Empty means plain files.
	EncryptionKey string `yaml:"encryption_key"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
	// Models lists the selectable chat models. Only used for chat_llm.
	Models []string `yaml:"models"`
}

type StoreConfig struct {
	Type       string `yaml:"type"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	Compress   bool   `yaml:"compress"`
	DSN        string `yaml:"dsn"`
	Debug      bool   `yaml:"debug"`
}

type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		RAG: RAGConfig{
			ChunkSize:          1000,
			ChunkOverlap:       200,
			RetrievalK:         4,
			RAGEnabled:         true,
			AnswerStyle:        StyleGenerative,
			RewriteQuery:       true,
			ContextTokenBudget: 3000,
			HistoryTokenBudget: 2000,
		},
		EmbedLLM: LLMConfig{
			Provider: ProviderOllama,
			BaseURL:  "http://localhost:11434",
			Model:    "all-minilm",
		},
		ChatLLM: LLMConfig{
			Provider: ProviderGoogle,
			Model:    "gemini-2.0-flash",
			Models:   []string{"gemini-2.0-flash", "gemini-pro", "gemini-1.5-flash"},
		},
		Store: StoreConfig{
			Type:       StoreChromem,
			Path:       "./chroma_db",
			Collection: "documents",
		},
		Fetch: FetchConfig{
			Timeout:   10 * time.Second,
			MaxBytes:  5 << 20,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		},
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// LoadConfig reads the yaml file at path on top of the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, models.Wrap(models.ErrConfiguration, "load .env", err)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, models.Wrap(models.ErrConfiguration, "read config", err)
	default:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, models.Wrap(models.ErrConfiguration, "parse config", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	for _, l := range []*LLMConfig{&c.EmbedLLM, &c.ChatLLM} {
		if l.Key != "" {
			continue
		}
		switch l.Provider {
		case ProviderOpenAI:
			l.Key = os.Getenv("OPENAI_API_KEY")
		case ProviderGoogle:
			l.Key = os.Getenv("GOOGLE_API_KEY")
		}
	}
	if dsn := os.Getenv("DOCQA_DSN"); dsn != "" && c.Store.DSN == "" {
		c.Store.DSN = dsn
	}
}

// Validate reports the first invalid setting as a configuration error.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return models.Errorf(models.ErrConfiguration, "validate config", format, args...)
	}

	r := c.RAG
	if r.ChunkSize <= 0 {
		return invalid("chunk_size must be positive, got %d", r.ChunkSize)
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return invalid("chunk_overlap must be in [0, chunk_size), got %d with chunk_size %d", r.ChunkOverlap, r.ChunkSize)
	}
	if r.RetrievalK <= 0 {
		return invalid("retrieval_k must be positive, got %d", r.RetrievalK)
	}
	if r.AnswerStyle != StyleGenerative && r.AnswerStyle != StyleExtractive {
		return invalid("unknown answer_style %q", r.AnswerStyle)
	}
	if n := len(r.EncryptionKey); n != 0 && n != 32 {
		return invalid("encryption_key must be 32 bytes, got %d", n)
	}

	if err := c.EmbedLLM.validate("embed_llm"); err != nil {
		return err
	}
	if err := c.ChatLLM.validate("chat_llm"); err != nil {
		return err
	}
	if len(c.ChatLLM.Models) > 0 && !slices.Contains(c.ChatLLM.Models, c.ChatLLM.Model) {
		return invalid("chat_llm.model %q is not in chat_llm.models", c.ChatLLM.Model)
	}

	switch c.Store.Type {
	case StoreChromem:
		if c.Store.Path == "" {
			return invalid("store.path is required for %s", StoreChromem)
		}
	case StorePostgres:
		if c.Store.DSN == "" {
			return invalid("store.dsn is required for %s", StorePostgres)
		}
	default:
		return invalid("unknown store type %q", c.Store.Type)
	}
	if c.Store.Collection == "" {
		return invalid("store.collection is required")
	}

	if c.Fetch.Timeout <= 0 {
		return invalid("fetch.timeout must be positive")
	}
	return nil
}

func (l LLMConfig) validate(section string) error {
	if l.Model == "" {
		return models.Errorf(models.ErrConfiguration, "validate config", "%s.model is required", section)
	}
	switch l.Provider {
	case ProviderOllama:
		return nil
	case ProviderOpenAI, ProviderGoogle:
		if l.Key == "" || l.Key == placeholderKey {
			return models.Errorf(models.ErrConfiguration, "validate config", "%s.key is missing for provider %s", section, l.Provider)
		}
		return nil
	default:
		return models.Errorf(models.ErrConfiguration, "validate config", "%s: unknown provider %q", section, l.Provider)
	}
}

// String hides credentials when the config is logged.
func (l LLMConfig) String() string {
	key := ""
	if l.Key != "" {
		key = "***"
	}
	return fmt.Sprintf("{provider:%s base_url:%s model:%s key:%s}", l.Provider, l.BaseURL, l.Model, key)
}
