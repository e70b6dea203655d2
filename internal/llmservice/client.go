package llmservice

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"docqa/internal/config"
	"docqa/internal/models"
)

var thinkTag = regexp.MustCompile(models.ThinkTag)

// Client can both chat and embed. All supported providers satisfy it.
type Client interface {
	llms.Model
	embeddings.EmbedderClient
}

// Generator is the part of a chat model the pipeline needs.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// NewClient builds a langchaingo client for the provider named in cfg.
func NewClient(ctx context.Context, cfg *config.LLMConfig) (Client, error) {
	log.Debug().Stringer("llm", cfg).Msg("Creating LLM client")

	var (
		client Client
		err    error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		client, err = openai.New(opts...)
	case config.ProviderOllama:
		client, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	case config.ProviderGoogle:
		client, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.Key),
			googleai.WithDefaultModel(cfg.Model),
			googleai.WithDefaultEmbeddingModel(cfg.Model),
		)
	default:
		return nil, models.Errorf(models.ErrConfiguration, "new llm client", "unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, models.Wrap(models.ErrConfiguration, "new llm client", fmt.Errorf("failed to create %s client: %w", cfg.Provider, err))
	}
	return client, nil
}

// GenerateText sends messages to gen and returns the cleaned reply. model
// overrides the client's default when set. Failures and empty replies are
// generation errors.
func GenerateText(ctx context.Context, gen Generator, messages []llms.MessageContent, model string) (string, error) {
	var opts []llms.CallOption
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}

	resp, err := gen.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", models.Wrap(models.ErrGeneration, "generate", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", models.Errorf(models.ErrGeneration, "generate", "no choices returned")
	}

	text := strings.TrimSpace(thinkTag.ReplaceAllString(resp.Choices[0].Content, ""))
	if text == "" {
		return "", models.Errorf(models.ErrGeneration, "generate", "empty response")
	}
	return text, nil
}

// Messages builds a conversation: optional system prompt, prior turns, then the trailing human inputs.
func Messages(system string, history []models.Turn, inputs ...string) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(history)+len(inputs)+1)
	if system != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	for _, turn := range history {
		role := llms.ChatMessageTypeHuman
		if turn.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, turn.Content))
	}
	for _, in := range inputs {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, in))
	}
	return msgs
}

// MessageText flattens the text parts of a message.
func MessageText(m llms.MessageContent) string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(llms.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}
