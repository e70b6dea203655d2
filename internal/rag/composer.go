package rag

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"docqa/internal/llmservice"
	"docqa/internal/models"
)

type ComposerOptions struct {
	// ContextTokenBudget caps the retrieved context. The top chunk is always kept.
	ContextTokenBudget int
	// HistoryTokenBudget caps the history sent with a prompt.
	HistoryTokenBudget int
	Counter            TokenCounter
}

// Composer turns retrieved chunks and history into an answer.
type Composer struct {
	llm  llmservice.Generator
	opts ComposerOptions
}

func NewComposer(llm llmservice.Generator, opts ComposerOptions) *Composer {
	if opts.Counter == nil {
		opts.Counter = EstimateCounter{}
	}
	return &Composer{llm: llm, opts: opts}
}

// BuildContext labels chunks with their source and joins them in rank order
// until the context budget is spent. It returns the chunks it used.
func (c *Composer) BuildContext(chunks []models.Chunk) (string, []models.Chunk) {
	var (
		parts []string
		used  int
	)
	for i, ch := range chunks {
		part := fmt.Sprintf(models.SourceLabel, ch.Source, ch.Content)
		n := c.opts.Counter.Count(part)
		if i > 0 && c.opts.ContextTokenBudget > 0 && used+n > c.opts.ContextTokenBudget {
			break
		}
		parts = append(parts, part)
		used += n
	}
	return strings.Join(parts, models.ContextSeparator), chunks[:len(parts)]
}

// ComposeRAG answers query from chunks. Callers handle the no-chunk case.
func (c *Composer) ComposeRAG(ctx context.Context, query string, history []models.Turn, chunks []models.Chunk, model string) (string, []models.Chunk, error) {
	contextText, used := c.BuildContext(chunks)
	system := fmt.Sprintf(models.RAGSystemPrompt, contextText)

	msgs := llmservice.Messages(system, TrimHistory(history, c.opts.Counter, c.opts.HistoryTokenBudget), query)
	text, err := llmservice.GenerateText(ctx, c.llm, msgs, model)
	if err != nil {
		return "", nil, err
	}
	return text, used, nil
}

// ComposeDirect answers from the model's general knowledge.
func (c *Composer) ComposeDirect(ctx context.Context, query string, history []models.Turn, model string) (string, error) {
	msgs := llmservice.Messages(models.DirectSystemPrompt, TrimHistory(history, c.opts.Counter, c.opts.HistoryTokenBudget), query)
	return llmservice.GenerateText(ctx, c.llm, msgs, model)
}

// Extractive quotes the chunks verbatim under their sources, without a model call.
func Extractive(chunks []models.Chunk) string {
	if len(chunks) == 0 {
		return models.NoRelevantInfo
	}

	parts := make([]string, len(chunks))
	for i, ch := range chunks {
		parts[i] = fmt.Sprintf("**From %s:**\n%s", ch.Source, ch.Content)
	}

	var b strings.Builder
	b.WriteString(models.ExtractiveHeader)
	b.WriteString("\n\n")
	b.WriteString(strings.Join(parts, "\n\n"))
	b.WriteString("\n\n**Sources:** ")
	b.WriteString(strings.Join(Sources(chunks), ", "))
	return b.String()
}

// Sources returns the distinct sources of chunks, sorted.
func Sources(chunks []models.Chunk) []string {
	var out []string
	for _, ch := range chunks {
		if !slices.Contains(out, ch.Source) {
			out = append(out, ch.Source)
		}
	}
	slices.Sort(out)
	return out
}
