package rag

import (
	"context"
	"strings"

	"docqa/internal/llmservice"
	"docqa/internal/models"
)

// QueryRewriter turns a follow-up question into a standalone search query.
type QueryRewriter struct {
	llm llmservice.Generator
}

func NewQueryRewriter(llm llmservice.Generator) *QueryRewriter {
	return &QueryRewriter{llm: llm}
}

// Rewrite conditions on history to produce a search query for input. Without
// history the input is already standalone and is returned unchanged.
func (q *QueryRewriter) Rewrite(ctx context.Context, history []models.Turn, input, model string) (string, error) {
	if len(history) == 0 {
		return input, nil
	}

	msgs := llmservice.Messages("", history, input, models.RewritePrompt)
	text, err := llmservice.GenerateText(ctx, q.llm, msgs, model)
	if err != nil {
		return "", err
	}
	return strings.Trim(text, "\"' \n"), nil
}
