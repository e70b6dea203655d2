package rag

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"docqa/internal/models"
)

// TokenCounter measures prompt text against the context and history budgets.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// EstimateCounter assumes four characters per token.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// NewTokenCounter uses the tiktoken encoding for model, falling back to
// cl100k_base and then to an estimate when no encoding can be loaded.
func NewTokenCounter(model string) TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		log.Warn().Err(err).Str("model", model).Msg("Token encoding unavailable, estimating token counts")
		return EstimateCounter{}
	}
	return tiktokenCounter{enc: enc}
}

// TrimHistory keeps the most recent turns that fit in budget tokens. A
// non-positive budget keeps everything. The input slice is not modified.
func TrimHistory(history []models.Turn, counter TokenCounter, budget int) []models.Turn {
	if budget <= 0 || len(history) == 0 {
		return history
	}

	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		n := counter.Count(history[i].Content)
		if used+n > budget {
			break
		}
		used += n
		start = i
	}
	return history[start:]
}
