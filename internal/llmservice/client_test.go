package llmservice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"docqa/internal/config"
	"docqa/internal/llmservice/llmtest"
	"docqa/internal/models"
)

func TestGenerateTextStripsThinking(t *testing.T) {
	gen := &llmtest.Scripted{Reply: "<think>\nlet me see\n</think>\n  Revenue was $4M.  "}

	text, err := GenerateText(context.Background(), gen, Messages("", nil, "revenue?"), "gemini-pro")
	require.NoError(t, err)
	assert.Equal(t, "Revenue was $4M.", text)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "gemini-pro", calls[0].Model)
}

func TestGenerateTextFailures(t *testing.T) {
	for name, gen := range map[string]*llmtest.Scripted{
		"provider error": {Err: errors.New("quota exceeded")},
		"empty reply":    {Reply: "<think>hmm</think>"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := GenerateText(context.Background(), gen, Messages("", nil, "hi"), "")
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrGeneration)
		})
	}
}

func TestMessagesOrder(t *testing.T) {
	history := []models.Turn{
		{Role: models.RoleUser, Content: "Who leads the market?"},
		{Role: models.RoleAssistant, Content: "Acme."},
	}
	msgs := Messages("system prompt", history, "what about revenue?", "rewrite it")

	require.Len(t, msgs, 5)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[2].Role)
	assert.Equal(t, "Acme.", MessageText(msgs[2]))
	assert.Equal(t, "rewrite it", MessageText(msgs[4]))
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := NewClient(context.Background(), &config.LLMConfig{Provider: "telegraph", Model: "x"})
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
