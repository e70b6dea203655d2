package chunker

import (
	"math/rand/v2"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/models"
)

// reconstruct joins chunks, dropping the prefix each chunk shares with its predecessor.
func reconstruct(t *testing.T, chunks []models.Chunk) string {
	t.Helper()
	var b strings.Builder
	end := 0
	for i, c := range chunks {
		if i == 0 {
			require.Equal(t, 0, c.Offset)
		}
		shared := end - c.Offset
		require.GreaterOrEqual(t, shared, 0, "gap before chunk %d", i)
		require.LessOrEqual(t, shared, len(c.Content))
		b.WriteString(c.Content[shared:])
		end = c.Offset + len(c.Content)
	}
	return b.String()
}

func TestSplitQuickBrownFox(t *testing.T) {
	s, err := NewSplitter(1000, 200)
	require.NoError(t, err)

	text := strings.Repeat("The quick brown fox. ", 100)
	chunks := s.Split(text, "fox.txt")

	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 1000)
		assert.Equal(t, "fox.txt", c.Source)
		assert.Equal(t, i, c.SequenceIndex)
		assert.Equal(t, text[c.Offset:c.Offset+len(c.Content)], c.Content)
		if i > 0 {
			prev := chunks[i-1]
			shared := prev.Offset + len(prev.Content) - c.Offset
			assert.Positive(t, shared)
			assert.LessOrEqual(t, shared, 200)
		}
	}
	assert.Equal(t, text, reconstruct(t, chunks))
}

func TestSplitEmptyInput(t *testing.T) {
	s, err := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)

	assert.Empty(t, s.Split("", "empty.txt"))
	assert.Empty(t, s.Split(" \n\t\n ", "blank.txt"))
}

func TestNewSplitterRejectsInvalidSizes(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{
		{100, 100},
		{100, 150},
		{0, 0},
		{-5, 0},
		{100, -1},
	} {
		_, err := NewSplitter(tc.size, tc.overlap)
		require.Error(t, err, "size=%d overlap=%d", tc.size, tc.overlap)
		assert.ErrorIs(t, err, models.ErrConfiguration)
	}
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	s, err := NewSplitter(1000, 200)
	require.NoError(t, err)

	chunks := s.Split("Revenue grew 12% in 2023.", "report.pdf")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Revenue grew 12% in 2023.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Offset)
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	s, err := NewSplitter(120, 20)
	require.NoError(t, err)

	first := strings.Repeat("a", 70) + " first paragraph."
	second := strings.Repeat("b", 70) + " second paragraph."
	text := first + "\n\n" + second

	chunks := s.Split(text, "doc.md")
	require.Len(t, chunks, 2)
	assert.Equal(t, first+"\n\n", chunks[0].Content)
	assert.Equal(t, second, chunks[1].Content)
	assert.Equal(t, text, reconstruct(t, chunks))
}

func TestSplitHardCutsOversizedWords(t *testing.T) {
	s, err := NewSplitter(1000, 200)
	require.NoError(t, err)

	text := strings.Repeat("x", 2500)
	chunks := s.Split(text, "blob.txt")

	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 1000)
	}
	assert.Equal(t, text, reconstruct(t, chunks))
}

func TestSplitCountsRunes(t *testing.T) {
	s, err := NewSplitter(50, 10)
	require.NoError(t, err)

	text := strings.Repeat("héllo wörld ñandú ", 30)
	chunks := s.Split(text, "unicode.txt")

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Content))
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 50)
	}
	assert.Equal(t, text, reconstruct(t, chunks))
}

func generateText(r *rand.Rand) string {
	words := []string{"market", "growth", "revenue", "competitor", "share", "segment", "forecast", "the", "a", "of", "consumer", "pricing"}
	var b strings.Builder
	b.WriteString("Report")
	paragraphs := 1 + r.IntN(8)
	for p := 0; p < paragraphs; p++ {
		sentences := 1 + r.IntN(12)
		for s := 0; s < sentences; s++ {
			n := 3 + r.IntN(25)
			for w := 0; w < n; w++ {
				b.WriteString(" ")
				b.WriteString(words[r.IntN(len(words))])
			}
			b.WriteString(". ")
			if r.IntN(5) == 0 {
				b.WriteString("\n")
			}
		}
		if p < paragraphs-1 {
			b.WriteString("\n\nSection")
		}
	}
	return b.String()
}

func TestSplitCoverageAndBounds(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 42))
	configs := []struct{ size, overlap int }{
		{50, 10},
		{100, 0},
		{200, 199},
		{1000, 200},
	}

	for i := 0; i < 40; i++ {
		text := generateText(r)
		for _, cfg := range configs {
			s, err := NewSplitter(cfg.size, cfg.overlap)
			require.NoError(t, err)

			chunks := s.Split(text, "gen")
			require.NotEmpty(t, chunks)
			for j, c := range chunks {
				require.LessOrEqual(t, utf8.RuneCountInString(c.Content), cfg.size)
				require.Equal(t, j, c.SequenceIndex)
				if j > 0 {
					prev := chunks[j-1]
					require.LessOrEqual(t, prev.Offset+len(prev.Content)-c.Offset, cfg.overlap)
					require.Greater(t, c.Offset, prev.Offset)
				}
			}
			require.Equal(t, text, reconstruct(t, chunks), "size=%d overlap=%d", cfg.size, cfg.overlap)
		}
	}
}
