// Package chunker splits extracted document text into overlapping chunks.
package chunker

import (
	"strings"
	"unicode/utf8"

	"docqa/internal/models"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// separators are tried in order: paragraph, line, sentence, word, then a hard cut.
var separators = []string{"\n\n", "\n", ". ", "? ", "! ", " ", ""}

// Splitter produces chunks of at most size characters, with up to overlap
// characters shared between neighbours. Lengths are counted in runes.
type Splitter struct {
	size    int
	overlap int
}

func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, models.Errorf(models.ErrConfiguration, "new splitter", "chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, models.Errorf(models.ErrConfiguration, "new splitter", "chunk overlap %d must be in [0, %d)", overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

func (s *Splitter) Size() int    { return s.size }
func (s *Splitter) Overlap() int { return s.overlap }

// piece is a contiguous span of the input that is never split further.
type piece struct {
	text   string
	offset int
	runes  int
}

// Split returns the chunks of text in document order, all tagged with source.
// Whitespace-only input yields no chunks.
func (s *Splitter) Split(text, source string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	pieces := s.pieces(text, 0, separators)

	var chunks []models.Chunk
	emit := func(window []piece) {
		if len(window) == 0 {
			return
		}
		start := window[0].offset
		last := window[len(window)-1]
		content := text[start : last.offset+len(last.text)]
		if strings.TrimSpace(content) == "" {
			return
		}
		chunks = append(chunks, models.Chunk{
			Content:       content,
			Source:        source,
			SequenceIndex: len(chunks),
			Offset:        start,
		})
	}

	var window []piece
	total := 0
	for _, p := range pieces {
		if total+p.runes > s.size && len(window) > 0 {
			emit(window)
			// keep a tail of the window as overlap for the next chunk
			for len(window) > 0 && (total > s.overlap || total+p.runes > s.size) {
				total -= window[0].runes
				window = window[1:]
			}
		}
		window = append(window, p)
		total += p.runes
	}
	emit(window)

	return chunks
}

// pieces breaks text into spans no longer than the chunk size, using the
// coarsest separator that works. Concatenating the result yields text.
func (s *Splitter) pieces(text string, offset int, seps []string) []piece {
	n := utf8.RuneCountInString(text)
	if n <= s.size {
		return []piece{{text: text, offset: offset, runes: n}}
	}

	sep := seps[0]
	if sep == "" {
		return s.hardCut(text, offset)
	}

	var out []piece
	for _, part := range splitKeep(text, sep) {
		if r := utf8.RuneCountInString(part); r <= s.size {
			out = append(out, piece{text: part, offset: offset, runes: r})
		} else {
			out = append(out, s.pieces(part, offset, seps[1:])...)
		}
		offset += len(part)
	}
	return out
}

func (s *Splitter) hardCut(text string, offset int) []piece {
	var out []piece
	for text != "" {
		end, count := 0, 0
		for end < len(text) && count < s.size {
			_, w := utf8.DecodeRuneInString(text[end:])
			end += w
			count++
		}
		out = append(out, piece{text: text[:end], offset: offset, runes: count})
		offset += end
		text = text[end:]
	}
	return out
}

// splitKeep splits after every occurrence of sep, keeping sep attached to the left part.
func splitKeep(text, sep string) []string {
	var parts []string
	for {
		i := strings.Index(text, sep)
		if i < 0 {
			break
		}
		parts = append(parts, text[:i+len(sep)])
		text = text[i+len(sep):]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
