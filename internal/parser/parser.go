// Package parser extracts plain text from uploaded documents and web pages.
package parser

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"docqa/internal/models"
)

type extractFunc func(path string) (string, error)

var extractors = map[string]extractFunc{
	".pdf":  extractPDF,
	".csv":  extractCSV,
	".txt":  extractText,
	".md":   extractMarkdown,
	".docx": extractDOCX,
	".pptx": extractPPTX,
	".xlsx": extractSpreadsheet,
	".xlsm": extractSpreadsheet,
}

// SupportedExtensions lists the file extensions ExtractFile accepts.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extractors))
	for ext := range extractors {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

func Supported(path string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ExtractFile returns the text of the file at path, dispatching on its extension.
// Every failure, including an empty result, is an ingestion error naming the file.
func ExtractFile(path string) (string, error) {
	source := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))

	extract, ok := extractors[ext]
	if !ok {
		return "", models.Errorf(models.ErrIngestion, "extract", "unsupported file format %q for %s", ext, source)
	}

	text, err := extract(path)
	if err != nil {
		return "", models.WrapSource(models.ErrIngestion, "extract "+strings.TrimPrefix(ext, "."), source, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", &models.Error{Kind: models.ErrIngestion, Op: "extract", Source: source, Err: errNoText}
	}

	log.Debug().Str("source", source).Int("chars", len(text)).Msg("Extracted text")
	return text, nil
}

func extractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
