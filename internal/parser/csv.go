package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

func extractCSV(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return csvText(f)
}

// csvText joins the fields of each row with a space, one row per line.
func csvText(r io.Reader) (string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var text strings.Builder
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read csv: %w", err)
		}
		text.WriteString(strings.Join(row, " "))
		text.WriteString("\n")
	}
	return text.String(), nil
}
