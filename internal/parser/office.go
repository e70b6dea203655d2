package parser

import (
	"archive/zip"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"
)

var (
	xmlTag     = regexp.MustCompile(`<[^>]+>`)
	slideName  = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	pptxTextRe = regexp.MustCompile(`(?s)<a:t>(.*?)</a:t>`)
)

func extractDOCX(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer r.Close()

	return docxText(r.Editable().GetContent()), nil
}

// docxText turns WordprocessingML into text, one paragraph per line.
func docxText(content string) string {
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	content = strings.ReplaceAll(content, "<w:tab/>", "\t")
	content = xmlTag.ReplaceAllString(content, "")
	return html.UnescapeString(content)
}

// extractPPTX reads the text runs of each slide in slide order.
func extractPPTX(path string) (string, error) {
	f, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pptx: %w", err)
	}
	defer f.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		m := slideName.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var text strings.Builder
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open slide %d: %w", s.num, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read slide %d: %w", s.num, err)
		}
		text.WriteString(slideText(string(data)))
		text.WriteString("\n\n")
	}
	return text.String(), nil
}

func slideText(xmlContent string) string {
	var parts []string
	for _, m := range pptxTextRe.FindAllStringSubmatch(xmlContent, -1) {
		parts = append(parts, html.UnescapeString(m[1]))
	}
	return strings.Join(parts, " ")
}

// extractSpreadsheet writes each sheet as a heading followed by its rows.
func extractSpreadsheet(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	var text strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&text, "## Sheet: %s\n", sheet)
		for _, row := range rows {
			text.WriteString(strings.Join(row, " "))
			text.WriteString("\n")
		}
		text.WriteString("\n")
	}
	return text.String(), nil
}
