package parser

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// skippedElements never contribute readable text.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// HTMLText returns the visible text of an HTML document with whitespace collapsed to single spaces.
func HTMLText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)

	var words []string
	skipDepth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			return strings.Join(words, " "), nil
		case html.StartTagToken:
			name, _ := z.TagName()
			if skippedElements[string(name)] {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skippedElements[string(name)] && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				words = append(words, strings.Fields(string(z.Text()))...)
			}
		}
	}
}
