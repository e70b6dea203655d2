package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"docqa/internal/config"
	"docqa/internal/models"
)

// WebFetcher downloads a page and reduces it to plain text.
type WebFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

func NewWebFetcher(cfg config.FetchConfig) *WebFetcher {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &WebFetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
	}
}

// Fetch returns the visible text of the page at rawURL. All failures are ingestion errors.
func (f *WebFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", models.WrapSource(models.ErrIngestion, "fetch", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &models.Error{Kind: models.ErrIngestion, Op: "fetch", Source: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", models.WrapSource(models.ErrIngestion, "fetch", rawURL, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", models.WrapSource(models.ErrIngestion, "fetch", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &models.Error{Kind: models.ErrIngestion, Op: "fetch", Source: rawURL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	text, err := HTMLText(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", models.WrapSource(models.ErrIngestion, "parse html", rawURL, err)
	}
	if text == "" {
		return "", &models.Error{Kind: models.ErrIngestion, Op: "fetch", Source: rawURL, Err: fmt.Errorf("%s", models.NoReadableText)}
	}

	log.Debug().Str("source", rawURL).Int("chars", len(text)).Msg("Fetched page")
	return text, nil
}
