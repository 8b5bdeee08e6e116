// Package fetch resolves a knowledge source into raw text. URL sources are
// fetched over HTTP and HTML is reduced to its readable text; file sources
// are already materialized by the upload handler, so fetching reduces to
// reading and validating the stored text.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"kora/backend/internal/pipeline"
)

const (
	KindFile = "file"
	KindURL  = "url"
)

type Fetcher struct {
	client *http.Client
}

func New() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: 30 * time.Second}}
}

// NewWithClient is used by tests to inject an httptest-backed client.
func NewWithClient(c *http.Client) *Fetcher {
	return &Fetcher{client: c}
}

// Fetch resolves a source to text. A single network failure is fatal to the
// ingestion attempt; retry policy belongs to the caller.
func (f *Fetcher) Fetch(ctx context.Context, kind, locator string) (string, error) {
	switch kind {
	case KindURL:
		return f.fetchURL(ctx, locator)
	case KindFile:
		return f.readFile(locator)
	default:
		return "", fmt.Errorf("unknown source kind %q", kind)
	}
}

func (f *Fetcher) fetchURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &pipeline.FetchError{StatusCode: resp.StatusCode, URL: url}
	}

	mediaType := resp.Header.Get("Content-Type")
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	}

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return extractHTML(resp)
	case strings.HasPrefix(mediaType, "text/") || mediaType == "application/json":
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(body)), nil
	default:
		// PDFs and other binary formats must arrive pre-extracted as file
		// sources, not via live URL fetch.
		return "", &pipeline.UnsupportedContentError{ContentType: mediaType, URL: url}
	}
}

func extractHTML(resp *http.Response) (string, error) {
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, header").Remove()

	for _, selector := range []string{"main", "article", "body"} {
		sel := doc.Find(selector).First()
		if sel.Length() > 0 {
			if text := strings.TrimSpace(sel.Text()); text != "" {
				return text, nil
			}
		}
	}
	return strings.TrimSpace(doc.Text()), nil
}

func (f *Fetcher) readFile(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is the stored upload location, not raw user input
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("file source %s is empty", path)
	}
	return text, nil
}
