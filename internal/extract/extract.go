// Package extract implements the worker's fetch-and-parse round trip: a
// bounded-timeout HTTP GET via a shared Colly collector, followed by
// outbound-link discovery and article-content extraction from the
// returned HTML.
package extract

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// Result is the outcome of a single fetch-and-parse round trip.
type Result struct {
	FinalURL    string
	StatusCode  int
	ContentType string
	Headers     http.Header
	Body        []byte
	Links       []string // raw href values, not yet normalized
	Redirected  bool
}

// Page is the extracted article content of an HTML page, produced from an
// already-fetched Result.Body.
type Page struct {
	Title       string
	Description string
	Author      string
	Body        string
	ContentHash string
}

// Fetcher performs bounded-timeout page fetches through a shared Colly
// collector cloned per request, so concurrent worker goroutines never
// share collector-internal state while still sharing one transport (and
// therefore one connection pool) per SPEC_FULL.md §5's single shared
// *http.Client requirement.
type Fetcher struct {
	base    *colly.Collector
	timeout time.Duration
}

// New builds a Fetcher whose requests use transport's connection pool and
// carry userAgent. transport is typically the Transport of a single
// process-wide *http.Client.
func New(userAgent string, timeout time.Duration, transport http.RoundTripper) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.UserAgent = userAgent
	// Robots permission is decided by the politeness controller ahead of
	// the fetch; the collector itself never re-derives it.
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(timeout)
	// Non-2xx responses reach OnResponse like any other, so the caller gets
	// their status code and headers instead of a bare error.
	c.ParseHTTPErrorResponse = true
	if transport != nil {
		c.WithTransport(transport)
	}
	// Redirects are surfaced to the caller as 3xx responses rather than
	// followed transparently: the worker loop normalizes and re-enqueues
	// the target itself (SPEC_FULL.md §4.5 step 6).
	c.SetRedirectHandler(func(_ *http.Request, _ []*http.Request) error {
		return http.ErrUseLastResponse
	})

	return &Fetcher{base: c, timeout: timeout}
}

// Fetch performs a single GET of rawURL, returning the response along with
// every outbound link discovered in the body (if it was HTML). ctx's
// deadline bounds the call in addition to the collector's own timeout.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	collector := f.base.Clone()

	var result Result
	var fetchErr error

	collector.OnResponse(func(r *colly.Response) {
		result.FinalURL = r.Request.URL.String()
		result.StatusCode = r.StatusCode
		result.ContentType = r.Headers.Get("Content-Type")
		result.Headers = r.Headers.Clone()
		result.Body = append([]byte(nil), r.Body...)
		if result.FinalURL != rawURL {
			result.Redirected = true
		}
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := strings.TrimSpace(e.Attr("href"))
		if href == "" {
			return
		}
		if abs := e.Request.AbsoluteURL(href); abs != "" {
			result.Links = append(result.Links, abs)
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			result.StatusCode = r.StatusCode
		}
	})

	done := make(chan error, 1)
	go func() { done <- collector.Visit(rawURL) }()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("extract: fetch %s: %w", rawURL, ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("extract: visit %s: %w", rawURL, err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("extract: response %s: %w", rawURL, fetchErr)
		}
		return &result, nil
	}
}

// nonContentSelectors lists elements stripped before extracting body text.
const nonContentSelectors = "script, style, nav, header, footer"

// ExtractPage parses HTML and pulls out title, description, author, and
// main body text, hashing the body for cross-page deduplication.
func ExtractPage(body []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}

	text := extractBodyText(doc)
	page := &Page{
		Title:       extractTitle(doc),
		Description: extractMeta(doc, "description", "og:description"),
		Author:      extractMeta(doc, "author", ""),
		Body:        text,
		ContentHash: hashText(text),
	}
	return page, nil
}

func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if og, exists := doc.Find("meta[property='og:title']").Attr("content"); exists {
		return strings.TrimSpace(og)
	}
	return ""
}

func extractMeta(doc *goquery.Document, name, ogProperty string) string {
	if v, exists := doc.Find(fmt.Sprintf("meta[name='%s']", name)).Attr("content"); exists {
		return strings.TrimSpace(v)
	}
	if ogProperty != "" {
		if v, exists := doc.Find(fmt.Sprintf("meta[property='%s']", ogProperty)).Attr("content"); exists {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func extractBodyText(doc *goquery.Document) string {
	article := doc.Find("article").First()
	if article.Length() > 0 {
		article.Find(nonContentSelectors).Remove()
		return strings.TrimSpace(article.Text())
	}

	body := doc.Find("body").First()
	if body.Length() > 0 {
		body.Find(nonContentSelectors).Remove()
		return strings.TrimSpace(body.Text())
	}
	return ""
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// IsHTML reports whether a Content-Type header value indicates HTML.
func IsHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "html")
}
