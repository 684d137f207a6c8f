package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammad-safakhou/crawlagent/config"
	"github.com/mohammad-safakhou/crawlagent/internal/runtime"
)

// maxBodyBytes bounds how much of a response body is read before extraction.
const maxBodyBytes = 10 << 20

var pdfSignature = []byte("%PDF-")

// Page is a raw retrieved payload before extraction.
type Page struct {
	Status int
	Body   []byte
}

// PageFetcher retrieves one raw page. Implementations follow redirects and
// honor the context deadline. A non-2xx status is returned as a Page, not an
// error; errors are reserved for transport failures.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (Page, error)
}

// HTTPPageFetcher is the default PageFetcher built on net/http.
type HTTPPageFetcher struct {
	Client    *http.Client
	UserAgent string
}

func NewHTTPPageFetcher(userAgent string) *HTTPPageFetcher {
	return &HTTPPageFetcher{Client: &http.Client{}, UserAgent: userAgent}
}

func (h *HTTPPageFetcher) FetchPage(ctx context.Context, rawURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", h.UserAgent)

	resp, err := h.Client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, err
	}
	return Page{Status: resp.StatusCode, Body: body}, nil
}

// Fetcher performs one retrieval: validate URL, admission check, network GET
// with retry, payload classification, extraction, content validation. Every
// failure mode becomes a structured FetchResult; no error escapes Fetch.
type Fetcher struct {
	limiter   *RateLimiter
	cache     *FreshnessCache
	pages     PageFetcher
	extractor ContentExtractor
	converter DocConverter
	cfg       config.FetchConfig
	metrics   *runtime.Metrics
	logger    *log.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration)
}

// NewFetcher wires a fetcher from its collaborators. limiter, cache, metrics
// and converter may be nil (no throttling, no caching, no metrics, PDF
// conversion unavailable).
func NewFetcher(cfg config.FetchConfig, limiter *RateLimiter, cache *FreshnessCache, pages PageFetcher, extractor ContentExtractor, converter DocConverter, metrics *runtime.Metrics) *Fetcher {
	cfg = cfg.Normalize()
	if pages == nil {
		pages = NewHTTPPageFetcher(cfg.UserAgent)
	}
	if extractor == nil {
		extractor = ReadabilityExtractor{}
	}
	if converter == nil {
		converter = UnsupportedConverter{}
	}
	return &Fetcher{
		limiter:   limiter,
		cache:     cache,
		pages:     pages,
		extractor: extractor,
		converter: converter,
		cfg:       cfg,
		metrics:   metrics,
		logger:    log.New(log.Writer(), "[FETCH] ", log.LstdFlags),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// ValidURL reports whether raw looks like a fetchable address.
func ValidURL(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

// Fetch retrieves and extracts one URL. The returned result always reports
// the original URL even when the request went to a rewritten mirror.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) FetchResult {
	if !ValidURL(rawURL) {
		return f.fail(rawURL, fmt.Sprintf("invalid URL: %s", rawURL))
	}

	if f.cache != nil {
		if cached, ok := f.cache.Get(rawURL); ok {
			f.metrics.ObserveCache(true)
			return cached
		}
		f.metrics.ObserveCache(false)
	}

	if f.limiter != nil && !f.limiter.Admit(rawURL) {
		f.metrics.ObserveRateLimitDenial()
		wait := f.limiter.TimeUntilAvailable(rawURL)
		return f.fail(rawURL, fmt.Sprintf("rate limited: retry in %s", wait.Round(time.Second)))
	}

	target := RewriteRedditURL(rawURL)
	page, errMsg := f.fetchWithRetry(ctx, target)
	if errMsg != "" {
		return f.fail(rawURL, errMsg)
	}

	result, errMsg := f.extract(rawURL, page)
	if errMsg != "" {
		return f.fail(rawURL, errMsg)
	}

	if !ValidContent(result.Content, f.cfg.MinChars, f.cfg.ErrorPageCeil) {
		f.metrics.ObserveFetch("invalid")
		return FetchResult{
			Success:       false,
			URL:           rawURL,
			ContentLength: len(result.Content),
			Error:         fmt.Sprintf("content too short (%d chars)", len(result.Content)),
		}
	}

	f.metrics.ObserveFetch("success")
	if f.cache != nil {
		f.cache.Put(rawURL, result)
	}
	return result
}

// fetchWithRetry runs the network GET with the configured attempt count and
// linear backoff. Transport failures and HTTP status errors are retried; the
// final failure is rendered into the taxonomy string.
func (f *Fetcher) fetchWithRetry(ctx context.Context, target string) (Page, string) {
	var lastMsg string
	for attempt := 1; attempt <= f.cfg.Retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
		page, err := f.pages.FetchPage(attemptCtx, target)
		cancel()

		switch {
		case err != nil:
			lastMsg = f.transportError(err)
		case page.Status < 200 || page.Status >= 300:
			lastMsg = fmt.Sprintf("HTTP %d", page.Status)
		default:
			return page, ""
		}

		if attempt < f.cfg.Retries {
			f.sleep(ctx, time.Duration(attempt)*f.cfg.RetryBackoff)
		}
	}
	f.metrics.ObserveFetch("error")
	return Page{}, lastMsg
}

func (f *Fetcher) transportError(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Sprintf("request timed out after %s", f.cfg.Timeout)
	}
	return fmt.Sprintf("request failed: %v", err)
}

// extract classifies the payload and delegates to the matching capability.
func (f *Fetcher) extract(originalURL string, page Page) (FetchResult, string) {
	accessed := f.now().UTC().Format(time.RFC3339)

	if bytes.HasPrefix(page.Body, pdfSignature) {
		f.logger.Printf("pdf detected: %s", truncateForLog(originalURL))
		md, err := f.converter.Convert(page.Body)
		if err != nil {
			return FetchResult{}, fmt.Sprintf("pdf conversion failed: %v", err)
		}
		content := TruncateWords(md, f.cfg.MaxLength/5)
		return FetchResult{
			Success:       true,
			URL:           originalURL,
			Title:         "PDF Document (converted to Markdown)",
			Content:       content,
			Excerpt:       GenerateExcerpt(content, 200),
			ContentLength: len(content),
			DateAccessed:  accessed,
		}, ""
	}

	u, err := url.Parse(originalURL)
	if err != nil {
		return FetchResult{}, fmt.Sprintf("invalid URL: %v", err)
	}
	doc, err := f.extractor.Extract(page.Body, u)
	if err != nil {
		return FetchResult{}, fmt.Sprintf("extraction failed: %v", err)
	}

	content := TruncateWords(doc.Text, f.cfg.MaxLength/5)
	return FetchResult{
		Success:       true,
		URL:           originalURL,
		Title:         doc.Title,
		Content:       content,
		Excerpt:       GenerateExcerpt(content, 200),
		Description:   doc.Description,
		Language:      doc.Language,
		ContentLength: len(content),
		DateAccessed:  accessed,
	}, ""
}

func (f *Fetcher) fail(rawURL, msg string) FetchResult {
	f.logger.Printf("fetch failed %s: %s", truncateForLog(rawURL), msg)
	return FetchResult{Success: false, URL: rawURL, Error: msg}
}

func truncateForLog(s string) string {
	if len(s) > 60 {
		return s[:60]
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
