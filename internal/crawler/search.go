package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammad-safakhou/crawlagent/config"
	"github.com/mohammad-safakhou/crawlagent/internal/runtime"
	"golang.org/x/sync/errgroup"
)

// searxPageSize is what the backend typically returns per page; parallel mode
// sizes its fan-out around it.
const searxPageSize = 10

// parallelThreshold: limits above this fan out page requests concurrently.
const parallelThreshold = 15

// SearchOptions are the caller-tunable search parameters.
type SearchOptions struct {
	Limit      int
	Category   string
	Language   string
	TimeRange  string
	SafeSearch int
	Engines    string
}

// rawResult mirrors one record of the backend's results array, superset of
// all category shapes.
type rawResult struct {
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	Content      string  `json:"content"`
	Engine       string  `json:"engine"`
	Category     string  `json:"category"`
	ImgSrc       string  `json:"img_src"`
	ThumbnailSrc string  `json:"thumbnail_src"`
	Thumbnail    string  `json:"thumbnail"`
	IframeSrc    string  `json:"iframe_src"`
	Format       string  `json:"format"`
	Size         string  `json:"size"`
	Address      string  `json:"address"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
}

type searxResponse struct {
	Results []rawResult `json:"results"`
}

// SearxClient queries a SearXNG instance with pagination, retry and
// duplicate removal.
type SearxClient struct {
	cfg     config.SearchConfig
	client  *http.Client
	metrics *runtime.Metrics
	logger  *log.Logger
	sleep   func(context.Context, time.Duration)
}

func NewSearxClient(cfg config.SearchConfig, metrics *runtime.Metrics) *SearxClient {
	cfg = cfg.Normalize()
	return &SearxClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: metrics,
		logger:  log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
		sleep:   sleepCtx,
	}
}

// Search runs a paginated keyword query. Invalid input and total exhaustion
// (no results across all pages and retries) return an error; an answered but
// empty search succeeds with the zero-results flag set.
func (c *SearxClient) Search(ctx context.Context, query string, opts SearchOptions) (SearchEnvelope, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchEnvelope{}, fmt.Errorf("query is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = c.cfg.DefaultLimit
	}
	opts.Limit = clamp(opts.Limit, 1, 60)
	if opts.Category == "" {
		opts.Category = "general"
	}

	raw, err := c.collect(ctx, query, opts)
	if err != nil && looksBlocked(err) && !strings.EqualFold(opts.Language, "en-US") {
		// Regional blocks often clear when the query is forced to English.
		c.logger.Printf("search blocked (%v), retrying with language=en-US", err)
		fallback := opts
		fallback.Language = "en-US"
		raw, err = c.collect(ctx, query, fallback)
	}
	if err != nil {
		return SearchEnvelope{}, err
	}

	category := strings.ToLower(opts.Category)
	env := SearchEnvelope{Success: true, Query: query, Category: category}

	if category != "general" {
		env.CategoryHits = mapCategoryResults(category, raw, opts.Limit)
		env.ResultsCount = len(env.CategoryHits)
		env.ZeroResults = env.ResultsCount == 0
		return env, nil
	}

	env.Results = dedupeResults(raw, opts.Limit, category)
	env.ResultsCount = len(env.Results)
	env.ZeroResults = env.ResultsCount == 0
	return env, nil
}

// collect gathers raw records, fanning out page requests when the limit is
// large enough to warrant it.
func (c *SearxClient) collect(ctx context.Context, query string, opts SearchOptions) ([]rawResult, error) {
	if opts.Limit > parallelThreshold {
		return c.collectParallel(ctx, query, opts)
	}
	return c.collectSequential(ctx, query, opts)
}

func (c *SearxClient) collectSequential(ctx context.Context, query string, opts SearchOptions) ([]rawResult, error) {
	var all []rawResult
	for page := 1; page <= c.cfg.MaxPages && len(all) < opts.Limit; page++ {
		results, err := c.fetchPage(ctx, query, opts, page)
		if err != nil {
			if len(all) == 0 {
				return nil, err
			}
			break
		}
		if len(results) == 0 {
			break
		}
		all = append(all, results...)
		if len(all) >= opts.Limit {
			break
		}
		c.sleep(ctx, c.cfg.PagePause)
	}
	return all, nil
}

func (c *SearxClient) collectParallel(ctx context.Context, query string, opts SearchOptions) ([]rawResult, error) {
	numPages := (opts.Limit + searxPageSize - 1) / searxPageSize
	if numPages > c.cfg.MaxPages {
		numPages = c.cfg.MaxPages
	}

	pages := make([][]rawResult, numPages)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < numPages; i++ {
		g.Go(func() error {
			results, err := c.fetchPage(gctx, query, opts, i+1)
			if err != nil {
				// A failed page costs coverage, not the whole search.
				c.logger.Printf("page %d failed: %v", i+1, err)
				return nil
			}
			pages[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []rawResult
	for _, p := range pages {
		all = append(all, p...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("search exhausted: no results from %d pages", numPages)
	}
	return all, nil
}

// fetchPage requests one result page with the configured retry budget.
func (c *SearxClient) fetchPage(ctx context.Context, query string, opts SearchOptions, page int) ([]rawResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("pageno", strconv.Itoa(page))
	params.Set("categories", strings.ToLower(opts.Category))
	params.Set("safesearch", strconv.Itoa(opts.SafeSearch))
	if opts.Language != "" && opts.Language != "auto" {
		params.Set("language", opts.Language)
	}
	if opts.TimeRange != "" {
		params.Set("time_range", opts.TimeRange)
	}
	if opts.Engines != "" {
		params.Set("engines", opts.Engines)
	}
	reqURL := c.cfg.BaseURL + "?" + params.Encode()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		c.metrics.ObserveSearchRequest()
		results, err := c.doRequest(ctx, reqURL)
		if err == nil {
			return results, nil
		}
		lastErr = err
		if attempt < c.cfg.Retries {
			c.sleep(ctx, c.cfg.RetryBackoff)
		}
	}
	return nil, fmt.Errorf("search page %d: %w", page, lastErr)
}

func (c *SearxClient) doRequest(ctx context.Context, reqURL string) ([]rawResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var decoded searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return decoded.Results, nil
}

func looksBlocked(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "captcha") || strings.Contains(msg, "http 429") || strings.Contains(msg, "http 403")
}

// dedupeResults removes duplicate URLs, assigns positions and trims to limit.
func dedupeResults(raw []rawResult, limit int, category string) []SearchResult {
	seen := make(map[string]struct{}, len(raw))
	var out []SearchResult
	for _, r := range raw {
		if r.URL == "" {
			continue
		}
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}

		cat := r.Category
		if cat == "" {
			cat = category
		}
		out = append(out, SearchResult{
			Position: len(out) + 1,
			Title:    r.Title,
			URL:      r.URL,
			Content:  r.Content,
			Engine:   r.Engine,
			Category: cat,
		})
		if len(out) >= limit {
			break
		}
	}
	return out
}

// mapCategoryResults converts raw records into the typed shape for a
// non-general category. No page fetching happens here.
func mapCategoryResults(category string, raw []rawResult, limit int) []CategoryResult {
	var out []CategoryResult
	for _, r := range raw {
		if len(out) >= limit {
			break
		}
		switch category {
		case "images":
			out = append(out, CategoryResult{
				Type: "image", Title: r.Title, URL: r.URL,
				ImgSrc: r.ImgSrc, Thumbnail: r.ThumbnailSrc,
			})
		case "videos":
			out = append(out, CategoryResult{
				Type: "video", Title: r.Title, URL: r.URL, Content: r.Content,
				IframeSrc: r.IframeSrc, Thumbnail: r.Thumbnail,
			})
		case "files":
			out = append(out, CategoryResult{
				Type: "file", Title: r.Title, URL: r.URL, Content: r.Content,
				Format: r.Format, Size: r.Size,
			})
		case "map":
			out = append(out, CategoryResult{
				Type: "map", Title: r.Title, URL: r.URL, Content: r.Content,
				Address: r.Address, Latitude: r.Latitude, Longitude: r.Longitude,
			})
		default:
			out = append(out, CategoryResult{
				Type: "social", Title: r.Title, URL: r.URL, Content: r.Content,
			})
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
