package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammad-safakhou/crawlagent/config"
)

func testSearchConfig(baseURL string) config.SearchConfig {
	return config.SearchConfig{
		BaseURL:      baseURL,
		Retries:      2,
		RetryBackoff: time.Millisecond,
		PagePause:    time.Millisecond,
		Timeout:      5 * time.Second,
	}.Normalize()
}

func searxHandler(perPage int, totalPages int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("pageno"))
		var results []map[string]any
		if page <= totalPages {
			for i := 0; i < perPage; i++ {
				n := (page-1)*perPage + i
				results = append(results, map[string]any{
					"title":   fmt.Sprintf("Result %d", n),
					"url":     fmt.Sprintf("https://example.com/r/%d", n),
					"content": "snippet",
					"engine":  "test",
				})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	c := NewSearxClient(testSearchConfig("http://unused.test"), nil)
	if _, err := c.Search(context.Background(), "   ", SearchOptions{}); err == nil {
		t.Error("empty query must fail without network activity")
	}
}

func TestSearchSinglePage(t *testing.T) {
	srv := httptest.NewServer(searxHandler(10, 1))
	defer srv.Close()

	c := NewSearxClient(testSearchConfig(srv.URL), nil)
	env, err := c.Search(context.Background(), "golang", SearchOptions{Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !env.Success || env.ResultsCount != 5 {
		t.Errorf("expected 5 results, got %d", env.ResultsCount)
	}
	if env.Results[0].Position != 1 || env.Results[4].Position != 5 {
		t.Error("positions should be 1-based and sequential")
	}
}

func TestSearchPagination(t *testing.T) {
	var pagesRequested int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pagesRequested, 1)
		searxHandler(4, 10)(w, r)
	}))
	defer srv.Close()

	c := NewSearxClient(testSearchConfig(srv.URL), nil)
	env, err := c.Search(context.Background(), "golang", SearchOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if env.ResultsCount != 10 {
		t.Errorf("expected 10 results, got %d", env.ResultsCount)
	}
	if got := atomic.LoadInt32(&pagesRequested); got != 3 {
		t.Errorf("expected 3 page requests for 10 results at 4/page, got %d", got)
	}
}

func TestSearchStopsOnEmptyPage(t *testing.T) {
	srv := httptest.NewServer(searxHandler(4, 2))
	defer srv.Close()

	c := NewSearxClient(testSearchConfig(srv.URL), nil)
	env, err := c.Search(context.Background(), "golang", SearchOptions{Limit: 15})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if env.ResultsCount != 8 {
		t.Errorf("expected 8 results from 2 pages, got %d", env.ResultsCount)
	}
}

func TestSearchDedupe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := []map[string]any{
			{"title": "A", "url": "https://example.com/same"},
			{"title": "B", "url": "https://example.com/same"},
			{"title": "C", "url": "https://example.com/other"},
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer srv.Close()

	c := NewSearxClient(testSearchConfig(srv.URL), nil)
	env, err := c.Search(context.Background(), "dup", SearchOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if env.ResultsCount != 2 {
		t.Errorf("duplicates should be removed, got %d results", env.ResultsCount)
	}
}

func TestSearchZeroResults(t *testing.T) {
	srv := httptest.NewServer(searxHandler(0, 0))
	defer srv.Close()

	c := NewSearxClient(testSearchConfig(srv.URL), nil)
	env, err := c.Search(context.Background(), "nothing", SearchOptions{Limit: 10})
	if err != nil {
		t.Fatalf("an answered empty search is not an error: %v", err)
	}
	if !env.ZeroResults {
		t.Error("zero-results warning should be set")
	}
}

func TestSearchRetryThenSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		searxHandler(5, 1)(w, r)
	}))
	defer srv.Close()

	c := NewSearxClient(testSearchConfig(srv.URL), nil)
	env, err := c.Search(context.Background(), "retry", SearchOptions{Limit: 5})
	if err != nil {
		t.Fatalf("Search should recover via retry: %v", err)
	}
	if env.ResultsCount != 5 {
		t.Errorf("expected 5 results after retry, got %d", env.ResultsCount)
	}
}

func TestSearchBlockedLanguageFallback(t *testing.T) {
	var sawEnUS atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("language") == "en-US" {
			sawEnUS.Store(true)
			searxHandler(3, 1)(w, r)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewSearxClient(testSearchConfig(srv.URL), nil)
	env, err := c.Search(context.Background(), "blocked", SearchOptions{Limit: 3})
	if err != nil {
		t.Fatalf("blocked search should fall back to en-US: %v", err)
	}
	if !sawEnUS.Load() || env.ResultsCount != 3 {
		t.Errorf("fallback not used: en-US=%v count=%d", sawEnUS.Load(), env.ResultsCount)
	}
}

func TestSearchParallelMode(t *testing.T) {
	srv := httptest.NewServer(searxHandler(10, 10))
	defer srv.Close()

	c := NewSearxClient(testSearchConfig(srv.URL), nil)
	env, err := c.Search(context.Background(), "wide", SearchOptions{Limit: 40})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if env.ResultsCount != 40 {
		t.Errorf("expected 40 results, got %d", env.ResultsCount)
	}
}

func TestSearchCategoryMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := []map[string]any{
			{"title": "Pic", "url": "https://example.com/p", "img_src": "https://img.example.com/p.jpg", "thumbnail_src": "https://img.example.com/t.jpg"},
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer srv.Close()

	c := NewSearxClient(testSearchConfig(srv.URL), nil)
	env, err := c.Search(context.Background(), "cats", SearchOptions{Limit: 5, Category: "images"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(env.CategoryHits) != 1 {
		t.Fatalf("expected 1 category hit, got %d", len(env.CategoryHits))
	}
	hit := env.CategoryHits[0]
	if hit.Type != "image" || hit.ImgSrc != "https://img.example.com/p.jpg" {
		t.Errorf("image mapping wrong: %+v", hit)
	}
}
