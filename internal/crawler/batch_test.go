package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/crawlagent/config"
)

// safePages is a concurrency-safe page fake. failures[url] counts how many
// attempts fail before the URL starts serving its page.
type safePages struct {
	mu       sync.Mutex
	pages    map[string]Page
	failures map[string]int
	calls    []string
}

func (f *safePages) FetchPage(_ context.Context, url string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if n, ok := f.failures[url]; ok && n > 0 {
		f.failures[url] = n - 1
		return Page{Status: 503}, nil
	}
	if p, ok := f.pages[url]; ok {
		return p, nil
	}
	return Page{Status: 404, Body: []byte("not found")}, nil
}

func (f *safePages) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func articleBody(seed string) Page {
	return htmlPage(strings.Repeat(seed+" article prose with enough substance to validate. ", 20))
}

func testCoordinator(pages PageFetcher) (*BatchCoordinator, *[]time.Duration) {
	cfg := testFetchConfig()
	f := NewFetcher(cfg, nil, nil, pages, nil, nil, nil)
	b := NewBatchCoordinator(f, cfg, config.ChunkingConfig{}.Normalize(), nil)
	var slept []time.Duration
	b.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }
	return b, &slept
}

func urlsFor(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://site%d.test/", i)
	}
	return urls
}

func pagesFor(urls []string) map[string]Page {
	m := make(map[string]Page, len(urls))
	for i, u := range urls {
		m[u] = articleBody(fmt.Sprintf("source%d", i))
	}
	return m
}

func TestFetchManyAllSucceed(t *testing.T) {
	urls := urlsFor(4)
	pages := &safePages{pages: pagesFor(urls)}
	b, _ := testCoordinator(pages)

	env := b.FetchMany(context.Background(), BatchRequest{URLs: urls, Limit: 4, BatchSize: 2})
	if !env.Success || env.Successful != 4 || env.Failed != 0 {
		t.Fatalf("envelope: %+v", env)
	}
	if env.ShortageInfo == nil || env.ShortageInfo.ShortageDetected {
		t.Errorf("expected clean shortage report, got %+v", env.ShortageInfo)
	}
	// Results stay in input order.
	for i, r := range env.Results {
		if r.URL != urls[i] {
			t.Errorf("result %d out of order: %q", i, r.URL)
		}
	}
}

func TestFetchManyGroupPause(t *testing.T) {
	urls := urlsFor(5)
	pages := &safePages{pages: pagesFor(urls)}
	b, slept := testCoordinator(pages)

	b.FetchMany(context.Background(), BatchRequest{URLs: urls, BatchSize: 2})
	// Three groups (2+2+1) means two inter-group pauses.
	if len(*slept) != 2 {
		t.Fatalf("expected 2 pauses, got %d", len(*slept))
	}
	for _, d := range *slept {
		if d != b.cfg.BatchPause {
			t.Errorf("pause duration: %v", d)
		}
	}
}

func TestFetchManyBackupRecovery(t *testing.T) {
	// Target 3 with one dead primary; the backup pool covers the shortfall.
	urls := urlsFor(6)
	pages := &safePages{pages: pagesFor(urls)}
	delete(pages.pages, urls[1]) // 404s

	b, _ := testCoordinator(pages)
	env := b.FetchMany(context.Background(), BatchRequest{URLs: urls, Limit: 3, BatchSize: 10})
	if env.Successful != 3 {
		t.Fatalf("expected 3 successes after backup recovery, got %d (%+v)", env.Successful, env.ShortageInfo)
	}
	if env.ShortageInfo == nil || env.ShortageInfo.ShortageDetected {
		t.Errorf("shortage should be resolved: %+v", env.ShortageInfo)
	}
	// 2x shortage = at most 2 backup URLs drawn.
	if got := pages.callCount(); got > 5 {
		t.Errorf("too many fetches: %d", got)
	}
}

func TestFetchManyRetryFailedRecovery(t *testing.T) {
	// No backup pool; the dead URL recovers on the cooled-down second pass.
	urls := urlsFor(3)
	pages := &safePages{pages: pagesFor(urls), failures: map[string]int{urls[2]: 1}}

	b, slept := testCoordinator(pages)
	env := b.FetchMany(context.Background(), BatchRequest{URLs: urls, Limit: 3, BatchSize: 10})
	if env.Successful != 3 {
		t.Fatalf("expected retry to recover, got %d successes", env.Successful)
	}
	// The retried result replaces the failed entry in place.
	if env.Results[2].URL != urls[2] || !env.Results[2].Success {
		t.Errorf("in-place replacement failed: %+v", env.Results[2])
	}
	var sawCooldown bool
	for _, d := range *slept {
		if d == b.cfg.RetryCooldown {
			sawCooldown = true
		}
	}
	if !sawCooldown {
		t.Errorf("expected cooldown before retry, sleeps: %v", *slept)
	}
}

func TestFetchManyUnrecoverableShortage(t *testing.T) {
	urls := urlsFor(4)
	pages := &safePages{} // everything 404s
	b, _ := testCoordinator(pages)

	env := b.FetchMany(context.Background(), BatchRequest{URLs: urls, Limit: 4, BatchSize: 10})
	if env.Successful != 0 {
		t.Fatalf("expected zero successes, got %d", env.Successful)
	}
	info := env.ShortageInfo
	if info == nil || !info.ShortageDetected || info.Shortage != 4 {
		t.Fatalf("shortage report: %+v", info)
	}
	if !strings.Contains(info.Recommendation, "12") {
		t.Errorf("recommendation should scale to 3x target: %q", info.Recommendation)
	}
}

func TestFetchManyChunksLargeBatch(t *testing.T) {
	urls := urlsFor(2)
	big := strings.Repeat("Large corpus paragraph with plenty of text. ", 200)
	pages := &safePages{pages: map[string]Page{
		urls[0]: htmlPage(big),
		urls[1]: htmlPage(big),
	}}
	b, _ := testCoordinator(pages)

	env := b.FetchMany(context.Background(), BatchRequest{
		URLs: urls, AutoChunk: true, ChunkThreshold: 1000, ChunkSize: 2000,
	})
	if !env.Chunked || len(env.Chunks) == 0 || env.ChunkInfo == nil {
		t.Fatalf("expected chunked envelope: chunked=%v chunks=%d", env.Chunked, len(env.Chunks))
	}
	combined := CombineContent(env.Results)
	if !strings.Contains(combined, "[Source: "+urls[0]+"]") {
		t.Errorf("combined content missing source tag")
	}
	if !strings.Contains(combined, pageSeparator) {
		t.Errorf("combined content missing page separator")
	}
}

func TestFetchManyInvalidInput(t *testing.T) {
	b, _ := testCoordinator(&safePages{})

	if env := b.FetchMany(context.Background(), BatchRequest{}); env.Success || env.Error == "" {
		t.Errorf("empty input should fail: %+v", env)
	}
	env := b.FetchMany(context.Background(), BatchRequest{URLs: []string{"ftp://x", "not a url"}})
	if env.Success || env.Error != "no valid URLs" {
		t.Errorf("all-invalid input should fail: %+v", env)
	}
}
