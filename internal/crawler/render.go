package crawler

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
)

// RenderedPageFetcher drives a headless browser so script-heavy pages hand
// back their post-render DOM instead of an empty shell. It satisfies
// PageFetcher and can be swapped in for HTTPPageFetcher where sites need it.
type RenderedPageFetcher struct {
	userAgent string
	timeout   time.Duration
}

func NewRenderedPageFetcher(userAgent string, timeout time.Duration) *RenderedPageFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RenderedPageFetcher{userAgent: userAgent, timeout: timeout}
}

func (r *RenderedPageFetcher) FetchPage(ctx context.Context, url string) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent(r.userAgent),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return Page{}, err
	}
	return Page{Status: 200, Body: []byte(html)}, nil
}
