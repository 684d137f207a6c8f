package crawler

import (
	"net/url"
	"sync"
	"time"
)

// RateLimiter applies per-origin sliding-window admission control. Admission
// is advisory and immediate: a denied caller decides for itself whether to
// skip, delay or fail. Check-and-append is atomic under the mutex so
// concurrent fetches within a batch cannot overrun an origin's quota.
type RateLimiter struct {
	mu      sync.Mutex
	quota   int
	window  time.Duration
	origins map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter builds a limiter admitting up to quota requests per origin
// inside any trailing window.
func NewRateLimiter(quota int, window time.Duration) *RateLimiter {
	if quota <= 0 {
		quota = 10
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &RateLimiter{
		quota:   quota,
		window:  window,
		origins: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Admit reports whether a request to rawURL is allowed right now. The
// timestamp is recorded only on admission; a URL without a host is always
// admitted and never tracked.
func (r *RateLimiter) Admit(rawURL string) bool {
	origin := originOf(rawURL)
	if origin == "" {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	kept := r.prune(origin, now)
	if len(kept) >= r.quota {
		r.origins[origin] = kept
		return false
	}
	r.origins[origin] = append(kept, now)
	return true
}

// TimeUntilAvailable returns how long until the origin's oldest in-window
// request ages out, or zero when the origin is under quota.
func (r *RateLimiter) TimeUntilAvailable(rawURL string) time.Duration {
	origin := originOf(rawURL)
	if origin == "" {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	kept := r.prune(origin, now)
	r.origins[origin] = kept
	if len(kept) < r.quota {
		return 0
	}
	oldest := kept[0]
	remaining := oldest.Add(r.window).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// prune drops timestamps older than the window. Caller holds the mutex.
// Timestamps are appended in order, so the kept slice stays sorted and its
// first element is always the oldest.
func (r *RateLimiter) prune(origin string, now time.Time) []time.Time {
	stamps := r.origins[origin]
	kept := stamps[:0]
	for _, ts := range stamps {
		if now.Sub(ts) < r.window {
			kept = append(kept, ts)
		}
	}
	return kept
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
