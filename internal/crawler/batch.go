package crawler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/crawlagent/config"
	"github.com/mohammad-safakhou/crawlagent/internal/runtime"
	"golang.org/x/sync/errgroup"
)

// pageSeparator joins per-URL documents before chunking.
const pageSeparator = "\n\n---PAGE SEPARATOR---\n\n"

// BatchRequest describes one FetchMany operation.
type BatchRequest struct {
	URLs []string
	// Limit is the target count of validated successes. URLs beyond the
	// limit form the backup pool for shortfall recovery. Zero means "fetch
	// exactly what I was given" with no recovery.
	Limit          int
	BatchSize      int
	AutoChunk      bool
	ChunkThreshold int
	ChunkSize      int
	ChunkOverlap   int
}

// BatchCoordinator fans fetches out in bounded concurrent groups and runs the
// two-stage shortfall recovery: spare URLs first, then a cooled-down retry of
// the failures. Recovery runs once per FetchMany call, never recursively.
type BatchCoordinator struct {
	fetcher  *Fetcher
	cfg      config.FetchConfig
	chunking config.ChunkingConfig
	metrics  *runtime.Metrics
	logger   *log.Logger
	sleep    func(context.Context, time.Duration)
}

func NewBatchCoordinator(fetcher *Fetcher, cfg config.FetchConfig, chunking config.ChunkingConfig, metrics *runtime.Metrics) *BatchCoordinator {
	return &BatchCoordinator{
		fetcher:  fetcher,
		cfg:      cfg.Normalize(),
		chunking: chunking.Normalize(),
		metrics:  metrics,
		logger:   log.New(log.Writer(), "[BATCH] ", log.LstdFlags),
		sleep:    sleepCtx,
	}
}

// FetchMany fetches the request's URLs and assembles the batch envelope.
// Per-URL failures never abort the batch; only an empty or fully invalid URL
// list is fatal.
func (b *BatchCoordinator) FetchMany(ctx context.Context, req BatchRequest) BatchEnvelope {
	start := time.Now()

	valid := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		if ValidURL(u) {
			valid = append(valid, u)
		}
	}
	if dropped := len(req.URLs) - len(valid); dropped > 0 {
		b.logger.Printf("skipping %d invalid URLs", dropped)
	}
	if len(valid) == 0 {
		return BatchEnvelope{Error: "no valid URLs"}
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = b.cfg.BatchSize
	}
	batchSize = clamp(batchSize, 1, 20)

	var toFetch, backup []string
	target := 0
	if req.Limit > 0 {
		target = clamp(req.Limit, 1, 30)
		if target > len(valid) {
			target = len(valid)
		}
		toFetch = valid[:target]
		backup = valid[target:]
	} else {
		toFetch = valid
	}

	results := b.fetchGroups(ctx, toFetch, batchSize)

	var shortage *ShortageReport
	if target > 0 {
		results, shortage = b.recover(ctx, results, backup, target, batchSize)
	}

	env := b.assemble(results, req, start)
	env.ShortageInfo = shortage
	b.metrics.ObserveBatchDuration(time.Since(start).Seconds())
	return env
}

// fetchGroups runs the URL list in concurrent groups of batchSize with a
// politeness pause between groups. The result slice preserves input order.
func (b *BatchCoordinator) fetchGroups(ctx context.Context, urls []string, batchSize int) []FetchResult {
	results := make([]FetchResult, len(urls))
	for i := 0; i < len(urls); i += batchSize {
		end := i + batchSize
		if end > len(urls) {
			end = len(urls)
		}
		g, gctx := errgroup.WithContext(ctx)
		for j := i; j < end; j++ {
			g.Go(func() error {
				results[j] = b.fetcher.Fetch(gctx, urls[j])
				return nil
			})
		}
		_ = g.Wait()

		if end < len(urls) {
			b.sleep(ctx, b.cfg.BatchPause)
		}
	}
	return results
}

// recover runs the two-stage shortfall recovery and emits the report.
func (b *BatchCoordinator) recover(ctx context.Context, results []FetchResult, backup []string, target, batchSize int) ([]FetchResult, *ShortageReport) {
	achieved := countSuccesses(results)
	if achieved >= target {
		return results, &ShortageReport{Requested: target, Achieved: achieved}
	}
	shortage := target - achieved
	b.logger.Printf("shortfall: %d/%d, backup pool %d", achieved, target, len(backup))
	b.metrics.ObserveRecovery()

	// Strategy 1: draw from the backup pool.
	if len(backup) > 0 && shortage > 0 {
		take := shortage * 2
		if take > len(backup) {
			take = len(backup)
		}
		spare := b.fetchGroups(ctx, backup[:take], batchSize)
		for _, r := range spare {
			if r.Success && ValidContent(r.Content, b.cfg.MinChars, b.cfg.ErrorPageCeil) {
				results = append(results, r)
				achieved++
				if achieved >= target {
					break
				}
			}
		}
	}

	// Strategy 2: retry the original failures after a cooldown, replacing
	// any entry whose retry now validates.
	if achieved < target {
		var failedURLs []string
		for _, r := range results {
			if !r.Success {
				failedURLs = append(failedURLs, r.URL)
			}
		}
		remaining := target - achieved
		if len(failedURLs) > remaining*2 {
			failedURLs = failedURLs[:remaining*2]
		}
		if len(failedURLs) > 0 {
			b.sleep(ctx, b.cfg.RetryCooldown)
			retried := b.fetchGroups(ctx, failedURLs, batchSize)
		retry:
			for _, r := range retried {
				if !r.Success || !ValidContent(r.Content, b.cfg.MinChars, b.cfg.ErrorPageCeil) {
					continue
				}
				for i, orig := range results {
					if orig.URL == r.URL && !orig.Success {
						results[i] = r
						achieved++
						if achieved >= target {
							break retry
						}
						break
					}
				}
			}
		}
	}

	report := &ShortageReport{Requested: target, Achieved: achieved}
	if achieved < target {
		report.ShortageDetected = true
		report.Shortage = target - achieved
		report.Recommendation = fmt.Sprintf(
			"Increase search limit to %d or use different keywords", target*3)
	}
	return results, report
}

// assemble computes totals, applies the chunking trigger and fills the
// envelope.
func (b *BatchCoordinator) assemble(results []FetchResult, req BatchRequest, start time.Time) BatchEnvelope {
	successful := countSuccesses(results)
	totalSize := 0
	for _, r := range results {
		if r.Success {
			totalSize += r.ContentLength
		}
	}
	elapsed := time.Since(start).Seconds()

	env := BatchEnvelope{
		Success:          true,
		TotalURLs:        len(results),
		Successful:       successful,
		Failed:           len(results) - successful,
		Results:          results,
		TotalContentSize: totalSize,
		Performance: BatchPerformance{
			TotalTimeSeconds: round2(elapsed),
		},
	}
	if len(results) > 0 {
		env.Performance.AvgTimePerURL = round2(elapsed / float64(len(results)))
	}

	threshold := req.ChunkThreshold
	if threshold <= 0 {
		threshold = b.chunking.Threshold
	}
	if req.AutoChunk && totalSize > threshold {
		size := req.ChunkSize
		if size <= 0 {
			size = b.chunking.Size
		}
		overlap := req.ChunkOverlap
		if overlap <= 0 {
			overlap = b.chunking.Overlap
		}
		combined := CombineContent(results)
		chunks := ChunkText(combined, size, overlap)
		env.Chunked = true
		env.Chunks = chunks
		env.ChunkInfo = SummarizeChunks(chunks, totalSize, threshold, size)
	}
	return env
}

// CombineContent concatenates the successful documents, each tagged with its
// source URL.
func CombineContent(results []FetchResult) string {
	var parts []string
	for _, r := range results {
		if r.Success {
			parts = append(parts, fmt.Sprintf("[Source: %s]\n%s", r.URL, r.Content))
		}
	}
	return strings.Join(parts, pageSeparator)
}

func countSuccesses(results []FetchResult) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
