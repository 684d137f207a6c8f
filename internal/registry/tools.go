package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/crawlagent/internal/crawler"
)

// SearchTool exposes the paginated keyword search.
type SearchTool struct {
	Client *crawler.SearxClient
}

func (t *SearchTool) Describe() ToolDesc {
	return ToolDesc{
		Name:        "search",
		Description: "Search the web via SearXNG. Supports categories (general, images, videos, files, map, social media), pagination and time ranges.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":      map[string]any{"type": "string"},
				"limit":      map[string]any{"type": "integer", "minimum": 1, "maximum": 60},
				"category":   map[string]any{"type": "string"},
				"language":   map[string]any{"type": "string"},
				"time_range": map[string]any{"type": "string", "enum": []string{"day", "week", "month", "year"}},
				"safesearch": map[string]any{"type": "integer", "minimum": 0, "maximum": 2},
				"engines":    map[string]any{"type": "string"},
			},
			"required": []string{"query"},
		},
	}
}

func (t *SearchTool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	env, err := t.Client.Search(ctx, query, crawler.SearchOptions{
		Limit:      intArg(args, "limit"),
		Category:   strArg(args, "category"),
		Language:   strArg(args, "language"),
		TimeRange:  strArg(args, "time_range"),
		SafeSearch: intArg(args, "safesearch"),
		Engines:    strArg(args, "engines"),
	})
	if err != nil {
		return nil, err
	}
	return ToMap(env)
}

// FetchTool exposes single-URL and batch fetching through one entry point,
// matching the url/urls argument split callers expect.
type FetchTool struct {
	Fetcher *crawler.Fetcher
	Batch   *crawler.BatchCoordinator
}

func (t *FetchTool) Describe() ToolDesc {
	return ToolDesc{
		Name:        "fetch_webpage",
		Description: "Fetch one URL or a batch of URLs, extract readable text, validate content and chunk oversized aggregates. Batch mode runs shortfall recovery against backup URLs.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url":        map[string]any{"type": "string"},
				"urls":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"limit":      map[string]any{"type": "integer", "minimum": 1, "maximum": 30},
				"batch_size": map[string]any{"type": "integer", "minimum": 1, "maximum": 20},
				"auto_chunk": map[string]any{"type": "boolean"},
			},
		},
	}
}

func (t *FetchTool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	if single, ok := args["url"].(string); ok && single != "" {
		if _, hasList := args["urls"]; hasList {
			return nil, fmt.Errorf("url and urls are mutually exclusive")
		}
		return ToMap(t.Fetcher.Fetch(ctx, single))
	}

	urls := strSliceArg(args, "urls")
	if len(urls) == 0 {
		return nil, fmt.Errorf("url or urls is required")
	}
	autoChunk := true
	if v, ok := args["auto_chunk"].(bool); ok {
		autoChunk = v
	}
	env := t.Batch.FetchMany(ctx, crawler.BatchRequest{
		URLs:      urls,
		Limit:     intArg(args, "limit"),
		BatchSize: intArg(args, "batch_size"),
		AutoChunk: autoChunk,
	})
	return ToMap(env)
}

// DateTimeTool reports the current time in a fixed location.
type DateTimeTool struct {
	Location *time.Location
	Now      func() time.Time
}

func (t *DateTimeTool) Describe() ToolDesc {
	return ToolDesc{
		Name:        "get_current_datetime",
		Description: "Get the current date and time. Returns ISO and human-readable forms.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func (t *DateTimeTool) Invoke(_ context.Context, _ map[string]any) (map[string]any, error) {
	loc := t.Location
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	local := now().In(loc)
	return map[string]any{
		"success":      true,
		"datetime":     local.Format(time.RFC3339),
		"formatted":    local.Format("Monday, January 2, 2006 at 3:04 PM (MST)"),
		"timezone":     loc.String(),
		"utc_datetime": local.UTC().Format(time.RFC3339),
	}, nil
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func strArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func strSliceArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
