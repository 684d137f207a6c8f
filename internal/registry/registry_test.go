package registry

import (
	"context"
	"strings"
	"testing"
	"time"
)

type echoTool struct{ name string }

func (e echoTool) Describe() ToolDesc {
	return ToolDesc{Name: e.name, Description: "echoes arguments"}
}

func (e echoTool) Invoke(_ context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"success": true, "echo": args}, nil
}

func TestRegistryDescribeOrder(t *testing.T) {
	r := New(echoTool{"alpha"}, echoTool{"beta"}, echoTool{"alpha"})
	descs := r.Describe()
	if len(descs) != 2 {
		t.Fatalf("duplicate registration not ignored: %d tools", len(descs))
	}
	if descs[0].Name != "alpha" || descs[1].Name != "beta" {
		t.Errorf("registration order lost: %v", descs)
	}
}

func TestRegistryInvoke(t *testing.T) {
	r := New(echoTool{"alpha"})
	out, err := r.Invoke(context.Background(), "alpha", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["success"] != true {
		t.Errorf("result: %v", out)
	}

	if _, err := r.Invoke(context.Background(), "missing", nil); err == nil {
		t.Fatal("expected unknown tool error")
	}
	if !r.Has("alpha") || r.Has("missing") {
		t.Error("Has misreports registration")
	}
}

func TestDateTimeTool(t *testing.T) {
	fixed := time.Date(2025, time.November, 21, 0, 52, 45, 0, time.UTC)
	tool := &DateTimeTool{Now: func() time.Time { return fixed }}

	out, err := tool.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["datetime"] != "2025-11-21T00:52:45Z" {
		t.Errorf("datetime: %v", out["datetime"])
	}
	formatted, _ := out["formatted"].(string)
	if !strings.Contains(formatted, "November 21, 2025") {
		t.Errorf("formatted: %q", formatted)
	}
	if out["timezone"] != "UTC" {
		t.Errorf("timezone: %v", out["timezone"])
	}
}

func TestFetchToolArgumentValidation(t *testing.T) {
	tool := &FetchTool{}

	if _, err := tool.Invoke(context.Background(), map[string]any{}); err == nil {
		t.Error("missing url and urls must error")
	}
	_, err := tool.Invoke(context.Background(), map[string]any{
		"url":  "https://a.test",
		"urls": []any{"https://b.test"},
	})
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("expected mutual exclusion error, got %v", err)
	}
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{
		"limit":   float64(30),
		"query":   "q",
		"urls":    []any{"https://a.test", 7, "https://b.test"},
		"strings": []string{"x"},
	}
	if intArg(args, "limit") != 30 || intArg(args, "absent") != 0 {
		t.Error("intArg")
	}
	if strArg(args, "query") != "q" || strArg(args, "absent") != "" {
		t.Error("strArg")
	}
	urls := strSliceArg(args, "urls")
	if len(urls) != 2 || urls[1] != "https://b.test" {
		t.Errorf("strSliceArg skips non-strings: %v", urls)
	}
	if got := strSliceArg(args, "strings"); len(got) != 1 {
		t.Errorf("native []string passthrough: %v", got)
	}
}
