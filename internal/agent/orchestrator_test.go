package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/crawlagent/internal/registry"
)

// stubTool records invocations and replays canned results in order. The last
// result repeats once the list is exhausted.
type stubTool struct {
	name    string
	results []map[string]any
	calls   []map[string]any
}

func (s *stubTool) Describe() registry.ToolDesc {
	return registry.ToolDesc{Name: s.name, Description: s.name + " stub"}
}

func (s *stubTool) Invoke(_ context.Context, args map[string]any) (map[string]any, error) {
	s.calls = append(s.calls, args)
	if len(s.results) == 0 {
		return map[string]any{"success": true}, nil
	}
	r := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return r, nil
}

func searchResult(urls ...string) map[string]any {
	items := make([]any, 0, len(urls))
	for _, u := range urls {
		items = append(items, map[string]any{"url": u, "title": "t"})
	}
	return map[string]any{"success": true, "results": items}
}

func fetchResult(shortage int, contents map[string]string) map[string]any {
	items := make([]any, 0, len(contents))
	for url, content := range contents {
		items = append(items, map[string]any{"success": true, "url": url, "content": content})
	}
	out := map[string]any{"success": true, "results": items}
	if shortage > 0 {
		out["shortage_info"] = map[string]any{
			"shortage_detected": true,
			"shortage":          float64(shortage),
		}
	}
	return out
}

func planResponse(steps string) string {
	return `{"main_query": "test", "plan": [` + steps + `]}`
}

func newTestOrchestrator(planJSON string, search, fetch *stubTool) *Orchestrator {
	reg := registry.New(search, fetch)
	planner := NewPlanner(&fakeProvider{responses: []string{planJSON}}, reg)
	return NewOrchestrator(planner, reg, nil)
}

func TestRunExecutesStepsInOrder(t *testing.T) {
	search := &stubTool{name: "search", results: []map[string]any{
		searchResult("https://a.test", "https://b.test"),
	}}
	fetch := &stubTool{name: "fetch_webpage", results: []map[string]any{
		fetchResult(0, map[string]string{"https://a.test": "Document body A"}),
	}}
	o := newTestOrchestrator(planResponse(`
		{"step":1,"tool":"search","arguments":{"query":"boeing 787"}},
		{"step":2,"tool":"fetch_webpage","arguments":{"limit":5}},
		{"step":3,"tool":"runLLM","arguments":{"messages":[{"role":"user","content":"Analyze: {{FETCHED_CONTENT}}"}]}}`),
		search, fetch)

	env := o.Run(context.Background(), RunRequest{
		PlanRequest:    PlanRequest{Query: "boeing 787"},
		ExecutePlan:    true,
		EnableRecovery: true,
	})
	if !env.Success {
		t.Fatalf("run failed: %s", env.Error)
	}
	if len(search.calls) != 1 || len(fetch.calls) != 1 {
		t.Fatalf("call counts: search=%d fetch=%d", len(search.calls), len(fetch.calls))
	}

	// The fetch step got the search result URLs injected.
	urls, _ := fetch.calls[0]["urls"].([]string)
	if len(urls) != 2 || urls[0] != "https://a.test" {
		t.Errorf("auto-injected urls: %v", fetch.calls[0]["urls"])
	}

	if env.ExecutorReady == nil || !env.ExecutorReady.Ready {
		t.Fatal("expected executor-ready envelope")
	}
	call := env.ExecutorReady.ExecutorCall
	if call.ToolName != "runLLM" || !call.InjectAPI {
		t.Errorf("executor call: %+v", call)
	}
	msgs, _ := call.Arguments["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages: %v", call.Arguments)
	}
	content, _ := msgs[0].(map[string]any)["content"].(string)
	if strings.Contains(content, fetchedContentPlaceholder) {
		t.Errorf("placeholder not substituted: %q", content)
	}
	if !strings.Contains(content, "[Source: https://a.test]") || !strings.Contains(content, "Document body A") {
		t.Errorf("fetched content missing from message: %q", content)
	}
	if env.ExecutorReady.ContentStats.Documents != 1 {
		t.Errorf("content stats: %+v", env.ExecutorReady.ContentStats)
	}
}

func TestRunRecoveryCycle(t *testing.T) {
	search := &stubTool{name: "search", results: []map[string]any{
		searchResult("https://a.test"),
		searchResult("https://r1.test", "https://r2.test"),
	}}
	fetch := &stubTool{name: "fetch_webpage", results: []map[string]any{
		fetchResult(2, map[string]string{"https://a.test": "partial"}),
		fetchResult(0, map[string]string{"https://r1.test": "recovered"}),
	}}
	o := newTestOrchestrator(planResponse(`
		{"step":1,"tool":"search","arguments":{"query":"Boeing aircraft"}},
		{"step":2,"tool":"fetch_webpage","arguments":{}}`),
		search, fetch)

	env := o.Run(context.Background(), RunRequest{
		PlanRequest:    PlanRequest{Query: "Boeing aircraft"},
		ExecutePlan:    true,
		EnableRecovery: true,
	})
	exec := env.ExecutionResult
	if exec == nil || !exec.RecoveryAttempted {
		t.Fatalf("recovery not attempted: %+v", exec)
	}

	// Recovery searched with the precomputed multilingual backup at 5x the
	// shortage, then fetched at the shortage target.
	if len(search.calls) != 2 {
		t.Fatalf("search calls: %d", len(search.calls))
	}
	recSearch := search.calls[1]
	q, _ := recSearch["query"].(string)
	if q == "Boeing aircraft" || q == "" {
		t.Errorf("recovery must use the backup query, got %q", q)
	}
	if q != exec.BackupQueryUsed {
		t.Errorf("backup query mismatch: %q vs %q", q, exec.BackupQueryUsed)
	}
	if recSearch["limit"] != 10 {
		t.Errorf("recovery search limit should be 5x shortage: %v", recSearch["limit"])
	}
	recFetch := fetch.calls[1]
	if recFetch["limit"] != 2 {
		t.Errorf("recovery fetch limit should equal shortage: %v", recFetch["limit"])
	}
	if _, ok := exec.Results["fetch_webpage_recovery"]; !ok {
		t.Errorf("recovery result not recorded")
	}
}

func TestRunRecoveryAtMostOnce(t *testing.T) {
	// Both fetch steps report shortage; only the first triggers recovery and
	// every recovery fetch also stays short.
	search := &stubTool{name: "search", results: []map[string]any{
		searchResult("https://a.test"),
	}}
	fetch := &stubTool{name: "fetch_webpage", results: []map[string]any{
		fetchResult(3, nil),
	}}
	o := newTestOrchestrator(planResponse(`
		{"step":1,"tool":"search","arguments":{"query":"Boeing aircraft"}},
		{"step":2,"tool":"fetch_webpage","arguments":{}},
		{"step":3,"tool":"fetch_webpage","arguments":{}}`),
		search, fetch)

	env := o.Run(context.Background(), RunRequest{
		PlanRequest:    PlanRequest{Query: "Boeing aircraft"},
		ExecutePlan:    true,
		EnableRecovery: true,
	})
	exec := env.ExecutionResult
	if !exec.RecoveryAttempted {
		t.Fatal("recovery should have been attempted")
	}
	// Plan searches: 1. Recovery searches: exactly 1, despite two shortages.
	if len(search.calls) != 2 {
		t.Errorf("recovery must run at most once per plan, search calls: %d", len(search.calls))
	}
}

func TestRunRecoveryDisabled(t *testing.T) {
	search := &stubTool{name: "search", results: []map[string]any{searchResult("https://a.test")}}
	fetch := &stubTool{name: "fetch_webpage", results: []map[string]any{fetchResult(2, nil)}}
	o := newTestOrchestrator(planResponse(`
		{"step":1,"tool":"search","arguments":{"query":"q"}},
		{"step":2,"tool":"fetch_webpage","arguments":{}}`),
		search, fetch)

	env := o.Run(context.Background(), RunRequest{
		PlanRequest: PlanRequest{Query: "q"},
		ExecutePlan: true,
	})
	if env.ExecutionResult.RecoveryAttempted {
		t.Error("recovery ran while disabled")
	}
	if len(search.calls) != 1 {
		t.Errorf("search calls: %d", len(search.calls))
	}
}

func TestRunPlanOnly(t *testing.T) {
	search := &stubTool{name: "search"}
	fetch := &stubTool{name: "fetch_webpage"}
	o := newTestOrchestrator(planResponse(`{"step":1,"tool":"search","arguments":{"query":"q"}}`), search, fetch)

	env := o.Run(context.Background(), RunRequest{PlanRequest: PlanRequest{Query: "q"}})
	if !env.Success || env.ExecutionResult != nil {
		t.Errorf("plan-only run must not execute: %+v", env)
	}
	if len(search.calls) != 0 {
		t.Errorf("no tools should run in plan-only mode")
	}
}

func TestRunNoReasoningStep(t *testing.T) {
	search := &stubTool{name: "search", results: []map[string]any{searchResult("https://a.test")}}
	fetch := &stubTool{name: "fetch_webpage", results: []map[string]any{
		fetchResult(0, map[string]string{"https://a.test": "body"}),
	}}
	o := newTestOrchestrator(planResponse(`
		{"step":1,"tool":"search","arguments":{"query":"q"}},
		{"step":2,"tool":"fetch_webpage","arguments":{}}`),
		search, fetch)

	env := o.Run(context.Background(), RunRequest{PlanRequest: PlanRequest{Query: "q"}, ExecutePlan: true})
	if env.ExecutorReady != nil {
		t.Error("no reasoning step means no executor handoff")
	}
	if !strings.Contains(env.Summary, "complete") {
		t.Errorf("summary: %q", env.Summary)
	}
}

func TestRunPlanFailure(t *testing.T) {
	reg := registry.New()
	planner := NewPlanner(&fakeProvider{responses: []string{"not json at all"}}, reg)
	o := NewOrchestrator(planner, reg, nil)

	env := o.Run(context.Background(), RunRequest{PlanRequest: PlanRequest{Query: "q"}})
	if env.Success || env.Error == "" {
		t.Errorf("plan failure must surface: %+v", env)
	}
}
