package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/crawlagent/internal/registry"
	"github.com/mohammad-safakhou/crawlagent/internal/runtime"
)

var orchestratorTracer trace.Tracer = otel.Tracer("crawlagent/internal/agent/orchestrator")

// fetchedContentPlaceholder is replaced in reasoning-step messages with the
// concatenation of all successfully fetched documents.
const fetchedContentPlaceholder = "{{FETCHED_CONTENT}}"

const documentSeparator = "\n\n---\n\n"

// Orchestrator runs plans produced by the Planner. Data-gathering steps
// execute strictly in order against the tool registry; reasoning steps are
// assembled and handed back, never invoked here.
type Orchestrator struct {
	planner *Planner
	tools   *registry.Registry
	metrics *runtime.Metrics
	logger  *log.Logger
}

func NewOrchestrator(planner *Planner, tools *registry.Registry, metrics *runtime.Metrics) *Orchestrator {
	return &Orchestrator{
		planner: planner,
		tools:   tools,
		metrics: metrics,
		logger:  log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
	}
}

// RunRequest controls one orchestration run.
type RunRequest struct {
	PlanRequest
	ExecutePlan    bool `json:"execute_plan"`
	EnableRecovery bool `json:"enable_auto_recovery"`
}

// Run plans and, when requested, executes the data-gathering steps.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) PlanEnvelope {
	planCtx, planSpan := orchestratorTracer.Start(ctx, "agent.plan",
		trace.WithAttributes(attribute.String("query", req.Query)))
	plan, err := o.planner.BuildPlan(planCtx, req.PlanRequest)
	if err != nil {
		planSpan.RecordError(err)
		planSpan.SetStatus(codes.Error, err.Error())
		planSpan.End()
		return PlanEnvelope{Error: err.Error()}
	}
	planSpan.SetAttributes(attribute.Int("steps", len(plan.Steps)))
	planSpan.SetStatus(codes.Ok, "completed")
	planSpan.End()

	env := PlanEnvelope{
		Success:    true,
		MainQuery:  plan.MainQuery,
		Plan:       plan.Steps,
		TotalSteps: plan.TotalSteps,
		ModelUsed:  o.planner.provider.Model(),
	}
	if !req.ExecutePlan {
		env.Summary = fmt.Sprintf("Plan ready: %d steps. Execution was not requested.", plan.TotalSteps)
		return env
	}

	execCtx, execSpan := orchestratorTracer.Start(ctx, "agent.execute")
	exec := o.executeDataSteps(execCtx, plan, req.EnableRecovery)
	execSpan.SetAttributes(attribute.Bool("recovery_attempted", exec.RecoveryAttempted))
	execSpan.SetStatus(codes.Ok, "completed")
	execSpan.End()

	env.ExecutionResult = exec
	o.prepareReasoningSteps(&env, plan, exec)
	return env
}

// executeDataSteps runs the retrieval-class steps strictly in order and
// applies at most one recovery cycle across the whole run.
func (o *Orchestrator) executeDataSteps(ctx context.Context, plan *Plan, enableRecovery bool) *ExecutionResult {
	exec := &ExecutionResult{
		Success: true,
		Results: make(map[string]map[string]any),
	}

	var lastSearch map[string]any
	var backupQuery string

	for _, step := range plan.Steps {
		if IsReasoningTool(step.Tool) {
			continue
		}
		o.logger.Printf("step %d: %s", step.Step, step.Tool)

		args := copyArgs(step.Arguments)

		// Fetch steps inherit the previous search's result URLs unless the
		// plan supplied its own.
		if step.Tool == "fetch_webpage" && lastSearch != nil {
			if _, ok := args["urls"]; !ok {
				if urls := resultURLs(lastSearch); len(urls) > 0 {
					args["urls"] = urls
					o.logger.Printf("auto-injected %d URLs from search", len(urls))
				}
			}
		}

		// The multilingual backup comes from the first query-bearing step and
		// is computed eagerly so recovery never depends on a second LLM call.
		if step.Tool == "search" {
			if q, _ := args["query"].(string); q != "" && backupQuery == "" {
				backupQuery = GenerateMultilingualBackup(q)
				o.logger.Printf("backup query: %q", backupQuery)
			}
		}

		result, err := o.tools.Invoke(ctx, step.Tool, args)
		if err != nil {
			result = map[string]any{"success": false, "error": err.Error()}
		}
		exec.Results[step.Tool] = result

		if step.Tool == "search" {
			lastSearch = result
		}

		if step.Tool == "fetch_webpage" && enableRecovery && !exec.RecoveryAttempted {
			if shortage := shortageOf(result); shortage > 0 {
				o.runRecovery(ctx, exec, backupQuery, shortage)
			}
		}
	}
	return exec
}

// runRecovery performs the single bounded recovery cycle: a backup-language
// search at 5x the shortage, then a fetch at the shortage target. The
// attempted flag is set before any outcome is known; one cycle per run is a
// hard cap, successful or not.
func (o *Orchestrator) runRecovery(ctx context.Context, exec *ExecutionResult, backupQuery string, shortage int) {
	exec.RecoveryAttempted = true
	if backupQuery == "" {
		o.logger.Printf("shortage of %d but no backup query available", shortage)
		return
	}
	o.metrics.ObserveRecovery()
	o.logger.Printf("recovery: shortage %d, searching %q", shortage, backupQuery)
	exec.BackupQueryUsed = backupQuery

	ctx, span := orchestratorTracer.Start(ctx, "agent.recovery",
		trace.WithAttributes(attribute.Int("shortage", shortage)))
	defer span.End()

	searchResult, err := o.tools.Invoke(ctx, "search", map[string]any{
		"query": backupQuery,
		"limit": shortage * 5,
	})
	if err != nil {
		span.RecordError(err)
		o.logger.Printf("recovery search failed: %v", err)
		return
	}
	urls := resultURLs(searchResult)
	if len(urls) == 0 {
		o.logger.Printf("recovery search returned no URLs")
		return
	}

	fetchResult, err := o.tools.Invoke(ctx, "fetch_webpage", map[string]any{
		"urls":  urls,
		"limit": shortage,
	})
	if err != nil {
		span.RecordError(err)
		o.logger.Printf("recovery fetch failed: %v", err)
		return
	}
	exec.Results["fetch_webpage_recovery"] = fetchResult

	if remaining := shortageOf(fetchResult); remaining > 0 {
		o.logger.Printf("still %d short after recovery, limit reached", remaining)
	} else {
		o.logger.Printf("recovery resolved the shortage")
	}
}

// prepareReasoningSteps assembles the first reasoning step with fetched
// content substituted in and marks the envelope executor-ready. When the run
// has no reasoning steps or fetched nothing, the envelope closes with a plain
// completion summary.
func (o *Orchestrator) prepareReasoningSteps(env *PlanEnvelope, plan *Plan, exec *ExecutionResult) {
	var reasoningStep *PlanStep
	for i := range plan.Steps {
		if IsReasoningTool(plan.Steps[i].Tool) {
			reasoningStep = &plan.Steps[i]
			break
		}
	}
	if reasoningStep == nil || !exec.Success {
		env.Summary = "All steps complete. No further action needed."
		return
	}

	docs := fetchedDocuments(exec)
	if len(docs) == 0 {
		env.Summary = "Reasoning step planned but no content was fetched."
		return
	}
	combined := strings.Join(docs, documentSeparator)

	args := copyArgs(reasoningStep.Arguments)
	substitutePlaceholder(args, combined)

	env.ExecutorReady = &ExecutorReady{
		Ready:       true,
		Status:      "data_gathering_complete",
		NextAction:  "call_executor",
		Instruction: fmt.Sprintf("Use the executor to run %q. Do not plan again; re-planning duplicates the data gathering.", reasoningStep.Tool),
		ExecutorCall: ExecutorCall{
			Action:    "execute",
			ToolName:  reasoningStep.Tool,
			Arguments: args,
			InjectAPI: true,
		},
		ContentStats: ContentStats{
			TotalSize: len(combined),
			Documents: len(docs),
		},
	}
	env.Summary = fmt.Sprintf(
		"Data gathering complete: %d documents fetched, %d characters. Next: run %q through the executor for the final analysis.",
		len(docs), len(combined), reasoningStep.Tool)
}

// fetchedDocuments collects successful fetch contents tagged with their URLs.
func fetchedDocuments(exec *ExecutionResult) []string {
	var docs []string
	for tool, result := range exec.Results {
		if !strings.HasPrefix(tool, "fetch_webpage") {
			continue
		}
		items, _ := result["results"].([]any)
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if ok, _ := m["success"].(bool); !ok {
				continue
			}
			url, _ := m["url"].(string)
			content, _ := m["content"].(string)
			if content == "" {
				continue
			}
			docs = append(docs, fmt.Sprintf("[Source: %s]\n%s", url, content))
		}
	}
	return docs
}

// substitutePlaceholder replaces the content placeholder inside a reasoning
// step's messages array.
func substitutePlaceholder(args map[string]any, content string) {
	messages, ok := args["messages"].([]any)
	if !ok {
		return
	}
	for _, raw := range messages {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := msg["content"].(string); ok {
			msg["content"] = strings.ReplaceAll(text, fetchedContentPlaceholder, content)
		}
	}
}

func resultURLs(result map[string]any) []string {
	items, _ := result["results"].([]any)
	var urls []string
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			if u, _ := m["url"].(string); u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls
}

func shortageOf(result map[string]any) int {
	info, _ := result["shortage_info"].(map[string]any)
	if info == nil {
		return 0
	}
	if detected, _ := info["shortage_detected"].(bool); !detected {
		return 0
	}
	switch v := info["shortage"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func copyArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
