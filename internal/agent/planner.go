package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/mohammad-safakhou/crawlagent/internal/registry"
)

// Tool classification used by the orchestrator. Data-gathering tools are
// executed directly; reasoning tools are staged for the external executor.
var (
	dataGatheringTools = map[string]bool{
		"search":        true,
		"fetch_webpage": true,
	}
	reasoningTools = map[string]bool{
		"runLLM":    true,
		"analyze":   true,
		"summarize": true,
		"generate":  true,
	}
)

func IsDataGatheringTool(name string) bool { return dataGatheringTools[name] }
func IsReasoningTool(name string) bool     { return reasoningTools[name] }

// PlanRequest carries the caller's planning parameters.
type PlanRequest struct {
	Query      string `json:"user_query"`
	MaxSteps   int    `json:"max_steps"`
	ExactSteps int    `json:"exact_steps"`
	Complexity string `json:"complexity"`
}

var complexityInstructions = map[string]string{
	"simple":   "Use minimal steps, focus on key information only.",
	"moderate": "Balanced approach, gather sufficient information.",
	"detailed": "COMPREHENSIVE ANALYSIS. Gather extensive information. The final analysis must provide detailed, in-depth explanations with specific examples and data. NO SUMMARIZATION.",
}

// Planner requests an execution plan from the reasoning service and parses
// the sanitized response into an ordered step list.
type Planner struct {
	provider LLMProvider
	tools    *registry.Registry
	logger   *log.Logger
}

func NewPlanner(provider LLMProvider, tools *registry.Registry) *Planner {
	return &Planner{
		provider: provider,
		tools:    tools,
		logger:   log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// BuildPlan asks the reasoning service for a step list, sanitizes the
// response and cleans per-step arguments. A plan that stays empty or
// unparsable after one sanitation pass is a terminal failure.
func (p *Planner) BuildPlan(ctx context.Context, req PlanRequest) (*Plan, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("user query is required")
	}

	budget := req.MaxSteps
	if req.ExactSteps > 0 {
		budget = req.ExactSteps
	}
	if budget <= 0 {
		budget = 10
	}
	complexity := req.Complexity
	if _, ok := complexityInstructions[complexity]; !ok {
		complexity = "detailed"
	}

	p.logger.Printf("planning %q (budget %d, %s)", query, budget, complexity)

	raw, err := p.provider.Complete(ctx, []Message{
		{
			Role:    "system",
			Content: fmt.Sprintf("Expert task planner. Create flexible, optimal plan. Up to %d steps. Return ONLY valid JSON.", budget),
		},
		{
			Role:    "user",
			Content: p.buildPrompt(query, budget, complexity),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("plan request: %w", err)
	}

	var plan Plan
	if err := json.Unmarshal([]byte(CleanJSONResponse(raw)), &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("empty plan generated")
	}
	if plan.MainQuery == "" {
		plan.MainQuery = query
	}
	plan.TotalSteps = len(plan.Steps)

	for i := range plan.Steps {
		plan.Steps[i].Arguments = cleanStepArguments(plan.Steps[i].Tool, plan.Steps[i].Arguments)
	}
	return &plan, nil
}

func (p *Planner) buildPrompt(query string, budget int, complexity string) string {
	var tools strings.Builder
	for _, d := range p.tools.Describe() {
		fmt.Fprintf(&tools, "- %s: %s\n", d.Name, d.Description)
	}

	return fmt.Sprintf(`Create execution plan for: %q

Available Tools:
%s
Complexity: %s - %s

TOOL GUIDELINES:

1. search:
   - query: search query (string)
   - limit: number of results (10-60)
   - Use 3x buffer: need 30 articles -> limit=90

2. fetch_webpage:
   - limit: articles to fetch (3-30)
   - DO NOT include urls (auto-injected from search)

3. runLLM:
   - messages: conversation array
   - DO NOT include url/apiKey/model (executor provides)
   - Use {{FETCHED_CONTENT}} placeholder for fetched data
   - Request DETAILED, COMPREHENSIVE analysis

PLAN PATTERNS (choose best for query):

Pattern A (Data + Analysis): search -> fetch_webpage -> runLLM
Pattern B (Multiple Sources): search -> fetch_webpage -> search -> fetch_webpage -> runLLM
Pattern C (Direct LLM): runLLM only, if no data gathering needed

Return JSON:
{
  "main_query": "concise description",
  "plan": [
    {
      "step": 1,
      "tool": "tool_name",
      "arguments": {...},
      "purpose": "why this step",
      "expected_output": "what it produces"
    }
  ],
  "total_steps": %d
}`, query, tools.String(), complexity, complexityInstructions[complexity], budget)
}

// cleanStepArguments injects default limits and strips arguments the
// orchestrator or executor supplies itself.
func cleanStepArguments(tool string, args map[string]any) map[string]any {
	if args == nil {
		args = map[string]any{}
	}
	switch {
	case tool == "search":
		if _, ok := args["limit"]; !ok {
			args["limit"] = 30
		}
	case tool == "fetch_webpage":
		if _, ok := args["limit"]; !ok {
			args["limit"] = 10
		}
		delete(args, "max_length")
		delete(args, "urls")
	case IsReasoningTool(tool):
		delete(args, "url")
		delete(args, "apiKey")
		delete(args, "model")
		delete(args, "max_tokens")
	}
	return args
}

var (
	lineCommentRe  = regexp.MustCompile(`//.*?\n`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	trailingComma  = regexp.MustCompile(`,(\s*[}\]])`)
)

// CleanJSONResponse strips code fences, trims the response to the outermost
// object span and removes comment and trailing-comma artifacts that reasoning
// services habitually emit inside "JSON" output.
func CleanJSONResponse(response string) string {
	s := strings.TrimSpace(response)

	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		first := strings.ToLower(strings.TrimSpace(lines[0]))
		if first == "```json" || first == "```" {
			lines = lines[1:]
		}
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
			lines = lines[:len(lines)-1]
		}
		s = strings.TrimSpace(strings.Join(lines, "\n"))
	}

	if !strings.HasPrefix(s, "{") {
		if i := strings.Index(s, "{"); i != -1 {
			s = s[i:]
		}
	}
	if !strings.HasSuffix(s, "}") {
		if i := strings.LastIndex(s, "}"); i != -1 {
			s = s[:i+1]
		}
	}

	s = lineCommentRe.ReplaceAllString(s, "\n")
	s = blockCommentRe.ReplaceAllString(s, "")
	s = trailingComma.ReplaceAllString(s, "$1")
	return s
}
