package agent

// PlanStep is one instruction in the ordered step list produced by the
// reasoning service. Steps are consumed strictly in ordinal order.
type PlanStep struct {
	Step           int            `json:"step"`
	Tool           string         `json:"tool"`
	Arguments      map[string]any `json:"arguments"`
	Purpose        string         `json:"purpose,omitempty"`
	ExpectedOutput string         `json:"expected_output,omitempty"`
}

// Plan is the parsed planner response.
type Plan struct {
	MainQuery  string     `json:"main_query"`
	Steps      []PlanStep `json:"plan"`
	TotalSteps int        `json:"total_steps"`
}

// ExecutionResult aggregates per-tool outputs from one orchestration run.
type ExecutionResult struct {
	Success           bool                      `json:"success"`
	Results           map[string]map[string]any `json:"results"`
	RecoveryAttempted bool                      `json:"recovery_attempted"`
	BackupQueryUsed   string                    `json:"backup_query_used,omitempty"`
}

// ExecutorCall carries an assembled reasoning step with its content already
// substituted in. The caller runs it with its own credentials; the
// orchestrator never invokes it.
type ExecutorCall struct {
	Action    string         `json:"action"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	InjectAPI bool           `json:"inject_api"`
}

// ContentStats summarizes the material assembled for a reasoning step.
type ContentStats struct {
	TotalSize int `json:"total_size"`
	Documents int `json:"documents"`
}

// ExecutorReady signals that data gathering finished and a reasoning step is
// staged for the caller.
type ExecutorReady struct {
	Ready        bool         `json:"ready"`
	Status       string       `json:"status"`
	NextAction   string       `json:"next_action"`
	Instruction  string       `json:"instruction"`
	ExecutorCall ExecutorCall `json:"executor_call"`
	ContentStats ContentStats `json:"content_stats"`
}

// PlanEnvelope is the orchestrator's full response.
type PlanEnvelope struct {
	Success         bool             `json:"success"`
	MainQuery       string           `json:"main_query,omitempty"`
	Plan            []PlanStep       `json:"plan,omitempty"`
	TotalSteps      int              `json:"total_steps,omitempty"`
	ModelUsed       string           `json:"model_used,omitempty"`
	ExecutionResult *ExecutionResult `json:"execution_result,omitempty"`
	ExecutorReady   *ExecutorReady   `json:"executor_ready,omitempty"`
	Summary         string           `json:"summary,omitempty"`
	Error           string           `json:"error,omitempty"`
}
