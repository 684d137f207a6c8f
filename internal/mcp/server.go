// Package mcp exposes the tool registry over a stdio JSON-RPC transport.
// Clients connect via "tools/list" and "tools/call"; planning runs are
// available through the "plan_task" pseudo-tool.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/mohammad-safakhou/crawlagent/internal/agent"
	"github.com/mohammad-safakhou/crawlagent/internal/registry"
)

type rpcReq struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}
type rpcResp struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id"`
	Result  map[string]any `json:"result,omitempty"`
	Error   *rpcError      `json:"error,omitempty"`
}
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeResp(w io.Writer, id any, result map[string]any, err error) {
	resp := rpcResp{JSONRPC: "2.0", ID: id}
	if err != nil {
		resp.Error = &rpcError{Code: -32000, Message: err.Error()}
	} else {
		resp.Result = result
	}
	enc := json.NewEncoder(w)
	_ = enc.Encode(resp)
}

const planToolName = "plan_task"

// Server serves registry tools over stdio. One request at a time; handlers
// run under a per-call timeout so a stuck fetch cannot wedge the loop.
type Server struct {
	tools       *registry.Registry
	orch        *agent.Orchestrator
	callTimeout time.Duration
	logger      *log.Logger
}

func NewServer(tools *registry.Registry, orch *agent.Orchestrator) *Server {
	return &Server{
		tools:       tools,
		orch:        orch,
		callTimeout: 5 * time.Minute,
		logger:      log.New(log.Writer(), "[MCP] ", log.LstdFlags),
	}
}

// listTools returns the advertised tool list.
func (s *Server) listTools() map[string]any {
	tools := s.tools.Describe()
	if s.orch != nil {
		tools = append(tools, registry.ToolDesc{
			Name:        planToolName,
			Description: "Plan a research task with the reasoning service, execute data gathering steps and return an executor-ready handoff.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"user_query":  map[string]any{"type": "string"},
					"max_steps":   map[string]any{"type": "integer", "minimum": 1, "maximum": 20},
					"exact_steps": map[string]any{"type": "integer", "minimum": 1, "maximum": 20},
					"complexity":  map[string]any{"type": "string", "enum": []string{"simple", "detailed", "comprehensive"}},
					"execute":     map[string]any{"type": "boolean"},
				},
				"required": []string{"user_query"},
			},
		})
	}
	return map[string]any{"tools": tools}
}

// callTool dispatches one invocation.
func (s *Server) callTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if name == planToolName && s.orch != nil {
		return s.planTask(ctx, args)
	}
	return s.tools.Invoke(ctx, name, args)
}

func (s *Server) planTask(ctx context.Context, args map[string]any) (map[string]any, error) {
	req := agent.RunRequest{ExecutePlan: true, EnableRecovery: true}
	if v, ok := args["user_query"].(string); ok {
		req.Query = v
	}
	if v, ok := args["max_steps"].(float64); ok {
		req.MaxSteps = int(v)
	}
	if v, ok := args["exact_steps"].(float64); ok {
		req.ExactSteps = int(v)
	}
	if v, ok := args["complexity"].(string); ok {
		req.Complexity = v
	}
	if v, ok := args["execute"].(bool); ok {
		req.ExecutePlan = v
	}

	env := s.orch.Run(ctx, req)
	return registry.ToMap(env)
}

// Serve reads newline-delimited JSON-RPC requests from in until EOF.
func (s *Server) Serve(in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var req rpcReq
		if err := json.Unmarshal(line, &req); err != nil {
			// skip malformed frames
			continue
		}

		switch req.Method {
		case "tools/list":
			writeResp(out, req.ID, s.listTools(), nil)

		case "tools/call":
			name := ""
			args := map[string]any{}
			if v, ok := req.Params["name"].(string); ok {
				name = v
			}
			if m, ok := req.Params["arguments"].(map[string]any); ok {
				args = m
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
			res, err := s.callTool(ctx, name, args)
			cancel()
			if err != nil {
				s.logger.Printf("tool %s failed: %v", name, err)
			}
			writeResp(out, req.ID, res, err)

		default:
			writeResp(out, req.ID, nil, fmt.Errorf("unknown method: %s", req.Method))
		}
	}
	return sc.Err()
}
