package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/gradebox/internal/config"
	"github.com/michaelbrown/gradebox/internal/exercise"
	"github.com/michaelbrown/gradebox/internal/grader"
	"github.com/michaelbrown/gradebox/internal/logging"
	"github.com/michaelbrown/gradebox/internal/sandbox"
)

const maxOutput = 4000

// runner holds what the tool handlers share for the life of the process.
type runner struct {
	sb      sandbox.Sandbox
	grader  *grader.Grader
	catalog *exercise.Catalog
}

func main() {
	cfg, err := config.Load(os.Getenv("GRADEBOX_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the MCP protocol; logs go to stderr.
	if _, err := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	r, err := newRunner(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := server.ServeStdio(newServer(r)); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
	}
}

func newRunner(cfg *config.Config) (*runner, error) {
	catalog, err := exercise.LoadDir(cfg.Exercises.Dir)
	if err != nil {
		return nil, fmt.Errorf("loading exercises: %w", err)
	}
	sb := cfg.NewSandbox()
	g, err := grader.New(grader.Config{
		Precheck:        sb,
		Policy:          cfg.Policy(),
		Timeout:         cfg.Grading.Timeout,
		PrecheckTimeout: cfg.Grading.PrecheckTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &runner{sb: sb, grader: g, catalog: catalog}, nil
}

func newServer(r *runner) *server.MCPServer {
	s := server.NewMCPServer("gradebox-code-runner", "0.1.0")

	s.AddTool(mcp.Tool{
		Name:        "code_run",
		Description: "Execute JavaScript in an isolated sandbox and return the captured console output.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "JavaScript source, run as the body of a function",
				},
			},
			Required: []string{"code"},
		},
	}, r.handleCodeRun)

	s.AddTool(mcp.Tool{
		Name:        "code_grade",
		Description: "Grade a JavaScript submission against an exercise and return the JSON report (score 0-10).",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Student code as typed in the editor",
				},
				"exercise_id": map[string]any{
					"type":        "string",
					"description": "Exercise from the catalog to grade against",
				},
				"content": map[string]any{
					"type":        "object",
					"description": "Inline exercise content (mainCode, functionName, tests, forbiddenFunctions) when no exercise_id is given",
				},
			},
			Required: []string{"code"},
		},
	}, r.handleCodeGrade)

	return s
}

func (r *runner) handleCodeRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errResult("error: invalid arguments"), nil
	}

	code, _ := args["code"].(string)
	if code == "" {
		return errResult("error: 'code' is required"), nil
	}

	result, err := r.sb.Exec(ctx, sandbox.ExecOpts{Code: code})
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: truncate(result.Output)}},
		IsError: result.Type != sandbox.OutcomeSuccess,
	}, nil
}

func (r *runner) handleCodeGrade(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errResult("error: invalid arguments"), nil
	}

	code, _ := args["code"].(string)
	exerciseID, _ := args["exercise_id"].(string)

	var content grader.Content
	switch {
	case exerciseID != "":
		ex, err := r.catalog.Get(exerciseID)
		if err != nil {
			return errResult(fmt.Sprintf("error: %v", err)), nil
		}
		content = ex.Content()
	case args["content"] != nil:
		// Round-trip through JSON so Content's own decoding rules apply.
		raw, err := json.Marshal(args["content"])
		if err == nil {
			err = json.Unmarshal(raw, &content)
		}
		if err != nil {
			return errResult(fmt.Sprintf("error: invalid content: %v", err)), nil
		}
	default:
		return errResult("error: one of 'exercise_id' or 'content' is required"), nil
	}

	report, err := r.grader.Grade(ctx, content, code, nil)
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(data)}},
	}, nil
}

func truncate(text string) string {
	if len(text) > maxOutput {
		return text[:maxOutput] + "\n... (output truncated)"
	}
	return text
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
