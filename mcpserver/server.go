// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes tools
// for sandboxed program execution. It uses the mark3labs/mcp-go library to
// handle the protocol details and provides the run_program and run_batch
// tools as the interface to the execution pipeline.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/sandbox"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	executor  *sandbox.Executor
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, executor *sandbox.Executor) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		executor: executor,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.String("runner.backend", s.config.Runner.Backend),
		zap.String("runner.root_dir", s.config.Runner.RootDir),
		zap.Int("runner.time_limit_secs", s.config.Runner.TimeLimitSecs),
		zap.Int("runner.memory_limit_mb", s.config.Runner.MemoryLimitMB),
		zap.Int("runner.max_parallel", s.config.Runner.MaxParallel),
		zap.Bool("runner.enable_unconfined_backend", s.config.Runner.EnableUnconfinedBackend),
	)

	// Create the MCP server
	s.mcpServer = server.NewMCPServer("runbox", "A sandboxed batch execution server")

	// Register the execution tools
	s.registerRunProgramTool()
	s.registerRunBatchTool()

	return s, nil
}

// environmentSchema describes the compute context accepted by both tools.
func environmentSchema() map[string]any {
	return map[string]any{
		"type":        "object",
		"description": "Execution environment for the program(s)",
		"properties": map[string]any{
			"language": map[string]any{
				"type":        "string",
				"description": "Runtime language",
				"enum":        []string{"python", "nodejs", "go", "cpp"},
			},
			"time_limit_secs": map[string]any{
				"type":        "integer",
				"description": "Wall time limit in seconds (0 uses the configured default)",
			},
			"memory_limit_mb": map[string]any{
				"type":        "integer",
				"description": "Memory limit in megabytes (0 uses the configured default)",
			},
			"extra_options": map[string]any{
				"type":        "object",
				"description": "Backend-specific options, e.g. a requirements key with a requirements.txt payload",
			},
		},
		"required": []string{"language"},
	}
}

// programSchema describes one program submission.
func programSchema() map[string]any {
	return map[string]any{
		"type":        "object",
		"description": "One program: an entrypoint, its files, and passthrough tracking fields",
		"properties": map[string]any{
			"entrypoint": map[string]any{
				"type":        "string",
				"description": "Name of the file to execute; must appear in files",
			},
			"files": map[string]any{
				"type":        "array",
				"description": "Source files of the program",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"file_name": map[string]any{"type": "string"},
						"content":   map[string]any{"type": "string"},
					},
					"required": []string{"file_name", "content"},
				},
			},
		},
		"required": []string{"entrypoint", "files"},
	}
}

// registerRunProgramTool registers the run_program tool
func (s *MCPServer) registerRunProgramTool() {
	tool := mcp.Tool{
		Name:        "run_program",
		Description: "Execute one untrusted program in a sandboxed environment",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"program":     programSchema(),
				"environment": environmentSchema(),
			},
			Required: []string{"program", "environment"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunProgram)
}

// registerRunBatchTool registers the run_batch tool
func (s *MCPServer) registerRunBatchTool() {
	tool := mcp.Tool{
		Name:        "run_batch",
		Description: "Execute a batch of untrusted programs concurrently and return ordered results",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"submission_id": map[string]any{
					"type":        "string",
					"description": "Identifier echoed back on the batch result",
				},
				"environment": environmentSchema(),
				"programs": map[string]any{
					"type":        "array",
					"description": "Programs sharing the batch environment, results keep this order",
					"items":       programSchema(),
				},
			},
			Required: []string{"submission_id", "environment", "programs"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunBatch)
}

// handleRunProgram handles the run_program tool
func (s *MCPServer) handleRunProgram(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Program     sandbox.Program        `json:"program"`
		Environment sandbox.ComputeContext `json:"environment"`
	}
	if err := request.BindArguments(&args); err != nil {
		return nil, fmt.Errorf("invalid run_program arguments: %w", err)
	}

	if err := args.Program.Validate(); err != nil {
		return nil, fmt.Errorf("invalid program: %w", err)
	}

	s.logger.Info("program execution requested",
		zap.String("language", args.Environment.Language),
		zap.String("entrypoint", args.Program.Entrypoint))

	result, err := s.executor.Run(ctx, args.Program, args.Environment)
	if err != nil {
		s.logger.Error("program execution failed", zap.Error(err))
		return errorResult(fmt.Sprintf("Execution failed: %v", err)), nil
	}

	return jsonResult(result)
}

// handleRunBatch handles the run_batch tool
func (s *MCPServer) handleRunBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var batch sandbox.Batch
	if err := request.BindArguments(&batch); err != nil {
		return nil, fmt.Errorf("invalid run_batch arguments: %w", err)
	}

	s.logger.Info("batch execution requested",
		zap.String("submission_id", batch.SubmissionID),
		zap.String("language", batch.Environment.Language),
		zap.Int("programs", len(batch.Programs)))

	result, err := s.executor.RunBatch(ctx, batch)
	if err != nil {
		s.logger.Error("batch execution failed",
			zap.String("submission_id", batch.SubmissionID),
			zap.Error(err))
		return errorResult(fmt.Sprintf("Batch execution failed: %v", err)), nil
	}

	return jsonResult(result)
}

// jsonResult wraps a value as a JSON text content result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(body),
			},
		},
	}, nil
}

// errorResult wraps an execution failure as a tool error result.
func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: msg,
			},
		},
		IsError: true,
	}
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
