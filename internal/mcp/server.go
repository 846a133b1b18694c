package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pritzvi/linked-out/internal/job"
	"github.com/pritzvi/linked-out/internal/models"
	"github.com/pritzvi/linked-out/internal/store"
)

// Server exposes the live session as MCP tools.
type Server struct {
	ctrl    *job.Controller
	history store.Store
	version string
}

// NewServer creates the MCP server wrapper. history may be nil.
func NewServer(ctrl *job.Controller, history store.Store, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{ctrl: ctrl, history: history, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("linked-out", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.progressTool())
	srv.AddTool(s.configTool())
	srv.AddTool(s.launchTool())
	srv.AddTool(s.sessionsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// linkedout_progress
func (s *Server) progressTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("linkedout_progress",
		mcp.WithDescription("Get the current outreach session progress: phase, counts (discovered, completed, processing, pending, failed), result file path and failure reason."),
		mcp.WithBoolean("include_profiles", mcp.Description("Include the per-profile records (default false)")),
	)
	return tool, s.handleProgress
}

func (s *Server) handleProgress(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report := s.ctrl.Report()
	if !request.GetBool("include_profiles", false) {
		report.Profiles = nil
	}
	return jsonResult(report)
}

// linkedout_config
func (s *Server) configTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("linkedout_config",
		mcp.WithDescription("Show the session configuration and whether the launch gate is open."),
	)
	return tool, s.handleConfig
}

func (s *Server) handleConfig(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := s.ctrl.Config()
	return jsonResult(struct {
		Phase     models.Phase         `json:"phase"`
		CanLaunch bool                 `json:"can_launch"`
		Config    models.SessionConfig `json:"config"`
	}{
		Phase:     s.ctrl.Phase(),
		CanLaunch: cfg.CanLaunch(),
		Config:    cfg.View(),
	})
}

// linkedout_launch
func (s *Server) launchTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("linkedout_launch",
		mcp.WithDescription("Launch the outreach session. Fails unless the resume summary is locked and, when notes are sent, the templates are confirmed."),
	)
	return tool, s.handleLaunch
}

func (s *Server) handleLaunch(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := s.ctrl.Launch(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("launch failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"message":         "Search initiated",
		"phase":           s.ctrl.Phase(),
		"profiles_needed": payload.ProfilesNeeded,
	})
}

// linkedout_sessions
func (s *Server) sessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("linkedout_sessions",
		mcp.WithDescription("List past sessions from history, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum sessions to return (default 10)")),
	)
	return tool, s.handleSessions
}

func (s *Server) handleSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("session history is disabled"), nil
	}
	sessions, err := s.history.ListSessions(ctx, request.GetInt("limit", 10))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}
	if sessions == nil {
		sessions = []*models.SessionRecord{}
	}
	return jsonResult(sessions)
}
