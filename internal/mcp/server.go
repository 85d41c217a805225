package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/roschler/livepeer-image-helper-back-end/internal/audit"
	"github.com/roschler/livepeer-image-helper-back-end/internal/chat"
	"github.com/roschler/livepeer-image-helper-back-end/internal/volley"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Processor runs one image assistant turn.
type Processor interface {
	Process(ctx context.Context, t volley.Turn, n volley.Notifier) (*volley.Outcome, error)
}

// Server wraps an MCP server that exposes the image assistant as tools.
type Server struct {
	proc    Processor
	history chat.Store
	audit   *audit.Store
	mcp     *server.MCPServer
	// locks serializes process_volley per user. Stdio tool calls run on
	// a worker pool.
	locks volley.UserLocks
}

// NewServer creates a new MCP server. auditStore may be nil, in which case
// the audit tool is not offered.
func NewServer(proc Processor, history chat.Store, auditStore *audit.Store) *Server {
	s := &Server{
		proc:    proc,
		history: history,
		audit:   auditStore,
	}

	s.mcp = server.NewMCPServer(
		"imagehelper",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(processVolleyTool, s.handleProcessVolley)
	s.mcp.AddTool(getHistoryTool, s.handleGetHistory)
	if s.audit != nil {
		s.mcp.AddTool(getTurnAuditTool, s.handleGetTurnAudit)
	}
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
