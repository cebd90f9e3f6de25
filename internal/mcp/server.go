// Package mcp exposes the skill pipeline to agents over the Model Context
// Protocol. Tools map one-to-one onto service operations; the MCP layer
// adds no policy of its own, so every permission decision still happens in
// the enforcer and lands in the audit trail.
package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roasbeef/skillet/internal/skills"
)

// Server wraps the MCP server with the skills service.
type Server struct {
	server *mcp.Server
	svc    *skills.Service
}

// NewServer creates a new MCP server with all skill tools registered.
func NewServer(svc *skills.Service) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "skillet",
		Version: "0.1.0",
	}, nil)

	s := &Server{
		server: mcpServer,
		svc:    svc,
	}

	s.registerTools()

	return s
}

// Run starts the MCP server on the given transport.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

// registerTools registers all skill tools.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "run_skill",
		Description: "Execute an installed skill with an input " +
			"payload",
	}, s.handleRunSkill)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "inspect_skill",
		Description: "Show a skill's manifest, capability breakdown " +
			"and effective grant",
	}, s.handleInspectSkill)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_skills",
		Description: "List installed skills",
	}, s.handleListSkills)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "search_skills",
		Description: "Full-text search over installed skill names " +
			"and descriptions",
	}, s.handleSearchSkills)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "revoke_capability",
		Description: "Revoke a single capability from an installed " +
			"skill",
	}, s.handleRevokeCapability)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "audit_trail",
		Description: "Query the append-only audit trail of " +
			"capability checks and invocations",
	}, s.handleAuditTrail)
}
