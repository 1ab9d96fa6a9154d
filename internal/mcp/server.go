// Package mcp implements the MCP (Model Context Protocol) server for passvault.
// Agents can check and lock the vault and see which logins exist, but
// never receive a plaintext password.
package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/forest6511/passvault/pkg/audit"
	"github.com/forest6511/passvault/pkg/message"
)

// Server represents the MCP server for passvault.
type Server struct {
	server *mcp.Server
	sender message.Sender
	log    zerolog.Logger
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// Version is reported to clients.
	Version string

	Logger zerolog.Logger
}

// NewServer creates a server whose tools talk to the vault through sender.
func NewServer(sender message.Sender, opts ServerOptions) *Server {
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "passvault",
			Version: version,
		}, nil),
		sender: sender,
		log:    opts.Logger,
	}
	s.registerTools()
	return s
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vault_status",
		Description: "Report whether the password vault is unlocked.",
	}, s.handleVaultStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vault_lock",
		Description: "Lock the password vault immediately. The user must unlock it again before any credential can be used.",
	}, s.handleVaultLock)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "credential_list",
		Description: "List stored logins with their ids, websites and usernames. Does NOT return passwords.",
	}, s.handleCredentialList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "credential_lookup",
		Description: "Find logins for a website origin (e.g. https://github.com). Passwords are masked (e.g. '****WXYZ').",
	}, s.handleCredentialLookup)
}

// Run serves MCP over stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// send tags ctx so audit entries name the MCP surface.
func (s *Server) send(ctx context.Context, req message.Request) message.Response {
	return s.sender.Send(audit.WithSource(ctx, audit.SourceMCP), req)
}
