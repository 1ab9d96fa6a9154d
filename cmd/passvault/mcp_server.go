package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/passvault/internal/mcp"
	"github.com/forest6511/passvault/pkg/message"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI coding assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI coding assistant integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

AI agents never receive plaintext passwords.

Available tools:
  - vault_status:      Report whether the vault is unlocked
  - vault_lock:        Lock the vault
  - credential_list:   List credentials (ids, usernames, origins)
  - credential_lookup: Credentials for one origin with masked passwords

Authentication:
  Set PASSVAULT_PASSWORD before starting the server to unlock at startup.
  It is read once and immediately cleared from the environment. Without
  it the server only sees a session that is already unlocked
  (session_store: redis).

Example MCP configuration:
  {
    "mcpServers": {
      "passvault": {
        "type": "stdio",
        "command": "/path/to/passvault",
        "args": ["mcp-server"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer(cmd.Context())
	},
}

func runMCPServer(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if p, ok := os.LookupEnv(passwordEnv); ok {
		_ = os.Unsetenv(passwordEnv)
		if err := v.Unlock(ctx, p); err != nil {
			return fmt.Errorf("failed to unlock vault: %w", err)
		}
	}

	d := message.NewDispatcher(v, logger)
	go func() {
		_ = d.Run(ctx)
	}()

	server := mcp.NewServer(d, mcp.ServerOptions{
		Version: version,
		Logger:  logger,
	})
	logger.Info().Str("data_dir", cfg.DataDir).Msg("mcp server started")

	if err := server.Run(ctx); err != nil {
		// Don't report context canceled as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
