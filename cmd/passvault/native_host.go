package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/passvault/pkg/audit"
	"github.com/forest6511/passvault/pkg/message"
)

func init() {
	rootCmd.AddCommand(nativeHostCmd)
}

// nativeHostCmd serves vault requests to a browser extension.
var nativeHostCmd = &cobra.Command{
	Use:    "native-host",
	Short:  "Serve vault requests over the browser native messaging protocol",
	Hidden: true,
	Long: `Serve vault requests framed as 4-byte length-prefixed JSON on stdin/stdout.

The browser starts this command; it exits when the browser closes stdin.
Logs go to stderr as JSON.`,
	// Browsers append the caller origin as an argument.
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNativeHost(cmd.Context())
	},
}

func runNativeHost(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = audit.WithSource(ctx, audit.SourceNative)

	d := message.NewDispatcher(v, logger)
	go func() {
		_ = d.Run(ctx)
	}()

	logger.Debug().Msg("native host ready")
	err := message.Serve(ctx, d, os.Stdin, os.Stdout)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
