package cmd

import (
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/pritzvi/linked-out/internal/mcp"
	"github.com/pritzvi/linked-out/internal/setup"
)

var mcpSessionFile string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

The server owns its own outreach session, configured and launched with
the same worker settings as 'linked-out serve'. Configure in Claude Code
with the session preloaded from --file (see 'linked-out run --help'):

  {
    "mcpServers": {
      "linked-out": { "command": "linked-out", "args": ["mcp", "--file", "session.yaml"] }
    }
  }

Available tools: linkedout_progress, linkedout_config, linkedout_launch,
linkedout_sessions`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
		defer stop()

		history, err := getStore()
		if err != nil {
			return err
		}
		defer func() { _ = history.Close() }()

		// stdout carries the protocol; logs go to stderr only when verbose.
		var logOut io.Writer = io.Discard
		if verbose {
			logOut = os.Stderr
		}
		logger := newLogger(logOut)

		cfg := setup.NewStore()
		if mcpSessionFile != "" {
			sf, err := loadSessionFile(mcpSessionFile)
			if err != nil {
				return err
			}
			if err := sf.apply(cfg); err != nil {
				return err
			}
		}

		ctrl := newController(cfg, newKeyRegistry(), history, logger)
		go ctrl.Watch(ctx, pollInterval())
		defer ctrl.Shutdown(cmd.Context(), "mcp server stopped")

		return mcp.NewServer(ctrl, history, buildVersion).ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().StringVarP(&mcpSessionFile, "file", "f", "", "session file to preload")
}
