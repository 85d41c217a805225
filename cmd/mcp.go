package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roschler/livepeer-image-helper-back-end/internal/logging"
	mcpserver "github.com/roschler/livepeer-image-helper-back-end/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing the image assistant and its history as tools.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// Stdout carries the protocol; zap writes to stderr.
		logger, err := logging.New(verbose)
		if err != nil {
			return err
		}
		defer logger.Sync()

		a, err := buildApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		mcpserver.Version = version()

		fmt.Fprintf(os.Stderr, "imagehelper MCP server started on stdio (history=%s)\n", cfg.History.Backend)

		srv := mcpserver.NewServer(a.processor, a.history, a.audit)
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
