// snowgate: ServiceNow MCP server.
//
// Bridges AI coding tools to ServiceNow instances over MCP stdio:
// record CRUD, query translation, and tiered context-switching and
// script-execution operations with automatic fallback.
//
// Usage:
//
//	snowgate serve     # Start MCP server (stdio transport)
//	snowgate version   # Print the version
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	snowserver "snowgate/internal/server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "snowgate",
		Short:        "ServiceNow MCP server",
		SilenceUsage: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio transport)",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := snowserver.New()
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer cleanup()
			return server.ServeStdio(s)
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("snowgate v%s\n", snowserver.Version)
		},
	}

	root.AddCommand(serve, version)
	return root
}
