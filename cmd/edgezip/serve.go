package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dejo1307/edgezip/internal/server"
)

func (a *app) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd)
		},
	}
}

func (a *app) serve(cmd *cobra.Command) error {
	st, err := a.openStore()
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	srv, err := server.New(st, a.cfg, a.remote())
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return srv.Run(cmd.Context())
}
