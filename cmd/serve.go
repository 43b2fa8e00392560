package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the ingest control API until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeApp, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			return a.Serve(cmd.Context())
		},
	}
}
