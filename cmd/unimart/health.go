package main

import (
	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Query a running server's health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, release, err := newClient(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer release()

			h, err := c.Health(cmd.Context())
			if h.Status != "" {
				if perr := printJSON(cmd.OutOrStdout(), h); perr != nil {
					return perr
				}
			}
			return err
		},
	}
}
